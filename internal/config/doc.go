// Package config loads, validates, and normalizes Tonearm's TOML
// configuration.
package config
