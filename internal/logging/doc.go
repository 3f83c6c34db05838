// Package logging configures the shared slog logger and provides attribute
// helpers used by every component.
package logging
