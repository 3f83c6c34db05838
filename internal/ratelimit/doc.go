// Package ratelimit implements the lyrics domain's admission control: a
// sliding-window limiter with a quota cooldown, and the retry ledger that
// caps automatic requeues per target.
package ratelimit
