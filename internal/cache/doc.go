// Package cache provides TTL-bounded memoization for expensive aggregate
// reads, invalidated by the pipeline actions that mutate their domain.
package cache
