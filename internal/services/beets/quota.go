package beets

import "strings"

// ClassifyQuota reports whether captured beets output indicates the lyrics
// backend refused us for exceeding its request quota. Matching is deliberately
// narrow: only HTTP 429 markers count, so ordinary lookup misses never trip a
// cooldown.
func ClassifyQuota(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "429") || strings.Contains(lower, "too many requests")
}

// LyricsFound reports whether a completed lyrics run actually produced lyrics.
// Beets exits zero even when nothing was found, so the output has to be read.
func LyricsFound(output string) bool {
	lower := strings.ToLower(output)
	if strings.Contains(lower, "lyrics not found") {
		return false
	}
	return strings.Contains(lower, "fetched lyrics") || strings.Contains(lower, "lyrics found")
}
