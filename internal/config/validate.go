package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir is required")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir is required")
	}
	if bind := strings.TrimSpace(c.Paths.APIBind); bind != "" {
		if _, _, err := net.SplitHostPort(bind); err != nil {
			problems = append(problems, fmt.Sprintf("paths.api_bind %q is not host:port", bind))
		}
	}
	if strings.TrimSpace(c.Beets.Binary) == "" {
		problems = append(problems, "beets.binary is required")
	}

	for _, check := range []struct {
		name  string
		value int
	}{
		{"debounce.inbox_seconds", c.Debounce.InboxSeconds},
		{"debounce.library_seconds", c.Debounce.LibrarySeconds},
		{"debounce.cover_seconds", c.Debounce.CoverSeconds},
		{"debounce.lyrics_seconds", c.Debounce.LyricsSeconds},
		{"lyrics.rate_limit", c.Lyrics.RateLimit},
		{"lyrics.cooldown_seconds", c.Lyrics.CooldownSeconds},
		{"cache.library_stats_ttl_seconds", c.Cache.LibraryStatsTTLSeconds},
		{"cache.inbox_stats_ttl_seconds", c.Cache.InboxStatsTTLSeconds},
		{"logging.event_log_entries", c.Logging.EventLogEntries},
	} {
		if check.value <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive", check.name))
		}
	}
	if c.Lyrics.MaxRetries < 0 {
		problems = append(problems, "lyrics.max_retries must not be negative")
	}
	if c.MPD.Port <= 0 || c.MPD.Port > 65535 {
		problems = append(problems, fmt.Sprintf("mpd.port %d is out of range", c.MPD.Port))
	}
	if url := strings.TrimSpace(c.Slskd.URL); url != "" && !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		problems = append(problems, fmt.Sprintf("slskd.url %q must be an http(s) URL", url))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
