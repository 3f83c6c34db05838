package config

// Default returns the built-in configuration values. Timing constants mirror
// the deployment this replaces: a one minute settling window for the inbox,
// shorter fixed delays elsewhere, and a ten-per-minute lyrics budget.
func Default() Config {
	return Config{
		Paths: Paths{
			InboxDir:   "~/music/inbox",
			LibraryDir: "~/music/library",
			DataDir:    "~/.local/share/tonearm",
			LogDir:     "~/.local/share/tonearm/logs",
			APIBind:    "127.0.0.1:8713",
		},
		Beets: Beets{
			Binary:               "beet",
			ConfigPath:           "~/.config/beets/config.yaml",
			QueryTimeoutSeconds:  180,
			CoverTimeoutSeconds:  300,
			LyricsTimeoutSeconds: 60,
		},
		Debounce: Debounce{
			InboxSeconds:     60,
			LibrarySeconds:   30,
			CoverSeconds:     30,
			LyricsSeconds:    10,
			IgnoreSubstrings: []string{"_UNPACK_", ".beets"},
		},
		Lyrics: Lyrics{
			RateLimit:       10,
			CooldownSeconds: 60,
			MaxRetries:      3,
		},
		Cache: Cache{
			LibraryStatsTTLSeconds: 300,
			InboxStatsTTLSeconds:   60,
		},
		Slskd: Slskd{
			TimeoutSeconds: 30,
		},
		MPD: MPD{
			Binary:     "mpc",
			Host:       "localhost",
			Port:       6600,
			MusicMount: "NAS/MUSIC",
		},
		Workflow: Workflow{
			CleanupIntervalSeconds: 1800,
			RegenTimeoutSeconds:    1800,
		},
		Logging: Logging{
			Format:          "console",
			Level:           "info",
			EventLogEntries: 100,
		},
	}
}
