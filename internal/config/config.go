package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	InboxDir   string `toml:"inbox_dir"`
	LibraryDir string `toml:"library_dir"`
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
}

// Beets contains configuration for the external beets tagger.
type Beets struct {
	Binary               string `toml:"binary"`
	ConfigPath           string `toml:"config_path"`
	LibraryDB            string `toml:"library_db"`
	QueryTimeoutSeconds  int    `toml:"query_timeout_seconds"`
	CoverTimeoutSeconds  int    `toml:"cover_timeout_seconds"`
	LyricsTimeoutSeconds int    `toml:"lyrics_timeout_seconds"`
}

// Debounce contains the per-queue quiet windows and event filters.
type Debounce struct {
	InboxSeconds     int      `toml:"inbox_seconds"`
	LibrarySeconds   int      `toml:"library_seconds"`
	CoverSeconds     int      `toml:"cover_seconds"`
	LyricsSeconds    int      `toml:"lyrics_seconds"`
	IgnoreSubstrings []string `toml:"ignore_substrings"`
}

// Lyrics contains rate limiting and retry settings for the lyrics domain.
type Lyrics struct {
	RateLimit       int `toml:"rate_limit"`
	CooldownSeconds int `toml:"cooldown_seconds"`
	MaxRetries      int `toml:"max_retries"`
}

// Cache contains TTLs for the cached aggregate endpoints.
type Cache struct {
	LibraryStatsTTLSeconds int `toml:"library_stats_ttl_seconds"`
	InboxStatsTTLSeconds   int `toml:"inbox_stats_ttl_seconds"`
}

// Slskd contains configuration for the peer-to-peer search service.
type Slskd struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MPD contains configuration for playlist pushes to the playback device.
type MPD struct {
	Binary      string `toml:"binary"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	MusicMount  string `toml:"music_mount"`
	PlaylistDir string `toml:"playlist_dir"`
}

// Workflow contains daemon timing settings.
type Workflow struct {
	CleanupIntervalSeconds int `toml:"cleanup_interval_seconds"`
	RegenTimeoutSeconds    int `toml:"regen_timeout_seconds"`
}

// Logging contains configuration for log output and the event buffer.
type Logging struct {
	Format          string `toml:"format"`
	Level           string `toml:"level"`
	EventLogEntries int    `toml:"event_log_entries"`
}

// Config encapsulates all configuration values for Tonearm.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Beets    Beets    `toml:"beets"`
	Debounce Debounce `toml:"debounce"`
	Lyrics   Lyrics   `toml:"lyrics"`
	Cache    Cache    `toml:"cache"`
	Slskd    Slskd    `toml:"slskd"`
	MPD      MPD      `toml:"mpd"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tonearm/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tonearm.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	expand := func(value string) string {
		if err != nil || strings.TrimSpace(value) == "" {
			return value
		}
		var expanded string
		expanded, err = expandPath(value)
		return expanded
	}

	c.Paths.InboxDir = expand(c.Paths.InboxDir)
	c.Paths.LibraryDir = expand(c.Paths.LibraryDir)
	c.Paths.DataDir = expand(c.Paths.DataDir)
	c.Paths.LogDir = expand(c.Paths.LogDir)
	c.Beets.ConfigPath = expand(c.Beets.ConfigPath)
	c.Beets.LibraryDB = expand(c.Beets.LibraryDB)
	c.MPD.PlaylistDir = expand(c.MPD.PlaylistDir)
	if err != nil {
		return err
	}

	if strings.TrimSpace(c.MPD.PlaylistDir) == "" && strings.TrimSpace(c.Paths.DataDir) != "" {
		c.MPD.PlaylistDir = filepath.Join(c.Paths.DataDir, "playlist")
	}
	if strings.TrimSpace(c.Beets.LibraryDB) == "" && strings.TrimSpace(c.Paths.DataDir) != "" {
		c.Beets.LibraryDB = filepath.Join(c.Paths.DataDir, "library.db")
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
// InboxDir and LibraryDir are created best-effort so the daemon can run with
// partial availability when external storage is offline.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.MPD.PlaylistDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, dir := range []string{c.Paths.InboxDir, c.Paths.LibraryDir} {
		if strings.TrimSpace(dir) != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
	}
	return nil
}

// AlbumsPath returns the path of the generated album catalog.
func (c *Config) AlbumsPath() string {
	return filepath.Join(c.Paths.DataDir, "albums.json")
}

// RecentAlbumsPath returns the path of the generated recent-albums catalog.
func (c *Config) RecentAlbumsPath() string {
	return filepath.Join(c.Paths.DataDir, "recent_albums.json")
}

// ImportLeasePath returns the lock file backing the import lease.
func (c *Config) ImportLeasePath() string {
	return filepath.Join(c.Paths.DataDir, "import.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
