// Package playlist builds MPD playlists from library tracks: the track list
// is saved locally as JSON, each path is rewritten to the player's music
// mount, and the result is pushed to MPD through mpc.
package playlist

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tonearm/internal/fileutil"
	"tonearm/internal/logging"
	"tonearm/internal/services"
)

// Player is the MPD surface playlists need. Satisfied by *mpd.Client.
type Player interface {
	Clear(ctx context.Context) error
	Add(ctx context.Context, uri string) error
	Save(ctx context.Context, name string) error
}

// Builder converts and pushes playlists.
type Builder struct {
	player      Player
	libraryDir  string
	musicMount  string
	playlistDir string
	logger      *slog.Logger
}

// New constructs a builder. musicMount is the library's path as MPD sees it,
// e.g. "NAS/MUSIC".
func New(player Player, libraryDir, musicMount, playlistDir string, logger *slog.Logger) *Builder {
	return &Builder{
		player:      player,
		libraryDir:  libraryDir,
		musicMount:  strings.Trim(musicMount, "/"),
		playlistDir: playlistDir,
		logger:      logging.NewComponentLogger(logger, "playlist"),
	}
}

// Saved is one playlist on disk.
type Saved struct {
	Name      string    `json:"name"`
	Tracks    int       `json:"tracks"`
	UpdatedAt time.Time `json:"updated_at"`
}

type playlistFile struct {
	Name    string    `json:"name"`
	Tracks  []string  `json:"tracks"`
	SavedAt time.Time `json:"saved_at"`
}

// Build saves the playlist JSON locally, then replaces MPD's queue with the
// converted URIs and stores it under name. Paths outside the library are
// rejected before anything is pushed.
func (b *Builder) Build(ctx context.Context, name string, tracks []string) error {
	name = sanitizeName(name)
	if name == "" {
		return services.Wrap(services.ErrConfiguration, "playlist", "build", "playlist name required", nil)
	}
	if len(tracks) == 0 {
		return services.Wrap(services.ErrConfiguration, "playlist", "build", "no tracks given", nil)
	}

	uris := make([]string, 0, len(tracks))
	for _, track := range tracks {
		uri, err := b.toMPDURI(track)
		if err != nil {
			return err
		}
		uris = append(uris, uri)
	}

	if err := os.MkdirAll(b.playlistDir, 0o755); err != nil {
		return services.Wrap(services.ErrExternalTool, "playlist", "create playlist dir", err.Error(), err)
	}
	record := playlistFile{Name: name, Tracks: tracks, SavedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "playlist", "encode playlist", err.Error(), err)
	}
	path := filepath.Join(b.playlistDir, name+".json")
	if err := fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return services.Wrap(services.ErrExternalTool, "playlist", "write playlist", err.Error(), err)
	}

	if err := b.player.Clear(ctx); err != nil {
		return err
	}
	for _, uri := range uris {
		if err := b.player.Add(ctx, uri); err != nil {
			return err
		}
	}
	if err := b.player.Save(ctx, name); err != nil {
		return err
	}

	b.logger.Info("playlist pushed",
		logging.String("playlist", name),
		logging.Int("tracks", len(tracks)))
	return nil
}

// List returns the playlists saved locally, newest first.
func (b *Builder) List() ([]Saved, error) {
	entries, err := os.ReadDir(b.playlistDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Saved{}, nil
		}
		return nil, services.Wrap(services.ErrExternalTool, "playlist", "read playlist dir", err.Error(), err)
	}
	out := make([]Saved, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.playlistDir, entry.Name()))
		if err != nil {
			continue
		}
		var record playlistFile
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		out = append(out, Saved{
			Name:      strings.TrimSuffix(entry.Name(), ".json"),
			Tracks:    len(record.Tracks),
			UpdatedAt: record.SavedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// toMPDURI rewrites a library-local path to the player's view of the same
// file.
func (b *Builder) toMPDURI(track string) (string, error) {
	rel, err := filepath.Rel(b.libraryDir, track)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", services.Wrap(services.ErrConfiguration, "playlist", "convert path",
			track+" is outside the library", err)
	}
	return b.musicMount + "/" + filepath.ToSlash(rel), nil
}

// sanitizeName strips path separators so playlist names cannot escape the
// playlist directory.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	return strings.Trim(name, ".")
}
