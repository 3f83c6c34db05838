// Package catalog reads the beets library database and renders it as JSON
// the frontend can browse: the full album list, a recent-additions list, and
// aggregate statistics. The database is opened read-only; beets remains the
// sole writer.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	_ "modernc.org/sqlite"

	"tonearm/internal/fileutil"
	"tonearm/internal/logging"
	"tonearm/internal/services"
)

const recentAlbumCount = 50

// Album is one catalog entry.
type Album struct {
	Artist string `json:"artist"`
	Album  string `json:"album"`
	Year   int    `json:"year,omitempty"`
	Genre  string `json:"genre,omitempty"`
	Added  string `json:"added,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Library reads the beets database and regenerates catalog files.
type Library struct {
	dbPath     string
	albumsPath string
	recentPath string
	logger     *slog.Logger
	collator   *collate.Collator
}

// NewLibrary constructs a catalog reader. albumsPath and recentPath are
// where regenerated JSON lands.
func NewLibrary(dbPath, albumsPath, recentPath string, logger *slog.Logger) *Library {
	return &Library{
		dbPath:     dbPath,
		albumsPath: albumsPath,
		recentPath: recentPath,
		logger:     logging.NewComponentLogger(logger, "catalog"),
		collator:   collate.New(language.English, collate.IgnoreCase),
	}
}

func (l *Library) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+l.dbPath+"?mode=ro")
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "catalog", "open library db", err.Error(), err)
	}
	return db, nil
}

// Albums reads every album from the beets database, sorted by artist then
// album using locale-aware collation.
func (l *Library) Albums(ctx context.Context) ([]Album, error) {
	db, err := l.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return l.queryAlbums(ctx, db, `
		SELECT a.albumartist, a.album, a.year, a.genre, a.added,
		       (SELECT i.path FROM items i WHERE i.album_id = a.id LIMIT 1)
		FROM albums a`, true, 0)
}

// RecentAlbums returns the most recently added albums, newest first.
func (l *Library) RecentAlbums(ctx context.Context) ([]Album, error) {
	db, err := l.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return l.queryAlbums(ctx, db, `
		SELECT a.albumartist, a.album, a.year, a.genre, a.added,
		       (SELECT i.path FROM items i WHERE i.album_id = a.id LIMIT 1)
		FROM albums a
		ORDER BY a.added DESC
		LIMIT ?`, false, recentAlbumCount)
}

func (l *Library) queryAlbums(ctx context.Context, db *sql.DB, query string, sorted bool, limit int) ([]Album, error) {
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = db.QueryContext(ctx, query, limit)
	} else {
		rows, err = db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "catalog", "query albums", err.Error(), err)
	}
	defer rows.Close()

	albums := make([]Album, 0, 256)
	for rows.Next() {
		var (
			artist, album sql.NullString
			genre         sql.NullString
			year          sql.NullInt64
			added         sql.NullFloat64
			itemPath      []byte
		)
		if err := rows.Scan(&artist, &album, &year, &genre, &added, &itemPath); err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "catalog", "scan album row", err.Error(), err)
		}
		entry := Album{
			Artist: artist.String,
			Album:  album.String,
			Year:   int(year.Int64),
			Genre:  genre.String,
		}
		if added.Valid && added.Float64 > 0 {
			entry.Added = time.Unix(int64(added.Float64), 0).UTC().Format(time.RFC3339)
		}
		if len(itemPath) > 0 {
			entry.Path = filepath.Dir(string(itemPath))
		}
		albums = append(albums, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "catalog", "read album rows", err.Error(), err)
	}
	if sorted {
		sort.SliceStable(albums, func(i, j int) bool {
			if c := l.collator.CompareString(albums[i].Artist, albums[j].Artist); c != 0 {
				return c < 0
			}
			return l.collator.CompareString(albums[i].Album, albums[j].Album) < 0
		})
	}
	return albums, nil
}

// Regenerate rewrites both catalog JSON files from the current database
// contents. Writes go through a temp file and rename so readers never see a
// partial catalog.
func (l *Library) Regenerate(ctx context.Context) error {
	started := time.Now()

	albums, err := l.Albums(ctx)
	if err != nil {
		return err
	}
	recent, err := l.RecentAlbums(ctx)
	if err != nil {
		return err
	}

	if err := writeJSONFile(l.albumsPath, albums); err != nil {
		return err
	}
	if err := writeJSONFile(l.recentPath, recent); err != nil {
		return err
	}

	l.logger.Info("catalog regenerated",
		logging.Int("albums", len(albums)),
		logging.Duration("elapsed", time.Since(started)))
	return nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "catalog", "encode catalog", err.Error(), err)
	}
	if err := fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return services.Wrap(services.ErrExternalTool, "catalog", "write "+filepath.Base(path), err.Error(), err)
	}
	return nil
}

// Stats is the aggregate library view served by the stats endpoint. Sizes
// are estimated from track bitrate and duration since beets does not store
// file sizes.
type Stats struct {
	Tracks        int            `json:"tracks"`
	Albums        int            `json:"albums"`
	Artists       int            `json:"artists"`
	TotalSeconds  int64          `json:"total_seconds"`
	TotalTime     string         `json:"total_time"`
	TotalBytes    int64          `json:"total_bytes"`
	TotalSize     string         `json:"total_size"`
	Formats       map[string]int `json:"formats"`
	TopGenres     []NamedCount   `json:"top_genres"`
	TopLabels     []NamedCount   `json:"top_labels"`
	TopYears      []NamedCount   `json:"top_years"`
	MissingTracks int            `json:"missing_tracks"`
	ComputedAt    time.Time      `json:"computed_at"`
}

// NamedCount is one row of a breakdown.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats computes aggregate statistics from the beets database. missing is
// supplied by the caller (it requires an external beet invocation).
func (l *Library) Stats(ctx context.Context, missing int) (*Stats, error) {
	db, err := l.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	stats := &Stats{
		Formats:       map[string]int{},
		MissingTracks: missing,
		ComputedAt:    time.Now().UTC(),
	}

	row := db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(length), 0),
		       COALESCE(SUM(length * bitrate / 8), 0)
		FROM items`)
	var totalLength, totalBytes float64
	if err := row.Scan(&stats.Tracks, &totalLength, &totalBytes); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "catalog", "query totals", err.Error(), err)
	}
	stats.TotalSeconds = int64(totalLength)
	stats.TotalBytes = int64(totalBytes)
	stats.TotalTime = formatDuration(stats.TotalSeconds)
	stats.TotalSize = humanize.Bytes(uint64(stats.TotalBytes))

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM albums`).Scan(&stats.Albums); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "catalog", "query album count", err.Error(), err)
	}
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT albumartist) FROM albums`).Scan(&stats.Artists); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "catalog", "query artist count", err.Error(), err)
	}

	formats, err := l.breakdown(ctx, db, `
		SELECT LOWER(format), COUNT(*) FROM items
		WHERE format != '' GROUP BY LOWER(format)`, 0)
	if err != nil {
		return nil, err
	}
	for _, f := range formats {
		stats.Formats[f.Name] = f.Count
	}

	if stats.TopGenres, err = l.breakdown(ctx, db, `
		SELECT genre, COUNT(*) FROM albums
		WHERE genre != '' GROUP BY genre ORDER BY COUNT(*) DESC LIMIT ?`, 10); err != nil {
		return nil, err
	}
	if stats.TopLabels, err = l.breakdown(ctx, db, `
		SELECT label, COUNT(*) FROM albums
		WHERE label != '' GROUP BY label ORDER BY COUNT(*) DESC LIMIT ?`, 10); err != nil {
		return nil, err
	}
	if stats.TopYears, err = l.breakdown(ctx, db, `
		SELECT CAST(year AS TEXT), COUNT(*) FROM albums
		WHERE year > 0 GROUP BY year ORDER BY COUNT(*) DESC LIMIT ?`, 10); err != nil {
		return nil, err
	}
	return stats, nil
}

func (l *Library) breakdown(ctx context.Context, db *sql.DB, query string, limit int) ([]NamedCount, error) {
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = db.QueryContext(ctx, query, limit)
	} else {
		rows, err = db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "catalog", "query breakdown", err.Error(), err)
	}
	defer rows.Close()

	var out []NamedCount
	for rows.Next() {
		var nc NamedCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "catalog", "scan breakdown", err.Error(), err)
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

func formatDuration(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
