package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tonearm/internal/logging"
)

// newTestDB builds a minimal beets-shaped library database.
func newTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	schema := `
	CREATE TABLE albums (
		id INTEGER PRIMARY KEY,
		albumartist TEXT,
		album TEXT,
		genre TEXT,
		label TEXT,
		year INTEGER,
		added REAL
	);
	CREATE TABLE items (
		id INTEGER PRIMARY KEY,
		album_id INTEGER,
		path BLOB,
		length REAL,
		bitrate INTEGER,
		format TEXT
	);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	now := float64(time.Now().Unix())
	inserts := []struct {
		id     int
		artist string
		album  string
		genre  string
		year   int
		added  float64
	}{
		{1, "Boards of Canada", "Geogaddi", "IDM", 2002, now - 100},
		{2, "Autechre", "Tri Repetae", "IDM", 1995, now - 50},
		{3, "boards of canada", "Music Has the Right to Children", "IDM", 1998, now},
	}
	for _, a := range inserts {
		if _, err := db.Exec(
			`INSERT INTO albums (id, albumartist, album, genre, label, year, added) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.id, a.artist, a.album, a.genre, "Warp", a.year, a.added); err != nil {
			t.Fatalf("insert album: %v", err)
		}
		trackPath := "/music/library/" + a.artist + "/" + a.album + "/01 Track.flac"
		if _, err := db.Exec(
			`INSERT INTO items (album_id, path, length, bitrate, format) VALUES (?, ?, ?, ?, ?)`,
			a.id, []byte(trackPath), 300.0, 1000000, "FLAC"); err != nil {
			t.Fatalf("insert item: %v", err)
		}
	}
	return path
}

func newTestLibrary(t *testing.T) (*Library, string) {
	t.Helper()
	dbPath := newTestDB(t)
	dataDir := t.TempDir()
	lib := NewLibrary(dbPath,
		filepath.Join(dataDir, "albums.json"),
		filepath.Join(dataDir, "recent_albums.json"),
		logging.NewNop())
	return lib, dataDir
}

func TestAlbumsSortedCaseInsensitively(t *testing.T) {
	lib, _ := newTestLibrary(t)

	albums, err := lib.Albums(context.Background())
	if err != nil {
		t.Fatalf("albums: %v", err)
	}
	if len(albums) != 3 {
		t.Fatalf("expected 3 albums, got %d", len(albums))
	}
	if albums[0].Artist != "Autechre" {
		t.Fatalf("expected Autechre first, got %q", albums[0].Artist)
	}
	// Case difference must not split the two Boards of Canada entries.
	if albums[1].Album != "Geogaddi" || albums[2].Album != "Music Has the Right to Children" {
		t.Fatalf("unexpected ordering: %q, %q", albums[1].Album, albums[2].Album)
	}
	if albums[0].Path == "" || filepath.Base(albums[0].Path) != "Tri Repetae" {
		t.Fatalf("expected album directory path, got %q", albums[0].Path)
	}
}

func TestRecentAlbumsNewestFirst(t *testing.T) {
	lib, _ := newTestLibrary(t)

	recent, err := lib.RecentAlbums(context.Background())
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 albums, got %d", len(recent))
	}
	if recent[0].Album != "Music Has the Right to Children" {
		t.Fatalf("expected newest first, got %q", recent[0].Album)
	}
}

func TestRegenerateWritesBothFiles(t *testing.T) {
	lib, dataDir := newTestLibrary(t)

	if err := lib.Regenerate(context.Background()); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	for _, name := range []string{"albums.json", "recent_albums.json"} {
		data, err := os.ReadFile(filepath.Join(dataDir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		var albums []Album
		if err := json.Unmarshal(data, &albums); err != nil {
			t.Fatalf("decode %s: %v", name, err)
		}
		if len(albums) != 3 {
			t.Fatalf("%s holds %d albums, want 3", name, len(albums))
		}
	}
}

func TestStatsAggregates(t *testing.T) {
	lib, _ := newTestLibrary(t)

	stats, err := lib.Stats(context.Background(), 4)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Tracks != 3 || stats.Albums != 3 {
		t.Fatalf("tracks=%d albums=%d, want 3/3", stats.Tracks, stats.Albums)
	}
	if stats.Artists != 3 {
		// DISTINCT albumartist is case-sensitive in sqlite; the two
		// spellings count separately, which matches beets' own view.
		t.Fatalf("artists=%d, want 3", stats.Artists)
	}
	if stats.TotalSeconds != 900 {
		t.Fatalf("total seconds = %d, want 900", stats.TotalSeconds)
	}
	if stats.Formats["flac"] != 3 {
		t.Fatalf("format breakdown = %v", stats.Formats)
	}
	if len(stats.TopGenres) != 1 || stats.TopGenres[0].Name != "IDM" || stats.TopGenres[0].Count != 3 {
		t.Fatalf("genre breakdown = %v", stats.TopGenres)
	}
	if stats.MissingTracks != 4 {
		t.Fatalf("missing = %d, want 4", stats.MissingTracks)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds int64
		want    string
	}{
		{59, "0m"},
		{3660, "1h 1m"},
		{90061, "1d 1h 1m"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.seconds); got != tc.want {
			t.Fatalf("formatDuration(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
