package cover

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tonearm/internal/logging"
	"tonearm/internal/services"
	"tonearm/internal/services/beets"
)

type fakeLookup struct {
	info *beets.AlbumInfo
	err  error
}

func (f *fakeLookup) AlbumInfo(context.Context, time.Duration, string) (*beets.AlbumInfo, error) {
	return f.info, f.err
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveSkipsWhenCoverExists(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, OutputName, []byte("jpeg"))

	r := New(&fakeLookup{}, time.Second, logging.NewNop())
	source, err := r.Resolve(context.Background(), dir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if source != "existing" {
		t.Fatalf("source = %q, want existing", source)
	}
}

func TestResolveCopiesLocalImage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Folder.JPG", []byte("folder-image"))

	r := New(&fakeLookup{}, time.Second, logging.NewNop())
	source, err := r.Resolve(context.Background(), dir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if source != "local" {
		t.Fatalf("source = %q, want local", source)
	}
	data, err := os.ReadFile(filepath.Join(dir, OutputName))
	if err != nil {
		t.Fatalf("read cover: %v", err)
	}
	if string(data) != "folder-image" {
		t.Fatalf("cover contents = %q", data)
	}
}

func TestLocalProbeHonorsBaseNamePriority(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "front.jpg", []byte("front"))
	writeFile(t, dir, "cover.png", []byte("cover-png"))

	r := New(&fakeLookup{}, time.Second, logging.NewNop())
	if _, err := r.Resolve(context.Background(), dir); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, OutputName))
	if string(data) != "cover-png" {
		t.Fatalf("expected cover.png to win over front.jpg, got %q", data)
	}
}

func TestResolveFetchesFromArchive(t *testing.T) {
	var requested []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requested = append(requested, req.URL.Path)
		if req.URL.Path == "/mbid-1/front-500" {
			http.NotFound(w, req)
			return
		}
		w.Write([]byte("archive-image"))
	}))
	defer server.Close()

	dir := t.TempDir()
	r := New(&fakeLookup{info: &beets.AlbumInfo{AlbumArtist: "A", Album: "B", MBAlbumID: "mbid-1"}},
		time.Second, logging.NewNop())
	r.archiveBase = server.URL + "/"

	source, err := r.Resolve(context.Background(), dir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if source != "archive" {
		t.Fatalf("source = %q, want archive", source)
	}
	if len(requested) != 2 {
		t.Fatalf("expected thumbnail then full-size request, got %v", requested)
	}
	data, _ := os.ReadFile(filepath.Join(dir, OutputName))
	if string(data) != "archive-image" {
		t.Fatalf("cover contents = %q", data)
	}
}

func TestResolveWithoutReleaseID(t *testing.T) {
	dir := t.TempDir()
	r := New(&fakeLookup{info: &beets.AlbumInfo{AlbumArtist: "A", Album: "B"}},
		time.Second, logging.NewNop())

	_, err := r.Resolve(context.Background(), dir)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolvePropagatesLookupFailure(t *testing.T) {
	dir := t.TempDir()
	lookupErr := services.Wrap(services.ErrNotFound, "beets", "album info", "no album", nil)
	r := New(&fakeLookup{err: lookupErr}, time.Second, logging.NewNop())

	if _, err := r.Resolve(context.Background(), dir); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected lookup error to surface, got %v", err)
	}
}
