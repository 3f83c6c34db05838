package beets

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tonearm/internal/services"
	"tonearm/internal/testsupport"
)

type call struct {
	timeout time.Duration
	name    string
	args    []string
}

func fakeRunner(calls *[]call, out string, err error) services.Runner {
	return func(_ context.Context, timeout time.Duration, name string, args ...string) (string, error) {
		*calls = append(*calls, call{timeout: timeout, name: name, args: args})
		return out, err
	}
}

func TestImportPassesConfigAndPath(t *testing.T) {
	var calls []call
	client := New("beet", "/etc/beets/config.yaml").WithRunner(fakeRunner(&calls, "", nil))

	if _, err := client.Import(context.Background(), "/srv/inbox"); err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected one command, got %d", len(calls))
	}
	got := calls[0]
	if got.timeout != 0 {
		t.Fatalf("import should run without a timeout, got %s", got.timeout)
	}
	want := []string{"-c", "/etc/beets/config.yaml", "import", "-q", "-A", "/srv/inbox"}
	if len(got.args) != len(want) {
		t.Fatalf("args = %v, want %v", got.args, want)
	}
	for i := range want {
		if got.args[i] != want[i] {
			t.Fatalf("args = %v, want %v", got.args, want)
		}
	}
}

func TestAlbumInfoParsesFirstRow(t *testing.T) {
	var calls []call
	out := "Boards of Canada\tGeogaddi\tdccc2d32-5c89-4b08-8d84-6d4b6b2f0c47\n"
	client := New("beet", "").WithRunner(fakeRunner(&calls, out, nil))

	info, err := client.AlbumInfo(context.Background(), 10*time.Second, "/music/library/Boards of Canada/Geogaddi")
	if err != nil {
		t.Fatalf("album info: %v", err)
	}
	if info.AlbumArtist != "Boards of Canada" || info.Album != "Geogaddi" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.MBAlbumID != "dccc2d32-5c89-4b08-8d84-6d4b6b2f0c47" {
		t.Fatalf("unexpected mbid: %q", info.MBAlbumID)
	}
}

func TestAlbumInfoUnresolvedMBIDBecomesEmpty(t *testing.T) {
	var calls []call
	client := New("beet", "").WithRunner(fakeRunner(&calls, "Artist\tAlbum\t$mb_albumid\n", nil))

	info, err := client.AlbumInfo(context.Background(), time.Second, "/music/library/Artist/Album")
	if err != nil {
		t.Fatalf("album info: %v", err)
	}
	if info.MBAlbumID != "" {
		t.Fatalf("expected empty mbid, got %q", info.MBAlbumID)
	}
}

func TestAlbumInfoNoMatch(t *testing.T) {
	var calls []call
	client := New("beet", "").WithRunner(fakeRunner(&calls, "\n", nil))

	_, err := client.AlbumInfo(context.Background(), time.Second, "/music/library/Nobody/Nothing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMissingCount(t *testing.T) {
	var calls []call
	client := New("beet", "").WithRunner(fakeRunner(&calls, "Artist - Album - 01 Track\nArtist - Album - 02 Track\n\n", nil))

	n, err := client.MissingCount(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("missing: %v", err)
	}
	if n != 2 {
		t.Fatalf("missing count = %d, want 2", n)
	}
}

func TestImportInvokesBinaryOnPath(t *testing.T) {
	binDir := testsupport.StubBinaries(t, "beet")
	client := New("beet", "")

	if _, err := client.Import(context.Background(), "/srv/inbox"); err != nil {
		t.Fatalf("import: %v", err)
	}
	calls := testsupport.StubCalls(t, binDir, "beet")
	if !strings.Contains(calls, "import -q -A /srv/inbox") {
		t.Fatalf("unexpected beet invocation: %q", calls)
	}
}

func TestClassifyQuota(t *testing.T) {
	cases := []struct {
		output string
		want   bool
	}{
		{"error: HTTP 429 from lyrics source", true},
		{"Too Many Requests, backing off", true},
		{"lyrics not found: Artist - Track", false},
		{"network timeout fetching lyrics", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ClassifyQuota(tc.output); got != tc.want {
			t.Fatalf("ClassifyQuota(%q) = %v, want %v", tc.output, got, tc.want)
		}
	}
}

func TestLyricsFound(t *testing.T) {
	if !LyricsFound("fetched lyrics: Artist - Track") {
		t.Fatal("expected fetched lyrics to count as found")
	}
	if LyricsFound("lyrics not found: Artist - Track") {
		t.Fatal("not-found output must not count as success")
	}
}
