package beets

import (
	"context"
	"strings"
	"time"

	"tonearm/internal/services"
)

// Client wraps the external beet command line tool. Beets owns tagging,
// matching, and lyrics sourcing; this client only shells out and classifies
// results.
type Client struct {
	binary     string
	configPath string
	run        services.Runner
}

// New constructs a beets client.
func New(binary, configPath string) *Client {
	if strings.TrimSpace(binary) == "" {
		binary = "beet"
	}
	return &Client{binary: binary, configPath: configPath, run: services.RunCommand}
}

// WithRunner overrides the command runner (used in tests).
func (c *Client) WithRunner(run services.Runner) *Client {
	c.run = run
	return c
}

func (c *Client) args(extra ...string) []string {
	out := make([]string, 0, len(extra)+2)
	if strings.TrimSpace(c.configPath) != "" {
		out = append(out, "-c", c.configPath)
	}
	return append(out, extra...)
}

// Import runs a quiet autotagged import of path. No timeout is applied: an
// import may legitimately run for hours, and interrupting beets mid-move is
// worse than waiting.
func (c *Client) Import(ctx context.Context, path string) (string, error) {
	return c.run(ctx, 0, c.binary, c.args("import", "-q", "-A", path)...)
}

// FetchLyrics asks beets to fetch and embed lyrics for one track.
func (c *Client) FetchLyrics(ctx context.Context, timeout time.Duration, trackPath string) (string, error) {
	return c.run(ctx, timeout, c.binary, c.args("lyrics", "-f", trackPath)...)
}

// AlbumInfo describes one album as beets knows it.
type AlbumInfo struct {
	AlbumArtist string
	Album       string
	MBAlbumID   string
}

// AlbumInfo queries beets for the album metadata covering dir. It returns
// services.ErrNotFound when beets has no album at that path.
func (c *Client) AlbumInfo(ctx context.Context, timeout time.Duration, dir string) (*AlbumInfo, error) {
	query := "path:" + dir
	out, err := c.run(ctx, timeout, c.binary,
		c.args("list", "-a", "-f", "$albumartist\t$album\t$mb_albumid", query)...)
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(strings.TrimSpace(line), "\t")
		if len(parts) < 3 {
			continue
		}
		artist, album, mbid := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2])
		if artist == "" || album == "" {
			continue
		}
		if strings.EqualFold(mbid, "$mb_albumid") {
			mbid = ""
		}
		return &AlbumInfo{AlbumArtist: artist, Album: album, MBAlbumID: mbid}, nil
	}
	return nil, services.Wrap(services.ErrNotFound, "beets", "album info", "no album at "+dir, nil)
}

// MissingCount counts tracks beets believes are missing from complete albums.
func (c *Client) MissingCount(ctx context.Context, timeout time.Duration) (int, error) {
	out, err := c.run(ctx, timeout, c.binary, c.args("missing")...)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count, nil
}
