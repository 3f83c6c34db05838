package mpd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tonearm/internal/services"
)

const commandTimeout = 30 * time.Second

// Client drives MPD through the mpc command line tool. Queue and playlist
// mutations are the only operations tonearm needs; playback stays with the
// user's own clients.
type Client struct {
	binary string
	host   string
	port   int
	run    services.Runner
}

// New constructs an mpc wrapper.
func New(binary, host string, port int) *Client {
	if strings.TrimSpace(binary) == "" {
		binary = "mpc"
	}
	return &Client{binary: binary, host: host, port: port, run: services.RunCommand}
}

// WithRunner overrides the command runner (used in tests).
func (c *Client) WithRunner(run services.Runner) *Client {
	c.run = run
	return c
}

func (c *Client) args(extra ...string) []string {
	base := []string{"-h", c.host, "-p", fmt.Sprintf("%d", c.port)}
	return append(base, extra...)
}

// Clear empties the current MPD queue.
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.run(ctx, commandTimeout, c.binary, c.args("clear")...)
	return err
}

// Add appends one URI to the current queue.
func (c *Client) Add(ctx context.Context, uri string) error {
	_, err := c.run(ctx, commandTimeout, c.binary, c.args("add", uri)...)
	return err
}

// Save stores the current queue as a named playlist, replacing any playlist
// with the same name.
func (c *Client) Save(ctx context.Context, name string) error {
	// mpc save fails if the playlist exists; remove first and ignore the
	// error when it did not.
	_, _ = c.run(ctx, commandTimeout, c.binary, c.args("rm", name)...)
	_, err := c.run(ctx, commandTimeout, c.binary, c.args("save", name)...)
	return err
}

// Update triggers an MPD database rescan.
func (c *Client) Update(ctx context.Context) error {
	_, err := c.run(ctx, commandTimeout, c.binary, c.args("update")...)
	return err
}
