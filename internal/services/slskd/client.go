package slskd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"tonearm/internal/services"
)

// maxSearchResults caps how many files a search returns to the caller.
const maxSearchResults = 50

// HTTPDoer is the subset of http.Client the slskd client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a slskd instance over its REST API. All calls carry the
// configured API key; tonearm never exposes the key to its own API consumers.
type Client struct {
	baseURL string
	apiKey  string
	httpc   HTTPDoer

	// searchWait is how long to let the peer search run before collecting
	// responses. Overridable in tests.
	searchWait time.Duration
}

// New constructs a slskd client. timeout bounds individual HTTP calls, not
// the overall search wait.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpc:      &http.Client{Timeout: timeout},
		searchWait: 5 * time.Second,
	}
}

// WithHTTPClient overrides the HTTP transport (used in tests).
func (c *Client) WithHTTPClient(h HTTPDoer) *Client {
	c.httpc = h
	return c
}

// Configured reports whether the client has enough settings to be used.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// SearchFile is one downloadable file from a peer's search response.
type SearchFile struct {
	Username string `json:"username"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	BitRate  int    `json:"bitRate"`
	Queued   int    `json:"queueLength"`
	FreeSlot bool   `json:"hasFreeUploadSlot"`
}

type searchResponse struct {
	Username          string `json:"username"`
	QueueLength       int    `json:"queueLength"`
	HasFreeUploadSlot bool   `json:"hasFreeUploadSlot"`
	Files             []struct {
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
		BitRate  int    `json:"bitRate"`
	} `json:"files"`
}

// Search starts a peer search, waits for responses to accumulate, then
// returns the best files sorted by bitrate descending. The result set is
// truncated to keep API payloads bounded.
func (c *Client) Search(ctx context.Context, query string) ([]SearchFile, error) {
	if !c.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "slskd", "search", "slskd url or api key not configured", nil)
	}
	body := map[string]any{"searchText": query}
	var started struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v0/searches", body, &started); err != nil {
		return nil, err
	}
	if started.ID == "" {
		return nil, services.Wrap(services.ErrExternalTool, "slskd", "search", "search start returned no id", nil)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.searchWait):
	}

	var responses []searchResponse
	path := "/api/v0/searches/" + url.PathEscape(started.ID) + "/responses"
	if err := c.do(ctx, http.MethodGet, path, nil, &responses); err != nil {
		return nil, err
	}

	files := make([]SearchFile, 0, 64)
	for _, resp := range responses {
		for _, f := range resp.Files {
			files = append(files, SearchFile{
				Username: resp.Username,
				Filename: f.Filename,
				Size:     f.Size,
				BitRate:  f.BitRate,
				Queued:   resp.QueueLength,
				FreeSlot: resp.HasFreeUploadSlot,
			})
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].FreeSlot != files[j].FreeSlot {
			return files[i].FreeSlot
		}
		return files[i].BitRate > files[j].BitRate
	})
	if len(files) > maxSearchResults {
		files = files[:maxSearchResults]
	}
	return files, nil
}

// DownloadRequest names one file on one peer.
type DownloadRequest struct {
	Username string `json:"username"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Download enqueues a file transfer from a peer.
func (c *Client) Download(ctx context.Context, req DownloadRequest) error {
	if !c.Configured() {
		return services.Wrap(services.ErrConfiguration, "slskd", "download", "slskd url or api key not configured", nil)
	}
	payload := []map[string]any{{"filename": req.Filename, "size": req.Size}}
	path := "/api/v0/transfers/downloads/" + url.PathEscape(req.Username)
	return c.do(ctx, http.MethodPost, path, payload, nil)
}

// Downloads returns the raw transfer state slskd reports, passed through to
// API consumers untouched.
func (c *Client) Downloads(ctx context.Context) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "slskd", "downloads", "slskd url or api key not configured", nil)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/v0/transfers/downloads", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "slskd", "encode request", err.Error(), err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "slskd", "build request", err.Error(), err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "slskd", method+" "+path, err.Error(), err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "slskd", method+" "+path, err.Error(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("status %d: %s", resp.StatusCode, services.Snippet(string(payload), 200))
		return services.Wrap(services.ErrExternalTool, "slskd", method+" "+path, msg, nil)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return services.Wrap(services.ErrExternalTool, "slskd", method+" "+path, "decode response: "+err.Error(), err)
	}
	return nil
}
