package slskd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tonearm/internal/services"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := New(server.URL, "test-key", 5*time.Second)
	client.searchWait = time.Millisecond
	return server, client
}

func TestSearchSortsAndTruncates(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v0/searches":
			json.NewEncoder(w).Encode(map[string]string{"id": "s-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v0/searches/s-1/responses":
			json.NewEncoder(w).Encode([]map[string]any{
				{
					"username":          "alice",
					"hasFreeUploadSlot": true,
					"files": []map[string]any{
						{"filename": "a.flac", "size": 100, "bitRate": 1000},
						{"filename": "b.mp3", "size": 50, "bitRate": 320},
					},
				},
				{
					"username":          "bob",
					"hasFreeUploadSlot": false,
					"files": []map[string]any{
						{"filename": "c.flac", "size": 90, "bitRate": 1400},
					},
				},
			})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	files, err := client.Search(context.Background(), "artist album")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}
	// Free-slot peers rank first regardless of bitrate.
	if files[0].Username != "alice" || files[0].Filename != "a.flac" {
		t.Fatalf("unexpected first result: %+v", files[0])
	}
	if files[2].Username != "bob" {
		t.Fatalf("expected queued peer last, got %+v", files[2])
	}
}

func TestSearchServerError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.Search(context.Background(), "q")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestDownloadPostsToPeerPath(t *testing.T) {
	var gotPath string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var payload []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if len(payload) != 1 || payload[0]["filename"] != "x.flac" {
			t.Errorf("unexpected payload: %v", payload)
		}
		w.WriteHeader(http.StatusCreated)
	})

	err := client.Download(context.Background(), DownloadRequest{Username: "alice", Filename: "x.flac", Size: 123})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if gotPath != "/api/v0/transfers/downloads/alice" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}

func TestUnconfiguredClient(t *testing.T) {
	client := New("", "", time.Second)
	if _, err := client.Search(context.Background(), "q"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if err := client.Download(context.Background(), DownloadRequest{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestDownloadsPassesRawJSON(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"username":"alice","directories":[]}]`))
	})

	raw, err := client.Downloads(context.Background())
	if err != nil {
		t.Fatalf("downloads: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("raw payload not valid json: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("unexpected payload: %s", raw)
	}
}
