package daemon

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"tonearm/internal/config"
	"tonearm/internal/logging"
	"tonearm/internal/orchestrator"
	"tonearm/internal/services"
	"tonearm/internal/services/slskd"
)

// defaultTailLimit bounds the event tail when the client does not say.
const defaultTailLimit = 50

type apiServer struct {
	cfg    *config.Config
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

func newAPIServer(cfg *config.Config, orch *orchestrator.Orchestrator, logger *slog.Logger) *apiServer {
	return &apiServer{
		cfg:    cfg,
		orch:   orch,
		logger: logging.NewComponentLogger(logger, "api"),
	}
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/watcher/status", s.handleWatcherStatus)

	mux.HandleFunc("POST /api/library/import", s.handleImport)
	mux.HandleFunc("POST /api/library/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/trigger/{domain}", s.handleTrigger)

	mux.HandleFunc("GET /api/albums", s.handleAlbums)
	mux.HandleFunc("GET /api/albums/recent", s.handleRecentAlbums)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/stats/invalidate", s.handleStatsInvalidate)

	mux.HandleFunc("GET /api/inbox/stats", s.handleInboxStats)
	mux.HandleFunc("GET /api/inbox/tree", s.handleInboxTree)
	mux.HandleFunc("GET /api/inbox/folder", s.handleInboxFolder)

	mux.HandleFunc("GET /api/lyrics/stats", s.handleLyricsStats)
	mux.HandleFunc("POST /api/lyrics/scan", s.handleLyricsScan)
	mux.HandleFunc("POST /api/lyrics/pause", s.handleLyricsPause)
	mux.HandleFunc("POST /api/lyrics/resume", s.handleLyricsResume)

	mux.HandleFunc("GET /api/slskd/search", s.handleSlskdSearch)
	mux.HandleFunc("POST /api/slskd/download", s.handleSlskdDownload)
	mux.HandleFunc("GET /api/slskd/downloads", s.handleSlskdDownloads)

	mux.HandleFunc("POST /api/playlist/build", s.handlePlaylistBuild)
	mux.HandleFunc("GET /api/playlist/list", s.handlePlaylistList)

	return mux
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	sinceID, limit := tailParams(r)
	status := s.orch.Status(sinceID, limit)
	payload := map[string]any{
		"queues":         status.Queues,
		"settling_inbox": status.SettlingInbox,
		"lyrics":         status.Lyrics,
		"events":         status.Events,
		"last_event_id":  status.LastEventID,
		"disk":           s.diskStats(),
	}
	writeJSON(w, http.StatusOK, payload)
}

// diskStats reports free space for the library and data volumes.
// Best-effort; volumes that cannot be statted are omitted.
func (s *apiServer) diskStats() map[string]any {
	out := map[string]any{}
	for name, path := range map[string]string{
		"library": s.cfg.Paths.LibraryDir,
		"data":    s.cfg.Paths.DataDir,
	} {
		var fs unix.Statfs_t
		if err := unix.Statfs(path, &fs); err != nil {
			continue
		}
		total := fs.Blocks * uint64(fs.Bsize)
		free := fs.Bavail * uint64(fs.Bsize)
		out[name] = map[string]uint64{
			"total_bytes": total,
			"free_bytes":  free,
		}
	}
	return out
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	sinceID, limit := tailParams(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"events": s.orch.EventTail(sinceID, limit),
	})
}

func (s *apiServer) handleWatcherStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.WatcherStatus())
}

func (s *apiServer) handleImport(w http.ResponseWriter, r *http.Request) {
	accepted := s.orch.TriggerImport()
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": accepted})
}

func (s *apiServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.RefreshCatalog(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *apiServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	target := r.URL.Query().Get("target")

	var accepted bool
	switch domain {
	case "import":
		accepted = s.orch.TriggerImport()
	case "regen":
		accepted = s.orch.TriggerRegen()
	case "cover":
		if target == "" {
			writeError(w, http.StatusBadRequest, errors.New("cover trigger requires target"))
			return
		}
		accepted = s.orch.TriggerCover(target)
	case "lyrics":
		if target == "" {
			writeError(w, http.StatusBadRequest, errors.New("lyrics trigger requires target"))
			return
		}
		accepted = s.orch.EnqueueLyrics(target, 1)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown domain "+domain))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": accepted})
}

func (s *apiServer) handleAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := s.orch.Albums(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if limit := queryInt(r, "limit", 0); limit > 0 && limit < len(albums) {
		albums = albums[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"albums": albums, "count": len(albums)})
}

func (s *apiServer) handleRecentAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := s.orch.RecentAlbums(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"albums": albums, "count": len(albums)})
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	force := queryBool(r, "force_refresh")
	stats, err := s.orch.LibraryStats(r.Context(), force)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *apiServer) handleStatsInvalidate(w http.ResponseWriter, r *http.Request) {
	s.orch.InvalidateStats()
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (s *apiServer) handleInboxStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orch.InboxStats(r.Context(), queryBool(r, "force_refresh"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *apiServer) handleInboxTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.orch.InboxTree()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tree": tree})
}

func (s *apiServer) handleInboxFolder(w http.ResponseWriter, r *http.Request) {
	artist := r.URL.Query().Get("artist")
	album := r.URL.Query().Get("album")
	if artist == "" || album == "" {
		writeError(w, http.StatusBadRequest, errors.New("artist and album are required"))
		return
	}
	files, err := s.orch.InboxFolder(artist, album)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *apiServer) handleLyricsStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.LyricsStats())
}

func (s *apiServer) handleLyricsScan(w http.ResponseWriter, r *http.Request) {
	count, err := s.orch.ScanLyrics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"enqueued": count})
}

func (s *apiServer) handleLyricsPause(w http.ResponseWriter, r *http.Request) {
	s.orch.PauseLyrics()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *apiServer) handleLyricsResume(w http.ResponseWriter, r *http.Request) {
	s.orch.ResumeLyrics()
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *apiServer) handleSlskdSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	parts := make([]string, 0, 3)
	for _, key := range []string{"artist", "album", "track"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("at least one of artist, album, track is required"))
		return
	}

	files, err := s.orch.Slskd().Search(r.Context(), strings.Join(parts, " "))
	if err != nil {
		writeSlskdError(w, err)
		return
	}
	if ext := strings.TrimPrefix(strings.ToLower(q.Get("file_type")), "."); ext != "" {
		filtered := files[:0]
		for _, f := range files {
			if strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Filename)), ".") == ext {
				filtered = append(filtered, f)
			}
		}
		files = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": files, "count": len(files)})
}

func (s *apiServer) handleSlskdDownload(w http.ResponseWriter, r *http.Request) {
	var req slskd.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Username == "" || req.Filename == "" {
		writeError(w, http.StatusBadRequest, errors.New("username and filename are required"))
		return
	}
	if err := s.orch.Slskd().Download(r.Context(), req); err != nil {
		writeSlskdError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *apiServer) handleSlskdDownloads(w http.ResponseWriter, r *http.Request) {
	raw, err := s.orch.Slskd().Downloads(r.Context())
	if err != nil {
		writeSlskdError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func (s *apiServer) handlePlaylistBuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string   `json:"name"`
		Tracks []string `json:"tracks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.orch.Playlists().Build(r.Context(), req.Name, req.Tracks); err != nil {
		if errors.Is(err, services.ErrConfiguration) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pushed", "name": req.Name})
}

func (s *apiServer) handlePlaylistList(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.orch.Playlists().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

func writeSlskdError(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrConfiguration) {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeError(w, http.StatusBadGateway, err)
}

func tailParams(r *http.Request) (uint64, int) {
	sinceID, _ := strconv.ParseUint(r.URL.Query().Get("since_id"), 10, 64)
	limit := queryInt(r, "limit", defaultTailLimit)
	return sinceID, limit
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	switch strings.ToLower(r.URL.Query().Get(key)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encode failures after the header is written cannot be reported to the
	// client anymore.
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
