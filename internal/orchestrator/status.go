package orchestrator

import (
	"context"
	"strconv"

	"tonearm/internal/catalog"
	"tonearm/internal/eventlog"
	"tonearm/internal/lyrics"
	"tonearm/internal/playlist"
	"tonearm/internal/services/slskd"
	"tonearm/internal/watcher"
)

// Status is the orchestrator's view for the status endpoint.
type Status struct {
	Queues        map[string]int   `json:"queues"`
	SettlingInbox int              `json:"settling_inbox"`
	Lyrics        lyrics.Stats     `json:"lyrics"`
	Events        []eventlog.Entry `json:"events"`
	LastEventID   uint64           `json:"last_event_id"`
}

// Status snapshots queue depths and the event tail.
func (o *Orchestrator) Status(sinceID uint64, limit int) Status {
	return Status{
		Queues: map[string]int{
			QueueInboxImport:  o.inboxQueue.Depth(),
			QueueLibraryRegen: o.libraryQueue.Depth(),
			QueueCoverFetch:   o.coverQueue.Depth(),
			QueueLyricsFetch:  o.lyricsQueue.Depth(),
		},
		SettlingInbox: o.settler.Pending(),
		Lyrics:        o.fetcher.Stats(),
		Events:        o.events.Tail(sinceID, limit),
		LastEventID:   o.events.LastID(),
	}
}

// EventTail returns log entries newer than sinceID, newest first.
func (o *Orchestrator) EventTail(sinceID uint64, limit int) []eventlog.Entry {
	return o.events.Tail(sinceID, limit)
}

// WatcherStatus reports the filesystem watcher state.
func (o *Orchestrator) WatcherStatus() watcher.Status {
	return o.watch.Status()
}

// RefreshCatalog regenerates the catalog synchronously, for the manual
// refresh endpoint. Failures surface to the caller instead of the event log
// alone.
func (o *Orchestrator) RefreshCatalog(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, seconds(o.cfg.Workflow.RegenTimeoutSeconds))
	defer cancel()
	if err := o.regenAction(runCtx); err != nil {
		o.events.Append(eventlog.LevelError, "manual catalog refresh failed: "+err.Error())
		return err
	}
	o.statsCache.Invalidate()
	o.events.Append(eventlog.LevelSuccess, "catalog refreshed manually")
	return nil
}

// Albums returns the full catalog, freshly read from the beets database.
func (o *Orchestrator) Albums(ctx context.Context) ([]catalog.Album, error) {
	return o.library.Albums(ctx)
}

// RecentAlbums returns the most recently added albums.
func (o *Orchestrator) RecentAlbums(ctx context.Context) ([]catalog.Album, error) {
	return o.library.RecentAlbums(ctx)
}

// LibraryStats serves the cached aggregate stats.
func (o *Orchestrator) LibraryStats(ctx context.Context, forceRefresh bool) (*catalog.Stats, error) {
	return o.statsCache.Get(ctx, forceRefresh)
}

// InvalidateStats clears the library stats cache.
func (o *Orchestrator) InvalidateStats() {
	o.statsCache.Invalidate()
}

// InboxStats serves the cached inbox summary.
func (o *Orchestrator) InboxStats(ctx context.Context, forceRefresh bool) (*catalog.InboxStats, error) {
	return o.inboxCache.Get(ctx, forceRefresh)
}

// InboxTree lists the inbox folder structure.
func (o *Orchestrator) InboxTree() ([]catalog.TreeNode, error) {
	return o.inbox.Tree()
}

// InboxFolder lists the files in one inbox folder.
func (o *Orchestrator) InboxFolder(artist, album string) ([]catalog.FolderFile, error) {
	return o.inbox.Folder(artist, album)
}

// LyricsStats reports the lyrics limiter and ledger state.
func (o *Orchestrator) LyricsStats() lyrics.Stats {
	return o.fetcher.Stats()
}

// PauseLyrics suspends lyrics processing.
func (o *Orchestrator) PauseLyrics() {
	o.fetcher.Pause()
	o.events.Append(eventlog.LevelInfo, "lyrics processing paused")
}

// ResumeLyrics resumes lyrics processing.
func (o *Orchestrator) ResumeLyrics() {
	o.fetcher.Resume()
	o.events.Append(eventlog.LevelInfo, "lyrics processing resumed")
}

// ScanLyrics walks the library and enqueues tracks missing lyrics.
func (o *Orchestrator) ScanLyrics(ctx context.Context) (int, error) {
	count, err := o.fetcher.Scan(ctx, o.cfg.Paths.LibraryDir, func(target string) bool {
		return o.EnqueueLyrics(target, lyrics.ScanPriority)
	})
	if err != nil {
		return count, err
	}
	o.events.Append(eventlog.LevelInfo,
		"lyrics scan enqueued "+strconv.Itoa(count)+" tracks")
	return count, nil
}

// Playlists exposes the playlist builder for the API layer.
func (o *Orchestrator) Playlists() *playlist.Builder {
	return o.playlists
}

// Slskd exposes the peer-to-peer proxy client for the API layer.
func (o *Orchestrator) Slskd() *slskd.Client {
	return o.slskdClient
}

// computeStats backs the library stats cache. The missing-tracks count comes
// from an external beet invocation; failures there degrade to zero rather
// than failing the whole computation.
func (o *Orchestrator) computeStats(ctx context.Context) (*catalog.Stats, error) {
	missing := 0
	queryCtx, cancel := context.WithTimeout(ctx, seconds(o.cfg.Beets.QueryTimeoutSeconds))
	if n, err := o.beetsClient.MissingCount(queryCtx, seconds(o.cfg.Beets.QueryTimeoutSeconds)); err == nil {
		missing = n
	}
	cancel()
	return o.library.Stats(ctx, missing)
}
