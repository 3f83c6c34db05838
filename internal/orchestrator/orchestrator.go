// Package orchestrator owns the job pipeline: filesystem events are
// debounced and deduplicated into four work queues, each drained by a single
// worker that acquires whatever lock or rate budget its domain needs, runs
// the external action, and performs the follow-up bookkeeping (cache
// invalidation, chained enqueues, event logging). All queue, cache, and
// ledger state is in-memory; the import lease is the only global resource.
package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"tonearm/internal/cache"
	"tonearm/internal/catalog"
	"tonearm/internal/config"
	"tonearm/internal/cover"
	"tonearm/internal/eventlog"
	"tonearm/internal/lease"
	"tonearm/internal/logging"
	"tonearm/internal/lyrics"
	"tonearm/internal/playlist"
	"tonearm/internal/queue"
	"tonearm/internal/services/beets"
	"tonearm/internal/services/mpd"
	"tonearm/internal/services/slskd"
	"tonearm/internal/watcher"
)

// popWait bounds each queue pop so workers observe shutdown promptly.
const popWait = time.Second

// pausePoll is how often a paused lyrics worker re-checks.
const pausePoll = time.Second

// regenTarget is the well-known key all catalog regeneration work coalesces
// on.
const regenTarget = "library"

// Queue names as reported by the status endpoint.
const (
	QueueInboxImport  = "inbox_import"
	QueueLibraryRegen = "library_regen"
	QueueCoverFetch   = "cover_fetch"
	QueueLyricsFetch  = "lyrics_fetch"
)

// Orchestrator wires the watcher, queues, workers, and domain services.
type Orchestrator struct {
	cfg    *config.Config
	logger *slog.Logger
	events *eventlog.Log

	inboxQueue   *queue.FIFO
	libraryQueue *queue.FIFO
	coverQueue   *queue.FIFO
	lyricsQueue  *queue.Priority

	importLease lease.Lease
	fetcher     *lyrics.Fetcher
	watch       *watcher.Watcher
	settler     *Debouncer

	beetsClient *beets.Client
	library     *catalog.Library
	inbox       *catalog.Inbox
	slskdClient *slskd.Client
	playlists   *playlist.Builder

	statsCache *cache.Result[*catalog.Stats]
	inboxCache *cache.Result[*catalog.InboxStats]

	// Action seams. Defaults call the real services; tests swap them.
	importAction func(ctx context.Context) error
	regenAction  func(ctx context.Context) error
	coverAction  func(ctx context.Context, dir string) (string, error)

	libraryDebounce time.Duration
	coverDebounce   time.Duration
	lyricsDebounce  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires an orchestrator from configuration. Nothing starts until Start.
func New(cfg *config.Config, logger *slog.Logger) *Orchestrator {
	events := eventlog.New(cfg.Logging.EventLogEntries, logger)

	beetsClient := beets.New(cfg.Beets.Binary, cfg.Beets.ConfigPath)
	library := catalog.NewLibrary(cfg.Beets.LibraryDB, cfg.AlbumsPath(), cfg.RecentAlbumsPath(), logger)
	inbox := catalog.NewInbox(cfg.Paths.InboxDir, logger)
	resolver := cover.New(beetsClient, seconds(cfg.Beets.CoverTimeoutSeconds), logger)
	fetcher := lyrics.NewFetcher(beetsClient,
		cfg.Lyrics.RateLimit,
		seconds(cfg.Lyrics.CooldownSeconds),
		cfg.Lyrics.MaxRetries,
		seconds(cfg.Beets.LyricsTimeoutSeconds),
		logger)
	player := mpd.New(cfg.MPD.Binary, cfg.MPD.Host, cfg.MPD.Port)

	o := &Orchestrator{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "orchestrator"),
		events: events,

		inboxQueue:   queue.NewFIFO(),
		libraryQueue: queue.NewFIFO(),
		coverQueue:   queue.NewFIFO(),
		lyricsQueue:  queue.NewPriority(),

		importLease: lease.NewFile(cfg.ImportLeasePath()),
		fetcher:     fetcher,
		beetsClient: beetsClient,
		library:     library,
		inbox:       inbox,
		slskdClient: slskd.New(cfg.Slskd.URL, cfg.Slskd.APIKey, seconds(cfg.Slskd.TimeoutSeconds)),
		playlists: playlist.New(player, cfg.Paths.LibraryDir, cfg.MPD.MusicMount,
			cfg.MPD.PlaylistDir, logger),

		libraryDebounce: seconds(cfg.Debounce.LibrarySeconds),
		coverDebounce:   seconds(cfg.Debounce.CoverSeconds),
		lyricsDebounce:  seconds(cfg.Debounce.LyricsSeconds),
	}

	o.importAction = func(ctx context.Context) error {
		_, err := beetsClient.Import(ctx, cfg.Paths.InboxDir)
		return err
	}
	o.regenAction = library.Regenerate
	o.coverAction = resolver.Resolve

	o.statsCache = cache.NewResult(seconds(cfg.Cache.LibraryStatsTTLSeconds), o.computeStats)
	o.inboxCache = cache.NewResult(seconds(cfg.Cache.InboxStatsTTLSeconds),
		func(ctx context.Context) (*catalog.InboxStats, error) { return inbox.Stats() })

	o.settler = NewDebouncer(seconds(cfg.Debounce.InboxSeconds), func(string) {
		o.TriggerImport()
	})
	o.watch = watcher.New(
		[]string{cfg.Paths.InboxDir, cfg.Paths.LibraryDir},
		cfg.Debounce.IgnoreSubstrings,
		o.handleEvent,
		logger)

	return o
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Start launches the watcher, the four workers, and the inbox cleanup
// scheduler.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.mu.Unlock()

	if err := o.watch.Start(runCtx); err != nil {
		o.logger.Warn("watcher failed to start, manual triggers only", logging.Error(err))
	}

	workers := []func(context.Context){
		o.inboxWorker,
		o.libraryWorker,
		o.coverWorker,
		o.lyricsWorker,
		o.cleanupLoop,
	}
	for _, worker := range workers {
		o.wg.Add(1)
		go func(run func(context.Context)) {
			defer o.wg.Done()
			run(runCtx)
		}(worker)
	}

	o.logger.Info("orchestrator started",
		logging.String("inbox", o.cfg.Paths.InboxDir),
		logging.String("library", o.cfg.Paths.LibraryDir))
	return nil
}

// Stop cancels the workers and waits for them to exit. In-flight external
// actions run to completion.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	cancel := o.cancel
	o.mu.Unlock()

	o.settler.Stop()
	cancel()
	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

// handleEvent routes one filesystem notification to its domain.
func (o *Orchestrator) handleEvent(root, path string) {
	switch root {
	case o.cfg.Paths.InboxDir:
		// All inbox activity coalesces into one import of the whole
		// inbox; beets walks it itself.
		o.settler.Notify(o.cfg.Paths.InboxDir)
	case o.cfg.Paths.LibraryDir:
		o.TriggerRegen()
		if dir := o.albumDir(path); dir != "" {
			o.TriggerCover(dir)
		}
	}
}

// albumDir maps a changed library path to the album directory a cover fetch
// should run against. Events on the library root itself produce nothing.
func (o *Orchestrator) albumDir(path string) string {
	dir := path
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		dir = filepath.Dir(path)
	}
	if dir == o.cfg.Paths.LibraryDir || dir == filepath.Dir(o.cfg.Paths.LibraryDir) {
		return ""
	}
	return dir
}

// TriggerImport enqueues an inbox import. It reports whether a new item was
// accepted (false when one is already pending).
func (o *Orchestrator) TriggerImport() bool {
	return o.inboxQueue.Enqueue(queue.NewItem(o.cfg.Paths.InboxDir, 0))
}

// TriggerRegen enqueues a catalog regeneration.
func (o *Orchestrator) TriggerRegen() bool {
	return o.libraryQueue.Enqueue(queue.NewItem(regenTarget, 0))
}

// TriggerCover enqueues a cover fetch for an album directory.
func (o *Orchestrator) TriggerCover(dir string) bool {
	return o.coverQueue.Enqueue(queue.NewItem(dir, 0))
}

// EnqueueLyrics enqueues a lyrics fetch for a track at the given priority.
func (o *Orchestrator) EnqueueLyrics(target string, priority int) bool {
	return o.lyricsQueue.Enqueue(queue.NewItem(target, priority))
}

func (o *Orchestrator) inboxWorker(ctx context.Context) {
	log := logging.NewComponentLogger(o.logger, "worker.import")
	for ctx.Err() == nil {
		item, ok := o.inboxQueue.Pop(ctx, popWait)
		if !ok {
			continue
		}

		acquired, err := o.importLease.TryAcquire(ctx, 0)
		if err != nil {
			log.Error("lease check failed", logging.Error(err))
			continue
		}
		if !acquired {
			// Expected under concurrent triggers; the next inbox
			// event re-queues naturally.
			log.Warn("import skipped, lease held elsewhere",
				logging.String(logging.FieldItemID, item.ID))
			o.events.Append(eventlog.LevelWarning, "import skipped: another import is running")
			continue
		}

		log.Info("import started", logging.String(logging.FieldItemID, item.ID))
		err = o.importAction(context.WithoutCancel(ctx))
		if releaseErr := o.importLease.Release(); releaseErr != nil {
			log.Warn("lease release failed", logging.Error(releaseErr))
		}
		if err != nil {
			log.Error("import failed", logging.Error(err))
			o.events.Append(eventlog.LevelError, "inbox import failed: "+err.Error())
			continue
		}

		o.inboxCache.Invalidate()
		o.statsCache.Invalidate()
		o.events.Append(eventlog.LevelSuccess, "inbox import completed")
		o.TriggerRegen()
	}
}

func (o *Orchestrator) libraryWorker(ctx context.Context) {
	log := logging.NewComponentLogger(o.logger, "worker.regen")
	for ctx.Err() == nil {
		_, ok := o.libraryQueue.Pop(ctx, popWait)
		if !ok {
			continue
		}
		if !sleepCtx(ctx, o.libraryDebounce) {
			return
		}

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx),
			seconds(o.cfg.Workflow.RegenTimeoutSeconds))
		err := o.regenAction(runCtx)
		cancel()
		if err != nil {
			log.Error("catalog regeneration failed", logging.Error(err))
			o.events.Append(eventlog.LevelError, "catalog regeneration failed: "+err.Error())
			continue
		}

		o.statsCache.Invalidate()
		o.events.Append(eventlog.LevelSuccess, "catalog regenerated")
	}
}

func (o *Orchestrator) coverWorker(ctx context.Context) {
	log := logging.NewComponentLogger(o.logger, "worker.cover")
	for ctx.Err() == nil {
		item, ok := o.coverQueue.Pop(ctx, popWait)
		if !ok {
			continue
		}
		if !sleepCtx(ctx, o.coverDebounce) {
			return
		}

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx),
			seconds(o.cfg.Beets.CoverTimeoutSeconds))
		source, err := o.coverAction(runCtx, item.Target)
		cancel()
		if err != nil {
			log.Warn("cover fetch failed",
				logging.String(logging.FieldTarget, item.Target), logging.Error(err))
			o.events.Append(eventlog.LevelWarning,
				"cover fetch failed for "+filepath.Base(item.Target))
			continue
		}
		if source == "existing" {
			continue
		}

		log.Info("cover resolved",
			logging.String(logging.FieldTarget, item.Target),
			logging.String("source", source))
		o.events.Append(eventlog.LevelSuccess,
			"cover fetched ("+source+") for "+filepath.Base(item.Target))
		o.TriggerRegen()
	}
}

func (o *Orchestrator) lyricsWorker(ctx context.Context) {
	log := logging.NewComponentLogger(o.logger, "worker.lyrics")
	for ctx.Err() == nil {
		item, ok := o.lyricsQueue.Pop(ctx, popWait)
		if !ok {
			continue
		}
		if !sleepCtx(ctx, o.lyricsDebounce) {
			return
		}
		for o.fetcher.Paused() {
			if !sleepCtx(ctx, pausePoll) {
				return
			}
		}

		outcome, err := o.fetcher.Fetch(ctx, item)
		base := filepath.Base(item.Target)
		switch outcome {
		case lyrics.OutcomeFetched:
			o.events.Append(eventlog.LevelSuccess, "lyrics fetched for "+base)
		case lyrics.OutcomeQuota:
			if o.fetcher.ShouldRequeue(item) {
				o.requeueLyrics(item, item.Priority+1)
				o.events.Append(eventlog.LevelWarning,
					"lyrics quota hit, requeued "+base)
			} else {
				o.events.Append(eventlog.LevelWarning,
					"lyrics retries exhausted for "+base)
			}
		case lyrics.OutcomeFailed:
			if ctx.Err() != nil {
				return
			}
			log.Warn("lyrics fetch failed",
				logging.String(logging.FieldTarget, item.Target), logging.Error(err))
			if o.fetcher.ShouldRequeue(item) {
				o.requeueLyrics(item, item.Priority)
			} else {
				o.events.Append(eventlog.LevelWarning,
					"lyrics retries exhausted for "+base)
			}
		case lyrics.OutcomeNotFound:
			log.Info("no lyrics available",
				logging.String(logging.FieldTarget, item.Target))
		case lyrics.OutcomeSkippedExhausted, lyrics.OutcomeSkippedHasLyrics,
			lyrics.OutcomeDroppedMissing:
			// Nothing to do.
		}
	}
}

func (o *Orchestrator) requeueLyrics(item *queue.Item, priority int) {
	next := queue.NewItem(item.Target, priority)
	next.Attempt = item.Attempt + 1
	o.lyricsQueue.Enqueue(next)
}

func (o *Orchestrator) cleanupLoop(ctx context.Context) {
	interval := seconds(o.cfg.Workflow.CleanupIntervalSeconds)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := o.inbox.Cleanup()
			if err != nil {
				o.logger.Warn("inbox cleanup failed", logging.Error(err))
				continue
			}
			if removed > 0 {
				o.inboxCache.Invalidate()
				o.events.Append(eventlog.LevelInfo,
					"inbox cleanup removed "+strconv.Itoa(removed)+" folders")
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
