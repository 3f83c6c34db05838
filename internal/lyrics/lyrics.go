// Package lyrics drives the quota-constrained lyrics domain: admission
// through a sliding-window rate limiter, fetches via beets, quota-signal
// classification with cooldown and bounded requeue, and a scanner that finds
// library tracks still missing lyrics.
package lyrics

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dhowden/tag"

	"tonearm/internal/fileutil"
	"tonearm/internal/logging"
	"tonearm/internal/queue"
	"tonearm/internal/ratelimit"
	"tonearm/internal/services"
	"tonearm/internal/services/beets"
)

// ScanPriority is where scanner-discovered tracks enter the queue. Quota
// requeues bump from here.
const ScanPriority = 2

// Outcome classifies one fetch attempt.
type Outcome int

const (
	// OutcomeFetched means lyrics were retrieved and embedded.
	OutcomeFetched Outcome = iota
	// OutcomeNotFound means the source had no lyrics; not a failure.
	OutcomeNotFound
	// OutcomeSkippedHasLyrics means the track already holds lyrics.
	OutcomeSkippedHasLyrics
	// OutcomeDroppedMissing means the file no longer exists.
	OutcomeDroppedMissing
	// OutcomeSkippedExhausted means the target hit the retry ceiling.
	OutcomeSkippedExhausted
	// OutcomeQuota means the source signalled quota exhaustion; the caller
	// should requeue at a lower priority.
	OutcomeQuota
	// OutcomeFailed is any other failure; the retry ledger was charged.
	OutcomeFailed
)

// LyricsClient is the beets surface the fetcher needs.
type LyricsClient interface {
	FetchLyrics(ctx context.Context, timeout time.Duration, trackPath string) (string, error)
}

// Fetcher executes lyrics fetch work items.
type Fetcher struct {
	client  LyricsClient
	limiter *ratelimit.Limiter
	ledger  *ratelimit.Ledger
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	paused bool

	// hasLyrics is swappable in tests; reading real tag containers needs
	// fixture files otherwise.
	hasLyrics func(path string) bool
}

// NewFetcher constructs a fetcher. maxRetries caps automatic requeues per
// target; limit and cooldown configure the sliding-window admission check.
func NewFetcher(client LyricsClient, limit int, cooldown time.Duration, maxRetries int,
	timeout time.Duration, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client:    client,
		limiter:   ratelimit.NewLimiter(limit, cooldown),
		ledger:    ratelimit.NewLedger(maxRetries),
		timeout:   timeout,
		logger:    logging.NewComponentLogger(logger, "lyrics"),
		hasLyrics: hasEmbeddedLyrics,
	}
}

// Fetch runs one lyrics attempt for item. It blocks while rate-limited or
// cooling down, checking ctx, and never blocks while holding a lock.
func (f *Fetcher) Fetch(ctx context.Context, item *queue.Item) (Outcome, error) {
	target := item.Target

	if f.ledger.Exhausted(target) {
		return OutcomeSkippedExhausted, nil
	}
	if _, err := os.Stat(target); err != nil {
		f.ledger.Clear(target)
		return OutcomeDroppedMissing, nil
	}
	if f.hasLyrics(target) {
		f.ledger.Clear(target)
		return OutcomeSkippedHasLyrics, nil
	}

	// Deferred, not dropped: wait until the window or cooldown admits us.
	for !f.limiter.Allow() {
		if err := ratelimit.SleepWithContext(ctx, time.Second); err != nil {
			return OutcomeFailed, err
		}
	}
	f.limiter.Record()

	output, err := f.client.FetchLyrics(ctx, f.timeout, target)
	if beets.ClassifyQuota(output) {
		f.limiter.StartCooldown()
		f.logger.Warn("lyrics source quota exceeded, entering cooldown",
			logging.String(logging.FieldTarget, target),
			logging.Int("attempt", item.Attempt))
		return OutcomeQuota, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}
	if !beets.LyricsFound(output) {
		f.ledger.Clear(target)
		return OutcomeNotFound, nil
	}
	f.ledger.Clear(target)
	return OutcomeFetched, nil
}

// ShouldRequeue records one failure for item's target and reports whether
// it is still under the retry ceiling. This is the single place the ledger
// is charged, covering both quota hits and ordinary failures.
func (f *Fetcher) ShouldRequeue(item *queue.Item) bool {
	f.ledger.Fail(item.Target)
	return !f.ledger.Exhausted(item.Target)
}

// Pause stops lyrics processing until Resume is called. In-flight fetches
// finish.
func (f *Fetcher) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
}

// Resume re-enables lyrics processing.
func (f *Fetcher) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
}

// Paused reports whether processing is paused.
func (f *Fetcher) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

// Stats is served by the lyrics stats endpoint.
type Stats struct {
	Paused         bool       `json:"paused"`
	RecentRequests int        `json:"recent_requests"`
	RateLimit      int        `json:"rate_limit"`
	CooldownUntil  *time.Time `json:"cooldown_until,omitempty"`
	ExhaustedCount int        `json:"exhausted_targets"`
	FailedTargets  int        `json:"failed_targets"`
}

// Stats snapshots the limiter and ledger.
func (f *Fetcher) Stats() Stats {
	stats := Stats{
		Paused:         f.Paused(),
		RecentRequests: f.limiter.RecentCount(),
		RateLimit:      f.limiter.Limit(),
		ExhaustedCount: f.ledger.ExhaustedCount(),
		FailedTargets:  f.ledger.Len(),
	}
	if until, active := f.limiter.CooldownUntil(); active {
		stats.CooldownUntil = &until
	}
	return stats
}

// Scan walks the library and calls enqueue for every audio file without
// embedded lyrics, returning how many were enqueued. Hidden entries are
// skipped.
func (f *Fetcher) Scan(ctx context.Context, libraryDir string, enqueue func(target string) bool) (int, error) {
	count := 0
	err := filepath.WalkDir(libraryDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if path != libraryDir && name[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if name[0] == '.' || !fileutil.IsAudioPath(path) {
			return nil
		}
		if f.ledger.Exhausted(path) || f.hasLyrics(path) {
			return nil
		}
		if enqueue(path) {
			count++
		}
		return nil
	})
	if err != nil {
		return count, services.Wrap(services.ErrExternalTool, "lyrics", "scan library", err.Error(), err)
	}
	return count, nil
}

func hasEmbeddedLyrics(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	meta, err := tag.ReadFrom(f)
	if err != nil {
		return false
	}
	return meta.Lyrics() != ""
}
