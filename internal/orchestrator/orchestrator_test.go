package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tonearm/internal/eventlog"
	"tonearm/internal/lease"
	"tonearm/internal/logging"
	"tonearm/internal/lyrics"
	"tonearm/internal/testsupport"
)

type actionRecorder struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
}

func (a *actionRecorder) record(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, name)
	if a.errs != nil {
		return a.errs[name]
	}
	return nil
}

func (a *actionRecorder) count(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c == name {
			n++
		}
	}
	return n
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *actionRecorder) {
	t.Helper()
	o := New(testsupport.NewConfig(t), logging.NewNop())
	rec := &actionRecorder{}
	o.importLease = lease.NewMemory()
	o.importAction = func(context.Context) error { return rec.record("import") }
	o.regenAction = func(context.Context) error { return rec.record("regen") }
	o.coverAction = func(_ context.Context, dir string) (string, error) {
		return "local", rec.record("cover")
	}
	return o, rec
}

func startOrchestrator(t *testing.T, o *Orchestrator) {
	t.Helper()
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(o.Stop)
}

func waitCount(t *testing.T, rec *actionRecorder, name string, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if rec.count(name) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s ran %d times, want %d", name, rec.count(name), want)
}

func TestImportChainsCatalogRegen(t *testing.T) {
	o, rec := newTestOrchestrator(t)
	startOrchestrator(t, o)

	if !o.TriggerImport() {
		t.Fatal("trigger should be accepted")
	}
	waitCount(t, rec, "import", 1)
	waitCount(t, rec, "regen", 1)
}

func TestImportSkippedWhenLeaseHeld(t *testing.T) {
	o, rec := newTestOrchestrator(t)
	held := lease.NewMemory()
	if ok, err := held.TryAcquire(context.Background(), 0); err != nil || !ok {
		t.Fatal("setup: failed to pre-acquire lease")
	}
	o.importLease = held
	startOrchestrator(t, o)

	o.TriggerImport()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(o.EventTail(0, 10)) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if rec.count("import") != 0 {
		t.Fatal("import must not run while the lease is held")
	}
	events := o.EventTail(0, 10)
	if len(events) == 0 || events[0].Level != eventlog.LevelWarning {
		t.Fatalf("expected a warning event, got %+v", events)
	}
}

func TestCoverSuccessChainsRegen(t *testing.T) {
	o, rec := newTestOrchestrator(t)
	startOrchestrator(t, o)

	if !o.TriggerCover("/music/library/Artist/Album") {
		t.Fatal("trigger should be accepted")
	}
	waitCount(t, rec, "cover", 1)
	waitCount(t, rec, "regen", 1)
}

func TestRegenFailureIsLoggedNotRetried(t *testing.T) {
	o, rec := newTestOrchestrator(t)
	rec.errs = map[string]error{"regen": errors.New("db locked")}
	startOrchestrator(t, o)

	o.TriggerRegen()
	waitCount(t, rec, "regen", 1)
	time.Sleep(100 * time.Millisecond)
	if rec.count("regen") != 1 {
		t.Fatalf("regen ran %d times, want exactly 1", rec.count("regen"))
	}

	events := o.EventTail(0, 10)
	if len(events) == 0 || events[0].Level != eventlog.LevelError {
		t.Fatalf("expected an error event, got %+v", events)
	}
}

type quotaClient struct {
	mu    sync.Mutex
	calls int
}

func (q *quotaClient) FetchLyrics(context.Context, time.Duration, string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	return "HTTP 429 too many requests", nil
}

func (q *quotaClient) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

func TestQuotaRequeuesAtBumpedPriority(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	client := &quotaClient{}
	o.fetcher = lyrics.NewFetcher(client, 10, time.Millisecond, 3, time.Second, logging.NewNop())

	track := filepath.Join(o.cfg.Paths.LibraryDir, "track.flac")
	if err := writeTrack(track); err != nil {
		t.Fatal(err)
	}
	startOrchestrator(t, o)

	o.EnqueueLyrics(track, lyrics.ScanPriority)

	// 3 attempts: original plus two requeues, then the ceiling.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && client.count() < 3 {
		time.Sleep(10 * time.Millisecond)
	}
	if client.count() != 3 {
		t.Fatalf("fetch attempts = %d, want 3", client.count())
	}
	time.Sleep(200 * time.Millisecond)
	if client.count() != 3 {
		t.Fatalf("retries exceeded the ceiling: %d", client.count())
	}
}

func writeTrack(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("not-really-audio"), 0o644)
}

func TestStatusReportsQueueDepths(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	// Not started: items stay queued.
	o.TriggerRegen()
	o.TriggerCover("/music/library/Artist/Album")
	o.EnqueueLyrics("/music/library/a.flac", 2)

	status := o.Status(0, 10)
	if status.Queues[QueueLibraryRegen] != 1 {
		t.Fatalf("regen depth = %d", status.Queues[QueueLibraryRegen])
	}
	if status.Queues[QueueCoverFetch] != 1 || status.Queues[QueueLyricsFetch] != 1 {
		t.Fatalf("unexpected depths: %+v", status.Queues)
	}
	if status.Queues[QueueInboxImport] != 0 {
		t.Fatalf("import depth = %d", status.Queues[QueueInboxImport])
	}
}

func TestDuplicateTriggerRejectedWhilePending(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if !o.TriggerRegen() {
		t.Fatal("first trigger should be accepted")
	}
	if o.TriggerRegen() {
		t.Fatal("second trigger should be deduplicated")
	}
}
