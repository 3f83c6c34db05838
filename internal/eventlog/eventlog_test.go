package eventlog

import (
	"fmt"
	"testing"

	"tonearm/internal/logging"
)

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	log := New(10, logging.NewNop())
	first := log.Append(LevelInfo, "one")
	second := log.Append(LevelWarning, "two")
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("ids not monotonic: %d, %d", first.ID, second.ID)
	}
}

func TestRingEvictsOldestButKeepsIDs(t *testing.T) {
	log := New(3, logging.NewNop())
	for i := 1; i <= 5; i++ {
		log.Append(LevelInfo, fmt.Sprintf("event %d", i))
	}
	if log.Len() != 3 {
		t.Fatalf("expected 3 retained entries, got %d", log.Len())
	}
	tail := log.Tail(0, 10)
	if len(tail) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(tail))
	}
	// Newest first; ids keep climbing even after eviction.
	if tail[0].ID != 5 || tail[2].ID != 3 {
		t.Fatalf("unexpected ids: %d..%d", tail[0].ID, tail[2].ID)
	}
	if log.LastID() != 5 {
		t.Fatalf("last id = %d, want 5", log.LastID())
	}
}

func TestTailSinceID(t *testing.T) {
	log := New(10, logging.NewNop())
	for i := 1; i <= 6; i++ {
		log.Append(LevelInfo, fmt.Sprintf("event %d", i))
	}

	tail := log.Tail(4, 10)
	if len(tail) != 2 {
		t.Fatalf("expected 2 entries after id 4, got %d", len(tail))
	}
	if tail[0].ID != 6 || tail[1].ID != 5 {
		t.Fatalf("unexpected ids: %d, %d", tail[0].ID, tail[1].ID)
	}

	if got := log.Tail(6, 10); len(got) != 0 {
		t.Fatalf("expected no entries after latest id, got %d", len(got))
	}
}

func TestTailLimit(t *testing.T) {
	log := New(10, logging.NewNop())
	for i := 0; i < 8; i++ {
		log.Append(LevelInfo, "event")
	}
	if got := log.Tail(0, 3); len(got) != 3 {
		t.Fatalf("expected limit of 3, got %d", len(got))
	}
}
