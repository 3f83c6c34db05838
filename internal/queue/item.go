package queue

import (
	"time"

	"github.com/google/uuid"
)

// Item is one unit of pending work. Identity for deduplication purposes is
// Target; ID exists only for log correlation.
type Item struct {
	ID         string
	Target     string
	Priority   int
	Attempt    int
	EnqueuedAt time.Time
}

// NewItem builds a work item for target at the given priority.
func NewItem(target string, priority int) *Item {
	return &Item{
		ID:         uuid.NewString(),
		Target:     target,
		Priority:   priority,
		EnqueuedAt: time.Now(),
	}
}

// Less imposes the lyrics-queue total order: ascending priority, then
// arrival time, then the insertion sequence assigned by the queue.
func less(a, b *entry) bool {
	if a.item.Priority != b.item.Priority {
		return a.item.Priority < b.item.Priority
	}
	if !a.item.EnqueuedAt.Equal(b.item.EnqueuedAt) {
		return a.item.EnqueuedAt.Before(b.item.EnqueuedAt)
	}
	return a.seq < b.seq
}

type entry struct {
	item *Item
	seq  uint64
}
