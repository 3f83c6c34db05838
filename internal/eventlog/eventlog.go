package eventlog

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"tonearm/internal/logging"
)

// Level classifies an operational event.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Entry is one operational event. IDs are monotonic for the process lifetime
// and are never reused, so clients can poll incrementally with a cursor.
type Entry struct {
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
}

// Log is a bounded, newest-first ring of operational events. Appends evict
// the oldest entry once the bound is reached.
type Log struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries []Entry
	lastID  uint64
	max     int
}

// New constructs a Log holding at most max entries.
func New(max int, logger *slog.Logger) *Log {
	if max <= 0 {
		max = 100
	}
	return &Log{
		logger:  logging.NewComponentLogger(logger, "eventlog"),
		entries: make([]Entry, 0, max),
		max:     max,
	}
}

// Append records an event and mirrors it to the structured logger.
func (l *Log) Append(level Level, message string) Entry {
	l.mu.Lock()
	l.lastID++
	entry := Entry{
		ID:        l.lastID,
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
	}
	l.entries = append([]Entry{entry}, l.entries...)
	if len(l.entries) > l.max {
		l.entries = l.entries[:l.max]
	}
	l.mu.Unlock()

	switch level {
	case LevelError:
		l.logger.Error(message)
	case LevelWarning:
		l.logger.Warn(message)
	default:
		l.logger.Info(strings.TrimSpace(string(level) + ": " + message))
	}
	return entry
}

// Tail returns up to limit entries newer than sinceID, newest first. A
// sinceID of zero returns the most recent entries.
func (l *Log) Tail(sinceID uint64, limit int) []Entry {
	if limit <= 0 {
		limit = 50
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, limit)
	for _, entry := range l.entries {
		if sinceID > 0 && entry.ID <= sinceID {
			continue
		}
		out = append(out, entry)
		if len(out) == limit {
			break
		}
	}
	return out
}

// LastID returns the most recently assigned event id.
func (l *Log) LastID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastID
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
