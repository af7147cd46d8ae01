package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/vision"
)

const logCapacity = 50

// Entry is one recorded status observation.
type Entry struct {
	ID        string        `json:"id"`
	Status    vision.Status `json:"status"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

// Log is a bounded newest-first ring of status entries.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

func NewLog() *Log {
	return &Log{}
}

// Append records an observation, evicting the oldest entry past capacity.
func (l *Log) Append(status vision.Status, message string, at time.Time) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		Status:    status,
		Message:   message,
		Timestamp: at,
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append([]Entry{e}, l.entries...)
	if len(l.entries) > logCapacity {
		l.entries = l.entries[:logCapacity]
	}
	return e
}

// Entries returns a newest-first snapshot.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the current entry count.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
