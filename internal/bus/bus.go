package bus

import (
	"sync"
	"time"

	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/vision"
)

// EventKind classifies bus events.
type EventKind string

const (
	KindStatus  EventKind = "status"
	KindBadge   EventKind = "badge"
	KindSession EventKind = "session"
)

// Event is a broadcast update from the monitoring session. Status events
// carry both the displayed (debounced) status and the raw model verdict.
type Event struct {
	Kind    EventKind     `json:"kind"`
	Status  vision.Status `json:"status,omitempty"`
	Raw     vision.Status `json:"raw,omitempty"`
	Message string        `json:"message,omitempty"`
	Badge   string        `json:"badge,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	Time    time.Time     `json:"time"`
}

// Bus fans events out to subscribers. Publish never blocks; slow
// subscribers drop events once their buffer fills.
type Bus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func New() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a buffered receiver. The caller must call the
// returned cancel function when done.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
