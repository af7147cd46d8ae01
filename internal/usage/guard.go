package usage

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const activationCode = "VIP888"

// State is the persisted daily usage record.
type State struct {
	Date    string `json:"date"`
	Seconds int    `json:"seconds"`
	Pro     bool   `json:"pro"`
}

// Guard enforces the free-tier daily monitoring cap. All methods are safe
// for concurrent use.
type Guard struct {
	mu    sync.Mutex
	path  string
	limit int
	state State
	now   func() time.Time
}

// NewGuard loads (or initialises) persisted usage at path with the given
// daily limit in seconds. A stored record from an earlier day resets the
// counter; Pro status survives the rollover.
func NewGuard(path string, limitSeconds int) (*Guard, error) {
	g := &Guard{path: path, limit: limitSeconds, now: time.Now}
	if err := g.load(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Guard) load() error {
	today := g.now().Format("2006-01-02")
	data, err := os.ReadFile(g.path)
	if os.IsNotExist(err) {
		g.state = State{Date: today}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read usage state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		log.Printf("[usage] corrupt state file, resetting: %v", err)
		g.state = State{Date: today}
		return nil
	}
	if st.Date != today {
		st = State{Date: today, Pro: st.Pro}
	}
	g.state = st
	return nil
}

func (g *Guard) saveLocked() {
	data, err := json.MarshalIndent(g.state, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		log.Printf("[usage] create state dir: %v", err)
		return
	}
	if err := os.WriteFile(g.path, data, 0o644); err != nil {
		log.Printf("[usage] save state: %v", err)
	}
}

// Tick records one second of monitoring and persists the new total.
func (g *Guard) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Seconds++
	g.saveLocked()
}

// Exceeded reports whether today's free allowance is spent. Pro users are
// never limited.
func (g *Guard) Exceeded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Pro {
		return false
	}
	return g.state.Seconds >= g.limit
}

// Remaining returns seconds left today, or -1 for pro users.
func (g *Guard) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Pro {
		return -1
	}
	left := g.limit - g.state.Seconds
	if left < 0 {
		return 0
	}
	return left
}

// Used returns seconds consumed today.
func (g *Guard) Used() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Seconds
}

// Pro reports whether the unlimited tier is active.
func (g *Guard) Pro() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Pro
}

// Activate upgrades to the unlimited tier when code matches. The comparison
// ignores surrounding whitespace and letter case. Pro status is sticky and
// persisted immediately.
func (g *Guard) Activate(code string) bool {
	if !strings.EqualFold(strings.TrimSpace(code), activationCode) {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.state.Pro {
		g.state.Pro = true
		g.saveLocked()
		log.Printf("[usage] pro tier activated")
	}
	return true
}
