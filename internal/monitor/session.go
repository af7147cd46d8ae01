package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/bus"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/camera"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/config"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/notify"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/speech"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/stats"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/usage"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/vision"
)

// ErrDailyLimitReached is returned by Start when today's free allowance is
// already spent.
var ErrDailyLimitReached = errors.New("daily monitoring limit reached")

// ErrAlreadyRunning is returned by Start while a session is active.
var ErrAlreadyRunning = errors.New("session already running")

// Stop reasons reported through the bus and OnStopped.
const (
	ReasonManual     = "manual"
	ReasonDailyLimit = "daily_limit"
)

const (
	maxCreditSeconds  = 10
	staleGapSeconds   = 20
	greetingText      = "Focus Guardian is on duty. Let's get this homework done!"
	maskedMessage     = "Still focused, keep it up!"
	limitReachedText  = "Today's focus time is used up. Great work, see you tomorrow!"
	badgeCongratsText = "Amazing! You unlocked the %s badge!"
)

var encouragements = []string{
	"Great focus, keep it up!",
	"You're doing wonderfully, stay on it!",
	"Nice and steady, almost there!",
}

// Session drives the capture-classify-react loop. One Session survives many
// start/stop rounds; stats and the log accumulate across them, while the
// debounce run and notification cooldown reset on every start.
type Session struct {
	cfg        config.MonitorConfig
	source     camera.Source
	classifier vision.Classifier
	guard      *usage.Guard
	fanout     *notify.Fanout
	speaker    speech.Speaker
	events     *bus.Bus

	mu         sync.Mutex
	running    bool
	gen        uint64
	inFlight   bool
	cancel     context.CancelFunc
	status     vision.Status
	message    string
	debounce   *Debouncer
	statusLog  *Log
	userStats  stats.UserStats
	lastCheck  time.Time
	lastNotify time.Time

	// Clock and randomness seams for tests.
	now      func() time.Time
	randFunc func() float64

	// OnStopped fires after the session ends for any reason.
	OnStopped func(reason string)
}

// NewSession wires the loop together. events may be nil when nothing
// subscribes.
func NewSession(cfg config.MonitorConfig, source camera.Source, classifier vision.Classifier,
	guard *usage.Guard, fanout *notify.Fanout, speaker speech.Speaker, events *bus.Bus) *Session {
	if events == nil {
		events = bus.New()
	}
	if speaker == nil {
		speaker = speech.Nop{}
	}
	return &Session{
		cfg:        cfg,
		source:     source,
		classifier: classifier,
		guard:      guard,
		fanout:     fanout,
		speaker:    speaker,
		events:     events,
		status:     vision.StatusIdle,
		debounce:   NewDebouncer(cfg.AlertThreshold),
		statusLog:  NewLog(),
		now:        time.Now,
		randFunc:   rand.Float64,
	}
}

// Log exposes the status history.
func (s *Session) Log() *Log { return s.statusLog }

// Events exposes the broadcast bus.
func (s *Session) Events() *bus.Bus { return s.events }

// Start begins monitoring. It fails when already running or when the daily
// cap is spent.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	if s.guard.Exceeded() {
		s.mu.Unlock()
		return ErrDailyLimitReached
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.status = vision.StatusIdle
	s.message = "Warming up..."
	s.debounce.Reset()
	s.lastCheck = s.now()
	s.lastNotify = time.Time{}
	gen := s.gen
	s.mu.Unlock()

	log.Printf("[monitor] session started (interval=%ds threshold=%d)",
		s.cfg.IntervalSeconds, s.cfg.AlertThreshold)
	s.speaker.Say(greetingText, vision.StatusFocused)
	s.events.Publish(bus.Event{Kind: bus.KindSession, Message: "started"})

	go s.cycleLoop(runCtx, gen)
	go s.usageLoop(runCtx, gen)
	return nil
}

// Stop ends the session manually. Safe to call when not running.
func (s *Session) Stop() {
	s.stop(ReasonManual)
}

func (s *Session) stop(reason string) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.gen++
	cancel := s.cancel
	s.cancel = nil
	s.status = vision.StatusIdle
	s.message = ""
	s.debounce.Reset()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	log.Printf("[monitor] session stopped (%s)", reason)
	s.events.Publish(bus.Event{Kind: bus.KindSession, Message: "stopped", Reason: reason})
	if s.OnStopped != nil {
		s.OnStopped(reason)
	}
}

func (s *Session) cycleLoop(ctx context.Context, gen uint64) {
	interval := time.Duration(s.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s.runCycle(ctx, gen)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx, gen)
		}
	}
}

func (s *Session) usageLoop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			alive := s.running && s.gen == gen
			s.mu.Unlock()
			if !alive {
				return
			}
			if s.guard.Exceeded() {
				s.speaker.Say(limitReachedText, vision.StatusFocused)
				s.stop(ReasonDailyLimit)
				return
			}
			s.guard.Tick()
		}
	}
}

// runCycle performs one capture-classify-apply pass. A cycle whose previous
// request is still outstanding is skipped rather than queued.
func (s *Session) runCycle(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if !s.running || s.gen != gen || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	if s.guard.Exceeded() {
		return
	}

	frame, err := s.source.Capture(ctx)
	if err != nil {
		log.Printf("[monitor] capture: %v", err)
		return
	}
	if len(frame) == 0 {
		return
	}

	result, err := s.classifier.Classify(ctx, frame)
	if err != nil {
		log.Printf("[monitor] classify: %v", err)
		return
	}
	s.apply(gen, result)
}

// apply folds one classification into session state and fires effects.
func (s *Session) apply(gen uint64, result *vision.Result) {
	s.mu.Lock()
	if !s.running || s.gen != gen {
		s.mu.Unlock()
		return
	}

	raw := result.Status
	now := s.now()
	displayed := raw
	if raw != vision.StatusError {
		displayed = s.debounce.Apply(raw)
	}
	credit := s.creditLocked(now)

	// A masked bad frame must not leak the model's alert text.
	message := result.Message
	if raw.Bad() && displayed == vision.StatusFocused {
		message = maskedMessage
	}

	s.status = displayed
	s.message = message

	if raw == vision.StatusError {
		s.mu.Unlock()
		s.events.Publish(bus.Event{Kind: bus.KindStatus, Status: displayed, Raw: raw, Message: message, Time: now})
		return
	}

	var unlocked *stats.Badge
	s.userStats, unlocked = stats.Apply(s.userStats, displayed, credit)
	s.statusLog.Append(displayed, message, now)

	notifyDue := false
	if displayed.Bad() && s.fanout != nil && s.fanout.Configured() {
		cooldown := time.Duration(s.cfg.NotifyCooldownSeconds) * time.Second
		if s.lastNotify.IsZero() || now.Sub(s.lastNotify) >= cooldown {
			notifyDue = true
		}
	}
	encourage := displayed == vision.StatusFocused && raw == vision.StatusFocused &&
		s.randFunc() < s.cfg.EncouragementOdds
	s.mu.Unlock()

	s.events.Publish(bus.Event{Kind: bus.KindStatus, Status: displayed, Raw: raw, Message: message, Time: now})

	if unlocked != nil {
		log.Printf("[monitor] badge unlocked: %s", unlocked.ID)
		s.speaker.Say(fmt.Sprintf(badgeCongratsText, unlocked.Name), vision.StatusFocused)
		s.events.Publish(bus.Event{Kind: bus.KindBadge, Badge: unlocked.ID, Message: unlocked.Name, Time: now})
	}

	if displayed.Bad() {
		s.speaker.Say(message, displayed)
		if notifyDue {
			s.dispatchNotification(gen, displayed, message)
		}
	} else if encourage {
		s.speaker.Say(encouragements[int(s.randFunc()*float64(len(encouragements)))%len(encouragements)], displayed)
	}
}

func (s *Session) dispatchNotification(gen uint64, status vision.Status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	text := fmt.Sprintf("Focus Guardian: child is %s. %s", statusWord(status), message)
	if !s.fanout.Send(ctx, text) {
		return
	}
	s.mu.Lock()
	if s.gen == gen {
		s.lastNotify = s.now()
	}
	s.mu.Unlock()
}

// creditLocked converts wall time since the previous cycle into focus-time
// credit. Gaps beyond 20s (machine asleep, backgrounded) earn nothing;
// otherwise credit caps at 10s per cycle. Caller holds s.mu.
func (s *Session) creditLocked(now time.Time) int {
	elapsed := now.Sub(s.lastCheck).Seconds()
	s.lastCheck = now
	if elapsed > staleGapSeconds || elapsed < 0 {
		return 0
	}
	if elapsed > maxCreditSeconds {
		return maxCreditSeconds
	}
	return int(elapsed)
}

func statusWord(st vision.Status) string {
	switch st {
	case vision.StatusDistracted:
		return "distracted"
	case vision.StatusAbsent:
		return "away from the desk"
	case vision.StatusBadPosture:
		return "slouching"
	default:
		return string(st)
	}
}

// Snapshot is a point-in-time view for the CLI and web UI.
type Snapshot struct {
	Running          bool            `json:"running"`
	Status           vision.Status   `json:"status"`
	Message          string          `json:"message"`
	Stats            stats.UserStats `json:"stats"`
	Score            int             `json:"score"`
	UsedSeconds      int             `json:"usedSeconds"`
	RemainingSeconds int             `json:"remainingSeconds"`
	Pro              bool            `json:"pro"`
}

// State returns the current snapshot.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Running: s.running,
		Status:  s.status,
		Message: s.message,
		Stats:   s.userStats,
	}
	s.mu.Unlock()
	snap.Score = stats.DailyScore(snap.Stats)
	snap.UsedSeconds = s.guard.Used()
	snap.RemainingSeconds = s.guard.Remaining()
	snap.Pro = s.guard.Pro()
	return snap
}

// Stats returns a copy of the accumulated stats.
func (s *Session) Stats() stats.UserStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userStats
}
