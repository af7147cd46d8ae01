package monitor

import (
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/vision"
)

// Debouncer suppresses one-off bad verdicts so a child glancing away for a
// single frame is not alarmed. A bad status only surfaces once it has been
// seen threshold times in a row; masked frames display as FOCUSED. Good and
// error statuses pass through and reset the run.
type Debouncer struct {
	threshold int
	streak    int
}

func NewDebouncer(threshold int) *Debouncer {
	if threshold < 1 {
		threshold = 1
	}
	return &Debouncer{threshold: threshold}
}

// Apply folds a raw verdict and returns the status to display and act on.
func (d *Debouncer) Apply(raw vision.Status) vision.Status {
	if !raw.Bad() {
		d.streak = 0
		return raw
	}
	d.streak++
	if d.streak < d.threshold {
		return vision.StatusFocused
	}
	return raw
}

// Reset clears the run, used when a session starts or stops.
func (d *Debouncer) Reset() {
	d.streak = 0
}
