package vision

// Status is the closed classification taxonomy for one camera frame.
type Status string

const (
	StatusIdle       Status = "IDLE" // display-only, never produced by the classifier
	StatusFocused    Status = "FOCUSED"
	StatusDistracted Status = "DISTRACTED"
	StatusAbsent     Status = "ABSENT"
	StatusBadPosture Status = "BAD_POSTURE"
	StatusError      Status = "ERROR"
)

// Valid reports whether s is one of the four statuses the remote model is
// allowed to return.
func (s Status) Valid() bool {
	switch s {
	case StatusFocused, StatusDistracted, StatusAbsent, StatusBadPosture:
		return true
	}
	return false
}

// Bad reports whether s is an alert-worthy status.
func (s Status) Bad() bool {
	switch s {
	case StatusDistracted, StatusAbsent, StatusBadPosture:
		return true
	}
	return false
}

// Result is one classification of one frame. Confidence is advisory and not
// used for gating.
type Result struct {
	Status     Status  `json:"status"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
}
