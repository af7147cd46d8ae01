package vision

import "testing"

func TestStatusValid(t *testing.T) {
	valid := []Status{StatusFocused, StatusDistracted, StatusAbsent, StatusBadPosture}
	for _, st := range valid {
		if !st.Valid() {
			t.Errorf("%s.Valid() = false", st)
		}
	}
	invalid := []Status{StatusIdle, StatusError, Status("SLEEPING"), Status("")}
	for _, st := range invalid {
		if st.Valid() {
			t.Errorf("%q.Valid() = true", st)
		}
	}
}

func TestStatusBad(t *testing.T) {
	bad := []Status{StatusDistracted, StatusAbsent, StatusBadPosture}
	for _, st := range bad {
		if !st.Bad() {
			t.Errorf("%s.Bad() = false", st)
		}
	}
	good := []Status{StatusFocused, StatusIdle, StatusError}
	for _, st := range good {
		if st.Bad() {
			t.Errorf("%s.Bad() = true", st)
		}
	}
}
