package stats

import (
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/vision"
)

// UserStats is the session-lifetime aggregate. It is only mutated through
// Apply; the session driver holds the canonical copy.
type UserStats struct {
	TotalFocusTimeSeconds int      `json:"totalFocusTimeSeconds"`
	CurrentStreakSeconds  int      `json:"currentStreakSeconds"`
	LongestStreakSeconds  int      `json:"longestStreakSeconds"`
	DistractionCount      int      `json:"distractionCount"`
	PostureAlertCount     int      `json:"postureAlertCount"`
	Badges                []string `json:"badges"`
}

// HasBadge reports whether the badge id is already unlocked.
func (s UserStats) HasBadge(id string) bool {
	for _, b := range s.Badges {
		if b == id {
			return true
		}
	}
	return false
}

// Badge is a static catalog entry; Condition is a pure predicate over stats.
type Badge struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Icon        string               `json:"icon"`
	Condition   func(UserStats) bool `json:"-"`
}

// Catalog is the fixed badge set, evaluated in order. At most one badge
// unlocks per Apply call; later newly-eligible badges surface on later calls.
var Catalog = []Badge{
	{
		ID:          "beginner",
		Name:        "Focus Starter",
		Description: "Reach 1 minute of total focus time",
		Icon:        "🥉",
		Condition:   func(s UserStats) bool { return s.TotalFocusTimeSeconds >= 60 },
	},
	{
		ID:          "streak_master",
		Name:        "Streak Master",
		Description: "Stay focused for 5 minutes straight",
		Icon:        "🔥",
		Condition:   func(s UserStats) bool { return s.LongestStreakSeconds >= 300 },
	},
	{
		ID:          "scholar",
		Name:        "Little Scholar",
		Description: "Reach 20 minutes of total focus time",
		Icon:        "🎓",
		Condition:   func(s UserStats) bool { return s.TotalFocusTimeSeconds >= 1200 },
	},
	{
		ID:          "iron_will",
		Name:        "Iron Will",
		Description: "Bounce back even after many distractions (>5 distractions but 10m+ focused)",
		Icon:        "🛡️",
		Condition: func(s UserStats) bool {
			return s.DistractionCount > 5 && s.TotalFocusTimeSeconds >= 600
		},
	},
}

// Apply folds one confirmed status into the stats. creditSeconds is the
// clamped, floored elapsed time attributed to this cycle; it only counts for
// FOCUSED and BAD_POSTURE. Returns the updated stats and the first newly
// unlocked badge, if any.
func Apply(s UserStats, status vision.Status, creditSeconds int) (UserStats, *Badge) {
	switch status {
	case vision.StatusFocused:
		s.TotalFocusTimeSeconds += creditSeconds
		s.CurrentStreakSeconds += creditSeconds
		if s.CurrentStreakSeconds > s.LongestStreakSeconds {
			s.LongestStreakSeconds = s.CurrentStreakSeconds
		}
	case vision.StatusDistracted, vision.StatusAbsent:
		s.CurrentStreakSeconds = 0
		s.DistractionCount++
	case vision.StatusBadPosture:
		// Posture problems cost neither total time nor the streak; the child
		// is still at the desk.
		s.PostureAlertCount++
		s.TotalFocusTimeSeconds += creditSeconds
	default:
		return s, nil
	}

	for i := range Catalog {
		b := &Catalog[i]
		if s.HasBadge(b.ID) {
			continue
		}
		if b.Condition(s) {
			s.Badges = append(append([]string(nil), s.Badges...), b.ID)
			unlocked := *b
			return s, &unlocked
		}
	}
	return s, nil
}

// DailyScore derives a 0-100 focus score: base 50, +2 per focused minute,
// -2 per distraction.
func DailyScore(s UserStats) int {
	minutes := s.TotalFocusTimeSeconds / 60
	score := 50 + minutes*2 - s.DistractionCount*2
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// LeaderboardEntry is a display-only ranking row.
type LeaderboardEntry struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
	Avatar        string `json:"avatar"`
	IsCurrentUser bool   `json:"isCurrentUser"`
}

// Leaderboard returns the fixed peer rows plus the live user score, sorted
// by score descending. Purely a read model; there is no backend.
func Leaderboard(currentUserScore int) []LeaderboardEntry {
	rows := []LeaderboardEntry{
		{ID: "1", Name: "Ming next door", Score: 92, Avatar: "👦"},
		{ID: "2", Name: "Class monitor", Score: 88, Avatar: "👧"},
		{ID: "3", Name: "Me", Score: currentUserScore, Avatar: "😎", IsCurrentUser: true},
		{ID: "4", Name: "Troublemaker", Score: 45, Avatar: "🤪"},
	}
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j].Score > rows[j-1].Score; j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
	return rows
}
