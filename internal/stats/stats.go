// Package stats implements the gamification engine: experience points,
// the level derived from them, and calendar-day completion streaks.
// All transitions are pure functions over a Stats value; persistence
// and notifications belong to the caller.
package stats

import (
	"time"

	"github.com/amirbrooks/questlog/internal/task"
)

// Stats is the per-user gamification state. Level is derived from XP
// and recomputed on every mutation; LastTaskDate is the calendar date
// (DateOnly) of the last counted completion, or empty.
type Stats struct {
	XP           int    `json:"xp"`
	Level        int    `json:"level"`
	Streak       int    `json:"streak"`
	LastTaskDate string `json:"lastTaskDate"`
}

// New returns zeroed stats at level 1.
func New() Stats {
	return Stats{Level: 1}
}

// XPForPriority is the fixed reward table.
func XPForPriority(priority string) int {
	switch priority {
	case task.PriorityHigh:
		return 30
	case task.PriorityLow:
		return 10
	default:
		return 20
	}
}

func levelFor(xp int) int {
	return xp/100 + 1
}

// ApplyCompletion credits a completion at now. It returns the updated
// stats and whether the level increased, so the caller can fire a
// level-up notification.
func ApplyCompletion(s Stats, priority string, now time.Time) (Stats, bool) {
	before := levelFor(s.XP)
	s.XP += XPForPriority(priority)
	s.Level = levelFor(s.XP)

	today := now.Format(time.DateOnly)
	yesterday := now.AddDate(0, 0, -1).Format(time.DateOnly)
	switch {
	case s.LastTaskDate == today:
		// Already counted today.
	case s.LastTaskDate == yesterday || s.Streak == 0:
		s.Streak++
	default:
		s.Streak = 1
	}
	s.LastTaskDate = today

	return s, s.Level > before
}

// RevertCompletion removes the XP credited for a completion of the
// given priority and recomputes the level. Streak and LastTaskDate are
// deliberately left alone: unchecking a task does not rewrite history.
func RevertCompletion(s Stats, priority string) Stats {
	s.XP -= XPForPriority(priority)
	if s.XP < 0 {
		s.XP = 0
	}
	s.Level = levelFor(s.XP)
	return s
}

// NextLevelProgress returns the XP accumulated toward the next level
// and the amount required, for display.
func (s Stats) NextLevelProgress() (have, need int) {
	return s.XP % 100, 100
}
