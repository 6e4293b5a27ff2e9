// Package task defines the task model shared by the local and remote
// stores, the filter used for list views, and the JSON encoding that
// both the device files and the CLI output use.
package task

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type randReader struct{}

func (randReader) Read(p []byte) (int, error) { return rand.Read(p) }

var timeNow = func() time.Time { return time.Now().UTC() }

// Priority levels. The zero value is invalid; NormalizePriority maps
// anything unknown to medium.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Status filter values for Filter.
const (
	StatusAll      = "all"
	StatusOngoing  = "ongoing"
	StatusFinished = "finished"
)

// FilterAll matches every category or priority.
const FilterAll = "all"

// Task is a single to-do item. Optional fields are nil pointers so the
// stores can distinguish unset from zero when mapping nullable columns.
type Task struct {
	ID           string     `json:"id"`
	Text         string     `json:"text"`
	Completed    bool       `json:"completed"`
	Category     string     `json:"category"`
	Priority     string     `json:"priority"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	StartDate    *time.Time `json:"startDate,omitempty"`
	EndDate      *time.Time `json:"endDate,omitempty"`
	StartTime    string     `json:"startTime,omitempty"`
	EndTime      string     `json:"endTime,omitempty"`
	ReminderTime *time.Time `json:"reminderTime,omitempty"`
}

// New mints a task with a fresh id and creation timestamp. Text is
// trimmed; category and priority are normalized.
func New(text, category, priority string) Task {
	return Task{
		ID:        "tsk_" + NewID(),
		Text:      strings.TrimSpace(text),
		Category:  NormalizeCategory(category),
		Priority:  NormalizePriority(priority),
		CreatedAt: timeNow(),
	}
}

// NewID returns an uppercase ULID, monotonic within the process.
func NewID() string {
	t := ulid.Timestamp(timeNow())
	entropy := ulid.Monotonic(randReader{}, 0)
	id, err := ulid.New(t, entropy)
	if err != nil {
		// fallback
		return fmt.Sprintf("%d", timeNow().UnixNano())
	}
	return strings.ToUpper(id.String())
}

// Complete marks t done at now. No-op when already completed.
func (t *Task) Complete(now time.Time) bool {
	if t.Completed {
		return false
	}
	t.Completed = true
	at := now
	t.CompletedAt = &at
	return true
}

// Uncomplete clears the completed state. No-op when not completed.
func (t *Task) Uncomplete() bool {
	if !t.Completed {
		return false
	}
	t.Completed = false
	t.CompletedAt = nil
	return true
}

func NormalizePriority(p string) string {
	switch strings.TrimSpace(strings.ToLower(p)) {
	case "high", "h":
		return PriorityHigh
	case "low", "l":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// ValidPriority reports whether p is exactly one of the three levels.
func ValidPriority(p string) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

func NormalizeCategory(c string) string {
	c = strings.TrimSpace(strings.ToLower(c))
	if c == "" {
		return "personal"
	}
	return c
}

// DefaultCategories seeds a new device's category set.
func DefaultCategories() []string {
	return []string{"work", "personal", "shopping", "other"}
}

// Filter returns the tasks matching all three predicates, preserving
// input order. Each predicate accepts "all" to match everything.
func Filter(tasks []Task, status, category, priority string) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		switch status {
		case StatusOngoing:
			if t.Completed {
				continue
			}
		case StatusFinished:
			if !t.Completed {
				continue
			}
		}
		if category != FilterAll && category != "" && t.Category != category {
			continue
		}
		if priority != FilterAll && priority != "" && t.Priority != priority {
			continue
		}
		out = append(out, t)
	}
	return out
}

// EncodeList serializes the full task list the way the device store and
// migration exchange it.
func EncodeList(tasks []Task) ([]byte, error) {
	return json.MarshalIndent(tasks, "", "  ")
}

// DecodeList reconstructs a task list, tolerating absent optional
// fields. Timestamps come back from their RFC 3339 encodings via the
// standard time.Time JSON rules.
func DecodeList(b []byte) ([]Task, error) {
	var tasks []Task
	if err := json.Unmarshal(b, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	for i := range tasks {
		if tasks[i].Priority == "" {
			tasks[i].Priority = PriorityMedium
		}
		if !tasks[i].Completed {
			tasks[i].CompletedAt = nil
		} else if tasks[i].CompletedAt == nil {
			ts := tasks[i].CreatedAt
			tasks[i].CompletedAt = &ts
		}
	}
	return tasks, nil
}
