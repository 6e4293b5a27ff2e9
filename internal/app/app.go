// Package app is the event-driven application core: it owns the
// in-memory task list, gamification stats and category set, applies UI
// events to them, and keeps the identity-selected store in sync.
package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/amirbrooks/questlog/internal/session"
	"github.com/amirbrooks/questlog/internal/stats"
	"github.com/amirbrooks/questlog/internal/store"
	"github.com/amirbrooks/questlog/internal/task"
)

var timeNow = func() time.Time { return time.Now() }

// NotifyFunc receives user-facing notifications (level-ups).
type NotifyFunc func(title, detail string)

// SyncErrorFunc receives failures from background store writes. The
// in-memory state has already been updated and is not rolled back.
type SyncErrorFunc func(op string, err error)

// App coordinates tasks, stats and categories for one client instance.
// All mutation happens on the caller's goroutine; there is no internal
// locking.
type App struct {
	Session *session.Controller

	tasks      []task.Task
	stats      stats.Stats
	categories []string

	// Notify fires on level-up. SyncError fires when a store write
	// fails after the optimistic in-memory update.
	Notify    NotifyFunc
	SyncError SyncErrorFunc
}

// New loads tasks from the identity-selected store and stats and
// categories from the device store.
func New(ctx context.Context, ses *session.Controller) (*App, error) {
	a := &App{
		Session:   ses,
		Notify:    func(string, string) {},
		SyncError: func(op string, err error) { log.Printf("sync: %s: %v", op, err) },
	}
	if err := a.Reload(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Reload re-fetches tasks from the current store, replacing any
// optimistic local state, and re-reads stats and categories.
func (a *App) Reload(ctx context.Context) error {
	tasks, err := a.Session.Store().Load(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	a.tasks = tasks

	local := a.Session.Local()
	if a.stats, err = local.LoadStats(); err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	if a.categories, err = local.LoadCategories(); err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	return nil
}

func (a *App) Tasks() []task.Task   { return a.tasks }
func (a *App) Stats() stats.Stats   { return a.stats }
func (a *App) Categories() []string { return a.categories }

// Filtered applies the conjunctive status/category/priority filter.
func (a *App) Filtered(status, category, priority string) []task.Task {
	return task.Filter(a.tasks, status, category, priority)
}

// Counts returns the all/ongoing/finished totals shown in the filter bar.
func (a *App) Counts() (all, ongoing, finished int) {
	all = len(a.tasks)
	for _, t := range a.tasks {
		if t.Completed {
			finished++
		} else {
			ongoing++
		}
	}
	return all, ongoing, finished
}

// sync runs a store write after the in-memory update. Failures are
// reported, never fatal: the optimistic state is authoritative for the
// session and a later Reload re-fetches the remote truth.
func (a *App) sync(op string, err error) {
	if err != nil {
		a.SyncError(op, err)
	}
}

// AddTask creates a task at the head of the list.
func (a *App) AddTask(ctx context.Context, t task.Task) (task.Task, error) {
	if strings.TrimSpace(t.Text) == "" {
		return task.Task{}, fmt.Errorf("%w: task text is required", store.ErrInvalid)
	}
	a.tasks = append([]task.Task{t}, a.tasks...)
	a.sync("create", a.Session.Store().Create(ctx, t))
	return t, nil
}

// EditTask replaces the task with updated's id.
func (a *App) EditTask(ctx context.Context, updated task.Task) error {
	for i := range a.tasks {
		if a.tasks[i].ID == updated.ID {
			a.tasks[i] = updated
			a.sync("update", a.Session.Store().Update(ctx, updated))
			return nil
		}
	}
	return fmt.Errorf("edit %s: %w", updated.ID, store.ErrNotFound)
}

// CompleteTask marks the task done, credits XP and updates the streak.
// Completing an already-completed task is a no-op.
func (a *App) CompleteTask(ctx context.Context, taskID string) error {
	i := a.index(taskID)
	if i < 0 {
		return fmt.Errorf("complete %s: %w", taskID, store.ErrNotFound)
	}
	now := timeNow()
	if !a.tasks[i].Complete(now) {
		return nil
	}
	a.sync("update", a.Session.Store().Update(ctx, a.tasks[i]))

	s, leveledUp := stats.ApplyCompletion(a.stats, a.tasks[i].Priority, now)
	a.stats = s
	a.sync("stats", a.Session.Local().SaveStats(a.stats))
	if leveledUp {
		a.Notify("Level up!", fmt.Sprintf("You reached level %d", a.stats.Level))
	}
	return nil
}

// UncompleteTask clears the completed state and removes the XP it
// earned. Streak and last-task date keep their values.
func (a *App) UncompleteTask(ctx context.Context, taskID string) error {
	i := a.index(taskID)
	if i < 0 {
		return fmt.Errorf("uncomplete %s: %w", taskID, store.ErrNotFound)
	}
	if !a.tasks[i].Uncomplete() {
		return nil
	}
	a.sync("update", a.Session.Store().Update(ctx, a.tasks[i]))

	a.stats = stats.RevertCompletion(a.stats, a.tasks[i].Priority)
	a.sync("stats", a.Session.Local().SaveStats(a.stats))
	return nil
}

// DeleteTask removes a task. A completed task gives back its XP.
func (a *App) DeleteTask(ctx context.Context, taskID string) error {
	i := a.index(taskID)
	if i < 0 {
		return fmt.Errorf("delete %s: %w", taskID, store.ErrNotFound)
	}
	deleted := a.tasks[i]
	a.tasks = append(a.tasks[:i], a.tasks[i+1:]...)
	a.sync("delete", a.Session.Store().Delete(ctx, taskID))

	if deleted.Completed {
		a.stats = stats.RevertCompletion(a.stats, deleted.Priority)
		a.sync("stats", a.Session.Local().SaveStats(a.stats))
	}
	return nil
}

// AddCategory appends a case-normalized category, rejecting duplicates.
func (a *App) AddCategory(name string) error {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return fmt.Errorf("%w: category name is required", store.ErrInvalid)
	}
	for _, c := range a.categories {
		if c == name {
			return fmt.Errorf("%w: category %q already exists", store.ErrInvalid, name)
		}
	}
	a.categories = append(a.categories, name)
	a.sync("categories", a.Session.Local().SaveCategories(a.categories))
	return nil
}

// DueReminders returns uncompleted tasks whose reminder time has passed.
func (a *App) DueReminders(now time.Time) []task.Task {
	var due []task.Task
	for _, t := range a.tasks {
		if t.ReminderTime != nil && !t.Completed && !t.ReminderTime.After(now) {
			due = append(due, t)
		}
	}
	return due
}

func (a *App) index(taskID string) int {
	for i := range a.tasks {
		if a.tasks[i].ID == taskID {
			return i
		}
	}
	return -1
}

// FindByPrefix resolves a task by id prefix, for CLI selectors.
func (a *App) FindByPrefix(prefix string) (task.Task, error) {
	prefix = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(prefix, "tsk_")))
	if prefix == "" {
		return task.Task{}, store.ErrInvalid
	}
	var hits []task.Task
	for _, t := range a.tasks {
		if strings.HasPrefix(strings.ToUpper(strings.TrimPrefix(t.ID, "tsk_")), prefix) {
			hits = append(hits, t)
		}
	}
	switch len(hits) {
	case 0:
		return task.Task{}, store.ErrNotFound
	case 1:
		return hits[0], nil
	default:
		return task.Task{}, fmt.Errorf("%w: %q matches %d tasks", store.ErrInvalid, prefix, len(hits))
	}
}
