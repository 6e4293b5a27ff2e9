package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirbrooks/questlog/internal/task"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	l, err := OpenLocal(t.TempDir())
	if err != nil {
		t.Fatalf("open local: %v", err)
	}
	return l
}

func TestLocalLoadEmpty(t *testing.T) {
	l := newLocal(t)
	tasks, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected empty list, got %d", len(tasks))
	}
}

func TestLocalCreateUpdateDelete(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()

	first := task.New("first", "work", "high")
	second := task.New("second", "personal", "low")
	remind := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	second.ReminderTime = &remind
	second.StartTime = "09:00"

	if err := l.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := l.Create(ctx, second); err != nil {
		t.Fatalf("create: %v", err)
	}

	tasks, err := l.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != second.ID {
		t.Fatalf("expected newest first, got %#v", tasks)
	}
	if tasks[0].ReminderTime == nil || !tasks[0].ReminderTime.Equal(remind) {
		t.Fatalf("reminder not round-tripped: %#v", tasks[0])
	}

	first.Text = "first edited"
	first.Complete(time.Now().UTC())
	if err := l.Update(ctx, first); err != nil {
		t.Fatalf("update: %v", err)
	}
	tasks, _ = l.Load(ctx)
	for _, tk := range tasks {
		if tk.ID == first.ID {
			if tk.Text != "first edited" || !tk.Completed || tk.CompletedAt == nil {
				t.Fatalf("update not persisted: %#v", tk)
			}
		}
	}

	if err := l.Delete(ctx, second.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	tasks, _ = l.Load(ctx)
	if len(tasks) != 1 || tasks[0].ID != first.ID {
		t.Fatalf("delete left %#v", tasks)
	}

	if err := l.Delete(ctx, "tsk_MISSING"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete missing: %v", err)
	}
	if err := l.Update(ctx, task.New("ghost", "work", "low")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing: %v", err)
	}
}

func TestLocalStatsRoundTrip(t *testing.T) {
	l := newLocal(t)
	s, err := l.LoadStats()
	if err != nil {
		t.Fatalf("load stats: %v", err)
	}
	if s.XP != 0 || s.Level != 1 || s.Streak != 0 || s.LastTaskDate != "" {
		t.Fatalf("fresh stats not zeroed: %+v", s)
	}
	s.XP = 130
	s.Level = 2
	s.Streak = 3
	s.LastTaskDate = "2025-03-04"
	if err := l.SaveStats(s); err != nil {
		t.Fatalf("save stats: %v", err)
	}
	got, err := l.LoadStats()
	if err != nil {
		t.Fatalf("reload stats: %v", err)
	}
	if got != s {
		t.Fatalf("stats round trip: got %+v want %+v", got, s)
	}
}

func TestLocalCategoriesDefaultAndSave(t *testing.T) {
	l := newLocal(t)
	cats, err := l.LoadCategories()
	if err != nil {
		t.Fatalf("load categories: %v", err)
	}
	want := []string{"work", "personal", "shopping", "other"}
	if len(cats) != len(want) {
		t.Fatalf("default categories %v, want %v", cats, want)
	}
	for i := range want {
		if cats[i] != want[i] {
			t.Fatalf("default categories %v, want %v", cats, want)
		}
	}
	cats = append(cats, "fitness")
	if err := l.SaveCategories(cats); err != nil {
		t.Fatalf("save categories: %v", err)
	}
	got, _ := l.LoadCategories()
	if len(got) != 5 || got[4] != "fitness" {
		t.Fatalf("categories after save: %v", got)
	}
}

func TestLocalFlags(t *testing.T) {
	l := newLocal(t)
	if l.GuestMode() {
		t.Fatal("guest mode set on fresh device")
	}
	if err := l.SetGuestMode(true); err != nil {
		t.Fatalf("set guest: %v", err)
	}
	if !l.GuestMode() {
		t.Fatal("guest mode not persisted")
	}
	if err := l.SetGuestMode(false); err != nil {
		t.Fatalf("clear guest: %v", err)
	}
	if l.GuestMode() {
		t.Fatal("guest mode not cleared")
	}

	if l.Migrated("usr_A") {
		t.Fatal("migrated flag set on fresh device")
	}
	if err := l.SetMigrated("usr_A"); err != nil {
		t.Fatalf("set migrated: %v", err)
	}
	if !l.Migrated("usr_A") {
		t.Fatal("migrated flag not persisted")
	}
	if l.Migrated("usr_B") {
		t.Fatal("migrated flag leaked across users")
	}
}

func TestLocalSessionUser(t *testing.T) {
	l := newLocal(t)
	u, err := l.LoadSessionUser()
	if err != nil || u != nil {
		t.Fatalf("fresh session: %v, %v", u, err)
	}
	want := &User{ID: "usr_1", Email: "a@b.c", CreatedAt: time.Now().UTC()}
	if err := l.SaveSessionUser(want); err != nil {
		t.Fatalf("save session: %v", err)
	}
	got, err := l.LoadSessionUser()
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if got == nil || got.ID != want.ID || got.Email != want.Email {
		t.Fatalf("session round trip: %#v", got)
	}
	if err := l.ClearSessionUser(); err != nil {
		t.Fatalf("clear session: %v", err)
	}
	if got, _ := l.LoadSessionUser(); got != nil {
		t.Fatalf("session not cleared: %#v", got)
	}
}
