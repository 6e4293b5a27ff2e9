package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/amirbrooks/questlog/internal/task"
)

func newDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRemoteCRUD(t *testing.T) {
	db := newDB(t)
	r := NewRemote(db, "usr_A")
	ctx := context.Background()

	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	tk := task.New("remote task", "work", "high")
	tk.StartDate = &start
	tk.StartTime = "08:30"

	if err := r.Create(ctx, tk); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 task, got %d", len(got))
	}
	if got[0].ID != tk.ID || got[0].Text != tk.Text || got[0].StartTime != "08:30" {
		t.Fatalf("loaded %#v, want %#v", got[0], tk)
	}
	if got[0].StartDate == nil || !got[0].StartDate.Equal(start) {
		t.Fatalf("start date not round-tripped: %#v", got[0])
	}
	if got[0].EndDate != nil || got[0].CompletedAt != nil || got[0].EndTime != "" {
		t.Fatalf("unset optionals came back set: %#v", got[0])
	}

	tk.Complete(time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC))
	tk.Text = "remote task edited"
	if err := r.Update(ctx, tk); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = r.Load(ctx)
	if !got[0].Completed || got[0].CompletedAt == nil || got[0].Text != "remote task edited" {
		t.Fatalf("update not persisted: %#v", got[0])
	}

	if err := r.Delete(ctx, tk.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ = r.Load(ctx)
	if len(got) != 0 {
		t.Fatalf("delete left %#v", got)
	}
}

func TestRemoteOrdersNewestFirst(t *testing.T) {
	db := newDB(t)
	r := NewRemote(db, "usr_A")
	ctx := context.Background()

	older := task.New("older", "work", "low")
	older.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := task.New("newer", "work", "low")
	newer.CreatedAt = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	if err := r.Create(ctx, older); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Create(ctx, newer); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got[0].Text != "newer" || got[1].Text != "older" {
		t.Fatalf("wrong order: %q then %q", got[0].Text, got[1].Text)
	}
}

func TestRemoteScopesByUser(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	a := NewRemote(db, "usr_A")
	b := NewRemote(db, "usr_B")

	ta := task.New("belongs to A", "work", "high")
	if err := a.Create(ctx, ta); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("user B sees A's tasks: %#v", got)
	}

	// Cross-user mutation must not touch the row.
	ta.Text = "hijacked"
	if err := b.Update(ctx, ta); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-user update: %v", err)
	}
	if err := b.Delete(ctx, ta.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-user delete: %v", err)
	}
	got, _ = a.Load(ctx)
	if len(got) != 1 || got[0].Text != "belongs to A" {
		t.Fatalf("A's task was mutated: %#v", got)
	}
}

func TestRemoteBulkInsertSkipsExisting(t *testing.T) {
	db := newDB(t)
	r := NewRemote(db, "usr_A")
	ctx := context.Background()

	one := task.New("one", "work", "low")
	two := task.New("two", "work", "low")
	if err := r.Create(ctx, one); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Retried migration: one already made it in on the first attempt.
	if err := r.BulkInsert(ctx, []task.Task{one, two}); err != nil {
		t.Fatalf("bulk insert: %v", err)
	}
	got, _ := r.Load(ctx)
	if len(got) != 2 {
		t.Fatalf("expected 2 rows after retried bulk insert, got %d", len(got))
	}
}

func TestRemoteBulkInsertPerUser(t *testing.T) {
	// The same device tasks migrate under two accounts; each account
	// keeps its own copy of the shared ids.
	db := newDB(t)
	ctx := context.Background()
	a := NewRemote(db, "usr_A")
	b := NewRemote(db, "usr_B")

	shared := []task.Task{task.New("one", "work", "low"), task.New("two", "work", "low")}
	if err := a.BulkInsert(ctx, shared); err != nil {
		t.Fatalf("bulk insert A: %v", err)
	}
	if err := b.BulkInsert(ctx, shared); err != nil {
		t.Fatalf("bulk insert B: %v", err)
	}
	for _, r := range []*Remote{a, b} {
		got, err := r.Load(ctx)
		if err != nil {
			t.Fatalf("load %s: %v", r.UserID, err)
		}
		if len(got) != 2 {
			t.Fatalf("%s owns %d rows, want 2", r.UserID, len(got))
		}
	}
}

func TestRemoteRepairsMissingCompletedAt(t *testing.T) {
	db := newDB(t)
	r := NewRemote(db, "usr_A")
	ctx := context.Background()

	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err := db.sql.ExecContext(ctx, `
		INSERT INTO tasks (id, user_id, text, completed, category, priority, created_at)
		VALUES (?, ?, ?, 1, ?, ?, ?)`,
		"tsk_STALE", "usr_A", "done without timestamp", "work", "high",
		created.Format(time.RFC3339Nano))
	if err != nil {
		t.Fatalf("seed row: %v", err)
	}

	got, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got[0].Completed {
		t.Fatalf("completed flag lost: %#v", got[0])
	}
	if got[0].CompletedAt == nil || !got[0].CompletedAt.Equal(created) {
		t.Fatalf("expected CompletedAt stamped from created_at, got %v", got[0].CompletedAt)
	}
}

func TestAuthSignUpAndIn(t *testing.T) {
	db := newDB(t)
	auth := NewAuth(db)
	ctx := context.Background()

	u, err := auth.SignUp(ctx, "Person@Example.com", "hunter22", "person")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if u.Email != "person@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}

	got, err := auth.SignIn(ctx, "person@example.com", "hunter22")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("sign in returned %q, want %q", got.ID, u.ID)
	}

	if _, err := auth.SignIn(ctx, "person@example.com", "wrong"); err == nil {
		t.Fatal("sign in with wrong password succeeded")
	} else {
		var ae *AuthError
		if !errors.As(err, &ae) || ae.Message != "Incorrect email or password." {
			t.Fatalf("expected friendly auth error, got %v", err)
		}
	}

	if _, err := auth.SignUp(ctx, "person@example.com", "x", ""); err == nil {
		t.Fatal("duplicate sign up succeeded")
	} else {
		var ae *AuthError
		if !errors.As(err, &ae) || ae.Message != "An account with this email already exists." {
			t.Fatalf("expected friendly duplicate error, got %v", err)
		}
	}

	if _, err := auth.SignIn(ctx, "", ""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("empty credentials: %v", err)
	}
}
