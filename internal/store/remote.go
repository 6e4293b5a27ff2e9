package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amirbrooks/questlog/internal/task"
)

// Task ids repeat across users when two accounts migrate the same
// device, so rows are keyed by (id, user_id).
const tasksSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	text          TEXT NOT NULL,
	completed     INTEGER NOT NULL DEFAULT 0,
	category      TEXT NOT NULL,
	priority      TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	completed_at  TEXT,
	start_date    TEXT,
	end_date      TEXT,
	start_time    TEXT,
	end_time      TEXT,
	reminder_time TEXT,
	PRIMARY KEY (id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_tasks_user_created ON tasks(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	username      TEXT,
	password_hash TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
`

// DB wraps the shared sqlite handle behind the remote task store and
// the auth backend.
type DB struct {
	sql *sql.DB
}

// OpenDB opens (creating if needed) the sqlite database at path and
// ensures the schema exists.
func OpenDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(tasksSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error { return d.sql.Close() }

// Remote is the row store for one authenticated user. Every statement
// is scoped by user_id as well as task id so one user can never touch
// another's rows.
type Remote struct {
	db     *DB
	UserID string
}

func NewRemote(db *DB, userID string) *Remote {
	return &Remote{db: db, UserID: userID}
}

const taskColumns = "id, text, completed, category, priority, created_at, completed_at, start_date, end_date, start_time, end_time, reminder_time"

func (r *Remote) Load(ctx context.Context) ([]task.Task, error) {
	rows, err := r.db.sql.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE user_id = ? ORDER BY created_at DESC", r.UserID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if out == nil {
		out = []task.Task{}
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (task.Task, error) {
	var t task.Task
	var completed int
	var createdAt string
	var completedAt, startDate, endDate sql.NullString
	var startTime, endTime, reminderTime sql.NullString
	err := row.Scan(&t.ID, &t.Text, &completed, &t.Category, &t.Priority, &createdAt,
		&completedAt, &startDate, &endDate, &startTime, &endTime, &reminderTime)
	if err != nil {
		return task.Task{}, fmt.Errorf("scan task: %w", err)
	}
	t.Completed = completed != 0
	t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return task.Task{}, fmt.Errorf("parse created_at: %w", err)
	}
	t.CompletedAt = parseNullTime(completedAt)
	t.StartDate = parseNullTime(startDate)
	t.EndDate = parseNullTime(endDate)
	t.ReminderTime = parseNullTime(reminderTime)
	if startTime.Valid {
		t.StartTime = startTime.String
	}
	if endTime.Valid {
		t.EndTime = endTime.String
	}
	// A null completed_at with completed set (or vice versa) cannot be
	// represented in the model; the flag wins.
	if !t.Completed {
		t.CompletedAt = nil
	} else if t.CompletedAt == nil {
		ts := t.CreatedAt
		t.CompletedAt = &ts
	}
	return t, nil
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	return &ts
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *Remote) Create(ctx context.Context, t task.Task) error {
	_, err := r.db.sql.ExecContext(ctx, `
		INSERT INTO tasks (id, user_id, text, completed, category, priority, created_at,
			completed_at, start_date, end_date, start_time, end_time, reminder_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, r.UserID, t.Text, boolInt(t.Completed), t.Category, t.Priority,
		t.CreatedAt.Format(time.RFC3339Nano),
		formatNullTime(t.CompletedAt), formatNullTime(t.StartDate), formatNullTime(t.EndDate),
		nullString(t.StartTime), nullString(t.EndTime), formatNullTime(t.ReminderTime))
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

func (r *Remote) Update(ctx context.Context, t task.Task) error {
	res, err := r.db.sql.ExecContext(ctx, `
		UPDATE tasks SET text = ?, completed = ?, category = ?, priority = ?, created_at = ?,
			completed_at = ?, start_date = ?, end_date = ?, start_time = ?, end_time = ?, reminder_time = ?
		WHERE id = ? AND user_id = ?`,
		t.Text, boolInt(t.Completed), t.Category, t.Priority,
		t.CreatedAt.Format(time.RFC3339Nano),
		formatNullTime(t.CompletedAt), formatNullTime(t.StartDate), formatNullTime(t.EndDate),
		nullString(t.StartTime), nullString(t.EndTime), formatNullTime(t.ReminderTime),
		t.ID, r.UserID)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("update %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

func (r *Remote) Delete(ctx context.Context, taskID string) error {
	res, err := r.db.sql.ExecContext(ctx,
		"DELETE FROM tasks WHERE id = ? AND user_id = ?", taskID, r.UserID)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("delete %s: %w", taskID, ErrNotFound)
	}
	return nil
}

// BulkInsert inserts tasks in one transaction. Rows whose id already
// exists are skipped, which makes a retried migration safe after a
// partial failure.
func (r *Remote) BulkInsert(ctx context.Context, tasks []task.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := r.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO tasks (id, user_id, text, completed, category, priority, created_at,
			completed_at, start_date, end_date, start_time, end_time, reminder_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range tasks {
		_, err := stmt.ExecContext(ctx,
			t.ID, r.UserID, t.Text, boolInt(t.Completed), t.Category, t.Priority,
			t.CreatedAt.Format(time.RFC3339Nano),
			formatNullTime(t.CompletedAt), formatNullTime(t.StartDate), formatNullTime(t.EndDate),
			nullString(t.StartTime), nullString(t.EndTime), formatNullTime(t.ReminderTime))
		if err != nil {
			return fmt.Errorf("bulk insert task %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
