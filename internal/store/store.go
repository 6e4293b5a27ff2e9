// Package store provides the two task persistence backends: a local
// device store (per-key JSON files under a root directory) and a remote
// row store (sqlite, one row per task scoped by user id). The session
// controller picks the backend; callers program against Store.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/amirbrooks/questlog/internal/task"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")

	timeNow = func() time.Time { return time.Now().UTC() }
)

// Store is the persistence contract shared by the local and remote
// backends. Load returns tasks newest-first. Create, Update and Delete
// address a single task; BulkInsert backs the sign-in migration.
type Store interface {
	Load(ctx context.Context) ([]task.Task, error)
	Create(ctx context.Context, t task.Task) error
	Update(ctx context.Context, t task.Task) error
	Delete(ctx context.Context, taskID string) error
	BulkInsert(ctx context.Context, tasks []task.Task) error
}
