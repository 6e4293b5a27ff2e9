package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/amirbrooks/questlog/internal/stats"
	"github.com/amirbrooks/questlog/internal/task"
)

// Device file names under the local root. Each holds one serialized
// structured value, mirroring a browser local-storage key.
const (
	fileTasks      = "tasks.json"
	fileStats      = "stats.json"
	fileCategories = "categories.json"
	fileGuest      = "guest-mode"
	fileSession    = "session.json"
	migratedPrefix = "migrated-"
)

// Local is the on-device store used in guest and anonymous modes. Every
// mutation serializes the full task list synchronously; writes are
// atomic renames so a crash never leaves a torn file.
type Local struct {
	Root string
}

func OpenLocal(root string) (*Local, error) {
	root = expandHome(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Local{Root: root}, nil
}

func (l *Local) path(name string) string { return filepath.Join(l.Root, name) }

func (l *Local) Load(ctx context.Context) ([]task.Task, error) {
	b, err := os.ReadFile(l.path(fileTasks))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []task.Task{}, nil
		}
		return nil, err
	}
	return task.DecodeList(b)
}

func (l *Local) saveAll(tasks []task.Task) error {
	b, err := task.EncodeList(tasks)
	if err != nil {
		return err
	}
	return atomicWriteFile(l.path(fileTasks), b, 0o644)
}

func (l *Local) Create(ctx context.Context, t task.Task) error {
	tasks, err := l.Load(ctx)
	if err != nil {
		return err
	}
	// Newest first, like the remote listing order.
	tasks = append([]task.Task{t}, tasks...)
	return l.saveAll(tasks)
}

func (l *Local) Update(ctx context.Context, t task.Task) error {
	tasks, err := l.Load(ctx)
	if err != nil {
		return err
	}
	for i := range tasks {
		if tasks[i].ID == t.ID {
			tasks[i] = t
			return l.saveAll(tasks)
		}
	}
	return fmt.Errorf("update %s: %w", t.ID, ErrNotFound)
}

func (l *Local) Delete(ctx context.Context, taskID string) error {
	tasks, err := l.Load(ctx)
	if err != nil {
		return err
	}
	out := tasks[:0]
	found := false
	for _, t := range tasks {
		if t.ID == taskID {
			found = true
			continue
		}
		out = append(out, t)
	}
	if !found {
		return fmt.Errorf("delete %s: %w", taskID, ErrNotFound)
	}
	return l.saveAll(out)
}

func (l *Local) BulkInsert(ctx context.Context, tasks []task.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	existing, err := l.Load(ctx)
	if err != nil {
		return err
	}
	return l.saveAll(append(tasks, existing...))
}

// ReplaceAll overwrites the device task list, used when guest state is
// rebuilt wholesale.
func (l *Local) ReplaceAll(tasks []task.Task) error {
	return l.saveAll(tasks)
}

// LoadStats reads the persisted gamification state, zero-valued when
// the device has none yet.
func (l *Local) LoadStats() (stats.Stats, error) {
	b, err := os.ReadFile(l.path(fileStats))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stats.New(), nil
		}
		return stats.Stats{}, err
	}
	var s stats.Stats
	if err := json.Unmarshal(b, &s); err != nil {
		return stats.Stats{}, fmt.Errorf("decode stats: %w", err)
	}
	if s.Level == 0 {
		s.Level = 1
	}
	return s, nil
}

func (l *Local) SaveStats(s stats.Stats) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(l.path(fileStats), b, 0o644)
}

func (l *Local) LoadCategories() ([]string, error) {
	b, err := os.ReadFile(l.path(fileCategories))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return task.DefaultCategories(), nil
		}
		return nil, err
	}
	var cats []string
	if err := json.Unmarshal(b, &cats); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	if len(cats) == 0 {
		cats = task.DefaultCategories()
	}
	return cats, nil
}

func (l *Local) SaveCategories(cats []string) error {
	b, err := json.MarshalIndent(cats, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(l.path(fileCategories), b, 0o644)
}

// GuestMode reports the device guest flag.
func (l *Local) GuestMode() bool {
	_, err := os.Stat(l.path(fileGuest))
	return err == nil
}

func (l *Local) SetGuestMode(on bool) error {
	p := l.path(fileGuest)
	if !on {
		err := os.Remove(p)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return atomicWriteFile(p, []byte("true\n"), 0o644)
}

// LoadSessionUser returns the persisted signed-in user, or nil when the
// device has no session.
func (l *Local) LoadSessionUser() (*User, error) {
	b, err := os.ReadFile(l.path(fileSession))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var u User
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if u.ID == "" {
		return nil, nil
	}
	return &u, nil
}

func (l *Local) SaveSessionUser(u *User) error {
	b, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(l.path(fileSession), b, 0o600)
}

func (l *Local) ClearSessionUser() error {
	err := os.Remove(l.path(fileSession))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Migrated reports whether the one-time task migration already ran for
// userID on this device.
func (l *Local) Migrated(userID string) bool {
	_, err := os.Stat(l.path(migratedPrefix + sanitizeKey(userID)))
	return err == nil
}

func (l *Local) SetMigrated(userID string) error {
	return atomicWriteFile(l.path(migratedPrefix+sanitizeKey(userID)), []byte("true\n"), 0o644)
}

func sanitizeKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~"+string(os.PathSeparator)) || path == "~" {
		home, _ := os.UserHomeDir()
		if home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func atomicWriteFile(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".tmp-%d", timeNow().UnixNano()))
	if err := os.WriteFile(tmp, data, perm); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	// Rename is atomic on same filesystem.
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
