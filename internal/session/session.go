// Package session tracks who the app is acting as (an authenticated
// user, a guest, or nobody) and performs the one-time migration of
// device tasks into the remote store on first sign-in.
package session

import (
	"context"
	"fmt"
	"log"

	"github.com/amirbrooks/questlog/internal/store"
)

// Mode is the current identity state. Exactly one holds at a time.
type Mode int

const (
	Anonymous Mode = iota
	Guest
	Authenticated
)

func (m Mode) String() string {
	switch m {
	case Guest:
		return "guest"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Authenticator is the credential backend. *store.Auth implements it;
// tests substitute fakes.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*store.User, error)
	SignUp(ctx context.Context, email, password, username string) (*store.User, error)
}

// RemoteOpener builds the user-scoped remote store after sign-in.
type RemoteOpener func(userID string) store.Store

// Controller owns identity state and the local/remote store selection.
type Controller struct {
	local      *store.Local
	auth       Authenticator
	openRemote RemoteOpener

	user  *store.User
	guest bool

	// Logf receives migration and sync diagnostics. Defaults to log.Printf.
	Logf func(format string, args ...any)
}

func NewController(local *store.Local, auth Authenticator, openRemote RemoteOpener) *Controller {
	c := &Controller{
		local:      local,
		auth:       auth,
		openRemote: openRemote,
		Logf:       log.Printf,
	}
	// Restore the persisted session; the guest flag only applies when
	// nobody is signed in.
	u, err := local.LoadSessionUser()
	if err != nil {
		c.Logf("session: restore: %v", err)
	}
	if u != nil {
		c.user = u
	} else {
		c.guest = local.GuestMode()
	}
	return c
}

func (c *Controller) Mode() Mode {
	switch {
	case c.user != nil:
		return Authenticated
	case c.guest:
		return Guest
	default:
		return Anonymous
	}
}

// User returns the authenticated account, or nil.
func (c *Controller) User() *store.User { return c.user }

// Store returns the persistence backend for the current identity: the
// remote store when authenticated, the device store otherwise.
func (c *Controller) Store() store.Store {
	if c.user != nil {
		return c.openRemote(c.user.ID)
	}
	return c.local
}

// Local exposes the device store, which holds stats, categories and
// flags in every mode.
func (c *Controller) Local() *store.Local { return c.local }

// SignIn authenticates and, on the first sign-in for this user on this
// device, migrates locally stored tasks into the remote store.
func (c *Controller) SignIn(ctx context.Context, email, password string) (*store.User, error) {
	u, err := c.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.becomeAuthenticated(ctx, u)
	return u, nil
}

// SignUp creates an account and signs it in, running the same migration
// path as SignIn.
func (c *Controller) SignUp(ctx context.Context, email, password, username string) (*store.User, error) {
	u, err := c.auth.SignUp(ctx, email, password, username)
	if err != nil {
		return nil, err
	}
	c.becomeAuthenticated(ctx, u)
	return u, nil
}

func (c *Controller) becomeAuthenticated(ctx context.Context, u *store.User) {
	c.user = u
	c.guest = false
	if err := c.local.SetGuestMode(false); err != nil {
		c.Logf("session: clear guest flag: %v", err)
	}
	if err := c.local.SaveSessionUser(u); err != nil {
		c.Logf("session: persist session: %v", err)
	}
	if err := c.migrate(ctx, u.ID); err != nil {
		// Flag stays unset so the next sign-in retries.
		c.Logf("session: task migration failed: %v", err)
	}
}

// migrate bulk-inserts the device task list for userID, at most once
// per user per device. The migrated flag is only set after the insert
// fully succeeds.
func (c *Controller) migrate(ctx context.Context, userID string) error {
	if c.local.Migrated(userID) {
		return nil
	}
	tasks, err := c.local.Load(ctx)
	if err != nil {
		return fmt.Errorf("read local tasks: %w", err)
	}
	if len(tasks) > 0 {
		if err := c.openRemote(userID).BulkInsert(ctx, tasks); err != nil {
			return fmt.Errorf("bulk insert: %w", err)
		}
	}
	return c.local.SetMigrated(userID)
}

// SignOut clears the session and the guest flag, returning to anonymous.
func (c *Controller) SignOut() error {
	c.user = nil
	c.guest = false
	if err := c.local.ClearSessionUser(); err != nil {
		return err
	}
	return c.local.SetGuestMode(false)
}

// EnableGuestMode switches to local-only usage. Not valid while signed in.
func (c *Controller) EnableGuestMode() error {
	if c.user != nil {
		return fmt.Errorf("%w: sign out before enabling guest mode", store.ErrInvalid)
	}
	c.guest = true
	return c.local.SetGuestMode(true)
}

func (c *Controller) DisableGuestMode() error {
	c.guest = false
	return c.local.SetGuestMode(false)
}
