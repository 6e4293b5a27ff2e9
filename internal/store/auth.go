package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/amirbrooks/questlog/internal/task"
)

// AuthError is a credential or session failure whose Message is safe to
// show inline to the user.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// Known backend messages remapped to friendlier text before they reach
// the user.
var friendlyAuthMessages = map[string]string{
	"invalid login credentials": "Incorrect email or password.",
	"user already registered":   "An account with this email already exists.",
	"email not confirmed":       "Please confirm your email address first.",
}

func authError(msg string) *AuthError {
	if friendly, ok := friendlyAuthMessages[strings.ToLower(strings.TrimSpace(msg))]; ok {
		return &AuthError{Message: friendly}
	}
	return &AuthError{Message: msg}
}

// User is an authenticated account in the remote backend.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Auth manages accounts in the users table of the shared database.
type Auth struct {
	db *DB
}

func NewAuth(db *DB) *Auth { return &Auth{db: db} }

// SignUp creates an account. Email is case-normalized; the password is
// stored as a bcrypt hash.
func (a *Auth) SignUp(ctx context.Context, email, password, username string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalid)
	}
	var exists int
	err := a.db.sql.QueryRowContext(ctx, "SELECT COUNT(1) FROM users WHERE email = ?", email).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, authError("user already registered")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:        "usr_" + task.NewID(),
		Email:     email,
		Username:  strings.TrimSpace(username),
		CreatedAt: timeNow(),
	}
	_, err = a.db.sql.ExecContext(ctx,
		"INSERT INTO users (id, email, username, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		u.ID, u.Email, nullString(u.Username), string(hash), u.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// SignIn verifies credentials and returns the account.
func (a *Auth) SignIn(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalid)
	}
	var u User
	var username sql.NullString
	var hash, createdAt string
	err := a.db.sql.QueryRowContext(ctx,
		"SELECT id, email, username, password_hash, created_at FROM users WHERE email = ?", email).
		Scan(&u.ID, &u.Email, &username, &hash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authError("invalid login credentials")
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, authError("invalid login credentials")
	}
	u.Username = username.String
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &u, nil
}
