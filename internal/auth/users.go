package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/promise4all/visit-management/internal/apperr"
)

// User is a person who can be assigned visits.
type User struct {
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// UserStore manages users in SQLite.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a user store.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Add creates or re-enables a user.
func (s *UserStore) Add(ctx context.Context, email, fullName string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperr.FieldValidation([]string{"email"}, "Email is required.")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, full_name, enabled) VALUES (?, ?, 1)
		 ON CONFLICT(email) DO UPDATE SET full_name = excluded.full_name, enabled = 1`,
		email, strings.TrimSpace(fullName),
	)
	if err != nil {
		return nil, fmt.Errorf("adding user: %w", err)
	}
	return s.Get(ctx, email)
}

// Get returns a user by email.
func (s *UserStore) Get(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT email, full_name, enabled, created_at FROM users WHERE email = ?",
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&u.Email, &u.FullName, &u.Enabled, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("User %s not found.", email)
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// SetEnabled enables or disables a user.
func (s *UserStore) SetEnabled(ctx context.Context, email string, enabled bool) error {
	result, err := s.db.ExecContext(ctx, "UPDATE users SET enabled = ? WHERE email = ?",
		enabled, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("User %s not found.", email)
	}
	return nil
}

// List returns all users ordered by email.
func (s *UserStore) List(ctx context.Context) (users []*User, err error) {
	rows, err := s.db.QueryContext(ctx, "SELECT email, full_name, enabled, created_at FROM users ORDER BY email")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Email, &u.FullName, &u.Enabled, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, &u)
	}

	return users, rows.Err()
}
