// Package auth authenticates API callers. Every API key is bound to a user
// email, which becomes the acting user for the request.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/db"
)

const (
	apiKeyBytes  = 32 // 256-bit keys
	apiKeyPrefix = "vm_"
)

// APIKey is the stored representation of an API key (no raw key).
type APIKey struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	KeyPrefix  string     `json:"key_prefix"` // first 8 chars for identification
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// APIKeyStore manages API keys in SQLite.
type APIKeyStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewAPIKeyStore creates an API key store.
func NewAPIKeyStore(db *sql.DB) *APIKeyStore {
	return &APIKeyStore{db: db, now: time.Now}
}

// Create generates a new API key acting as email.
// Returns the raw key (shown once to user) and the stored record.
func (s *APIKeyStore) Create(ctx context.Context, name, email string) (string, *APIKey, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", nil, apperr.FieldValidation([]string{"email"}, "An API key must belong to a user.")
	}

	raw, err := generateAPIKey()
	if err != nil {
		return "", nil, fmt.Errorf("generating key: %w", err)
	}
	prefix := raw[:8]
	created := db.Timestamp(s.now())

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO api_keys (name, key_prefix, key_hash, email, created_at) VALUES (?, ?, ?, ?, ?)",
		name, prefix, hashAPIKey(raw), email, created,
	)
	if err != nil {
		return "", nil, fmt.Errorf("storing key: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return "", nil, fmt.Errorf("getting key id: %w", err)
	}

	return raw, &APIKey{ID: id, Name: name, Email: email, KeyPrefix: prefix, CreatedAt: created}, nil
}

// List returns all API keys (without the raw key), newest first.
func (s *APIKeyStore) List(ctx context.Context) (keys []APIKey, err error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, email, key_prefix, created_at, last_used_at FROM api_keys ORDER BY created_at DESC, id DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var (
			k    APIKey
			used sql.NullTime
		)
		if err := rows.Scan(&k.ID, &k.Name, &k.Email, &k.KeyPrefix, &k.CreatedAt, &used); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		if used.Valid {
			t := used.Time
			k.LastUsedAt = &t
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

// Delete removes an API key by ID.
func (s *APIKeyStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("API key %d not found.", id)
	}

	return nil
}

// Validate checks a raw API key against stored hashes and returns the
// email it acts as. Unknown keys and keys of disabled users yield "".
// A match updates last_used_at.
func (s *APIKeyStore) Validate(ctx context.Context, rawKey string) (string, error) {
	hash := hashAPIKey(rawKey)

	var (
		email   string
		enabled bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT k.email, COALESCE(u.enabled, 1)
		 FROM api_keys k LEFT JOIN users u ON u.email = k.email
		 WHERE k.key_hash = ?`, hash,
	).Scan(&email, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("validating key: %w", err)
	}
	if !enabled {
		return "", nil
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET last_used_at = ? WHERE key_hash = ?",
		db.Timestamp(s.now()), hash,
	); err != nil {
		return "", fmt.Errorf("touching key: %w", err)
	}
	return email, nil
}

func generateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(b), nil
}

func hashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
