package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/db"
)

// Repository provides access to clients and addresses.
type Repository struct {
	q db.Querier
}

// NewRepository creates a client repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// Upsert inserts or updates a client by (kind, id). The last visit date is
// left untouched.
func (r *Repository) Upsert(ctx context.Context, c *Client) error {
	if c.ID == "" {
		return apperr.Validation("Client id is required.")
	}
	if _, err := ParseKind(string(c.Kind)); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO clients (client_type, client_id, client_name, requires_regular_visits, visit_frequency)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(client_type, client_id) DO UPDATE SET
		     client_name = excluded.client_name,
		     requires_regular_visits = excluded.requires_regular_visits,
		     visit_frequency = excluded.visit_frequency`,
		c.Kind, c.ID, c.Name, c.RequiresRegularVisits, c.VisitFrequency,
	)
	if err != nil {
		return fmt.Errorf("upserting client: %w", err)
	}
	return nil
}

// Get returns a client by reference.
func (r *Repository) Get(ctx context.Context, ref Ref) (*Client, error) {
	var c Client
	var last sql.NullTime
	err := r.q.QueryRowContext(ctx,
		`SELECT client_type, client_id, client_name, requires_regular_visits, visit_frequency, last_visit_date
		 FROM clients WHERE client_type = ? AND client_id = ?`,
		ref.Kind, ref.ID,
	).Scan(&c.Kind, &c.ID, &c.Name, &c.RequiresRegularVisits, &c.VisitFrequency, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("%s %s not found", ref.Kind, ref.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting client: %w", err)
	}
	if last.Valid {
		t := last.Time
		c.LastVisitDate = &t
	}
	return &c, nil
}

// ListRequiringVisits returns clients of the given kinds that are flagged
// for regular visits, ordered by kind then id.
func (r *Repository) ListRequiringVisits(ctx context.Context, kinds ...Kind) (clients []*Client, err error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ",")
	args := make([]any, len(kinds))
	for i, k := range kinds {
		args[i] = k
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT client_type, client_id, client_name, requires_regular_visits, visit_frequency, last_visit_date
		 FROM clients
		 WHERE requires_regular_visits = 1 AND client_type IN (`+placeholders+`)
		 ORDER BY client_type, client_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var c Client
		var last sql.NullTime
		if err := rows.Scan(&c.Kind, &c.ID, &c.Name, &c.RequiresRegularVisits, &c.VisitFrequency, &last); err != nil {
			return nil, fmt.Errorf("scanning client: %w", err)
		}
		if last.Valid {
			t := last.Time
			c.LastVisitDate = &t
		}
		clients = append(clients, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating clients: %w", err)
	}
	return clients, nil
}

// SetLastVisitDate stamps last_visit_date on the referenced client.
// Reports whether a client row matched.
func (r *Repository) SetLastVisitDate(ctx context.Context, ref Ref, when time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		"UPDATE clients SET last_visit_date = ? WHERE client_type = ? AND client_id = ?",
		db.Timestamp(when), ref.Kind, ref.ID,
	)
	if err != nil {
		return false, fmt.Errorf("updating last visit date: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// AddAddress links an address to a client.
func (r *Repository) AddAddress(ctx context.Context, a *Address) error {
	if a.Name == "" || a.Client.IsZero() {
		return apperr.Validation("Address name and client are required.")
	}
	_, err := r.q.ExecContext(ctx,
		"INSERT INTO addresses (name, client_type, client_id, address, is_primary) VALUES (?, ?, ?, ?, ?)",
		a.Name, a.Client.Kind, a.Client.ID, a.Address, a.IsPrimary,
	)
	if err != nil {
		return fmt.Errorf("inserting address: %w", err)
	}
	return nil
}

// DefaultAddress returns the client's primary address name, else any linked
// address, else "".
func (r *Repository) DefaultAddress(ctx context.Context, ref Ref) (string, error) {
	if ref.Kind == "" || ref.ID == "" {
		return "", nil
	}
	var name string
	err := r.q.QueryRowContext(ctx,
		`SELECT name FROM addresses
		 WHERE client_type = ? AND client_id = ?
		 ORDER BY is_primary DESC, id ASC
		 LIMIT 1`,
		ref.Kind, ref.ID,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("finding default address: %w", err)
	}
	return name, nil
}
