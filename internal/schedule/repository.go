package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/db"
)

// Repository provides weekly schedule data access.
type Repository struct {
	q db.Querier
}

// NewRepository creates a schedule repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// Insert stores a new schedule with its rows.
func (r *Repository) Insert(ctx context.Context, ws *WeeklySchedule) error {
	res, err := r.q.ExecContext(ctx,
		"INSERT INTO weekly_schedules (user, week_start, status, modified_at) VALUES (?, ?, ?, ?)",
		ws.User, ws.WeekStart, ws.Status, db.Timestamp(ws.ModifiedAt),
	)
	if err != nil {
		var sqErr sqlite3.Error
		if errors.As(err, &sqErr) && sqErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return apperr.Conflict("A Weekly Schedule for %s starting %s already exists.", ws.User, ws.WeekStart)
		}
		return fmt.Errorf("inserting weekly schedule: %w", err)
	}
	if ws.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("getting insert id: %w", err)
	}
	for i, row := range ws.Rows {
		if err := r.insertRow(ctx, ws.ID, i, row); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) insertRow(ctx context.Context, scheduleID int64, idx int, row *Detail) error {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO schedule_details (schedule_id, idx, day, time, client_type, client, purpose, notes,
			support_issue, maintenance_details, approved, approved_by, approved_on, visit_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scheduleID, idx, row.Day, row.Time, row.ClientType, row.Client, row.Purpose, row.Notes,
		row.SupportIssue, row.MaintenanceDetails, row.Approved, nullString(row.ApprovedBy), nullTime(row.ApprovedOn), nullInt(row.Visit),
	)
	if err != nil {
		return fmt.Errorf("inserting schedule row: %w", err)
	}
	if row.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("getting row id: %w", err)
	}
	return nil
}

// Replace overwrites the header and rows of an existing schedule. Rows with
// an id are updated in place, new rows inserted and missing rows deleted.
func (r *Repository) Replace(ctx context.Context, ws *WeeklySchedule) error {
	if err := r.SaveHeader(ctx, ws); err != nil {
		return err
	}

	keep := map[int64]bool{}
	for i, row := range ws.Rows {
		if row.ID == 0 {
			if err := r.insertRow(ctx, ws.ID, i, row); err != nil {
				return err
			}
		} else if err := r.SaveRow(ctx, i, row); err != nil {
			return err
		}
		keep[row.ID] = true
	}

	existing, err := r.rows(ctx, ws.ID)
	if err != nil {
		return err
	}
	for _, row := range existing {
		if keep[row.ID] {
			continue
		}
		if _, err := r.q.ExecContext(ctx, "DELETE FROM schedule_details WHERE id = ?", row.ID); err != nil {
			return fmt.Errorf("deleting schedule row %d: %w", row.ID, err)
		}
	}
	return nil
}

// SaveHeader writes status and modified_at.
func (r *Repository) SaveHeader(ctx context.Context, ws *WeeklySchedule) error {
	_, err := r.q.ExecContext(ctx,
		"UPDATE weekly_schedules SET status = ?, modified_at = ? WHERE id = ?",
		ws.Status, db.Timestamp(ws.ModifiedAt), ws.ID,
	)
	if err != nil {
		return fmt.Errorf("updating weekly schedule %d: %w", ws.ID, err)
	}
	return nil
}

// SaveRow writes every column of row.
func (r *Repository) SaveRow(ctx context.Context, idx int, row *Detail) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE schedule_details SET idx = ?, day = ?, time = ?, client_type = ?, client = ?, purpose = ?, notes = ?,
			support_issue = ?, maintenance_details = ?, approved = ?, approved_by = ?, approved_on = ?, visit_id = ?
		 WHERE id = ?`,
		idx, row.Day, row.Time, row.ClientType, row.Client, row.Purpose, row.Notes,
		row.SupportIssue, row.MaintenanceDetails, row.Approved, nullString(row.ApprovedBy), nullTime(row.ApprovedOn), nullInt(row.Visit),
		row.ID,
	)
	if err != nil {
		return fmt.Errorf("updating schedule row %d: %w", row.ID, err)
	}
	return nil
}

// Get returns a schedule with its rows in order.
func (r *Repository) Get(ctx context.Context, id int64) (*WeeklySchedule, error) {
	return r.one(ctx, "WHERE id = ?", id)
}

// ForWeek returns the schedule of user for the week starting weekStart.
func (r *Repository) ForWeek(ctx context.Context, user, weekStart string) (*WeeklySchedule, error) {
	return r.one(ctx, "WHERE user = ? AND week_start = ?", user, weekStart)
}

// Latest returns the most recent schedule of user by week start.
func (r *Repository) Latest(ctx context.Context, user string) (*WeeklySchedule, error) {
	return r.one(ctx, "WHERE user = ? ORDER BY week_start DESC, id DESC LIMIT 1", user)
}

// ScheduleOfRow returns the id of the schedule holding a row.
func (r *Repository) ScheduleOfRow(ctx context.Context, rowID int64) (int64, error) {
	var id int64
	err := r.q.QueryRowContext(ctx, "SELECT schedule_id FROM schedule_details WHERE id = ?", rowID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("Parent Weekly Schedule not found for row %d", rowID)
	}
	if err != nil {
		return 0, fmt.Errorf("finding schedule of row %d: %w", rowID, err)
	}
	return id, nil
}

func (r *Repository) one(ctx context.Context, where string, args ...any) (*WeeklySchedule, error) {
	var (
		ws       WeeklySchedule
		modified sql.NullTime
	)
	err := r.q.QueryRowContext(ctx,
		"SELECT id, user, week_start, status, modified_at FROM weekly_schedules "+where, args...,
	).Scan(&ws.ID, &ws.User, &ws.WeekStart, &ws.Status, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("Weekly Schedule not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("getting weekly schedule: %w", err)
	}
	if modified.Valid {
		ws.ModifiedAt = modified.Time.UTC()
	}
	if ws.Rows, err = r.rows(ctx, ws.ID); err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *Repository) rows(ctx context.Context, scheduleID int64) (out []*Detail, err error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, day, time, client_type, client, purpose, notes, support_issue, maintenance_details,
			approved, approved_by, approved_on, visit_id
		 FROM schedule_details WHERE schedule_id = ? ORDER BY idx, id`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("listing schedule rows: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		var (
			d          Detail
			approvedBy sql.NullString
			approvedOn sql.NullTime
			visitID    sql.NullInt64
		)
		if err := rows.Scan(&d.ID, &d.Day, &d.Time, &d.ClientType, &d.Client, &d.Purpose, &d.Notes,
			&d.SupportIssue, &d.MaintenanceDetails, &d.Approved, &approvedBy, &approvedOn, &visitID); err != nil {
			return nil, fmt.Errorf("scanning schedule row: %w", err)
		}
		d.ApprovedBy = approvedBy.String
		if approvedOn.Valid {
			t := approvedOn.Time.UTC()
			d.ApprovedOn = &t
		}
		if visitID.Valid {
			id := visitID.Int64
			d.Visit = &id
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedule rows: %w", err)
	}
	return out, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return db.Timestamp(*t)
}

func nullInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
