package visit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/crm"
	"github.com/promise4all/visit-management/internal/db"
)

const columns = `id, client_type, client, contact, subject, address, brief, assigned_to,
	scheduled_time, check_in_time, check_out_time, visit_duration_minutes,
	status, docstatus, visit_outcome,
	check_in_photo, check_out_photo, location, check_in_location, check_out_location,
	report_summary, report_attachment, additional_notes, competitor_info, existing_fleet,
	requirements_received, future_prospects, product_target, customer_feedback,
	support_issue, maintenance_details, maintenance_visit,
	mv_item, mv_serial_no, mv_problem_reported, mv_work_done,
	created_at, modified_at`

// Repository provides visit data access. It runs against a *sql.DB or a
// *sql.Tx.
type Repository struct {
	q db.Querier
}

// NewRepository creates a visit repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVisit(s scanner) (*Visit, error) {
	var (
		v                            Visit
		scheduled, checkIn, checkOut sql.NullTime
		duration, mv                 sql.NullInt64
		location                     sql.NullString
		created, modified            sql.NullTime
	)
	err := s.Scan(
		&v.ID, &v.ClientType, &v.Client, &v.Contact, &v.Subject, &v.Address, &v.Brief, &v.AssignedTo,
		&scheduled, &checkIn, &checkOut, &duration,
		&v.Status, &v.DocStatus, &v.VisitOutcome,
		&v.CheckInPhoto, &v.CheckOutPhoto, &location, &v.CheckInLocation, &v.CheckOutLocation,
		&v.ReportSummary, &v.ReportAttachment, &v.AdditionalNotes, &v.CompetitorInfo, &v.ExistingFleet,
		&v.RequirementsReceived, &v.FutureProspects, &v.ProductTarget, &v.CustomerFeedback,
		&v.SupportIssue, &v.MaintenanceDetails, &mv,
		&v.MVItem, &v.MVSerialNo, &v.MVProblemReported, &v.MVWorkDone,
		&created, &modified,
	)
	if err != nil {
		return nil, err
	}
	v.ScheduledTime = timePtr(scheduled)
	v.CheckInTime = timePtr(checkIn)
	v.CheckOutTime = timePtr(checkOut)
	if duration.Valid {
		d := int(duration.Int64)
		v.VisitDurationMinutes = &d
	}
	if mv.Valid {
		id := mv.Int64
		v.MaintenanceVisit = &id
	}
	v.Location = location.String
	if created.Valid {
		v.CreatedAt = created.Time.UTC()
	}
	if modified.Valid {
		v.ModifiedAt = modified.Time.UTC()
	}
	return &v, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
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

func nullDuration(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Insert stores a new visit and sets v.ID.
func (r *Repository) Insert(ctx context.Context, v *Visit) error {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO visits (client_type, client, contact, subject, address, brief, assigned_to,
			scheduled_time, check_in_time, check_out_time, visit_duration_minutes,
			status, docstatus, visit_outcome,
			check_in_photo, check_out_photo, location, check_in_location, check_out_location,
			report_summary, report_attachment, additional_notes, competitor_info, existing_fleet,
			requirements_received, future_prospects, product_target, customer_feedback,
			support_issue, maintenance_details, maintenance_visit,
			mv_item, mv_serial_no, mv_problem_reported, mv_work_done,
			created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ClientType, v.Client, v.Contact, v.Subject, v.Address, v.Brief, v.AssignedTo,
		nullTime(v.ScheduledTime), nullTime(v.CheckInTime), nullTime(v.CheckOutTime), nullDuration(v.VisitDurationMinutes),
		v.Status, v.DocStatus, v.VisitOutcome,
		v.CheckInPhoto, v.CheckOutPhoto, nullString(v.Location), v.CheckInLocation, v.CheckOutLocation,
		v.ReportSummary, v.ReportAttachment, v.AdditionalNotes, v.CompetitorInfo, v.ExistingFleet,
		v.RequirementsReceived, v.FutureProspects, v.ProductTarget, v.CustomerFeedback,
		v.SupportIssue, v.MaintenanceDetails, nullInt(v.MaintenanceVisit),
		v.MVItem, v.MVSerialNo, v.MVProblemReported, v.MVWorkDone,
		db.Timestamp(v.CreatedAt), db.Timestamp(v.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting visit: %w", err)
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("getting insert id: %w", err)
	}
	return nil
}

// Save writes every mutable column of v.
func (r *Repository) Save(ctx context.Context, v *Visit) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE visits SET client_type = ?, client = ?, contact = ?, subject = ?, address = ?, brief = ?, assigned_to = ?,
			scheduled_time = ?, check_in_time = ?, check_out_time = ?, visit_duration_minutes = ?,
			status = ?, docstatus = ?, visit_outcome = ?,
			check_in_photo = ?, check_out_photo = ?, location = ?, check_in_location = ?, check_out_location = ?,
			report_summary = ?, report_attachment = ?, additional_notes = ?, competitor_info = ?, existing_fleet = ?,
			requirements_received = ?, future_prospects = ?, product_target = ?, customer_feedback = ?,
			support_issue = ?, maintenance_details = ?, maintenance_visit = ?,
			mv_item = ?, mv_serial_no = ?, mv_problem_reported = ?, mv_work_done = ?,
			modified_at = ?
		 WHERE id = ?`,
		v.ClientType, v.Client, v.Contact, v.Subject, v.Address, v.Brief, v.AssignedTo,
		nullTime(v.ScheduledTime), nullTime(v.CheckInTime), nullTime(v.CheckOutTime), nullDuration(v.VisitDurationMinutes),
		v.Status, v.DocStatus, v.VisitOutcome,
		v.CheckInPhoto, v.CheckOutPhoto, nullString(v.Location), v.CheckInLocation, v.CheckOutLocation,
		v.ReportSummary, v.ReportAttachment, v.AdditionalNotes, v.CompetitorInfo, v.ExistingFleet,
		v.RequirementsReceived, v.FutureProspects, v.ProductTarget, v.CustomerFeedback,
		v.SupportIssue, v.MaintenanceDetails, nullInt(v.MaintenanceVisit),
		v.MVItem, v.MVSerialNo, v.MVProblemReported, v.MVWorkDone,
		db.Timestamp(v.ModifiedAt),
		v.ID,
	)
	if err != nil {
		return fmt.Errorf("updating visit %d: %w", v.ID, err)
	}
	return nil
}

// Get returns a visit with its log.
func (r *Repository) Get(ctx context.Context, id int64) (*Visit, error) {
	v, err := scanVisit(r.q.QueryRowContext(ctx, "SELECT "+columns+" FROM visits WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("Visit %d not found.", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting visit %d: %w", id, err)
	}
	if v.Logs, err = r.Logs(ctx, id); err != nil {
		return nil, err
	}
	return v, nil
}

// List returns visits matching f, soonest scheduled first.
func (r *Repository) List(ctx context.Context, f Filter) ([]*Visit, error) {
	var (
		where []string
		args  []any
	)
	if f.AssignedTo != "" {
		where = append(where, "assigned_to = ?")
		args = append(args, f.AssignedTo)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		where = append(where, "scheduled_time >= ?")
		args = append(args, db.Timestamp(*f.From))
	}
	if f.To != nil {
		where = append(where, "scheduled_time <= ?")
		args = append(args, db.Timestamp(*f.To))
	}

	query := "SELECT " + columns + " FROM visits"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY scheduled_time IS NULL, scheduled_time, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.query(ctx, query, args...)
}

func (r *Repository) query(ctx context.Context, query string, args ...any) (visits []*Visit, err error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing visits: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning visit: %w", err)
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating visits: %w", err)
	}
	return visits, nil
}

// Delete removes a visit and its log.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM visits WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting visit %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("Visit %d not found.", id)
	}
	return nil
}

// AppendLog adds an audit entry.
func (r *Repository) AppendLog(ctx context.Context, visitID int64, e LogEntry) error {
	_, err := r.q.ExecContext(ctx,
		"INSERT INTO visit_logs (visit_id, timestamp, activity, user) VALUES (?, ?, ?, ?)",
		visitID, db.Timestamp(e.Timestamp), e.Activity, e.User,
	)
	if err != nil {
		return fmt.Errorf("appending visit log: %w", err)
	}
	return nil
}

// Logs returns the audit entries of a visit in insertion order.
func (r *Repository) Logs(ctx context.Context, visitID int64) (logs []LogEntry, err error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT timestamp, activity, user FROM visit_logs WHERE visit_id = ? ORDER BY id", visitID)
	if err != nil {
		return nil, fmt.Errorf("listing visit logs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.Timestamp, &e.Activity, &e.User); err != nil {
			return nil, fmt.Errorf("scanning visit log: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		logs = append(logs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating visit logs: %w", err)
	}
	return logs, nil
}

// SetMaintenanceVisit links a maintenance visit.
func (r *Repository) SetMaintenanceVisit(ctx context.Context, id, mv int64, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		"UPDATE visits SET maintenance_visit = ?, modified_at = ? WHERE id = ?", mv, db.Timestamp(at), id)
	if err != nil {
		return fmt.Errorf("linking maintenance visit: %w", err)
	}
	return nil
}

// SetPhoto records an attachment URL on a photo field.
func (r *Repository) SetPhoto(ctx context.Context, id int64, field, url string, at time.Time) error {
	var column string
	switch field {
	case "check_in_photo", "check_out_photo":
		column = field
	default:
		return apperr.FieldValidation([]string{field}, "Unknown photo field %q.", field)
	}
	_, err := r.q.ExecContext(ctx,
		"UPDATE visits SET "+column+" = ?, modified_at = ? WHERE id = ?", url, db.Timestamp(at), id)
	if err != nil {
		return fmt.Errorf("setting %s: %w", field, err)
	}
	return nil
}

const lastVisitExpr = `COALESCE(MAX(check_out_time), MAX(scheduled_time))`

// ResolveLastVisit returns the last completed visit time for a client:
// the latest check-out, else the latest scheduled time.
func (r *Repository) ResolveLastVisit(ctx context.Context, ref crm.Ref) (*time.Time, error) {
	var raw sql.NullString
	err := r.q.QueryRowContext(ctx,
		"SELECT "+lastVisitExpr+" FROM visits WHERE client_type = ? AND client = ? AND status = ?",
		ref.Kind, ref.ID, Completed,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("resolving last visit for %s: %w", ref, err)
	}
	if !raw.Valid {
		return nil, nil
	}
	t, err := db.ParseTimestamp(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ResolveLastVisits is the batched form of ResolveLastVisit. Clients with
// no completed visit are absent from the map.
func (r *Repository) ResolveLastVisits(ctx context.Context) (last map[crm.Ref]time.Time, err error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT client_type, client, "+lastVisitExpr+" FROM visits WHERE status = ? GROUP BY client_type, client",
		Completed,
	)
	if err != nil {
		return nil, fmt.Errorf("resolving last visits: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	last = make(map[crm.Ref]time.Time)
	for rows.Next() {
		var (
			ref crm.Ref
			raw sql.NullString
		)
		if err := rows.Scan(&ref.Kind, &ref.ID, &raw); err != nil {
			return nil, fmt.Errorf("scanning last visit: %w", err)
		}
		if !raw.Valid {
			continue
		}
		t, err := db.ParseTimestamp(raw.String)
		if err != nil {
			return nil, err
		}
		last[ref] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating last visits: %w", err)
	}
	return last, nil
}

// Assignees returns distinct assignees that are enabled users.
func (r *Repository) Assignees(ctx context.Context) (out []string, err error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT DISTINCT v.assigned_to FROM visits v
		 JOIN users u ON u.email = v.assigned_to
		 WHERE u.enabled = 1 AND v.assigned_to != ''
		 ORDER BY v.assigned_to`)
	if err != nil {
		return nil, fmt.Errorf("listing assignees: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	out = []string{}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scanning assignee: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignees: %w", err)
	}
	return out, nil
}

// StaleDrafts returns ids of open Draft visits last modified before cutoff.
func (r *Repository) StaleDrafts(ctx context.Context, cutoff time.Time) (ids []int64, err error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT id FROM visits WHERE status = ? AND docstatus = ? AND COALESCE(modified_at, created_at) < ? ORDER BY id",
		Draft, DocOpen, db.Timestamp(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("listing stale drafts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning draft id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating drafts: %w", err)
	}
	return ids, nil
}

// Upcoming returns open Planned and In Progress visits scheduled within
// [from, to].
func (r *Repository) Upcoming(ctx context.Context, from, to time.Time) ([]*Visit, error) {
	return r.query(ctx,
		"SELECT "+columns+" FROM visits WHERE status IN (?, ?) AND docstatus = ? AND scheduled_time BETWEEN ? AND ? ORDER BY scheduled_time, id",
		Planned, InProgress, DocOpen, db.Timestamp(from), db.Timestamp(to),
	)
}

// CountFilter selects visits for counting.
type CountFilter struct {
	AssignedTo      string
	Statuses        []Status
	From, To        *time.Time // scheduled_time window, inclusive
	ScheduledBefore *time.Time
}

// Count returns the number of visits matching f.
func (r *Repository) Count(ctx context.Context, f CountFilter) (int, error) {
	var (
		where []string
		args  []any
	)
	if f.AssignedTo != "" {
		where = append(where, "assigned_to = ?")
		args = append(args, f.AssignedTo)
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(f.Statuses)), ", ")+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.From != nil {
		where = append(where, "scheduled_time >= ?")
		args = append(args, db.Timestamp(*f.From))
	}
	if f.To != nil {
		where = append(where, "scheduled_time <= ?")
		args = append(args, db.Timestamp(*f.To))
	}
	if f.ScheduledBefore != nil {
		where = append(where, "scheduled_time < ?")
		args = append(args, db.Timestamp(*f.ScheduledBefore))
	}

	query := "SELECT COUNT(*) FROM visits"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	var n int
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting visits: %w", err)
	}
	return n, nil
}
