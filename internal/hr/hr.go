// Package hr records field attendance: employees, per-day attendance and
// the raw check-in/check-out log.
package hr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/promise4all/visit-management/internal/db"
)

// Log types for employee checkins.
const (
	LogIn  = "IN"
	LogOut = "OUT"
)

// DeviceVisit marks checkins produced by visit check-in/check-out.
const DeviceVisit = "Visit"

// Employee links a user account to an HR record.
type Employee struct {
	ID        string `json:"id"`
	UserEmail string `json:"user_email"`
	Name      string `json:"name"`
}

// Attendance is one employee's attendance for one date.
type Attendance struct {
	ID       int64      `json:"id"`
	Employee string     `json:"employee"`
	Date     string     `json:"attendance_date"` // YYYY-MM-DD
	Status   string     `json:"status"`
	InTime   *time.Time `json:"in_time,omitempty"`
	OutTime  *time.Time `json:"out_time,omitempty"`
}

// Checkin is a single IN/OUT event.
type Checkin struct {
	ID       int64     `json:"id"`
	Employee string    `json:"employee"`
	LogType  string    `json:"log_type"`
	Time     time.Time `json:"time"`
	DeviceID string    `json:"device_id"`
	VisitID  int64     `json:"visit_id"`
}

// Repository provides HR data access.
type Repository struct {
	q db.Querier
}

// NewRepository creates an HR repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// CreateEmployee inserts or replaces the employee record.
func (r *Repository) CreateEmployee(ctx context.Context, e *Employee) error {
	if e.ID == "" || e.UserEmail == "" {
		return fmt.Errorf("employee id and user email are required")
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO employees (id, user_email, name) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET user_email = excluded.user_email, name = excluded.name`,
		e.ID, e.UserEmail, e.Name,
	)
	if err != nil {
		return fmt.Errorf("inserting employee: %w", err)
	}
	return nil
}

// EmployeeForUser returns the employee linked to a user, or nil.
func (r *Repository) EmployeeForUser(ctx context.Context, email string) (*Employee, error) {
	var e Employee
	err := r.q.QueryRowContext(ctx,
		"SELECT id, user_email, name FROM employees WHERE user_email = ? ORDER BY id LIMIT 1", email,
	).Scan(&e.ID, &e.UserEmail, &e.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding employee: %w", err)
	}
	return &e, nil
}

// RecordCheckin stores an IN/OUT event and returns its id.
func (r *Repository) RecordCheckin(ctx context.Context, employee, logType string, at time.Time, visitID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		"INSERT INTO employee_checkins (employee, log_type, time, device_id, visit_id) VALUES (?, ?, ?, ?, ?)",
		employee, logType, db.Timestamp(at), DeviceVisit, visitID,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting employee checkin: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting checkin id: %w", err)
	}
	return id, nil
}

// EnsureAttendance returns the attendance for employee on date, creating a
// Present record if none exists. The unique (employee, date) constraint
// makes concurrent callers converge on the same row.
func (r *Repository) EnsureAttendance(ctx context.Context, employee, date string) (*Attendance, error) {
	if _, err := r.q.ExecContext(ctx,
		`INSERT INTO attendance (employee, attendance_date, status) VALUES (?, ?, 'Present')
		 ON CONFLICT(employee, attendance_date) DO NOTHING`,
		employee, date,
	); err != nil {
		return nil, fmt.Errorf("creating attendance: %w", err)
	}
	a, err := r.AttendanceFor(ctx, employee, date)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("attendance for %s on %s vanished after insert", employee, date)
	}
	return a, nil
}

// AttendanceFor returns the attendance for employee on date, or nil.
func (r *Repository) AttendanceFor(ctx context.Context, employee, date string) (*Attendance, error) {
	var a Attendance
	var in, out sql.NullTime
	err := r.q.QueryRowContext(ctx,
		"SELECT id, employee, attendance_date, status, in_time, out_time FROM attendance WHERE employee = ? AND attendance_date = ?",
		employee, date,
	).Scan(&a.ID, &a.Employee, &a.Date, &a.Status, &in, &out)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting attendance: %w", err)
	}
	if in.Valid {
		a.InTime = &in.Time
	}
	if out.Valid {
		a.OutTime = &out.Time
	}
	return &a, nil
}

// StampIn sets in_time if it is not set yet.
func (r *Repository) StampIn(ctx context.Context, attendanceID int64, at time.Time) error {
	return r.stamp(ctx, "in_time", attendanceID, at)
}

// StampOut sets out_time if it is not set yet.
func (r *Repository) StampOut(ctx context.Context, attendanceID int64, at time.Time) error {
	return r.stamp(ctx, "out_time", attendanceID, at)
}

func (r *Repository) stamp(ctx context.Context, column string, attendanceID int64, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		fmt.Sprintf("UPDATE attendance SET %[1]s = ? WHERE id = ? AND %[1]s IS NULL", column),
		db.Timestamp(at), attendanceID,
	)
	if err != nil {
		return fmt.Errorf("stamping attendance %s: %w", column, err)
	}
	return nil
}
