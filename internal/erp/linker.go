package erp

import (
	"context"
	"errors"
	"time"

	"github.com/promise4all/visit-management/internal/db"
)

// Request carries what a completed maintenance visit knows about the work.
type Request struct {
	Customer  string
	Address   string
	Employee  string // resolved employee of the assignee, may be empty
	CheckOut  *time.Time
	Scheduled *time.Time
	Item      string
	SerialNo  string
	Problem   string
	WorkDone  string
}

// Result reports a best-effort maintenance creation. Err is set when
// creation was attempted and failed; callers log it and carry on.
type Result struct {
	MaintenanceVisit int64
	Skipped          bool
	Reason           string
	Err              error
}

// Created reports whether a maintenance visit now exists.
func (r Result) Created() bool {
	return r.MaintenanceVisit != 0
}

// Linker creates maintenance visits for completed maintenance work.
type Linker struct {
	defaultCompany string
	now            func() time.Time
}

// NewLinker creates a Linker. defaultCompany overrides the first-enabled
// company lookup when set.
func NewLinker(defaultCompany string, now func() time.Time) *Linker {
	if now == nil {
		now = time.Now
	}
	return &Linker{defaultCompany: defaultCompany, now: now}
}

// AutoCreate inserts an Unscheduled, Fully Completed maintenance visit
// using q, so it joins the caller's transaction. It never returns an error.
func (l *Linker) AutoCreate(ctx context.Context, q db.Querier, req Request) Result {
	if req.Customer == "" {
		return Result{Skipped: true, Reason: "no customer"}
	}
	repo := NewRepository(q)

	company, err := repo.DefaultCompany(ctx, l.defaultCompany)
	if err != nil {
		return Result{Err: err}
	}

	date := l.now()
	switch {
	case req.CheckOut != nil:
		date = *req.CheckOut
	case req.Scheduled != nil:
		date = *req.Scheduled
	}

	mv := &MaintenanceVisit{
		Customer:         req.Customer,
		Company:          company,
		Date:             dateOf(date),
		MaintenanceType:  "Unscheduled",
		CompletionStatus: "Fully Completed",
		CustomerAddress:  req.Address,
	}

	// Service person lookup is a nicety; a failure leaves it blank.
	person, err := repo.ServicePerson(ctx, req.Employee)
	if err != nil {
		person = ""
	}
	if req.Item != "" || req.SerialNo != "" || req.Problem != "" || req.WorkDone != "" || person != "" {
		mv.Purposes = append(mv.Purposes, Purpose{
			ItemCode:      req.Item,
			SerialNo:      req.SerialNo,
			Description:   req.Problem,
			WorkDone:      req.WorkDone,
			ServicePerson: person,
		})
	}

	// A savepoint keeps a half-written record out of the caller's transaction.
	if _, err := q.ExecContext(ctx, "SAVEPOINT maintenance_visit"); err != nil {
		return Result{Err: err}
	}
	id, err := repo.CreateMaintenanceVisit(ctx, mv)
	if err != nil {
		if _, rbErr := q.ExecContext(ctx, "ROLLBACK TO maintenance_visit"); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		_, _ = q.ExecContext(ctx, "RELEASE maintenance_visit")
		return Result{Err: err}
	}
	if _, err := q.ExecContext(ctx, "RELEASE maintenance_visit"); err != nil {
		return Result{Err: err}
	}
	return Result{MaintenanceVisit: id}
}
