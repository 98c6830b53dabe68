package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/config"
	"github.com/promise4all/visit-management/internal/crm"
	"github.com/promise4all/visit-management/internal/db"
	"github.com/promise4all/visit-management/internal/metrics"
	"github.com/promise4all/visit-management/internal/visit"
)

// Managers reports whether a user may approve schedules.
type Managers interface {
	IsManager(user string) bool
}

// Service runs the weekly schedule approval flow.
type Service struct {
	db     *sql.DB
	policy config.Policy
	roles  Managers
	visits *visit.Service
	now    func() time.Time
}

// NewService creates a schedule service. Visits generated from approved
// rows go through visits.
func NewService(d *sql.DB, policy config.Policy, roles Managers, visits *visit.Service, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{db: d, policy: policy, roles: roles, visits: visits, now: now}
}

func (s *Service) isManager(actor string) bool {
	return s.roles != nil && s.roles.IsManager(actor)
}

func (s *Service) requireManager(actor string) error {
	if !s.isManager(actor) {
		return apperr.Permission("Only managers can approve weekly schedules.")
	}
	return nil
}

func (s *Service) canView(actor, owner string) bool {
	return actor == owner || s.isManager(actor)
}

// Get returns a schedule visible to actor.
func (s *Service) Get(ctx context.Context, actor string, id int64) (*WeeklySchedule, error) {
	ws, err := NewRepository(s.db).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, ws.User) {
		return nil, apperr.Permission("Not permitted to view the schedule of %s.", ws.User)
	}
	return ws, nil
}

// Save creates or updates a schedule. Approval flags may only be raised by
// managers; the approver stamp is written once and kept afterwards.
func (s *Service) Save(ctx context.Context, actor string, ws *WeeklySchedule) (*WeeklySchedule, error) {
	if ws.User == "" {
		ws.User = actor
	}
	if !s.canView(actor, ws.User) {
		return nil, apperr.Permission("Not permitted to edit the schedule of %s.", ws.User)
	}
	if err := validateHeader(ws); err != nil {
		return nil, err
	}

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := NewRepository(tx)

		var stored *WeeklySchedule
		if ws.ID != 0 {
			var err error
			if stored, err = repo.Get(ctx, ws.ID); err != nil {
				return err
			}
			if stored.User != ws.User || stored.WeekStart != ws.WeekStart {
				return apperr.FieldValidation([]string{"user", "week_start"}, "User and week start cannot be changed on an existing schedule.")
			}
		}

		if err := s.applyApprovals(actor, stored, ws); err != nil {
			return err
		}
		current := Draft
		if stored != nil {
			current = stored.Status
		}
		ws.Status = deriveStatus(current, ws.Rows)
		ws.ModifiedAt = db.Timestamp(s.now())

		if stored == nil {
			return repo.Insert(ctx, ws)
		}
		return repo.Replace(ctx, ws)
	})
	if err != nil {
		return nil, err
	}
	return NewRepository(s.db).Get(ctx, ws.ID)
}

func validateHeader(ws *WeeklySchedule) error {
	start, err := time.Parse(db.DateLayout, strings.TrimSpace(ws.WeekStart))
	if err != nil {
		return apperr.FieldValidation([]string{"week_start"}, "Week start must be a date (YYYY-MM-DD).")
	}
	if start.Weekday() != time.Monday {
		return apperr.FieldValidation([]string{"week_start"}, "Week start must be a Monday.")
	}
	ws.WeekStart = start.Format(db.DateLayout)
	for i, row := range ws.Rows {
		if row.ClientType == "" {
			continue
		}
		kind, err := crm.ParseKind(string(row.ClientType))
		if err != nil {
			return apperr.FieldValidation([]string{"client_type"}, "Row %d: unknown client type %q.", i+1, row.ClientType)
		}
		row.ClientType = kind
	}
	return nil
}

// applyApprovals carries server-owned row fields over from stored and
// enforces who may change the approved flag.
func (s *Service) applyApprovals(actor string, stored, ws *WeeklySchedule) error {
	prev := map[int64]*Detail{}
	if stored != nil {
		for _, r := range stored.Rows {
			prev[r.ID] = r
		}
	}

	now := db.Timestamp(s.now())
	for _, row := range ws.Rows {
		old, known := prev[row.ID]
		if row.ID != 0 && !known {
			return apperr.Validation("Row %d does not belong to this schedule.", row.ID)
		}
		wasApproved := known && old.Approved
		if known {
			row.ApprovedBy, row.ApprovedOn, row.Visit = old.ApprovedBy, old.ApprovedOn, old.Visit
		} else {
			row.ApprovedBy, row.ApprovedOn, row.Visit = "", nil, nil
		}

		if row.Approved == wasApproved {
			continue
		}
		if !s.isManager(actor) {
			if row.Approved {
				return apperr.Permission("Only managers can approve schedule rows.")
			}
			return apperr.Permission("Only managers can withdraw an approval.")
		}
		if row.Approved && row.ApprovedBy == "" {
			row.ApprovedBy = actor
			row.ApprovedOn = &now
		}
	}
	return nil
}

// ApproveRows approves rowIDs (all rows when empty) and, when createVisits
// is true or unset with auto-create enabled, generates a Planned visit for
// each approved row that has none. Everything runs in one transaction.
func (s *Service) ApproveRows(ctx context.Context, actor string, scheduleID int64, rowIDs []int64, createVisits *bool) (*ApproveResult, error) {
	if err := s.requireManager(actor); err != nil {
		return nil, err
	}
	create := s.policy.AutoCreateVisitsFromSchedule
	if createVisits != nil {
		create = *createVisits
	}

	res := &ApproveResult{Created: []int64{}, Skipped: []int64{}}
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := NewRepository(tx)
		ws, err := repo.Get(ctx, scheduleID)
		if err != nil {
			return err
		}
		targets, err := selectRows(ws, rowIDs)
		if err != nil {
			return err
		}

		now := db.Timestamp(s.now())
		for _, row := range targets {
			if row.Approved {
				continue
			}
			row.Approved = true
			if row.ApprovedBy == "" {
				row.ApprovedBy = actor
				row.ApprovedOn = &now
			}
			res.Approved++
		}

		if create {
			if err := s.createVisits(ctx, tx, actor, ws, targets, &res.Created, &res.Skipped); err != nil {
				return err
			}
		}

		ws.Status = deriveStatus(ws.Status, ws.Rows)
		ws.ModifiedAt = now
		for i, row := range ws.Rows {
			if err := repo.SaveRow(ctx, i, row); err != nil {
				return err
			}
		}
		res.Status = ws.Status
		return repo.SaveHeader(ctx, ws)
	})
	if err != nil {
		return nil, err
	}

	metrics.RowsApproved.Add(float64(res.Approved))
	metrics.ScheduleVisitsCreated.Add(float64(len(res.Created)))
	slog.Info("schedule rows approved", "schedule", scheduleID, "by", actor,
		"approved", res.Approved, "created", len(res.Created), "skipped", len(res.Skipped))
	return res, nil
}

func selectRows(ws *WeeklySchedule, ids []int64) ([]*Detail, error) {
	if len(ids) == 0 {
		return ws.Rows, nil
	}
	byID := make(map[int64]*Detail, len(ws.Rows))
	for _, r := range ws.Rows {
		byID[r.ID] = r
	}
	out := make([]*Detail, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, apperr.Validation("Row %d does not belong to Weekly Schedule %d.", id, ws.ID)
		}
		out = append(out, r)
	}
	return out, nil
}

// createVisits links a new visit to every approved row in rows. Rows that
// already have a visit are reported as skipped; incomplete rows are left
// alone.
func (s *Service) createVisits(ctx context.Context, tx *sql.Tx, actor string, ws *WeeklySchedule, rows []*Detail, created, skipped *[]int64) error {
	for _, row := range rows {
		if !row.Approved {
			continue
		}
		if row.Visit != nil {
			*skipped = append(*skipped, row.ID)
			continue
		}
		v, ok := BuildVisit(ws, row)
		if !ok {
			continue
		}
		if err := s.visits.CreateTx(ctx, tx, actor, v); err != nil {
			return fmt.Errorf("creating visit for row %d: %w", row.ID, err)
		}
		id := v.ID
		row.Visit = &id
		*created = append(*created, id)
	}
	return nil
}

// CreateVisitsForApprovedRows generates visits for approved rows that have
// none yet.
func (s *Service) CreateVisitsForApprovedRows(ctx context.Context, actor string, scheduleID int64) (*CreateResult, error) {
	if err := s.requireManager(actor); err != nil {
		return nil, err
	}
	return s.createForSchedule(ctx, actor, scheduleID)
}

func (s *Service) createForSchedule(ctx context.Context, actor string, scheduleID int64) (*CreateResult, error) {
	res := &CreateResult{Created: []int64{}, Skipped: []int64{}}
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := NewRepository(tx)
		ws, err := repo.Get(ctx, scheduleID)
		if err != nil {
			return err
		}
		if err := s.createVisits(ctx, tx, actor, ws, ws.Rows, &res.Created, &res.Skipped); err != nil {
			return err
		}
		for i, row := range ws.Rows {
			if err := repo.SaveRow(ctx, i, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.ScheduleVisitsCreated.Add(float64(len(res.Created)))
	return res, nil
}

// Reject marks a schedule Rejected. Row approvals are left as they are.
func (s *Service) Reject(ctx context.Context, actor string, scheduleID int64) (*WeeklySchedule, error) {
	if err := s.requireManager(actor); err != nil {
		return nil, err
	}
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := NewRepository(tx)
		ws, err := repo.Get(ctx, scheduleID)
		if err != nil {
			return err
		}
		ws.Status = Rejected
		ws.ModifiedAt = db.Timestamp(s.now())
		return repo.SaveHeader(ctx, ws)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("schedule rejected", "schedule", scheduleID, "by", actor)
	return NewRepository(s.db).Get(ctx, scheduleID)
}

// find returns user's schedule for weekStart, or nil. An empty weekStart
// means the current week, falling back to the latest schedule when
// orLatest is set.
func (s *Service) find(ctx context.Context, user, weekStart string, orLatest bool) (*WeeklySchedule, error) {
	repo := NewRepository(s.db)
	explicit := strings.TrimSpace(weekStart) != ""
	if !explicit {
		weekStart = Monday(s.now().UTC())
	}
	ws, err := repo.ForWeek(ctx, user, strings.TrimSpace(weekStart))
	if err == nil {
		return ws, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if explicit || !orLatest {
		return nil, nil
	}
	ws, err = repo.Latest(ctx, user)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return ws, err
}

// WeekRows returns the flattened rows of user's schedule, sorted by weekday
// then time. An empty user means actor.
func (s *Service) WeekRows(ctx context.Context, actor, user, weekStart string) ([]RowView, error) {
	if user == "" {
		user = actor
	}
	if !s.canView(actor, user) {
		return nil, apperr.Permission("Not permitted to view the schedule of %s.", user)
	}
	ws, err := s.find(ctx, user, weekStart, true)
	if err != nil {
		return nil, err
	}
	out := []RowView{}
	if ws == nil {
		return out, nil
	}

	for _, r := range ws.Rows {
		status := "Pending"
		if r.Approved {
			status = "Approved"
		}
		out = append(out, RowView{
			Name:       r.ID,
			Schedule:   ws.ID,
			Day:        r.Day,
			TimeSlot:   TimeSlot(r.Time),
			ClientType: r.ClientType,
			Client:     r.Client,
			Purpose:    r.Purpose,
			Approved:   r.Approved,
			Status:     status,
			Visit:      r.Visit,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := WeekdayOffset(out[i].Day), WeekdayOffset(out[j].Day)
		if oi != oj {
			return oi < oj
		}
		return out[i].TimeSlot < out[j].TimeSlot
	})
	return out, nil
}

// ApproveWeeklyRow approves a single row by id.
func (s *Service) ApproveWeeklyRow(ctx context.Context, actor string, rowID int64, createVisit *bool) (*ApproveResult, error) {
	if rowID == 0 {
		return nil, apperr.FieldValidation([]string{"name"}, "Row name is required.")
	}
	if err := s.requireManager(actor); err != nil {
		return nil, err
	}
	scheduleID, err := NewRepository(s.db).ScheduleOfRow(ctx, rowID)
	if err != nil {
		return nil, err
	}
	create := createVisit != nil && *createVisit
	return s.ApproveRows(ctx, actor, scheduleID, []int64{rowID}, &create)
}

// CreatePlannedVisits creates visits for the approved rows of user's
// schedule for weekStart, the current week when empty. Managers only.
func (s *Service) CreatePlannedVisits(ctx context.Context, actor, user, weekStart string) (*CreateResult, error) {
	if user == "" {
		user = actor
	}
	if err := s.requireManager(actor); err != nil {
		return nil, err
	}
	ws, err := s.find(ctx, user, weekStart, false)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return &CreateResult{Created: []int64{}, Skipped: []int64{}, Message: "No weekly schedule found."}, nil
	}
	return s.createForSchedule(ctx, actor, ws.ID)
}
