package visit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/attachment"
	"github.com/promise4all/visit-management/internal/config"
	"github.com/promise4all/visit-management/internal/crm"
	"github.com/promise4all/visit-management/internal/db"
	"github.com/promise4all/visit-management/internal/erp"
	"github.com/promise4all/visit-management/internal/hr"
	"github.com/promise4all/visit-management/internal/metrics"
)

// RoleChecker answers role questions about a user.
type RoleChecker interface {
	IsManager(user string) bool
	HasAnyRole(user string, roles []string) bool
}

// Attacher stores photo uploads. Store leaves older files on the field in
// place until Commit; Discard drops an upload that was never used.
type Attacher interface {
	Store(ctx context.Context, req attachment.Request) (*attachment.Attachment, error)
	Commit(ctx context.Context, a *attachment.Attachment)
	Discard(ctx context.Context, a *attachment.Attachment)
}

// Deps are the collaborators of a Service.
type Deps struct {
	DB     *sql.DB
	Policy config.Policy
	Roles  RoleChecker
	Files  Attacher
	Linker *erp.Linker
	CRM    *crm.Syncer
	Now    func() time.Time
}

// Service runs the visit state machine.
type Service struct {
	db     *sql.DB
	policy config.Policy
	roles  RoleChecker
	files  Attacher
	linker *erp.Linker
	crm    *crm.Syncer
	now    func() time.Time
}

// NewService creates a visit service. Missing optional collaborators get
// defaults backed by d.DB.
func NewService(d Deps) *Service {
	s := &Service{
		db:     d.DB,
		policy: d.Policy,
		roles:  d.Roles,
		files:  d.Files,
		linker: d.Linker,
		crm:    d.CRM,
		now:    d.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.linker == nil {
		s.linker = erp.NewLinker(d.Policy.DefaultCompany, s.now)
	}
	if s.crm == nil {
		s.crm = crm.NewSyncer(d.DB)
	}
	return s
}

func (s *Service) clock() time.Time {
	return db.Timestamp(s.now())
}

func (s *Service) isManager(actor string) bool {
	return s.roles != nil && s.roles.IsManager(actor)
}

// Create validates and stores a new visit. Status defaults to Planned.
func (s *Service) Create(ctx context.Context, actor string, v *Visit) (*Visit, error) {
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.CreateTx(ctx, tx, actor, v)
	})
	if err != nil {
		return nil, err
	}

	metrics.Transition(string(v.Status))
	if v.Status == Completed {
		s.touchClient(ctx, v)
	}
	return s.Get(ctx, v.ID)
}

// CreateTx validates and inserts v inside tx, setting v.ID. The CRM sync
// for completed visits is left to the caller.
func (s *Service) CreateTx(ctx context.Context, tx *sql.Tx, actor string, v *Visit) error {
	if v.Status == "" {
		v.Status = Planned
	}
	st, ok := ParseStatus(string(v.Status))
	if !ok {
		return apperr.FieldValidation([]string{"status"}, "Unknown status %q.", v.Status)
	}
	v.Status = st
	if v.Status == Cancelled {
		return apperr.InvalidState("A visit cannot be created as Cancelled.")
	}
	if err := validateClient(v); err != nil {
		return err
	}
	if v.Location != "" {
		g, err := ParseGeolocation(v.Location)
		if err != nil {
			return apperr.FieldValidation([]string{"location"}, "Location must be a latitude/longitude pair.")
		}
		v.Location = g.String()
	}

	now := s.clock()
	v.ID = 0
	v.DocStatus = DocOpen
	v.CreatedAt = now
	v.ModifiedAt = now
	deriveDuration(v)

	if v.Status == Completed {
		if err := s.complete(ctx, tx, actor, v); err != nil {
			return err
		}
	}
	repo := NewRepository(tx)
	if err := repo.Insert(ctx, v); err != nil {
		return err
	}
	return repo.AppendLog(ctx, v.ID, LogEntry{Timestamp: now, Activity: ActivityCreated, User: actor})
}

// Get returns a visit with its log.
func (s *Service) Get(ctx context.Context, id int64) (*Visit, error) {
	return NewRepository(s.db).Get(ctx, id)
}

// List returns visits matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]*Visit, error) {
	return NewRepository(s.db).List(ctx, f)
}

// Update applies a direct edit. Setting status Cancelled is routed to
// Cancel.
func (s *Service) Update(ctx context.Context, actor string, v *Visit) (*Visit, error) {
	st, ok := ParseStatus(string(v.Status))
	if !ok {
		return nil, apperr.FieldValidation([]string{"status"}, "Unknown status %q.", v.Status)
	}
	v.Status = st
	if v.Status == Cancelled {
		return s.Cancel(ctx, actor, v.ID)
	}

	var from Status
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := NewRepository(tx)
		old, err := repo.Get(ctx, v.ID)
		if err != nil {
			return err
		}
		from = old.Status

		switch old.DocStatus {
		case DocSubmitted:
			return apperr.InvalidState("Visit %d is submitted and cannot be edited. Cancel it instead.", v.ID)
		case DocCancelled:
			return apperr.InvalidState("Visit %d is cancelled and cannot be edited.", v.ID)
		}
		if err := s.validateEdit(old, v); err != nil {
			return err
		}

		v.DocStatus = old.DocStatus
		v.CreatedAt = old.CreatedAt
		v.ModifiedAt = s.clock()
		deriveDuration(v)

		if v.Status == Completed {
			if err := s.complete(ctx, tx, actor, v); err != nil {
				return err
			}
		}
		if err := repo.Save(ctx, v); err != nil {
			return err
		}

		activity := ActivityUpdated
		if v.Status != old.Status {
			activity = "Status changed to " + string(v.Status)
		}
		return repo.AppendLog(ctx, v.ID, LogEntry{Timestamp: v.ModifiedAt, Activity: activity, User: actor})
	})
	if err != nil {
		return nil, err
	}

	if v.Status != from {
		metrics.Transition(string(v.Status))
		if v.Status == Completed {
			s.touchClient(ctx, v)
		}
	}
	return s.Get(ctx, v.ID)
}

// validateEdit checks a direct edit of old into v.
func (s *Service) validateEdit(old, v *Visit) error {
	if err := validateClient(v); err != nil {
		return err
	}
	if headerLocked(old.Status) {
		if changed := changedHeaderFields(old, v); len(changed) > 0 {
			return apperr.FieldValidation(changed,
				"Cannot change %s once the visit is %s.", strings.Join(changed, ", "), old.Status)
		}
	}
	if !CanTransition(old.Status, v.Status) {
		return apperr.InvalidState("Cannot change status from %s to %s.", old.Status, v.Status)
	}
	if v.Location != "" && v.Location != old.Location {
		g, err := ParseGeolocation(v.Location)
		if err != nil {
			return apperr.FieldValidation([]string{"location"}, "Location must be a latitude/longitude pair.")
		}
		v.Location = g.String()
	}
	return nil
}

// complete enforces the completion rules on v and submits it. A missing
// maintenance link is filled by creating a maintenance visit inside q's
// transaction.
func (s *Service) complete(ctx context.Context, q db.Querier, actor string, v *Visit) error {
	if strings.TrimSpace(v.VisitOutcome) == "" {
		return apperr.FieldValidation([]string{"visit_outcome"}, "Visit Outcome is required to complete a visit.")
	}
	if s.policy.RequireGeolocation && v.Location == "" {
		return apperr.FieldValidation([]string{"location"}, "Location is required to complete a visit.")
	}
	if v.CheckInTime == nil && !(s.roles != nil && s.roles.HasAnyRole(actor, s.policy.CheckinExemptRoles)) {
		return apperr.FieldValidation([]string{"check_in_time"}, "Check-in is required before completing a visit.")
	}
	if err := hasEvidence(v, s.policy.CompletionEvidence); err != nil {
		return err
	}

	if v.NeedsMaintenanceLink() {
		if strings.TrimSpace(v.MaintenanceDetails) == "" {
			return apperr.FieldValidation([]string{"maintenance_details"}, "Maintenance Details are required for maintenance visits.")
		}
		if v.SupportIssue == "" && v.MaintenanceVisit == nil {
			res := s.linker.AutoCreate(ctx, q, s.maintenanceRequest(ctx, q, actor, v))
			if !res.Created() {
				slog.Warn("maintenance visit auto-create", "visit", v.ID, "skipped", res.Skipped, "reason", res.Reason, "error", res.Err)
				return apperr.FieldValidation([]string{"support_issue", "maintenance_visit"},
					"Provide either a Support Issue or a Maintenance Visit when completing a maintenance visit.")
			}
			id := res.MaintenanceVisit
			v.MaintenanceVisit = &id
		}
	}

	v.DocStatus = DocSubmitted
	return nil
}

func (s *Service) maintenanceRequest(ctx context.Context, q db.Querier, actor string, v *Visit) erp.Request {
	req := erp.Request{
		Customer:  v.Client,
		Address:   v.Address,
		CheckOut:  v.CheckOutTime,
		Scheduled: v.ScheduledTime,
		Item:      v.MVItem,
		SerialNo:  v.MVSerialNo,
		Problem:   v.MVProblemReported,
		WorkDone:  v.MVWorkDone,
	}
	if req.Problem == "" {
		req.Problem = v.MaintenanceDetails
	}
	if req.Address == "" {
		if addr, err := crm.NewRepository(q).DefaultAddress(ctx, v.Ref()); err == nil {
			req.Address = addr
		}
	}
	person := v.AssignedTo
	if person == "" {
		person = actor
	}
	if person != "" {
		if emp, err := hr.NewRepository(q).EmployeeForUser(ctx, person); err == nil && emp != nil {
			req.Employee = emp.ID
		}
	}
	return req
}

// touchClient runs the CRM last-visit sync after commit.
func (s *Service) touchClient(ctx context.Context, v *Visit) {
	when := s.clock()
	if v.CheckOutTime != nil {
		when = *v.CheckOutTime
	}
	res := s.crm.Touch(ctx, v.Ref(), when)
	switch {
	case res.Err != nil:
		slog.Warn("crm sync failed", "visit", v.ID, "client", v.Ref().String(), "error", res.Err)
	case res.Skipped:
		slog.Debug("crm sync skipped", "visit", v.ID, "reason", res.Reason)
	}
}

// Cancel forces a visit to Cancelled. Managers only.
func (s *Service) Cancel(ctx context.Context, actor string, id int64) (*Visit, error) {
	if !s.isManager(actor) {
		return nil, apperr.Permission("Only managers can cancel visits.")
	}
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := NewRepository(tx)
		v, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if v.Status == Cancelled {
			return apperr.InvalidState("Visit %d is already cancelled.", id)
		}
		v.Status = Cancelled
		v.DocStatus = DocCancelled
		v.ModifiedAt = s.clock()
		if err := repo.Save(ctx, v); err != nil {
			return err
		}
		return repo.AppendLog(ctx, id, LogEntry{Timestamp: v.ModifiedAt, Activity: ActivityCancel, User: actor})
	})
	if err != nil {
		return nil, err
	}
	metrics.Transition(string(Cancelled))
	return s.Get(ctx, id)
}

// Delete removes a visit that was never submitted.
func (s *Service) Delete(ctx context.Context, actor string, id int64) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := NewRepository(tx)
		v, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if v.DocStatus != DocOpen {
			return apperr.Conflict("Visit %d has been submitted and cannot be deleted.", id)
		}
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		slog.Info("visit deleted", "visit", id, "user", actor)
		return nil
	})
}

// CheckIn records arrival at the client.
func (s *Service) CheckIn(ctx context.Context, actor string, id int64, in CheckInput) (*CheckResult, error) {
	return s.check(ctx, actor, id, in, checkIn)
}

// CheckOut records departure and completes the visit.
func (s *Service) CheckOut(ctx context.Context, actor string, id int64, in CheckInput) (*CheckResult, error) {
	return s.check(ctx, actor, id, in, checkOut)
}

type checkSide struct {
	name         string
	field        string
	logType      string
	activity     string
	requirePhoto func(config.Policy) bool
	missingPhoto string
}

var (
	checkIn = checkSide{
		name:         "in",
		field:        "check_in_photo",
		logType:      hr.LogIn,
		activity:     ActivityCheckIn,
		requirePhoto: func(p config.Policy) bool { return p.RequirePhotoForCheckIn },
		missingPhoto: "Attendance photo is required for Check-in.",
	}
	checkOut = checkSide{
		name:         "out",
		field:        "check_out_photo",
		logType:      hr.LogOut,
		activity:     ActivityCheckOut,
		requirePhoto: func(p config.Policy) bool { return p.RequirePhotoForCheckOut },
		missingPhoto: "Attendance photo is required for Check-out.",
	}
)

func (s *Service) checkPreconditions(v *Visit, side checkSide) error {
	if side.name == "in" {
		if v.CheckInTime != nil {
			return apperr.InvalidState("Already checked in.")
		}
	} else {
		if v.CheckInTime == nil {
			return apperr.Validation("Check-in first before checking out.")
		}
		if v.CheckOutTime != nil {
			return apperr.InvalidState("Already checked out.")
		}
	}
	if v.Status == Completed || v.Status == Cancelled {
		return apperr.InvalidState("Visit %d is %s.", v.ID, v.Status)
	}
	return nil
}

func (s *Service) check(ctx context.Context, actor string, id int64, in CheckInput, side checkSide) (*CheckResult, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkPreconditions(v, side); err != nil {
		return nil, err
	}

	var employee *hr.Employee
	if s.policy.EnableHRIntegration {
		employee, err = hr.NewRepository(s.db).EmployeeForUser(ctx, actor)
		if err != nil {
			return nil, err
		}
		if employee == nil {
			return nil, apperr.Configuration("No Employee linked to user %s. Please link an Employee to proceed.", actor)
		}
	}

	var geo *Geolocation
	if strings.TrimSpace(in.Location) != "" {
		g, err := ParseGeolocation(in.Location)
		if err != nil {
			return nil, apperr.FieldValidation([]string{"location"}, "Location must be a latitude/longitude pair.")
		}
		geo = &g
	}

	// The photo is stored before the transaction opens: the attachment
	// service writes through its own connection. Older photos on the field
	// survive until the transaction commits.
	upload, err := s.attachPhoto(ctx, id, in, side)
	if err != nil {
		return nil, err
	}
	photo := ""
	if upload != nil {
		photo = upload.FileURL
	}

	result := &CheckResult{Visit: id}
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := NewRepository(tx)
		v, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkPreconditions(v, side); err != nil {
			return err
		}

		now := s.clock()
		v.ModifiedAt = now
		if geo != nil {
			if v.Location == "" {
				v.Location = geo.String()
			}
		}

		if side.name == "in" {
			v.CheckInTime = &now
			result.CheckInTime = &now
			v.Status = InProgress
			if photo != "" {
				v.CheckInPhoto = photo
			}
			if geo != nil && v.CheckInLocation == "" {
				v.CheckInLocation = geo.Label()
			}
		} else {
			v.CheckOutTime = &now
			result.CheckOutTime = &now
			v.Status = Completed
			if photo != "" {
				v.CheckOutPhoto = photo
			}
			if geo != nil && v.CheckOutLocation == "" {
				v.CheckOutLocation = geo.Label()
			}
			if in.Outcome != "" {
				v.VisitOutcome = in.Outcome
			}
			if in.ReportSummary != "" {
				v.ReportSummary = in.ReportSummary
			}
			deriveDuration(v)
			if err := s.complete(ctx, tx, actor, v); err != nil {
				return err
			}
		}

		if err := repo.Save(ctx, v); err != nil {
			return err
		}
		if err := repo.AppendLog(ctx, id, LogEntry{Timestamp: now, Activity: side.activity, User: actor}); err != nil {
			return err
		}

		if employee == nil {
			return nil
		}
		result.Employee = employee.ID
		hrRepo := hr.NewRepository(tx)
		checkinID, err := hrRepo.RecordCheckin(ctx, employee.ID, side.logType, now, id)
		if err != nil {
			return err
		}
		result.EmployeeCheckin = checkinID
		s.stampAttendance(ctx, hrRepo, employee.ID, now, side)
		return nil
	})
	if err != nil {
		if upload != nil {
			s.files.Discard(ctx, upload)
		}
		return nil, err
	}
	if upload != nil {
		s.files.Commit(ctx, upload)
	}

	metrics.Check(side.name)
	if side.name == "in" {
		metrics.Transition(string(InProgress))
	} else {
		metrics.Transition(string(Completed))
		done, err := s.Get(ctx, id)
		if err == nil {
			s.touchClient(ctx, done)
		}
	}
	return result, nil
}

// attachPhoto stores the optional photo and enforces the photo policy.
// The returned upload is nil when no photo was stored.
func (s *Service) attachPhoto(ctx context.Context, id int64, in CheckInput, side checkSide) (*attachment.Attachment, error) {
	var (
		attachErr error
		upload    *attachment.Attachment
	)
	if in.PhotoData != "" && s.files != nil {
		name := in.PhotoFilename
		if name == "" {
			name = fmt.Sprintf("visit-%d-%s.jpg", id, side.name)
		}
		a, err := s.files.Store(ctx, attachment.Request{
			FileName:  name,
			FileData:  in.PhotoData,
			DocType:   "Visit",
			DocName:   strconv.FormatInt(id, 10),
			FieldName: side.field,
			IsPrivate: true,
		})
		if err != nil {
			attachErr = err
			slog.Warn("attaching visit photo", "visit", id, "field", side.field, "error", err)
		} else {
			upload = a
		}
	}

	if upload == nil && side.requirePhoto(s.policy) {
		if attachErr != nil {
			return nil, apperr.FieldValidation([]string{side.field}, "Could not attach the photo (%v). %s", attachErr, side.missingPhoto)
		}
		return nil, apperr.FieldValidation([]string{side.field}, "%s", side.missingPhoto)
	}
	return upload, nil
}

// stampAttendance records the in/out time on today's attendance. Failures
// are logged and do not fail the check.
func (s *Service) stampAttendance(ctx context.Context, repo *hr.Repository, employee string, at time.Time, side checkSide) {
	att, err := repo.EnsureAttendance(ctx, employee, at.Format(db.DateLayout))
	if err != nil {
		slog.Warn("ensuring attendance", "employee", employee, "error", err)
		return
	}
	if side.name == "in" {
		err = repo.StampIn(ctx, att.ID, at)
	} else {
		err = repo.StampOut(ctx, att.ID, at)
	}
	if err != nil {
		slog.Warn("stamping attendance", "employee", employee, "side", side.name, "error", err)
	}
}

// CreateMaintenanceVisitNow links a maintenance visit to a completed
// maintenance visit that has none.
func (s *Service) CreateMaintenanceVisitNow(ctx context.Context, actor string, id int64) (int64, error) {
	var mv int64
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := NewRepository(tx)
		v, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if v.Status != Completed || !v.NeedsMaintenanceLink() || v.MaintenanceVisit != nil {
			return apperr.Validation("Cannot create Maintenance Visit. Ensure this Visit is Completed, has purpose 'Maintenance', client type is 'Customer', and no Maintenance Visit is linked yet.")
		}
		res := s.linker.AutoCreate(ctx, tx, s.maintenanceRequest(ctx, tx, actor, v))
		if !res.Created() {
			if res.Err != nil {
				return fmt.Errorf("creating maintenance visit: %w", res.Err)
			}
			return apperr.Validation("Maintenance Visit was not created: %s.", res.Reason)
		}
		mv = res.MaintenanceVisit
		now := s.clock()
		if err := repo.SetMaintenanceVisit(ctx, id, mv, now); err != nil {
			return err
		}
		return repo.AppendLog(ctx, id, LogEntry{
			Timestamp: now,
			Activity:  fmt.Sprintf("Maintenance Visit %d created", mv),
			User:      actor,
		})
	})
	if err != nil {
		return 0, err
	}
	return mv, nil
}

// SetPhoto records an uploaded photo on an open visit.
func (s *Service) SetPhoto(ctx context.Context, actor string, id int64, field, url string) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := NewRepository(tx)
		v, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if v.DocStatus != DocOpen {
			return apperr.InvalidState("Visit %d is no longer open.", id)
		}
		if err := repo.SetPhoto(ctx, id, field, url, s.clock()); err != nil {
			return err
		}
		slog.Debug("visit photo set", "visit", id, "field", field, "user", actor)
		return nil
	})
}

// ClientDefaultAddress returns the default address of a client, or "".
func (s *Service) ClientDefaultAddress(ctx context.Context, ref crm.Ref) (string, error) {
	kind, err := crm.ParseKind(string(ref.Kind))
	if err != nil {
		return "", err
	}
	ref.Kind = kind
	if ref.IsZero() {
		return "", apperr.FieldValidation([]string{"client"}, "Client is required.")
	}
	return crm.NewRepository(s.db).DefaultAddress(ctx, ref)
}

// Assignees returns the enabled users that have visits assigned.
func (s *Service) Assignees(ctx context.Context) ([]string, error) {
	return NewRepository(s.db).Assignees(ctx)
}

// Upcoming returns open visits scheduled within [from, to].
func (s *Service) Upcoming(ctx context.Context, from, to time.Time) ([]*Visit, error) {
	return NewRepository(s.db).Upcoming(ctx, from, to)
}

// DeleteDraftsBefore deletes stale open drafts one by one. A failed delete
// is logged and counted; the rest continue.
func (s *Service) DeleteDraftsBefore(ctx context.Context, cutoff time.Time) (deleted, failed int, err error) {
	repo := NewRepository(s.db)
	ids, err := repo.StaleDrafts(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return deleted, failed, err
		}
		if err := repo.Delete(ctx, id); err != nil {
			slog.Warn("deleting stale draft", "visit", id, "error", err)
			failed++
			continue
		}
		deleted++
	}
	return deleted, failed, nil
}
