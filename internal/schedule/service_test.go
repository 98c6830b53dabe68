package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/config"
	"github.com/promise4all/visit-management/internal/crm"
	"github.com/promise4all/visit-management/internal/db"
	"github.com/promise4all/visit-management/internal/visit"
)

const (
	rep     = "rep@example.com"
	manager = "boss@example.com"
)

type fakeRoles map[string]bool

func (r fakeRoles) IsManager(user string) bool { return r[user] }
func (r fakeRoles) HasAnyRole(user string, _ []string) bool { return r[user] }

type fixture struct {
	svc    *Service
	visits *visit.Service
	now    time.Time
}

func testSetup(t *testing.T, adjust ...func(*config.Policy)) *fixture {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})

	if err := crm.NewRepository(d).Upsert(context.Background(), &crm.Client{Kind: crm.Customer, ID: "CUST-1", Name: "Acme"}); err != nil {
		t.Fatalf("upsert client: %v", err)
	}

	policy := config.DefaultPolicy()
	for _, fn := range adjust {
		fn(&policy)
	}

	f := &fixture{now: time.Date(2026, 2, 3, 8, 0, 0, 0, time.UTC)}
	now := func() time.Time { return f.now }
	roles := fakeRoles{manager: true}
	f.visits = visit.NewService(visit.Deps{DB: d, Policy: policy, Roles: roles, Now: now})
	f.svc = NewService(d, policy, roles, f.visits, now)
	return f
}

func (f *fixture) schedule(t *testing.T, rows ...*Detail) *WeeklySchedule {
	t.Helper()
	ws, err := f.svc.Save(context.Background(), rep, &WeeklySchedule{WeekStart: "2026-02-02", Rows: rows})
	if err != nil {
		t.Fatalf("save schedule: %v", err)
	}
	return ws
}

func demoRow(day, tm string) *Detail {
	return &Detail{Day: day, Time: tm, ClientType: crm.Customer, Client: "CUST-1", Purpose: "Demo"}
}

func TestSaveDefaultsOwnerAndStatus(t *testing.T) {
	f := testSetup(t)
	ws := f.schedule(t, demoRow("Monday", "10:00"))

	if ws.ID == 0 || ws.User != rep {
		t.Errorf("unexpected schedule %+v", ws)
	}
	if ws.Status != Draft {
		t.Errorf("status = %q, want Draft", ws.Status)
	}
	if len(ws.Rows) != 1 || ws.Rows[0].ID == 0 {
		t.Errorf("rows = %+v", ws.Rows)
	}
}

func TestSaveValidation(t *testing.T) {
	f := testSetup(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		ws    *WeeklySchedule
		field string
	}{
		{"bad date", &WeeklySchedule{WeekStart: "soon"}, "week_start"},
		{"not a monday", &WeeklySchedule{WeekStart: "2026-02-03"}, "week_start"},
		{"bad client type", &WeeklySchedule{WeekStart: "2026-02-02", Rows: []*Detail{{ClientType: "Vendor"}}}, "client_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Save(ctx, rep, tt.ws)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
			if fields := apperr.FieldsOf(err); len(fields) != 1 || fields[0] != tt.field {
				t.Errorf("fields = %v, want [%s]", fields, tt.field)
			}
		})
	}
}

func TestSaveDuplicateWeekConflicts(t *testing.T) {
	f := testSetup(t)
	f.schedule(t)

	_, err := f.svc.Save(context.Background(), rep, &WeeklySchedule{WeekStart: "2026-02-02"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("err = %v, want conflict", err)
	}
}

func TestSaveApprovalRequiresManager(t *testing.T) {
	f := testSetup(t)
	ctx := context.Background()
	ws := f.schedule(t, demoRow("Monday", "10:00"))

	ws.Rows[0].Approved = true
	if _, err := f.svc.Save(ctx, rep, ws); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("err = %v, want permission", err)
	}

	ws.Rows[0].ApprovedBy = "forged@example.com"
	got, err := f.svc.Save(ctx, manager, ws)
	if err != nil {
		t.Fatalf("save as manager: %v", err)
	}
	row := got.Rows[0]
	if !row.Approved || row.ApprovedBy != manager || row.ApprovedOn == nil {
		t.Errorf("approval not stamped: %+v", row)
	}
	if got.Status != Approved {
		t.Errorf("status = %q, want Approved", got.Status)
	}

	got.Rows = append(got.Rows, demoRow("Tuesday", "11:00"))
	got, err = f.svc.Save(ctx, rep, got)
	if err != nil {
		t.Fatalf("owner adds a row: %v", err)
	}
	if got.Status != PendingApproval {
		t.Errorf("status = %q, want Pending Approval", got.Status)
	}
	if got.Rows[0].ApprovedBy != manager {
		t.Errorf("stamp lost on owner save: %+v", got.Rows[0])
	}
}

func TestSaveRemovesRows(t *testing.T) {
	f := testSetup(t)
	ws := f.schedule(t, demoRow("Monday", "10:00"), demoRow("Tuesday", "10:00"))

	ws.Rows = ws.Rows[1:]
	got, err := f.svc.Save(context.Background(), rep, ws)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(got.Rows) != 1 || got.Rows[0].Day != "Tuesday" {
		t.Errorf("rows = %+v", got.Rows)
	}
}

func TestApproveRowsCreatesVisits(t *testing.T) {
	f := testSetup(t)
	ctx := context.Background()
	ws := f.schedule(t, demoRow("Wednesday", "14:30"))

	res, err := f.svc.ApproveRows(ctx, manager, ws.ID, nil, nil)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if res.Approved != 1 || len(res.Created) != 1 || len(res.Skipped) != 0 || res.Status != Approved {
		t.Fatalf("unexpected result %+v", res)
	}

	v, err := f.visits.Get(ctx, res.Created[0])
	if err != nil {
		t.Fatalf("get visit: %v", err)
	}
	if v.Status != visit.Planned || v.AssignedTo != rep || v.Subject != "Demo" {
		t.Errorf("unexpected visit %+v", v)
	}
	if want := time.Date(2026, 2, 4, 14, 30, 0, 0, time.UTC); v.ScheduledTime == nil || !v.ScheduledTime.Equal(want) {
		t.Errorf("scheduled = %v, want %v", v.ScheduledTime, want)
	}

	got, err := f.svc.Get(ctx, rep, ws.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if row := got.Rows[0]; row.Visit == nil || *row.Visit != v.ID || row.ApprovedBy != manager {
		t.Errorf("row not linked: %+v", row)
	}
}

func TestApproveRowsTwiceIsIdempotent(t *testing.T) {
	f := testSetup(t)
	ctx := context.Background()
	ws := f.schedule(t, demoRow("Wednesday", "14:30"))

	first, err := f.svc.ApproveRows(ctx, manager, ws.ID, nil, nil)
	if err != nil {
		t.Fatalf("first approve: %v", err)
	}
	second, err := f.svc.ApproveRows(ctx, manager, ws.ID, nil, nil)
	if err != nil {
		t.Fatalf("second approve: %v", err)
	}
	if second.Approved != 0 || len(second.Created) != 0 {
		t.Errorf("second run did work: %+v", second)
	}
	if len(second.Skipped) != 1 || second.Skipped[0] != ws.Rows[0].ID {
		t.Errorf("skipped = %v", second.Skipped)
	}

	visits, err := f.visits.List(ctx, visit.Filter{AssignedTo: rep})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visits) != 1 || visits[0].ID != first.Created[0] {
		t.Errorf("visits = %d, want exactly the first", len(visits))
	}
}

func TestApproveRowsSkipsIncompleteRowSilently(t *testing.T) {
	f := testSetup(t)
	ws := f.schedule(t, &Detail{Day: "Monday", Time: "10:00", Purpose: "Demo"}, demoRow("Tuesday", "09:00"))

	res, err := f.svc.ApproveRows(context.Background(), manager, ws.ID, nil, nil)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if res.Approved != 2 || len(res.Created) != 1 || len(res.Skipped) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestApproveRowsSubsetAndFlag(t *testing.T) {
	f := testSetup(t, func(p *config.Policy) { p.AutoCreateVisitsFromSchedule = false })
	ctx := context.Background()
	ws := f.schedule(t, demoRow("Monday", "10:00"), demoRow("Tuesday", "10:00"))

	res, err := f.svc.ApproveRows(ctx, manager, ws.ID, []int64{ws.Rows[0].ID}, nil)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if res.Approved != 1 || len(res.Created) != 0 || res.Status != PendingApproval {
		t.Errorf("unexpected result %+v", res)
	}

	create := true
	res, err = f.svc.ApproveRows(ctx, manager, ws.ID, []int64{ws.Rows[1].ID}, &create)
	if err != nil {
		t.Fatalf("approve with flag: %v", err)
	}
	if res.Approved != 1 || len(res.Created) != 1 || res.Status != Approved {
		t.Errorf("unexpected result %+v", res)
	}

	if _, err := f.svc.ApproveRows(ctx, manager, ws.ID, []int64{9999}, nil); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("unknown row: err = %v, want validation", err)
	}
}

func TestApproveRowsRequiresManager(t *testing.T) {
	f := testSetup(t)
	ws := f.schedule(t, demoRow("Monday", "10:00"))

	_, err := f.svc.ApproveRows(context.Background(), rep, ws.ID, nil, nil)
	if !errors.Is(err, apperr.ErrPermission) {
		t.Errorf("err = %v, want permission", err)
	}
}

func TestCreateVisitsForApprovedRows(t *testing.T) {
	f := testSetup(t, func(p *config.Policy) { p.AutoCreateVisitsFromSchedule = false })
	ctx := context.Background()
	ws := f.schedule(t, demoRow("Monday", "10:00"), demoRow("Tuesday", "10:00"))

	if _, err := f.svc.ApproveRows(ctx, manager, ws.ID, []int64{ws.Rows[0].ID}, nil); err != nil {
		t.Fatalf("approve: %v", err)
	}
	res, err := f.svc.CreateVisitsForApprovedRows(ctx, manager, ws.ID)
	if err != nil {
		t.Fatalf("create visits: %v", err)
	}
	if len(res.Created) != 1 || len(res.Skipped) != 0 {
		t.Errorf("first run = %+v", res)
	}
	res, err = f.svc.CreateVisitsForApprovedRows(ctx, manager, ws.ID)
	if err != nil {
		t.Fatalf("create visits again: %v", err)
	}
	if len(res.Created) != 0 || len(res.Skipped) != 1 {
		t.Errorf("second run = %+v", res)
	}
}

func TestReject(t *testing.T) {
	f := testSetup(t)
	ctx := context.Background()
	ws := f.schedule(t, demoRow("Monday", "10:00"))

	if _, err := f.svc.Reject(ctx, rep, ws.ID); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("err = %v, want permission", err)
	}
	got, err := f.svc.Reject(ctx, manager, ws.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != Rejected {
		t.Errorf("status = %q, want Rejected", got.Status)
	}

	got, err = f.svc.Save(ctx, rep, got)
	if err != nil {
		t.Fatalf("resave: %v", err)
	}
	if got.Status != Rejected {
		t.Errorf("status after save = %q, want Rejected", got.Status)
	}
}

func TestWeekRows(t *testing.T) {
	f := testSetup(t)
	ctx := context.Background()
	ws := f.schedule(t,
		demoRow("Friday", "09:00"),
		demoRow("Monday", "15:00"),
		demoRow("Monday", "08:30:00"),
	)
	if _, err := f.svc.ApproveRows(ctx, manager, ws.ID, []int64{ws.Rows[0].ID}, ptr(false)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	rows, err := f.svc.WeekRows(ctx, rep, "", "")
	if err != nil {
		t.Fatalf("week rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	want := []struct{ day, slot, status string }{
		{"Monday", "08:30", "Pending"},
		{"Monday", "15:00", "Pending"},
		{"Friday", "09:00", "Approved"},
	}
	for i, w := range want {
		r := rows[i]
		if r.Day != w.day || r.TimeSlot != w.slot || r.Status != w.status || r.Schedule != ws.ID {
			t.Errorf("row %d = %+v, want %v", i, r, w)
		}
	}

	rows, err = f.svc.WeekRows(ctx, rep, "", "2026-03-02")
	if err != nil {
		t.Fatalf("other week: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("other week = %v, want empty", rows)
	}

	if _, err := f.svc.WeekRows(ctx, "peer@example.com", rep, ""); !errors.Is(err, apperr.ErrPermission) {
		t.Errorf("peer: err = %v, want permission", err)
	}
}

func TestWeekRowsFallsBackToLatest(t *testing.T) {
	f := testSetup(t)
	f.schedule(t, demoRow("Monday", "10:00"))
	f.now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	rows, err := f.svc.WeekRows(context.Background(), rep, "", "")
	if err != nil {
		t.Fatalf("week rows: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d rows, want the latest schedule's 1", len(rows))
	}
}

func TestApproveWeeklyRow(t *testing.T) {
	f := testSetup(t)
	ctx := context.Background()
	ws := f.schedule(t, demoRow("Monday", "10:00"), demoRow("Tuesday", "10:00"), demoRow("Wednesday", "10:00"))

	tests := []struct {
		name        string
		row         int64
		createVisit *bool
		wantCreated int
	}{
		{"flag omitted", ws.Rows[0].ID, nil, 0},
		{"flag off", ws.Rows[1].ID, ptr(false), 0},
		{"flag on", ws.Rows[2].ID, ptr(true), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.ApproveWeeklyRow(ctx, manager, tt.row, tt.createVisit)
			if err != nil {
				t.Fatalf("approve row: %v", err)
			}
			if res.Approved != 1 || len(res.Created) != tt.wantCreated {
				t.Errorf("approved %d created %v, want 1 and %d", res.Approved, res.Created, tt.wantCreated)
			}
		})
	}

	_, err := f.svc.ApproveWeeklyRow(ctx, manager, 0, nil)
	if err == nil || err.Error() != "Row name is required." {
		t.Errorf("err = %v", err)
	}
	_, err = f.svc.ApproveWeeklyRow(ctx, manager, 4242, nil)
	if !errors.Is(err, apperr.ErrNotFound) || err.Error() != "Parent Weekly Schedule not found for row 4242" {
		t.Errorf("err = %v", err)
	}
	_, err = f.svc.ApproveWeeklyRow(ctx, rep, ws.Rows[0].ID, nil)
	if !errors.Is(err, apperr.ErrPermission) {
		t.Errorf("rep approve err = %v, want permission", err)
	}
}

func TestCreatePlannedVisits(t *testing.T) {
	f := testSetup(t, func(p *config.Policy) { p.AutoCreateVisitsFromSchedule = false })
	ctx := context.Background()

	res, err := f.svc.CreatePlannedVisits(ctx, manager, rep, "")
	if err != nil {
		t.Fatalf("no schedule: %v", err)
	}
	if res.Message != "No weekly schedule found." || res.Created == nil || len(res.Created) != 0 {
		t.Errorf("unexpected result %+v", res)
	}

	ws := f.schedule(t, demoRow("Monday", "10:00"))
	if _, err := f.svc.ApproveRows(ctx, manager, ws.ID, nil, nil); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if _, err := f.svc.CreatePlannedVisits(ctx, rep, "", "2026-02-02"); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("owner without manager role: err = %v, want permission", err)
	}
	if _, err := f.svc.CreateVisitsForApprovedRows(ctx, rep, ws.ID); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("create for approved rows as rep: err = %v, want permission", err)
	}

	res, err = f.svc.CreatePlannedVisits(ctx, manager, rep, "2026-02-02")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(res.Created) != 1 {
		t.Errorf("created = %v, want one visit", res.Created)
	}
}

func TestCreatePlannedVisitsIgnoresOlderWeeks(t *testing.T) {
	f := testSetup(t, func(p *config.Policy) { p.AutoCreateVisitsFromSchedule = false })
	ctx := context.Background()
	ws := f.schedule(t, demoRow("Monday", "10:00"))
	if _, err := f.svc.ApproveRows(ctx, manager, ws.ID, nil, nil); err != nil {
		t.Fatalf("approve: %v", err)
	}
	f.now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	res, err := f.svc.CreatePlannedVisits(ctx, manager, rep, "")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(res.Created) != 0 || res.Message != "No weekly schedule found." {
		t.Errorf("unexpected result %+v", res)
	}
}

func ptr[T any](v T) *T { return &v }
