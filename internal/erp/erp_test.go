package erp

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/promise4all/visit-management/internal/db"
)

func testSetup(t *testing.T) (*Repository, *sql.DB) {
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
	return NewRepository(d), d
}

func TestDefaultCompany(t *testing.T) {
	repo, _ := testSetup(t)
	ctx := context.Background()

	got, err := repo.DefaultCompany(ctx, "")
	if err != nil || got != "" {
		t.Fatalf("no companies: %q, %v", got, err)
	}

	if err := repo.AddCompany(ctx, "Zeta Ltd", true); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := repo.AddCompany(ctx, "Alpha Ltd", false); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err = repo.DefaultCompany(ctx, "")
	if err != nil || got != "Zeta Ltd" {
		t.Errorf("first enabled = %q, %v; want Zeta Ltd", got, err)
	}

	got, err = repo.DefaultCompany(ctx, "Configured Co")
	if err != nil || got != "Configured Co" {
		t.Errorf("configured = %q, %v", got, err)
	}
}

func TestServicePersonFallbacks(t *testing.T) {
	repo, _ := testSetup(t)
	ctx := context.Background()

	got, err := repo.ServicePerson(ctx, "EMP-1")
	if err != nil || got != "" {
		t.Fatalf("none: %q, %v", got, err)
	}

	if err := repo.AddSalesPerson(ctx, "Bravo", ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, _ = repo.ServicePerson(ctx, "EMP-1")
	if got != "Bravo" {
		t.Errorf("any = %q, want Bravo", got)
	}

	if err := repo.AddSalesPerson(ctx, SalesTeam, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, _ = repo.ServicePerson(ctx, "EMP-1")
	if got != SalesTeam {
		t.Errorf("root = %q, want %q", got, SalesTeam)
	}

	if err := repo.AddSalesPerson(ctx, "Rep One", "EMP-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, _ = repo.ServicePerson(ctx, "EMP-1")
	if got != "Rep One" {
		t.Errorf("linked = %q, want Rep One", got)
	}
}

func TestLinkerAutoCreate(t *testing.T) {
	repo, d := testSetup(t)
	ctx := context.Background()

	if err := repo.AddCompany(ctx, "Acme Corp", true); err != nil {
		t.Fatalf("add company: %v", err)
	}
	if err := repo.AddSalesPerson(ctx, SalesTeam, ""); err != nil {
		t.Fatalf("add sales person: %v", err)
	}

	checkout := time.Date(2026, 2, 4, 16, 0, 0, 0, time.UTC)
	scheduled := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	l := NewLinker("", nil)

	res := autoCreate(t, d, l, Request{
		Customer:  "CUST-1",
		Address:   "CUST-1-HQ",
		CheckOut:  &checkout,
		Scheduled: &scheduled,
		Problem:   strings.Repeat("x", 1200),
		WorkDone:  "replaced filter",
	})
	if res.Err != nil || !res.Created() {
		t.Fatalf("auto create = %+v", res)
	}

	mv, err := repo.GetMaintenanceVisit(ctx, res.MaintenanceVisit)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if mv.Date != "2026-02-04" {
		t.Errorf("mntc_date = %q, want checkout date", mv.Date)
	}
	if mv.Company != "Acme Corp" || mv.MaintenanceType != "Unscheduled" || mv.CompletionStatus != "Fully Completed" {
		t.Errorf("header = %+v", mv)
	}
	if mv.CustomerAddress != "CUST-1-HQ" {
		t.Errorf("address = %q", mv.CustomerAddress)
	}
	if len(mv.Purposes) != 1 {
		t.Fatalf("purposes = %d, want 1", len(mv.Purposes))
	}
	p := mv.Purposes[0]
	if len(p.Description) != maxTextLen {
		t.Errorf("description length = %d, want %d", len(p.Description), maxTextLen)
	}
	if p.ServicePerson != SalesTeam {
		t.Errorf("service person = %q", p.ServicePerson)
	}
}

func TestLinkerDateFallbacks(t *testing.T) {
	_, d := testSetup(t)
	ctx := context.Background()

	today := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLinker("Configured Co", func() time.Time { return today })
	repo := NewRepository(d)

	scheduled := time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)
	res := autoCreate(t, d, l, Request{Customer: "C1", Scheduled: &scheduled})
	mv, err := repo.GetMaintenanceVisit(ctx, res.MaintenanceVisit)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if mv.Date != "2026-02-20" {
		t.Errorf("date = %q, want scheduled date", mv.Date)
	}
	if len(mv.Purposes) != 0 {
		t.Errorf("purposes = %v, want none without details", mv.Purposes)
	}

	res = autoCreate(t, d, l, Request{Customer: "C1"})
	mv, err = repo.GetMaintenanceVisit(ctx, res.MaintenanceVisit)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if mv.Date != "2026-03-01" || mv.Company != "Configured Co" {
		t.Errorf("got %+v, want today and configured company", mv)
	}

	res = autoCreate(t, d, l, Request{})
	if !res.Skipped || res.Created() {
		t.Errorf("no customer = %+v, want skipped", res)
	}
}

func autoCreate(t *testing.T, d *sql.DB, l *Linker, req Request) Result {
	t.Helper()
	var res Result
	err := db.WithTx(context.Background(), d, func(tx *sql.Tx) error {
		res = l.AutoCreate(context.Background(), tx, req)
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	return res
}

func TestLinkerFailureLeavesNothingBehind(t *testing.T) {
	_, d := testSetup(t)
	ctx := context.Background()
	l := NewLinker("", nil)

	if _, err := d.Exec("DROP TABLE maintenance_visit_purposes"); err != nil {
		t.Fatalf("drop: %v", err)
	}

	res := autoCreate(t, d, l, Request{Customer: "C1", WorkDone: "fixed"})
	if res.Err == nil || res.Created() {
		t.Fatalf("res = %+v, want error", res)
	}

	var n int
	if err := d.QueryRowContext(ctx, "SELECT COUNT(*) FROM maintenance_visits").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("maintenance_visits = %d, want 0 after savepoint rollback", n)
	}
}
