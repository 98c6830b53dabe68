package cli

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/promise4all/visit-management/internal/auth"
	"github.com/promise4all/visit-management/internal/authz"
	"github.com/promise4all/visit-management/internal/crm"
	"github.com/promise4all/visit-management/internal/db"
	"github.com/promise4all/visit-management/internal/hr"
)

func testDBPath(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return filepath.Join(t.TempDir(), "test.db")
}

func reopen(t *testing.T, path string) *sql.DB {
	t.Helper()
	d, err := db.Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	return d
}

func TestAdminKeyLifecycle(t *testing.T) {
	path := testDBPath(t)

	if _, err := executeCommand("admin", "key", "create", "laptop", "--email", "Rep@Example.com", "--db", path); err != nil {
		t.Fatalf("key create: %v", err)
	}
	if _, err := executeCommand("admin", "key", "list", "--db", path, "--format", "json"); err != nil {
		t.Fatalf("key list: %v", err)
	}

	d := reopen(t, path)
	keys, err := auth.NewAPIKeyStore(d).List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0].Email != "rep@example.com" || keys[0].Name != "laptop" {
		t.Fatalf("keys = %+v", keys)
	}

	if _, err := executeCommand("admin", "key", "delete", "999", "--db", path); err == nil {
		t.Error("expected error deleting unknown key")
	}
}

func TestAdminRoles(t *testing.T) {
	path := testDBPath(t)

	if _, err := executeCommand("admin", "role", "assign", "boss@example.com", "Sales Manager", "--db", path); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := executeCommand("admin", "role", "assign", "boss@example.com", "Auditor", "--db", path); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := executeCommand("admin", "role", "revoke", "boss@example.com", "Auditor", "--db", path); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := executeCommand("admin", "role", "list", "boss@example.com", "--db", path); err != nil {
		t.Fatalf("list: %v", err)
	}

	roles, err := authz.New(reopen(t, path), []string{"Sales Manager"})
	if err != nil {
		t.Fatalf("authz: %v", err)
	}
	if !roles.IsManager("boss@example.com") {
		t.Error("boss should be a manager")
	}
	if roles.HasAnyRole("boss@example.com", []string{"Auditor"}) {
		t.Error("Auditor should have been revoked")
	}
}

func TestAdminReferenceData(t *testing.T) {
	path := testDBPath(t)

	steps := [][]string{
		{"admin", "user", "add", "rep@example.com", "--name", "Rep"},
		{"admin", "user", "disable", "rep@example.com"},
		{"admin", "employee", "add", "EMP-1", "Rep@example.com", "--name", "Rep"},
		{"admin", "client", "add", "CUST-1", "--name", "Acme", "--regular", "--frequency", "Monthly", "--address", "ACME-HQ"},
	}
	for _, args := range steps {
		if _, err := executeCommand(append(args, "--db", path)...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}
	if _, err := executeCommand("admin", "client", "add", "X", "--type", "Vendor", "--db", path); err == nil {
		t.Error("expected error for unknown client type")
	}

	ctx := context.Background()
	d := reopen(t, path)

	u, err := auth.NewUserStore(d).Get(ctx, "rep@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Enabled {
		t.Error("user should be disabled")
	}

	emp, err := hr.NewRepository(d).EmployeeForUser(ctx, "rep@example.com")
	if err != nil || emp == nil || emp.ID != "EMP-1" {
		t.Errorf("employee = %+v, err %v", emp, err)
	}

	repo := crm.NewRepository(d)
	ref := crm.Ref{Kind: crm.Customer, ID: "CUST-1"}
	c, err := repo.Get(ctx, ref)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if !c.RequiresRegularVisits || c.VisitFrequency != "Monthly" {
		t.Errorf("client = %+v", c)
	}
	if addr, err := repo.DefaultAddress(ctx, ref); err != nil || addr != "ACME-HQ" {
		t.Errorf("address = %q, err %v", addr, err)
	}
}

func TestJobsRunCleanup(t *testing.T) {
	path := testDBPath(t)
	if _, err := executeCommand("jobs", "run", "cleanup", "--config", t.TempDir(), "--db", path); err != nil {
		t.Fatalf("jobs run: %v", err)
	}
}
