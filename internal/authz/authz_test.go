package authz

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/promise4all/visit-management/internal/db"
)

var managers = []string{"Sales Manager", "System Manager"}

func testSetup(t *testing.T) (*Authorizer, *sql.DB) {
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

	a, err := New(d, managers)
	if err != nil {
		t.Fatalf("new authorizer: %v", err)
	}
	return a, d
}

func TestManagerPermissions(t *testing.T) {
	a, _ := testSetup(t)
	ctx := context.Background()

	if err := a.Assign(ctx, "boss@example.com", "Sales Manager"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := a.Assign(ctx, "rep@example.com", "Sales User"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	tests := []struct {
		user string
		obj  Resource
		act  Action
		want bool
	}{
		{"boss@example.com", ResourceVisit, ActionCancel, true},
		{"boss@example.com", ResourceSchedule, ActionApprove, true},
		{"boss@example.com", ResourceKPI, ActionTeam, true},
		{"rep@example.com", ResourceVisit, ActionCancel, false},
		{"rep@example.com", ResourceSchedule, ActionApprove, false},
		{"nobody@example.com", ResourceKPI, ActionTeam, false},
	}
	for _, tt := range tests {
		got, err := a.Can(tt.user, tt.obj, tt.act)
		if err != nil {
			t.Fatalf("can(%s, %s, %s): %v", tt.user, tt.obj, tt.act, err)
		}
		if got != tt.want {
			t.Errorf("can(%s, %s, %s) = %v, want %v", tt.user, tt.obj, tt.act, got, tt.want)
		}
	}

	if !a.IsManager("boss@example.com") {
		t.Error("expected boss to be a manager")
	}
	if a.IsManager("rep@example.com") {
		t.Error("rep should not be a manager")
	}
}

func TestCanRejectsEmptyArgs(t *testing.T) {
	a, _ := testSetup(t)
	if _, err := a.Can("", ResourceVisit, ActionCancel); err == nil {
		t.Error("expected error for empty subject")
	}
}

func TestHasAnyRole(t *testing.T) {
	a, _ := testSetup(t)
	if err := a.Assign(context.Background(), "ops@example.com", "Back Office"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if !a.HasAnyRole("ops@example.com", []string{"Auditor", "back office"}) {
		t.Error("expected case-insensitive role match")
	}
	if a.HasAnyRole("ops@example.com", nil) {
		t.Error("empty role list should never match")
	}
}

func TestAssignPersistsAcrossInstances(t *testing.T) {
	a, d := testSetup(t)
	ctx := context.Background()

	if err := a.Assign(ctx, "boss@example.com", "System Manager"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	// Assigning twice is a no-op.
	if err := a.Assign(ctx, "boss@example.com", "System Manager"); err != nil {
		t.Fatalf("assign again: %v", err)
	}

	b, err := New(d, managers)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !b.IsManager("boss@example.com") {
		t.Error("expected role loaded from user_roles")
	}

	if err := b.Revoke(ctx, "boss@example.com", "System Manager"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if b.IsManager("boss@example.com") {
		t.Error("expected manager role revoked")
	}
	roles, err := b.Roles("boss@example.com")
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	if len(roles) != 0 {
		t.Errorf("roles = %v, want none", roles)
	}
}
