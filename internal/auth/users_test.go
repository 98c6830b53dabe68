package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/db"
)

func testUserStore(t *testing.T) *UserStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := db.Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if cerr := d.Close(); cerr != nil {
			t.Errorf("close db: %v", cerr)
		}
	})
	return NewUserStore(d)
}

func TestUserAddAndGet(t *testing.T) {
	s := testUserStore(t)
	ctx := context.Background()

	u, err := s.Add(ctx, " Rep@Example.com ", "Field Rep")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if u.Email != "rep@example.com" || u.FullName != "Field Rep" || !u.Enabled {
		t.Errorf("user = %+v", u)
	}

	if _, err := s.Add(ctx, "", "Nobody"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty email: err = %v, want validation", err)
	}
	if _, err := s.Get(ctx, "ghost@example.com"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing user: err = %v, want not found", err)
	}
}

func TestUserSetEnabled(t *testing.T) {
	s := testUserStore(t)
	ctx := context.Background()

	if _, err := s.Add(ctx, "rep@example.com", ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.SetEnabled(ctx, "rep@example.com", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	u, err := s.Get(ctx, "rep@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.Enabled {
		t.Error("expected user to be disabled")
	}

	if _, err := s.Add(ctx, "rep@example.com", "Back"); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	users, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 1 || !users[0].Enabled || users[0].FullName != "Back" {
		t.Errorf("users = %+v", users)
	}

	if err := s.SetEnabled(ctx, "ghost@example.com", true); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}
