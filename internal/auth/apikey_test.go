package auth

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/db"
)

func testAPIKeyStore(t *testing.T) *APIKeyStore {
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
	return NewAPIKeyStore(d)
}

func TestAPIKeyCreateAndValidate(t *testing.T) {
	store := testAPIKeyStore(t)
	ctx := context.Background()

	rawKey, key, err := store.Create(ctx, "Laptop", " Rep@Example.com ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(rawKey, "vm_") || len(rawKey) != 3+64 {
		t.Errorf("raw key = %q", rawKey)
	}
	if key.Email != "rep@example.com" || key.KeyPrefix != rawKey[:8] {
		t.Errorf("key = %+v", key)
	}

	email, err := store.Validate(ctx, rawKey)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if email != "rep@example.com" {
		t.Errorf("email = %q, want rep@example.com", email)
	}

	keys, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0].LastUsedAt == nil {
		t.Errorf("expected last_used_at to be set: %+v", keys)
	}
}

func TestAPIKeyValidateInvalid(t *testing.T) {
	store := testAPIKeyStore(t)

	email, err := store.Validate(context.Background(), "vm_boguskey12345678")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if email != "" {
		t.Errorf("email = %q, want empty", email)
	}
}

func TestAPIKeyRequiresEmail(t *testing.T) {
	store := testAPIKeyStore(t)

	if _, _, err := store.Create(context.Background(), "Orphan", " "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestAPIKeyListAndDelete(t *testing.T) {
	store := testAPIKeyStore(t)
	ctx := context.Background()

	if _, _, err := store.Create(ctx, "Key 1", "a@example.com"); err != nil {
		t.Fatalf("create 1: %v", err)
	}
	raw, k2, err := store.Create(ctx, "Key 2", "b@example.com")
	if err != nil {
		t.Fatalf("create 2: %v", err)
	}

	keys, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 || keys[0].Name != "Key 2" {
		t.Fatalf("keys = %+v", keys)
	}

	if err := store.Delete(ctx, k2.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if email, _ := store.Validate(ctx, raw); email != "" {
		t.Error("deleted key still validates")
	}
	if err := store.Delete(ctx, k2.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete: err = %v, want not found", err)
	}
}

func TestAPIKeyOfDisabledUser(t *testing.T) {
	store := testAPIKeyStore(t)
	users := NewUserStore(store.db)
	ctx := context.Background()

	if _, err := users.Add(ctx, "rep@example.com", "Field Rep"); err != nil {
		t.Fatalf("add user: %v", err)
	}
	raw, _, err := store.Create(ctx, "phone", "rep@example.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	steps := []struct {
		enabled bool
		want    string
	}{
		{false, ""},
		{true, "rep@example.com"},
	}
	for _, step := range steps {
		if err := users.SetEnabled(ctx, "rep@example.com", step.enabled); err != nil {
			t.Fatalf("set enabled %v: %v", step.enabled, err)
		}
		got, err := store.Validate(ctx, raw)
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if got != step.want {
			t.Errorf("enabled=%v: validate = %q, want %q", step.enabled, got, step.want)
		}
	}
}
