package cli

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "vm_abc123def456", false},
		{"empty key", "", true},
		{"missing prefix", "abc123def456", true},
		{"wrong prefix", "xx_abc123", true},
		{"just prefix", "vm_", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAPIKey(%q) err = %v, wantErr = %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func keyServer(t *testing.T, valid string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+valid {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid API key"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginSavesCheckedKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VISITS_SERVER_URL", "")
	srv := keyServer(t, "vm_good")

	if err := runLogin(srv.URL, "", strings.NewReader("vm_good\n")); err != nil {
		t.Fatalf("login: %v", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "vm_good" || cfg.ServerURL != srv.URL {
		t.Errorf("config = %+v", cfg)
	}
}

func TestLoginRejectedKeyIsNotSaved(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	srv := keyServer(t, "vm_good")

	err := runLogin(srv.URL, "vm_bad", nil)
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("err = %v, want rejection", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "" {
		t.Errorf("api_key = %q, want empty", cfg.APIKey)
	}
}
