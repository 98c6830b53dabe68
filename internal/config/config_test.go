package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	want := DefaultPolicy()
	if cfg.Policy.CompletionEvidence != want.CompletionEvidence {
		t.Errorf("completion_evidence = %q, want %q", cfg.Policy.CompletionEvidence, want.CompletionEvidence)
	}
	if !cfg.Policy.RequirePhotoForCheckIn || !cfg.Policy.EnableHRIntegration {
		t.Error("expected photo and HR defaults to be on")
	}
	if cfg.Policy.DraftRetentionDays != 90 {
		t.Errorf("draft_retention_days = %d, want 90", cfg.Policy.DraftRetentionDays)
	}
	if len(cfg.Policy.ManagerRoles) != 2 {
		t.Errorf("manager_roles = %v, want 2 defaults", cfg.Policy.ManagerRoles)
	}
	if cfg.Storage.Backend != "local" {
		t.Errorf("storage.backend = %q, want local", cfg.Storage.Backend)
	}
	if !strings.HasSuffix(cfg.Database.Path, filepath.Join(".visit-management", "visits.db")) {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()

	yaml := `
server:
  port: 9090
policy:
  require_photo_for_checkin: false
  completion_evidence: summary
  checkin_exempt_roles: ["Back Office"]
`
	if err := os.WriteFile(filepath.Join(dir, "visits.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VISITS_SERVER_PORT", "9191")
	t.Setenv("VISITS_POLICY_DRAFT_RETENTION_DAYS", "30")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("port = %d, want env override 9191", cfg.Server.Port)
	}
	if cfg.Policy.RequirePhotoForCheckIn {
		t.Error("require_photo_for_checkin should be false from file")
	}
	if cfg.Policy.CompletionEvidence != EvidenceSummary {
		t.Errorf("completion_evidence = %q, want summary", cfg.Policy.CompletionEvidence)
	}
	if len(cfg.Policy.CheckinExemptRoles) != 1 || cfg.Policy.CheckinExemptRoles[0] != "Back Office" {
		t.Errorf("checkin_exempt_roles = %v", cfg.Policy.CheckinExemptRoles)
	}
	if cfg.Policy.DraftRetentionDays != 30 {
		t.Errorf("draft_retention_days = %d, want 30", cfg.Policy.DraftRetentionDays)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:  ServerConfig{Port: 8080},
			Policy:  DefaultPolicy(),
			Storage: StorageConfig{Backend: "local"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad evidence", func(c *Config) { c.Policy.CompletionEvidence = "both" }, "completion_evidence"},
		{"no manager roles", func(c *Config) { c.Policy.ManagerRoles = nil }, "manager_roles"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }, "bucket"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }, "storage.backend"},
		{"smtp incomplete", func(c *Config) { c.SMTP.Enabled = true }, "smtp.host"},
		{"bad quality", func(c *Config) { c.Policy.ImageQuality = 0 }, "image_quality"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
