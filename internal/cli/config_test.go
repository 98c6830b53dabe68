package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigRoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	want := CLIConfig{
		ServerURL:    "http://visits.internal:8080",
		APIKey:       "vm_abc",
		Database:     "/var/lib/visits/visits.db",
		ServerConfig: "/etc/visits",
	}
	if err := saveConfig(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := os.Stat(filepath.Join(home, ".config", "visits", "config.yaml"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}

	got, err := loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Errorf("loaded %+v, want %+v", got, want)
	}
}

func TestConfigMissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	got, err := loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != (CLIConfig{}) {
		t.Errorf("loaded %+v, want zero config", got)
	}
}

func TestConfigMalformed(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "visits")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server_url: [unterminated"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected parse error")
	}
	if got := getServerURL(); got != defaultServerURL {
		t.Errorf("server url = %q, want default", got)
	}
}

func TestSettingResolution(t *testing.T) {
	stored := CLIConfig{
		ServerURL:    "http://from-file:8080",
		APIKey:       "vm_file",
		Database:     "/data/file.db",
		ServerConfig: "/etc/from-file",
	}

	tests := []struct {
		name  string
		env   string
		value string
		file  *CLIConfig
		get   func() string
		want  string
	}{
		{"server url from env", "VISITS_SERVER_URL", "http://from-env:1", &stored, getServerURL, "http://from-env:1"},
		{"server url from file", "VISITS_SERVER_URL", "", &stored, getServerURL, "http://from-file:8080"},
		{"server url default", "VISITS_SERVER_URL", "", nil, getServerURL, defaultServerURL},
		{"api key from env", "VISITS_API_KEY", "vm_env", &stored, getAPIKey, "vm_env"},
		{"api key from file", "VISITS_API_KEY", "", &stored, getAPIKey, "vm_file"},
		{"api key unset", "VISITS_API_KEY", "", nil, getAPIKey, ""},
		{"database from env", "VISITS_DB", "/tmp/env.db", &stored, getDatabasePath, "/tmp/env.db"},
		{"database from file", "VISITS_DB", "", &stored, getDatabasePath, "/data/file.db"},
		{"server config from file", "VISITS_CONFIG_DIR", "", &stored, func() string { return getServerConfigDir("") }, "/etc/from-file"},
		{"server config flag wins", "VISITS_CONFIG_DIR", "/etc/env", &stored, func() string { return getServerConfigDir("/etc/flag") }, "/etc/flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			t.Setenv(tt.env, tt.value)
			if tt.file != nil {
				if err := saveConfig(*tt.file); err != nil {
					t.Fatalf("save: %v", err)
				}
			}
			if got := tt.get(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
