package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultServerURL = "http://localhost:8080"

// CLIConfig is the per-user settings file written by login. Database is
// the SQLite file used by admin and jobs commands, and ServerConfig the
// directory holding visits.yaml for serve and jobs.
type CLIConfig struct {
	ServerURL    string `yaml:"server_url,omitempty"`
	APIKey       string `yaml:"api_key,omitempty"`
	Database     string `yaml:"database,omitempty"`
	ServerConfig string `yaml:"server_config,omitempty"`
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "visits", "config.yaml"), nil
}

// loadConfig returns a zero config when no file has been written yet.
func loadConfig() (CLIConfig, error) {
	var cfg CLIConfig
	path, err := configPath()
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return cfg, nil
	case err != nil:
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func saveConfig(cfg CLIConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// setting resolves a value from the environment, then the config file,
// then def. An unreadable config file counts as empty.
func setting(env string, field func(CLIConfig) string, def string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	if cfg, err := loadConfig(); err == nil {
		if v := field(cfg); v != "" {
			return v
		}
	}
	return def
}

func getServerURL() string {
	return setting("VISITS_SERVER_URL", func(c CLIConfig) string { return c.ServerURL }, defaultServerURL)
}

func getAPIKey() string {
	return setting("VISITS_API_KEY", func(c CLIConfig) string { return c.APIKey }, "")
}

func getDatabasePath() string {
	return setting("VISITS_DB", func(c CLIConfig) string { return c.Database }, "")
}

// getServerConfigDir prefers an explicit --config flag.
func getServerConfigDir(flag string) string {
	if flag != "" {
		return flag
	}
	return setting("VISITS_CONFIG_DIR", func(c CLIConfig) string { return c.ServerConfig }, "")
}
