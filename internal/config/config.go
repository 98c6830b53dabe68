// Package config loads server configuration from a YAML file, a .env file
// and VISITS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	configName = "visits"
	configType = "yaml"
	envPrefix  = "VISITS"
)

// Evidence policies for completing a visit.
const (
	EvidenceAnyField = "any_field"
	EvidenceSummary  = "summary"
)

// Config is the full server configuration. It is loaded once and passed
// explicitly to every component that needs it.
type Config struct {
	AdminEmail string         `mapstructure:"admin_email"`
	Server     ServerConfig   `mapstructure:"server"`
	Database   DatabaseConfig `mapstructure:"database"`
	Logging    LoggingConfig  `mapstructure:"logging"`
	Policy     Policy         `mapstructure:"policy"`
	Storage    StorageConfig  `mapstructure:"storage"`
	SMTP       SMTPConfig     `mapstructure:"smtp"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Jobs       JobsConfig     `mapstructure:"jobs"`
}

type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
	DevMode bool   `mapstructure:"dev_mode"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig controls the slog handler and optional rotating file output.
type LoggingConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	File   LogFileConfig `mapstructure:"file"`
}

type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Policy holds the business toggles that govern visits and schedules.
type Policy struct {
	EnableHRIntegration          bool     `mapstructure:"enable_hr_integration"`
	RequirePhotoForCheckIn       bool     `mapstructure:"require_photo_for_checkin"`
	RequirePhotoForCheckOut      bool     `mapstructure:"require_photo_for_checkout"`
	RequireGeolocation           bool     `mapstructure:"require_geolocation"`
	DefaultVisitDuration         int      `mapstructure:"default_visit_duration"`
	AutoCreateVisitsFromSchedule bool     `mapstructure:"auto_create_visits_from_schedule"`
	EnableVisitNotifications     bool     `mapstructure:"enable_visit_notifications"`
	EnableImageCompression       bool     `mapstructure:"enable_image_compression"`
	ImageMaxDimension            int      `mapstructure:"image_max_dimension"`
	ImageQuality                 int      `mapstructure:"image_quality"`
	CheckinExemptRoles           []string `mapstructure:"checkin_exempt_roles"`
	ManagerRoles                 []string `mapstructure:"manager_roles"`
	CompletionEvidence           string   `mapstructure:"completion_evidence"`
	DefaultCompany               string   `mapstructure:"default_company"`
	DraftRetentionDays           int      `mapstructure:"draft_retention_days"`
	ReminderLookaheadDays        int      `mapstructure:"reminder_lookahead_days"`
}

// StorageConfig selects where attachment bytes live.
type StorageConfig struct {
	Backend  string   `mapstructure:"backend"` // local | s3
	LocalDir string   `mapstructure:"local_dir"`
	S3       S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

type SMTPConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	From       string `mapstructure:"from"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// Timeout returns the send timeout, defaulting to 10s.
func (c SMTPConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

type RedisConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Addr        string `mapstructure:"addr"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	CacheTTLSec int    `mapstructure:"cache_ttl_sec"`
}

// CacheTTL returns the cache lifetime for dashboard counters.
func (c RedisConfig) CacheTTL() time.Duration {
	if c.CacheTTLSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.CacheTTLSec) * time.Second
}

type JobsConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	CleanupSchedule  string `mapstructure:"cleanup_schedule"`
	ReminderSchedule string `mapstructure:"reminder_schedule"`
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		EnableHRIntegration:          true,
		RequirePhotoForCheckIn:       true,
		RequirePhotoForCheckOut:      true,
		RequireGeolocation:           false,
		DefaultVisitDuration:         60,
		AutoCreateVisitsFromSchedule: true,
		EnableVisitNotifications:     true,
		EnableImageCompression:       true,
		ImageMaxDimension:            1280,
		ImageQuality:                 80,
		CheckinExemptRoles:           []string{},
		ManagerRoles:                 []string{"Sales Manager", "System Manager"},
		CompletionEvidence:           EvidenceAnyField,
		DraftRetentionDays:           90,
		ReminderLookaheadDays:        1,
	}
}

// Load reads configuration from dir/visits.yaml (optional), a .env file in
// the working directory (optional) and VISITS_* environment variables.
func Load(dir string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	// VISITS_SERVER_PORT overrides server.port
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("getting home directory: %w", err)
	}
	dataDir := filepath.Join(home, ".visit-management")
	p := DefaultPolicy()

	defaults := map[string]any{
		"admin_email":     "",
		"server.port":     8080,
		"server.base_url": "http://localhost:8080",
		"server.dev_mode": false,

		"database.path": filepath.Join(dataDir, "visits.db"),

		"logging.level":             "info",
		"logging.format":            "json",
		"logging.file.enabled":      false,
		"logging.file.path":         filepath.Join(dataDir, "logs", "visits.log"),
		"logging.file.max_size_mb":  50,
		"logging.file.max_backups":  5,
		"logging.file.max_age_days": 28,
		"logging.file.compress":     true,

		"policy.enable_hr_integration":            p.EnableHRIntegration,
		"policy.require_photo_for_checkin":        p.RequirePhotoForCheckIn,
		"policy.require_photo_for_checkout":       p.RequirePhotoForCheckOut,
		"policy.require_geolocation":              p.RequireGeolocation,
		"policy.default_visit_duration":           p.DefaultVisitDuration,
		"policy.auto_create_visits_from_schedule": p.AutoCreateVisitsFromSchedule,
		"policy.enable_visit_notifications":       p.EnableVisitNotifications,
		"policy.enable_image_compression":         p.EnableImageCompression,
		"policy.image_max_dimension":              p.ImageMaxDimension,
		"policy.image_quality":                    p.ImageQuality,
		"policy.checkin_exempt_roles":             p.CheckinExemptRoles,
		"policy.manager_roles":                    p.ManagerRoles,
		"policy.completion_evidence":              p.CompletionEvidence,
		"policy.default_company":                  p.DefaultCompany,
		"policy.draft_retention_days":             p.DraftRetentionDays,
		"policy.reminder_lookahead_days":          p.ReminderLookaheadDays,

		"storage.backend":              "local",
		"storage.local_dir":            filepath.Join(dataDir, "files"),
		"storage.s3.endpoint":          "",
		"storage.s3.region":            "us-east-1",
		"storage.s3.bucket":            "",
		"storage.s3.access_key_id":     "",
		"storage.s3.secret_access_key": "",
		"storage.s3.use_path_style":    true,

		"smtp.enabled":     false,
		"smtp.host":        "",
		"smtp.port":        587,
		"smtp.username":    "",
		"smtp.password":    "",
		"smtp.from":        "",
		"smtp.use_ssl":     false,
		"smtp.timeout_sec": 10,

		"redis.enabled":       false,
		"redis.addr":          "localhost:6379",
		"redis.password":      "",
		"redis.db":            0,
		"redis.cache_ttl_sec": 300,

		"jobs.enabled":           true,
		"jobs.cleanup_schedule":  "0 2 * * *",
		"jobs.reminder_schedule": "0 7 * * *",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Policy.CompletionEvidence {
	case EvidenceAnyField, EvidenceSummary:
	default:
		errs = append(errs, fmt.Errorf("policy.completion_evidence must be %q or %q, got %q",
			EvidenceAnyField, EvidenceSummary, c.Policy.CompletionEvidence))
	}
	if len(c.Policy.ManagerRoles) == 0 {
		errs = append(errs, errors.New("policy.manager_roles must not be empty"))
	}
	if c.Policy.ImageQuality < 1 || c.Policy.ImageQuality > 100 {
		errs = append(errs, fmt.Errorf("policy.image_quality %d out of range 1-100", c.Policy.ImageQuality))
	}
	if c.Policy.DraftRetentionDays < 1 {
		errs = append(errs, errors.New("policy.draft_retention_days must be positive"))
	}
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be local or s3, got %q", c.Storage.Backend))
	}
	if c.SMTP.Enabled && (c.SMTP.Host == "" || c.SMTP.From == "") {
		errs = append(errs, errors.New("smtp.host and smtp.from are required when smtp is enabled"))
	}

	return errors.Join(errs...)
}
