package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/attachment"
	"github.com/promise4all/visit-management/internal/auth"
	"github.com/promise4all/visit-management/internal/authz"
	"github.com/promise4all/visit-management/internal/config"
	"github.com/promise4all/visit-management/internal/crm"
	"github.com/promise4all/visit-management/internal/dashboard"
	"github.com/promise4all/visit-management/internal/email"
	"github.com/promise4all/visit-management/internal/frequency"
	"github.com/promise4all/visit-management/internal/jobs"
	"github.com/promise4all/visit-management/internal/logging"
	"github.com/promise4all/visit-management/internal/schedule"
	"github.com/promise4all/visit-management/internal/visit"
	"github.com/promise4all/visit-management/internal/web"
)

// adminRole is granted to the configured admin email on startup.
const adminRole = "System Manager"

func newServeCmd() *cobra.Command {
	var (
		port      int
		configDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the JSON API server together with the scheduled cleanup and reminder jobs.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configDir, port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (default: server.port from config)")
	cmd.Flags().StringVar(&configDir, "config", "", "directory containing visits.yaml")

	return cmd
}

func runServe(configDir string, port int) error {
	cfg, err := config.Load(getServerConfigDir(configDir))
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	logging.Setup(cfg.Logging, cfg.Server.DevMode)

	database, err := openDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer closeDB(database)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	roles, err := authz.New(database, cfg.Policy.ManagerRoles)
	if err != nil {
		return fmt.Errorf("loading roles: %w", err)
	}
	if err := bootstrapAdmin(ctx, database, roles, cfg.AdminEmail); err != nil {
		return err
	}

	store, filesDir, err := newStorage(ctx, cfg)
	if err != nil {
		return err
	}
	files := attachment.NewService(database, store, attachment.Compression{
		Enabled:      cfg.Policy.EnableImageCompression,
		MaxDimension: cfg.Policy.ImageMaxDimension,
		Quality:      cfg.Policy.ImageQuality,
	})

	visits := visit.NewService(visit.Deps{DB: database, Policy: cfg.Policy, Roles: roles, Files: files})
	visitRepo := visit.NewRepository(database)
	overdue := frequency.NewAggregator(crm.NewRepository(database), visitRepo)

	var opts []dashboard.Option
	if cfg.Redis.Enabled {
		rdb, err := dashboard.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, dashboard counts are not cached", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer func() {
				if cerr := rdb.Close(); cerr != nil {
					slog.Warn("closing redis", "error", cerr)
				}
			}()
			opts = append(opts, dashboard.WithCache(dashboard.NewRedisCache(rdb, "visits:"), cfg.Redis.CacheTTL()))
		}
	}

	if cfg.Jobs.Enabled {
		runner := jobs.NewRunner(visits, email.NewSender(cfg.SMTP, cfg.Server.DevMode), cfg.Policy)
		sched, err := jobs.NewScheduler(runner, cfg.Jobs, time.Now)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop(context.Background())
	}

	srv := web.NewServer(web.Deps{
		Visits:    visits,
		Schedules: schedule.NewService(database, cfg.Policy, roles, visits, time.Now),
		Dashboard: dashboard.NewService(visitRepo, overdue, roles, opts...),
		Frequency: overdue,
		Files:     files,
		APIKeys:   auth.NewAPIKeyStore(database),
		FilesDir:  filesDir,
	})

	fmt.Printf("Starting API on http://localhost:%d\n", cfg.Server.Port)
	return srv.ListenAndServe(ctx, cfg.Server.Port)
}

// bootstrapAdmin makes sure the configured admin can log in and manage.
func bootstrapAdmin(ctx context.Context, database *sql.DB, roles *authz.Authorizer, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	users := auth.NewUserStore(database)
	if _, err := users.Get(ctx, email); errors.Is(err, apperr.ErrNotFound) {
		if _, err := users.Add(ctx, email, ""); err != nil {
			return fmt.Errorf("adding admin user: %w", err)
		}
	} else if err != nil {
		return err
	}
	if err := roles.Assign(ctx, email, adminRole); err != nil {
		return fmt.Errorf("granting admin role: %w", err)
	}
	return nil
}

// newStorage returns the attachment backend and, for local storage, the
// directory to serve under /files/.
func newStorage(ctx context.Context, cfg *config.Config) (attachment.Storage, string, error) {
	if cfg.Storage.Backend == "s3" {
		s3, err := attachment.NewS3Storage(ctx, cfg.Storage.S3)
		if err != nil {
			return nil, "", fmt.Errorf("connecting to S3: %w", err)
		}
		return s3, "", nil
	}
	local, err := attachment.NewLocalStorage(cfg.Storage.LocalDir, strings.TrimRight(cfg.Server.BaseURL, "/")+"/files")
	if err != nil {
		return nil, "", err
	}
	return local, local.Dir(), nil
}
