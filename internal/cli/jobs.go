package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/promise4all/visit-management/internal/config"
	"github.com/promise4all/visit-management/internal/email"
	"github.com/promise4all/visit-management/internal/jobs"
	"github.com/promise4all/visit-management/internal/visit"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run scheduled jobs by hand",
	}

	var configDir string
	run := &cobra.Command{
		Use:       "run <cleanup|reminders>",
		Short:     "Run one job now against the local database",
		ValidArgs: []string{jobs.Cleanup, jobs.Reminders},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), configDir, args[0])
		},
	}
	run.Flags().StringVar(&configDir, "config", "", "directory containing visits.yaml")

	cmd.AddCommand(run)
	return cmd
}

func runJob(ctx context.Context, configDir, name string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(getServerConfigDir(configDir))
	if err != nil {
		return err
	}

	database, err := openDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer closeDB(database)

	visits := visit.NewService(visit.Deps{DB: database, Policy: cfg.Policy})
	runner := jobs.NewRunner(visits, email.NewSender(cfg.SMTP, cfg.Server.DevMode), cfg.Policy)

	res, err := runner.Run(ctx, name, time.Now())
	if err != nil {
		return fmt.Errorf("running %s: %w", name, err)
	}
	return output(res, func() error {
		fmt.Printf("%s: %d processed, %d failed\n", name, res.Processed, res.Failed)
		return nil
	})
}
