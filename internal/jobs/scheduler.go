package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/promise4all/visit-management/internal/config"
)

const jobTimeout = 10 * time.Minute

// Scheduler triggers jobs on cron schedules. A run that is still going
// when its next tick arrives makes that tick a no-op.
type Scheduler struct {
	c *cron.Cron
}

// NewScheduler registers the cleanup and reminder jobs. An empty schedule
// disables that job.
func NewScheduler(r *Runner, cfg config.JobsConfig, now func() time.Time) (*Scheduler, error) {
	if now == nil {
		now = time.Now
	}
	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo))
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	for name, spec := range map[string]string{
		Cleanup:   cfg.CleanupSchedule,
		Reminders: cfg.ReminderSchedule,
	} {
		if spec == "" {
			continue
		}
		job := name
		if _, err := c.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			_, _ = r.Run(ctx, job, now())
		}); err != nil {
			return nil, fmt.Errorf("scheduling %s job %q: %w", job, spec, err)
		}
		slog.Info("job scheduled", "job", job, "schedule", spec)
	}
	return &Scheduler{c: c}, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.c.Entries())
}
