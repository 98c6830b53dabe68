// Package jobs runs the daily maintenance work: purging stale drafts and
// emailing reminders for upcoming visits.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/promise4all/visit-management/internal/config"
	"github.com/promise4all/visit-management/internal/email"
	"github.com/promise4all/visit-management/internal/metrics"
	"github.com/promise4all/visit-management/internal/visit"
)

// Job names.
const (
	Cleanup   = "cleanup"
	Reminders = "reminders"
)

// RunResult summarises one job run.
type RunResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Visits is the visit store the jobs work on.
type Visits interface {
	DeleteDraftsBefore(ctx context.Context, cutoff time.Time) (deleted, failed int, err error)
	Upcoming(ctx context.Context, from, to time.Time) ([]*visit.Visit, error)
}

// Mailer sends reminder emails.
type Mailer interface {
	Send(ctx context.Context, m email.Message) error
}

// Runner executes jobs.
type Runner struct {
	visits Visits
	mail   Mailer
	policy config.Policy
}

// NewRunner creates a runner.
func NewRunner(visits Visits, mail Mailer, policy config.Policy) *Runner {
	return &Runner{visits: visits, mail: mail, policy: policy}
}

// Run executes the named job and records its outcome.
func (r *Runner) Run(ctx context.Context, name string, now time.Time) (RunResult, error) {
	var (
		res RunResult
		err error
	)
	switch name {
	case Cleanup:
		res, err = r.CleanupOldDrafts(ctx, now)
	case Reminders:
		res, err = r.SendVisitReminders(ctx, now)
	default:
		return res, fmt.Errorf("unknown job %q", name)
	}

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
		slog.Error("job failed", "job", name, "error", err)
	case res.Failed > 0:
		outcome = "partial"
	}
	metrics.JobRun(name, outcome)
	slog.Info("job finished", "job", name, "processed", res.Processed, "failed", res.Failed)
	return res, err
}

// CleanupOldDrafts deletes unsubmitted Draft visits untouched for longer
// than the draft retention period.
func (r *Runner) CleanupOldDrafts(ctx context.Context, now time.Time) (RunResult, error) {
	days := r.policy.DraftRetentionDays
	if days <= 0 {
		return RunResult{}, nil
	}
	cutoff := now.AddDate(0, 0, -days)
	deleted, failed, err := r.visits.DeleteDraftsBefore(ctx, cutoff)
	return RunResult{Processed: deleted, Failed: failed}, err
}

// SendVisitReminders emails the assignee of every open visit scheduled
// from the start of today through the end of the lookahead window.
func (r *Runner) SendVisitReminders(ctx context.Context, now time.Time) (RunResult, error) {
	var res RunResult
	if !r.policy.EnableVisitNotifications || r.mail == nil {
		return res, nil
	}

	now = now.UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, r.policy.ReminderLookaheadDays+1).Add(-time.Second)

	visits, err := r.visits.Upcoming(ctx, from, to)
	if err != nil {
		return res, err
	}
	for _, v := range visits {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if v.AssignedTo == "" {
			continue
		}
		if err := r.mail.Send(ctx, email.FormatReminder(v)); err != nil {
			slog.Warn("sending visit reminder", "visit", v.ID, "to", v.AssignedTo, "error", err)
			res.Failed++
			continue
		}
		res.Processed++
	}
	return res, nil
}
