// Package dashboard computes visit KPIs and the number cards shown on the
// sales dashboard.
package dashboard

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/db"
	"github.com/promise4all/visit-management/internal/visit"
)

// KPI scopes.
const (
	ModeMy   = "my"
	ModeTeam = "team"
)

// Counter counts visits.
type Counter interface {
	Count(ctx context.Context, f visit.CountFilter) (int, error)
	Assignees(ctx context.Context) ([]string, error)
}

// OverdueCounter counts clients overdue for a visit.
type OverdueCounter interface {
	OverdueCount(ctx context.Context, today time.Time) (int, error)
}

// Managers reports whether a user may see team KPIs.
type Managers interface {
	IsManager(user string) bool
}

// KPIRequest selects what KPIs cover.
type KPIRequest struct {
	Mode                string `json:"mode"`
	User                string `json:"user"`
	Period              string `json:"period"`
	From                string `json:"from_date"`
	To                  string `json:"to_date"`
	OverdueWithinPeriod bool   `json:"overdue_within_period"`
}

// KPIs are visit counts for one scope and window.
type KPIs struct {
	Planned              int    `json:"planned"`
	InProgress           int    `json:"in_progress"`
	Completed            int    `json:"completed"`
	VisitScheduleOverdue int    `json:"visit_schedule_overdue"`
	EffectiveMode        string `json:"effective_mode"`
	IsManager            bool   `json:"is_manager"`
}

// NumberCard is a single dashboard figure.
type NumberCard struct {
	Value     int    `json:"value"`
	FieldType string `json:"fieldtype"`
}

// Service computes dashboard figures.
type Service struct {
	visits  Counter
	overdue OverdueCounter
	roles   Managers
	cache   Cache
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache caches the frequency overdue count for ttl.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a dashboard service.
func NewService(visits Counter, overdue OverdueCounter, roles Managers, opts ...Option) *Service {
	s := &Service{visits: visits, overdue: overdue, roles: roles, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// KPIs counts the actor's visits, or the team's for managers, scheduled
// within the requested window. Non-managers asking for team figures get
// their own.
func (s *Service) KPIs(ctx context.Context, actor string, req KPIRequest) (*KPIs, error) {
	isManager := s.roles != nil && s.roles.IsManager(actor)
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	switch mode {
	case "", ModeMy:
		mode = ModeMy
	case ModeTeam:
		if !isManager {
			mode = ModeMy
		}
	default:
		return nil, apperr.FieldValidation([]string{"mode"}, "Unknown mode %q.", req.Mode)
	}

	now := s.now()
	start, end, err := Window(req.Period, req.From, req.To, now)
	if err != nil {
		return nil, err
	}

	user := actor
	if mode == ModeTeam {
		user = strings.TrimSpace(req.User)
	}

	out := &KPIs{EffectiveMode: mode, IsManager: isManager}
	counts := []struct {
		status visit.Status
		dst    *int
	}{
		{visit.Planned, &out.Planned},
		{visit.InProgress, &out.InProgress},
		{visit.Completed, &out.Completed},
	}
	for _, c := range counts {
		n, err := s.visits.Count(ctx, visit.CountFilter{
			AssignedTo: user,
			Statuses:   []visit.Status{c.status},
			From:       &start,
			To:         &end,
		})
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}

	cutoff := db.Timestamp(now)
	f := visit.CountFilter{
		AssignedTo:      user,
		Statuses:        []visit.Status{visit.Planned, visit.InProgress},
		ScheduledBefore: &cutoff,
	}
	if req.OverdueWithinPeriod {
		f.From, f.To = &start, &end
	}
	if out.VisitScheduleOverdue, err = s.visits.Count(ctx, f); err != nil {
		return nil, err
	}
	return out, nil
}

// FrequencyOverdueCount returns the number of clients overdue for a visit.
// The figure is cached per calendar day when a cache is configured; cache
// failures fall back to computing it.
func (s *Service) FrequencyOverdueCount(ctx context.Context) (*NumberCard, error) {
	today := s.now().UTC()
	key := "frequency-overdue:" + today.Format(db.DateLayout)

	if s.cache != nil {
		n, ok, err := s.cache.GetInt(ctx, key)
		if err != nil {
			slog.Warn("reading overdue count from cache", "error", err)
		} else if ok {
			return &NumberCard{Value: n, FieldType: "Int"}, nil
		}
	}

	n, err := s.overdue.OverdueCount(ctx, today)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetInt(ctx, key, n, s.ttl); err != nil {
			slog.Warn("caching overdue count", "error", err)
		}
	}
	return &NumberCard{Value: n, FieldType: "Int"}, nil
}

// Assignees lists enabled users with at least one visit.
func (s *Service) Assignees(ctx context.Context) ([]string, error) {
	users, err := s.visits.Assignees(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []string{}
	}
	return users, nil
}
