// Package metrics exposes Prometheus counters for visits, schedules, jobs
// and HTTP traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VisitTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visits_transitions_total",
		Help: "Visit status changes by target status.",
	}, []string{"to"})

	CheckEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visits_check_events_total",
		Help: "Visit check-ins and check-outs.",
	}, []string{"kind"})

	RowsApproved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schedule_rows_approved_total",
		Help: "Weekly schedule rows approved.",
	})

	ScheduleVisitsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schedule_visits_created_total",
		Help: "Visits generated from approved schedule rows.",
	})

	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_runs_total",
		Help: "Background job runs by job and outcome.",
	}, []string{"job", "outcome"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Transition counts a visit entering status to.
func Transition(to string) {
	VisitTransitions.WithLabelValues(to).Inc()
}

// Check counts a check-in ("in") or check-out ("out").
func Check(kind string) {
	CheckEvents.WithLabelValues(kind).Inc()
}

// JobRun counts a job run. outcome is "ok", "partial" or "error".
func JobRun(job, outcome string) {
	JobRuns.WithLabelValues(job, outcome).Inc()
}
