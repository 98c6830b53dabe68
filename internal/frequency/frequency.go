// Package frequency derives which clients are due or overdue for a visit
// from their visit-frequency policy and their last completed visit.
package frequency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/promise4all/visit-management/internal/crm"
	"github.com/promise4all/visit-management/internal/db"
)

// Frequency is a client's required visit cadence.
type Frequency string

const (
	Weekly     Frequency = "Weekly"
	Biweekly   Frequency = "Biweekly"
	Monthly    Frequency = "Monthly"
	Quarterly  Frequency = "Quarterly"
	Semiannual Frequency = "Semiannual"
	Annual     Frequency = "Annual"
)

var days = map[Frequency]int{
	Weekly:     7,
	Biweekly:   14,
	Monthly:    30,
	Quarterly:  90,
	Semiannual: 182,
	Annual:     365,
}

// Days returns the interval in days, or 0 for an unknown frequency.
func (f Frequency) Days() int {
	for k, n := range days {
		if strings.EqualFold(strings.TrimSpace(string(f)), string(k)) {
			return n
		}
	}
	return 0
}

// LastVisitResolver finds the last completed visit of a client.
type LastVisitResolver interface {
	ResolveLastVisit(ctx context.Context, ref crm.Ref) (*time.Time, error)
}

// BatchResolver resolves the last completed visit of every client at once.
// Resolvers that implement it are used with a single query per report.
type BatchResolver interface {
	ResolveLastVisits(ctx context.Context) (map[crm.Ref]time.Time, error)
}

// ClientLister lists clients flagged for regular visits.
type ClientLister interface {
	ListRequiringVisits(ctx context.Context, kinds ...crm.Kind) ([]*crm.Client, error)
}

// Row is the frequency status of one client.
type Row struct {
	ClientType            crm.Kind   `json:"client_type"`
	Client                string     `json:"client"`
	ClientName            string     `json:"client_name,omitempty"`
	RequiresRegularVisits bool       `json:"requires_regular_visits"`
	VisitFrequency        string     `json:"visit_frequency"`
	LastVisit             *time.Time `json:"last_visit"`
	DueDate               string     `json:"due_date,omitempty"` // YYYY-MM-DD
	Overdue               bool       `json:"client_visit_overdue"`
}

// Evaluate computes the due date and overdue flag. A client without a due
// date, because it was never visited or has an unknown frequency, is
// overdue. Otherwise it is overdue once the due date is before today.
func Evaluate(freq string, last *time.Time, today time.Time) (due string, overdue bool) {
	n := Frequency(freq).Days()
	if last == nil || n == 0 {
		return "", true
	}
	dueDate := dateOnly(*last).AddDate(0, 0, n)
	return dueDate.Format(db.DateLayout), dueDate.Before(dateOnly(today))
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Aggregator builds frequency reports.
type Aggregator struct {
	clients  ClientLister
	resolver LastVisitResolver
}

// NewAggregator creates an aggregator over clients, resolving last visits
// through resolver.
func NewAggregator(clients ClientLister, resolver LastVisitResolver) *Aggregator {
	return &Aggregator{clients: clients, resolver: resolver}
}

// Report returns one row per customer and organization that requires
// regular visits.
func (a *Aggregator) Report(ctx context.Context, today time.Time) ([]Row, error) {
	clients, err := a.clients.ListRequiringVisits(ctx, crm.FrequencyKinds...)
	if err != nil {
		return nil, err
	}

	lookup, err := a.lookup(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(clients))
	for _, c := range clients {
		last, err := lookup(c.Ref())
		if err != nil {
			return nil, err
		}
		due, overdue := Evaluate(c.VisitFrequency, last, today)
		rows = append(rows, Row{
			ClientType:            c.Kind,
			Client:                c.ID,
			ClientName:            c.Name,
			RequiresRegularVisits: c.RequiresRegularVisits,
			VisitFrequency:        c.VisitFrequency,
			LastVisit:             last,
			DueDate:               due,
			Overdue:               overdue,
		})
	}
	return rows, nil
}

// OverdueCount returns the number of overdue clients across all assignees.
func (a *Aggregator) OverdueCount(ctx context.Context, today time.Time) (int, error) {
	rows, err := a.Report(ctx, today)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rows {
		if r.Overdue {
			n++
		}
	}
	return n, nil
}

func (a *Aggregator) lookup(ctx context.Context) (func(crm.Ref) (*time.Time, error), error) {
	batch, ok := a.resolver.(BatchResolver)
	if !ok {
		return func(ref crm.Ref) (*time.Time, error) {
			last, err := a.resolver.ResolveLastVisit(ctx, ref)
			if err != nil {
				return nil, fmt.Errorf("resolving last visit of %s: %w", ref, err)
			}
			return last, nil
		}, nil
	}

	all, err := batch.ResolveLastVisits(ctx)
	if err != nil {
		return nil, err
	}
	return func(ref crm.Ref) (*time.Time, error) {
		t, ok := all[ref]
		if !ok {
			return nil, nil
		}
		return &t, nil
	}, nil
}
