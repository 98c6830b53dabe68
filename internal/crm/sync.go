package crm

import (
	"context"
	"time"

	"github.com/promise4all/visit-management/internal/db"
)

// SyncResult reports the outcome of a best-effort CRM update.
type SyncResult struct {
	Updated bool
	Skipped bool
	Reason  string
	Err     error
}

// Syncer keeps client records in step with visit activity. It runs after
// the visit change has committed and never fails the caller.
type Syncer struct {
	q db.Querier
}

// NewSyncer creates a Syncer.
func NewSyncer(q db.Querier) *Syncer {
	return &Syncer{q: q}
}

// Touch sets last_visit_date on the referenced client.
func (s *Syncer) Touch(ctx context.Context, ref Ref, when time.Time) SyncResult {
	if ref.IsZero() {
		return SyncResult{Skipped: true, Reason: "no client"}
	}
	ok, err := NewRepository(s.q).SetLastVisitDate(ctx, ref, when)
	if err != nil {
		return SyncResult{Err: err}
	}
	if !ok {
		return SyncResult{Skipped: true, Reason: "client not in directory"}
	}
	return SyncResult{Updated: true}
}
