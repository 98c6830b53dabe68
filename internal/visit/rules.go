package visit

import (
	"strings"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/config"
	"github.com/promise4all/visit-management/internal/crm"
)

// transitions lists the statuses reachable from each status by a direct
// edit. Cancellation of a submitted visit goes through Cancel.
var transitions = map[Status][]Status{
	Draft:      {Planned, InProgress, Cancelled},
	Planned:    {Draft, InProgress, Completed, Cancelled},
	InProgress: {Completed, Cancelled},
	Completed:  {Cancelled},
	Cancelled:  nil,
}

// CanTransition reports whether from -> to is legal. Staying put is
// always legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// headerLocked reports whether header fields are frozen in status s.
func headerLocked(s Status) bool {
	return s == InProgress || s == Completed || s == Cancelled
}

// changedHeaderFields returns the locked header fields that differ between
// old and v. scheduled_time is not part of the header.
func changedHeaderFields(old, v *Visit) []string {
	var changed []string
	check := func(name, a, b string) {
		if a != b {
			changed = append(changed, name)
		}
	}
	check("assigned_to", old.AssignedTo, v.AssignedTo)
	check("client_type", string(old.ClientType), string(v.ClientType))
	check("client", old.Client, v.Client)
	check("contact", old.Contact, v.Contact)
	check("subject", old.Subject, v.Subject)
	check("address", old.Address, v.Address)
	check("brief", old.Brief, v.Brief)
	return changed
}

// validateClient requires a well-formed client reference.
func validateClient(v *Visit) error {
	if strings.TrimSpace(v.Client) == "" || v.ClientType == "" {
		var fields []string
		if v.ClientType == "" {
			fields = append(fields, "client_type")
		}
		if strings.TrimSpace(v.Client) == "" {
			fields = append(fields, "client")
		}
		return apperr.FieldValidation(fields, "Client is required.")
	}
	kind, err := crm.ParseKind(string(v.ClientType))
	if err != nil {
		return err
	}
	v.ClientType = kind
	v.Client = strings.TrimSpace(v.Client)
	return nil
}

// deriveDuration fills visit_duration_minutes when both timestamps exist
// and clears it otherwise.
func deriveDuration(v *Visit) {
	if v.CheckInTime == nil || v.CheckOutTime == nil {
		v.VisitDurationMinutes = nil
		return
	}
	d := Duration(*v.CheckInTime, *v.CheckOutTime)
	v.VisitDurationMinutes = &d
}

// evidenceFields are the report fields that satisfy the any_field policy.
var evidenceFields = []string{
	"report_summary", "additional_notes", "competitor_info", "existing_fleet",
	"requirements_received", "future_prospects", "product_target", "customer_feedback",
}

func hasEvidence(v *Visit, policy string) error {
	if policy == config.EvidenceSummary {
		if strings.TrimSpace(v.ReportSummary) == "" {
			return apperr.FieldValidation([]string{"report_summary"}, "Report Summary is required to complete a visit.")
		}
		return nil
	}
	for _, s := range []string{
		v.ReportSummary, v.AdditionalNotes, v.CompetitorInfo, v.ExistingFleet,
		v.RequirementsReceived, v.FutureProspects, v.ProductTarget, v.CustomerFeedback,
	} {
		if strings.TrimSpace(s) != "" {
			return nil
		}
	}
	return apperr.FieldValidation(evidenceFields,
		"Provide at least one report detail (summary, notes, competitor info, existing fleet, requirements, prospects, product target or feedback) to complete a visit.")
}
