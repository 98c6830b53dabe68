// Package schedule implements weekly visit plans and their approval into
// real visits.
package schedule

import (
	"time"

	"github.com/promise4all/visit-management/internal/crm"
)

// Status is the derived approval state of a weekly schedule.
type Status string

const (
	Draft           Status = "Draft"
	PendingApproval Status = "Pending Approval"
	Approved        Status = "Approved"
	Rejected        Status = "Rejected"
)

// WeeklySchedule is one user's plan for one week.
type WeeklySchedule struct {
	ID         int64     `json:"name"`
	User       string    `json:"user"`
	WeekStart  string    `json:"week_start"` // YYYY-MM-DD, a Monday
	Status     Status    `json:"status"`
	Rows       []*Detail `json:"schedule_details"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Detail is one planned visit in a weekly schedule.
type Detail struct {
	ID                 int64      `json:"name"`
	Day                string     `json:"day"`
	Time               string     `json:"time"`
	ClientType         crm.Kind   `json:"client_type"`
	Client             string     `json:"client"`
	Purpose            string     `json:"purpose"`
	Notes              string     `json:"notes,omitempty"`
	SupportIssue       string     `json:"support_issue,omitempty"`
	MaintenanceDetails string     `json:"maintenance_details,omitempty"`
	Approved           bool       `json:"approved"`
	ApprovedBy         string     `json:"approved_by,omitempty"`
	ApprovedOn         *time.Time `json:"approved_on,omitempty"`
	Visit              *int64     `json:"visit,omitempty"`
}

// deriveStatus computes the schedule status from row approvals. With no
// approved rows a Rejected schedule stays Rejected.
func deriveStatus(current Status, rows []*Detail) Status {
	approved := 0
	for _, r := range rows {
		if r.Approved {
			approved++
		}
	}
	switch {
	case len(rows) > 0 && approved == len(rows):
		return Approved
	case approved > 0:
		return PendingApproval
	case current == Rejected:
		return Rejected
	default:
		return Draft
	}
}

// ApproveResult reports an approval run.
type ApproveResult struct {
	Approved int     `json:"approved"`
	Created  []int64 `json:"created"`
	Skipped  []int64 `json:"skipped"`
	Status   Status  `json:"status"`
}

// CreateResult reports visit creation for already approved rows.
type CreateResult struct {
	Created []int64 `json:"created"`
	Skipped []int64 `json:"skipped"`
	Message string  `json:"message,omitempty"`
}

// RowView is a flattened schedule row.
type RowView struct {
	Name       int64    `json:"name"`
	Schedule   int64    `json:"schedule"`
	Day        string   `json:"day"`
	TimeSlot   string   `json:"time_slot"`
	ClientType crm.Kind `json:"client_type"`
	Client     string   `json:"client"`
	Purpose    string   `json:"purpose"`
	Approved   bool     `json:"approved"`
	Status     string   `json:"status"`
	Visit      *int64   `json:"visit"`
}
