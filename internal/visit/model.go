// Package visit governs field visits: the record, its status lifecycle,
// check-in/check-out and completion rules.
package visit

import (
	"strings"
	"time"

	"github.com/promise4all/visit-management/internal/crm"
)

// Status is the lifecycle state of a visit.
type Status string

const (
	Draft      Status = "Draft"
	Planned    Status = "Planned"
	InProgress Status = "In Progress"
	Completed  Status = "Completed"
	Cancelled  Status = "Cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{Draft, Planned, InProgress, Completed, Cancelled}

// ParseStatus matches s case-insensitively against the known statuses.
func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, true
		}
	}
	return "", false
}

// DocStatus is the submission state layered over Status.
type DocStatus int

const (
	DocOpen      DocStatus = 0
	DocSubmitted DocStatus = 1
	DocCancelled DocStatus = 2
)

// MaintenancePurpose is the subject that marks a maintenance visit.
const MaintenancePurpose = "maintenance"

// Visit is a scheduled or completed field interaction with a client.
type Visit struct {
	ID         int64    `json:"id"`
	ClientType crm.Kind `json:"client_type"`
	Client     string   `json:"client"`
	Contact    string   `json:"contact,omitempty"`
	Subject    string   `json:"subject"`
	Address    string   `json:"address,omitempty"`
	Brief      string   `json:"brief,omitempty"`
	AssignedTo string   `json:"assigned_to"`

	ScheduledTime        *time.Time `json:"scheduled_time,omitempty"`
	CheckInTime          *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime         *time.Time `json:"check_out_time,omitempty"`
	VisitDurationMinutes *int       `json:"visit_duration_minutes,omitempty"`

	Status       Status    `json:"status"`
	DocStatus    DocStatus `json:"docstatus"`
	VisitOutcome string    `json:"visit_outcome,omitempty"`

	CheckInPhoto     string `json:"check_in_photo,omitempty"`
	CheckOutPhoto    string `json:"check_out_photo,omitempty"`
	Location         string `json:"location,omitempty"`
	CheckInLocation  string `json:"check_in_location,omitempty"`
	CheckOutLocation string `json:"check_out_location,omitempty"`

	ReportSummary        string `json:"report_summary,omitempty"`
	ReportAttachment     string `json:"report_attachment,omitempty"`
	AdditionalNotes      string `json:"additional_notes,omitempty"`
	CompetitorInfo       string `json:"competitor_info,omitempty"`
	ExistingFleet        string `json:"existing_fleet,omitempty"`
	RequirementsReceived string `json:"requirements_received,omitempty"`
	FutureProspects      string `json:"future_prospects,omitempty"`
	ProductTarget        string `json:"product_target,omitempty"`
	CustomerFeedback     string `json:"customer_feedback,omitempty"`

	SupportIssue       string `json:"support_issue,omitempty"`
	MaintenanceDetails string `json:"maintenance_details,omitempty"`
	MaintenanceVisit   *int64 `json:"maintenance_visit,omitempty"`
	MVItem             string `json:"mv_item,omitempty"`
	MVSerialNo         string `json:"mv_serial_no,omitempty"`
	MVProblemReported  string `json:"mv_problem_reported,omitempty"`
	MVWorkDone         string `json:"mv_work_done,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ModifiedAt time.Time  `json:"modified_at"`
	Logs       []LogEntry `json:"visit_logs,omitempty"`
}

// Ref returns the client reference.
func (v *Visit) Ref() crm.Ref {
	return crm.Ref{Kind: v.ClientType, ID: v.Client}
}

// IsMaintenance reports whether the subject marks a maintenance visit.
func (v *Visit) IsMaintenance() bool {
	return strings.EqualFold(strings.TrimSpace(v.Subject), MaintenancePurpose)
}

// NeedsMaintenanceLink reports whether completion requires a support
// issue or maintenance visit.
func (v *Visit) NeedsMaintenanceLink() bool {
	return v.IsMaintenance() && v.ClientType == crm.Customer
}

// LogEntry is one append-only audit line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Activity  string    `json:"activity"`
	User      string    `json:"user"`
}

// Log activities.
const (
	ActivityCreated  = "Created"
	ActivityUpdated  = "Updated"
	ActivityCheckIn  = "Check-in"
	ActivityCheckOut = "Check-out"
	ActivityCancel   = "Cancelled"
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	AssignedTo string
	Status     Status
	From       *time.Time // scheduled_time >= From
	To         *time.Time // scheduled_time <= To
	Limit      int
}

// CheckInput carries the optional evidence for check-in and check-out.
type CheckInput struct {
	PhotoData     string `json:"photo_data,omitempty"`
	PhotoFilename string `json:"photo_filename,omitempty"`
	Location      string `json:"location,omitempty"`

	// Check-out only.
	Outcome       string `json:"visit_outcome,omitempty"`
	ReportSummary string `json:"report_summary,omitempty"`
}

// CheckResult is returned from check-in and check-out. Exactly one of
// CheckInTime and CheckOutTime is set, matching the side.
type CheckResult struct {
	Visit           int64      `json:"visit"`
	Employee        string     `json:"employee"`
	CheckInTime     *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime    *time.Time `json:"check_out_time,omitempty"`
	EmployeeCheckin int64      `json:"employee_checkin_id,omitempty"`
}

// At returns the recorded time of either side.
func (r *CheckResult) At() time.Time {
	if r.CheckOutTime != nil {
		return *r.CheckOutTime
	}
	if r.CheckInTime != nil {
		return *r.CheckInTime
	}
	return time.Time{}
}

// Duration returns whole minutes between in and out, floored at zero.
func Duration(in, out time.Time) int {
	m := int(out.Sub(in) / time.Minute)
	if m < 0 {
		return 0
	}
	return m
}
