package schedule

import (
	"testing"
	"time"

	"github.com/promise4all/visit-management/internal/crm"
	"github.com/promise4all/visit-management/internal/visit"
)

func TestScheduledTime(t *testing.T) {
	tests := []struct {
		name string
		day  string
		tm   string
		want time.Time
	}{
		{"wednesday afternoon", "Wednesday", "14:30", time.Date(2026, 2, 4, 14, 30, 0, 0, time.UTC)},
		{"with seconds", "Friday", "08:15:30", time.Date(2026, 2, 6, 8, 15, 30, 0, time.UTC)},
		{"monday", "monday", "10:00", time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)},
		{"sunday", "Sunday", "18:00", time.Date(2026, 2, 8, 18, 0, 0, 0, time.UTC)},
		{"bad time defaults to nine", "Tuesday", "half past two", time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)},
		{"empty time", "Tuesday", "", time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)},
		{"unknown day is monday", "Funday", "11:00", time.Date(2026, 2, 2, 11, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScheduledTime("2026-02-02", tt.day, tt.tm)
			if err != nil {
				t.Fatalf("scheduled time: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := ScheduledTime("next week", "Monday", "10:00"); err == nil {
		t.Error("expected error for bad week start")
	}
}

func TestTimeSlot(t *testing.T) {
	for in, want := range map[string]string{
		"14:30":    "14:30",
		"08:05:59": "08:05",
		"":         "09:00",
	} {
		if got := TimeSlot(in); got != want {
			t.Errorf("TimeSlot(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMonday(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC), "2026-02-02"},
		{time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC), "2026-02-02"},
		{time.Date(2026, 2, 8, 23, 0, 0, 0, time.UTC), "2026-02-02"},
		{time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC), "2026-02-09"},
	}
	for _, tt := range tests {
		if got := Monday(tt.in); got != tt.want {
			t.Errorf("Monday(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestBuildVisit(t *testing.T) {
	ws := &WeeklySchedule{User: "rep@example.com", WeekStart: "2026-02-02"}

	row := &Detail{
		Day: "Wednesday", Time: "14:30", ClientType: crm.Customer, Client: " CUST-1 ",
		Purpose: "Demo", Notes: "bring brochure", SupportIssue: "ISS-1",
	}
	v, ok := BuildVisit(ws, row)
	if !ok {
		t.Fatal("expected a visit")
	}
	if v.Status != visit.Planned || v.AssignedTo != ws.User || v.Client != "CUST-1" || v.Subject != "Demo" {
		t.Errorf("unexpected visit %+v", v)
	}
	if v.AdditionalNotes != "bring brochure" {
		t.Errorf("notes = %q", v.AdditionalNotes)
	}
	if v.SupportIssue != "" {
		t.Errorf("support issue copied for non-maintenance row: %q", v.SupportIssue)
	}
	if want := time.Date(2026, 2, 4, 14, 30, 0, 0, time.UTC); !v.ScheduledTime.Equal(want) {
		t.Errorf("scheduled = %v, want %v", v.ScheduledTime, want)
	}

	maint := &Detail{Day: "Monday", ClientType: crm.Customer, Client: "CUST-1",
		Purpose: visit.MaintenancePurpose, SupportIssue: "ISS-1", MaintenanceDetails: "pump"}
	v, ok = BuildVisit(ws, maint)
	if !ok || v.SupportIssue != "ISS-1" || v.MaintenanceDetails != "pump" {
		t.Errorf("maintenance fields not copied: %+v", v)
	}

	for name, r := range map[string]*Detail{
		"no client type": {Client: "CUST-1", Purpose: "Demo"},
		"no client":      {ClientType: crm.Customer, Purpose: "Demo"},
		"no purpose":     {ClientType: crm.Customer, Client: "CUST-1"},
	} {
		if _, ok := BuildVisit(ws, r); ok {
			t.Errorf("%s: expected skip", name)
		}
	}
}

func TestDeriveStatus(t *testing.T) {
	yes, no := &Detail{Approved: true}, &Detail{}
	tests := []struct {
		name    string
		current Status
		rows    []*Detail
		want    Status
	}{
		{"empty", Draft, nil, Draft},
		{"none approved", Draft, []*Detail{no, no}, Draft},
		{"rejected stays", Rejected, []*Detail{no}, Rejected},
		{"partial", Draft, []*Detail{yes, no}, PendingApproval},
		{"partial overrides rejected", Rejected, []*Detail{yes, no}, PendingApproval},
		{"all", PendingApproval, []*Detail{yes, yes}, Approved},
		{"approved back to draft", Approved, []*Detail{no}, Draft},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveStatus(tt.current, tt.rows); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
