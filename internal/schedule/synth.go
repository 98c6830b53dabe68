package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/promise4all/visit-management/internal/db"
	"github.com/promise4all/visit-management/internal/visit"
)

var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// WeekdayOffset returns days after Monday for a weekday name. Unknown names
// map to 0.
func WeekdayOffset(day string) int {
	day = strings.TrimSpace(day)
	for i, d := range weekdays {
		if strings.EqualFold(day, d) {
			return i
		}
	}
	return 0
}

var timeLayouts = []string{"15:04:05", "15:04"}

// timeOfDay parses HH:MM:SS or HH:MM, defaulting to 09:00:00.
func timeOfDay(s string) (h, m, sec int) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour(), t.Minute(), t.Second()
		}
	}
	return 9, 0, 0
}

// TimeSlot formats a row time as HH:MM.
func TimeSlot(s string) string {
	h, m, _ := timeOfDay(s)
	return fmt.Sprintf("%02d:%02d", h, m)
}

// ScheduledTime returns weekStart plus the weekday offset of day, at the
// parsed time of day.
func ScheduledTime(weekStart, day, tm string) (time.Time, error) {
	start, err := time.ParseInLocation(db.DateLayout, strings.TrimSpace(weekStart), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing week start %q: %w", weekStart, err)
	}
	h, m, s := timeOfDay(tm)
	d := start.AddDate(0, 0, WeekdayOffset(day))
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, s, 0, time.UTC), nil
}

// BuildVisit synthesises a Planned visit from a schedule row. It reports
// false when the row lacks a client type, client or purpose.
func BuildVisit(ws *WeeklySchedule, row *Detail) (*visit.Visit, bool) {
	if row.ClientType == "" || strings.TrimSpace(row.Client) == "" || strings.TrimSpace(row.Purpose) == "" {
		return nil, false
	}
	at, err := ScheduledTime(ws.WeekStart, row.Day, row.Time)
	if err != nil {
		return nil, false
	}

	v := &visit.Visit{
		Status:          visit.Planned,
		AssignedTo:      ws.User,
		ClientType:      row.ClientType,
		Client:          strings.TrimSpace(row.Client),
		Subject:         row.Purpose,
		AdditionalNotes: row.Notes,
		ScheduledTime:   &at,
	}
	if v.IsMaintenance() {
		v.SupportIssue = row.SupportIssue
		v.MaintenanceDetails = row.MaintenanceDetails
	}
	return v, true
}

// Monday returns the Monday of t's week as YYYY-MM-DD.
func Monday(t time.Time) string {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset).Format(db.DateLayout)
}
