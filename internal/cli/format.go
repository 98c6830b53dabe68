package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/promise4all/visit-management/internal/dashboard"
	"github.com/promise4all/visit-management/internal/frequency"
	"github.com/promise4all/visit-management/internal/schedule"
	"github.com/promise4all/visit-management/internal/visit"
)

const timeLayout = "2006-01-02 15:04"

// printJSON marshals v as indented JSON and writes it to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// output prints v as JSON when --format=json, else runs text.
func output(v any, text func() error) error {
	if isJSON() {
		return printJSON(v)
	}
	return text()
}

// table writes a header, a separator and rows through a tabwriter.
func table(header string, rows [][]any) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, header); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, row := range rows {
		for i, cell := range row {
			sep := "\t"
			if i == len(row)-1 {
				sep = "\n"
			}
			if _, err := fmt.Fprint(w, cell, sep); err != nil {
				return fmt.Errorf("writing table row: %w", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing table: %w", err)
	}
	return nil
}

// printVisit prints a single visit in text format.
func printVisit(v *visit.Visit) {
	fmt.Printf("Visit #%d\n", v.ID)
	fmt.Printf("  Client:     %s %s\n", v.ClientType, v.Client)
	fmt.Printf("  Subject:    %s\n", v.Subject)
	fmt.Printf("  Assigned:   %s\n", v.AssignedTo)
	fmt.Printf("  Status:     %s\n", v.Status)
	fmt.Printf("  Scheduled:  %s\n", formatTime(v.ScheduledTime))
	if v.CheckInTime != nil {
		fmt.Printf("  Check-in:   %s\n", formatTime(v.CheckInTime))
	}
	if v.CheckOutTime != nil {
		fmt.Printf("  Check-out:  %s\n", formatTime(v.CheckOutTime))
	}
	if v.VisitDurationMinutes != nil {
		fmt.Printf("  Duration:   %d min\n", *v.VisitDurationMinutes)
	}
	if v.VisitOutcome != "" {
		fmt.Printf("  Outcome:    %s\n", v.VisitOutcome)
	}
	if v.Address != "" {
		fmt.Printf("  Address:    %s\n", v.Address)
	}
	if v.ReportSummary != "" {
		fmt.Printf("  Summary:    %s\n", v.ReportSummary)
	}
	if v.MaintenanceVisit != nil {
		fmt.Printf("  Maint.:     #%d\n", *v.MaintenanceVisit)
	}
	if len(v.Logs) > 0 {
		fmt.Println("\n  Log:")
		for _, l := range v.Logs {
			fmt.Printf("    [%s] %s (%s)\n", l.Timestamp.Format(timeLayout), l.Activity, l.User)
		}
	}
}

// printVisitTable prints a list of visits as a formatted table.
func printVisitTable(visits []*visit.Visit) error {
	if len(visits) == 0 {
		fmt.Println("No visits found.")
		return nil
	}

	rows := make([][]any, 0, len(visits))
	for _, v := range visits {
		rows = append(rows, []any{v.ID, formatTime(v.ScheduledTime), v.Status,
			truncate(string(v.ClientType)+" "+v.Client, 30), truncate(v.Subject, 30), v.AssignedTo})
	}
	if err := table("ID\tSCHEDULED\tSTATUS\tCLIENT\tSUBJECT\tASSIGNED", rows); err != nil {
		return err
	}

	fmt.Printf("\nTotal: %d visits\n", len(visits))
	return nil
}

// printWeekRows prints the rows of one weekly schedule.
func printWeekRows(rows []schedule.RowView) error {
	if len(rows) == 0 {
		fmt.Println("No weekly schedule found.")
		return nil
	}

	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		visitID := "-"
		if r.Visit != nil {
			visitID = fmt.Sprintf("%d", *r.Visit)
		}
		out = append(out, []any{r.Name, r.Day, r.TimeSlot, truncate(string(r.ClientType)+" "+r.Client, 30),
			truncate(r.Purpose, 30), r.Status, visitID})
	}
	return table("ROW\tDAY\tTIME\tCLIENT\tPURPOSE\tSTATUS\tVISIT", out)
}

// printKPIs prints KPI figures in text format.
func printKPIs(k *dashboard.KPIs) {
	fmt.Printf("Mode:        %s\n", k.EffectiveMode)
	fmt.Printf("Planned:     %d\n", k.Planned)
	fmt.Printf("In Progress: %d\n", k.InProgress)
	fmt.Printf("Completed:   %d\n", k.Completed)
	fmt.Printf("Overdue:     %d\n", k.VisitScheduleOverdue)
}

// printFrequencyTable prints the visit-frequency report.
func printFrequencyTable(rows []frequency.Row) error {
	if len(rows) == 0 {
		fmt.Println("No clients require regular visits.")
		return nil
	}

	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		due := r.DueDate
		if due == "" {
			due = "-"
		}
		overdue := ""
		if r.Overdue {
			overdue = "yes"
		}
		out = append(out, []any{r.ClientType, truncate(r.Client, 20), truncate(r.ClientName, 30),
			r.VisitFrequency, formatTime(r.LastVisit), due, overdue})
	}
	return table("TYPE\tCLIENT\tNAME\tFREQUENCY\tLAST VISIT\tDUE\tOVERDUE", out)
}

// printCreated summarises a visit-creation run.
func printCreated(created, skipped []int64, message string) {
	if message != "" {
		fmt.Println(message)
		return
	}
	fmt.Printf("Created %d visits", len(created))
	if len(created) > 0 {
		fmt.Printf(" %v", created)
	}
	fmt.Println(".")
	if len(skipped) > 0 {
		fmt.Printf("Skipped rows %v (visit already linked).\n", skipped)
	}
}

// formatTime formats an optional timestamp, "-" when unset.
func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
