package cli

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/promise4all/visit-management/internal/client"
	"github.com/promise4all/visit-management/internal/crm"
	"github.com/promise4all/visit-management/internal/visit"
)

func newVisitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visit",
		Short: "Create, list and check in to visits",
	}
	cmd.AddCommand(
		newVisitCreateCmd(),
		newVisitShowCmd(),
		newVisitListCmd(),
		newVisitCheckCmd("check-in"),
		newVisitCheckCmd("check-out"),
		newVisitCancelCmd(),
		newVisitDeleteCmd(),
		newVisitMaintenanceCmd(),
	)
	return cmd
}

func newVisitCreateCmd() *cobra.Command {
	var (
		v         visit.Visit
		kind      string
		scheduled string
	)

	cmd := &cobra.Command{
		Use:   "create <client>",
		Short: "Plan a visit to a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v.Client = args[0]
			v.ClientType = crm.Kind(kind)
			if scheduled != "" {
				t, err := time.ParseInLocation(timeLayout, scheduled, time.UTC)
				if err != nil {
					return fmt.Errorf("invalid --at %q (want %q)", scheduled, timeLayout)
				}
				v.ScheduledTime = &t
			}

			created, err := newAPIClient().CreateVisit(&v)
			if err != nil {
				return fmt.Errorf("creating visit: %w", err)
			}
			return output(created, func() error {
				fmt.Printf("Visit #%d created (%s).\n", created.ID, created.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "type", string(crm.Customer), "client type (Customer, CRM Organization, CRM Lead, CRM Deal)")
	cmd.Flags().StringVar(&v.Subject, "subject", "", "purpose of the visit")
	cmd.Flags().StringVar(&scheduled, "at", "", "scheduled time in UTC (YYYY-MM-DD HH:MM)")
	cmd.Flags().StringVar(&v.AssignedTo, "assign", "", "assignee email (default: you)")
	cmd.Flags().StringVar(&v.Address, "address", "", "address name")
	cmd.Flags().StringVar(&v.Brief, "brief", "", "briefing notes")
	cmd.Flags().StringVar(&v.Contact, "contact", "", "contact person")

	return cmd
}

func newVisitShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a visit with its log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			v, err := newAPIClient().GetVisit(id)
			if err != nil {
				return fmt.Errorf("getting visit: %w", err)
			}
			return output(v, func() error {
				printVisit(v)
				return nil
			})
		},
	}
}

func newVisitListCmd() *cobra.Command {
	var opts client.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			visits, err := newAPIClient().ListVisits(opts)
			if err != nil {
				return fmt.Errorf("listing visits: %w", err)
			}
			return output(visits, func() error {
				return printVisitTable(visits)
			})
		},
	}

	cmd.Flags().StringVar(&opts.AssignedTo, "assigned-to", "", "filter by assignee email")
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status")
	cmd.Flags().StringVar(&opts.From, "from", "", "scheduled on or after (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "scheduled on or before (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of visits")

	return cmd
}

// newVisitCheckCmd builds check-in or check-out; check-out also takes the
// completion fields.
func newVisitCheckCmd(name string) *cobra.Command {
	var (
		in    visit.CheckInput
		photo string
	)

	cmd := &cobra.Command{
		Use:   name + " <id>",
		Short: "Record " + name + " for a visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if photo != "" {
				data, err := os.ReadFile(photo)
				if err != nil {
					return fmt.Errorf("reading photo: %w", err)
				}
				in.PhotoData = base64.StdEncoding.EncodeToString(data)
				in.PhotoFilename = filepath.Base(photo)
			}

			c := newAPIClient()
			check := c.CheckIn
			if name == "check-out" {
				check = c.CheckOut
			}
			res, err := check(id, in)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return output(res, func() error {
				fmt.Printf("✓ Visit #%d %s at %s\n", res.Visit, name, res.At().UTC().Format(timeLayout))
				if res.EmployeeCheckin != 0 {
					fmt.Printf("  Employee checkin #%d for %s\n", res.EmployeeCheckin, res.Employee)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&photo, "photo", "", "path to an attendance photo")
	cmd.Flags().StringVar(&in.Location, "location", "", "current position as lat,lng")
	if name == "check-out" {
		cmd.Flags().StringVar(&in.Outcome, "outcome", "", "visit outcome")
		cmd.Flags().StringVar(&in.ReportSummary, "summary", "", "report summary")
	}

	return cmd
}

func newVisitCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a visit (managers only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			v, err := newAPIClient().CancelVisit(id)
			if err != nil {
				return fmt.Errorf("cancelling visit: %w", err)
			}
			return output(v, func() error {
				fmt.Printf("Visit #%d cancelled.\n", v.ID)
				return nil
			})
		},
	}
}

func newVisitDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a visit that was never submitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := newAPIClient().DeleteVisit(id); err != nil {
				return fmt.Errorf("deleting visit: %w", err)
			}
			fmt.Printf("Visit #%d deleted.\n", id)
			return nil
		},
	}
}

func newVisitMaintenanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintenance <id>",
		Short: "Create the maintenance visit for a completed maintenance visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			mv, err := newAPIClient().CreateMaintenanceVisit(id)
			if err != nil {
				return fmt.Errorf("creating maintenance visit: %w", err)
			}
			return output(map[string]int64{"maintenance_visit": mv}, func() error {
				fmt.Printf("Maintenance Visit #%d linked to visit #%d.\n", mv, id)
				return nil
			})
		},
	}
}
