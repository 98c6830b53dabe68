package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Review and approve weekly visit schedules",
	}
	cmd.AddCommand(
		newScheduleShowCmd(),
		newScheduleApproveCmd(),
		newScheduleApproveRowCmd(),
		newScheduleCreateVisitsCmd(),
		newSchedulePlanCmd(),
		newScheduleRejectCmd(),
	)
	return cmd
}

// weekFlags binds --user and --week, shared by show and plan.
func weekFlags(cmd *cobra.Command, user, week *string) {
	cmd.Flags().StringVar(user, "user", "", "schedule owner (default: you)")
	cmd.Flags().StringVar(week, "week", "", "week start, a Monday (default: current week, else latest)")
}

func newScheduleShowCmd() *cobra.Command {
	var user, week string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the rows of a weekly schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := newAPIClient().WeekRows(user, week)
			if err != nil {
				return fmt.Errorf("getting schedule: %w", err)
			}
			return output(rows, func() error {
				return printWeekRows(rows)
			})
		},
	}
	weekFlags(cmd, &user, &week)
	return cmd
}

func newScheduleApproveCmd() *cobra.Command {
	var (
		rows   []int64
		create bool
	)

	cmd := &cobra.Command{
		Use:   "approve <schedule-id>",
		Short: "Approve schedule rows (all rows unless --rows is given)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var createVisits *bool
			if cmd.Flags().Changed("create-visits") {
				createVisits = &create
			}
			res, err := newAPIClient().ApproveRows(id, rows, createVisits)
			if err != nil {
				return fmt.Errorf("approving schedule: %w", err)
			}
			return output(res, func() error {
				fmt.Printf("Approved %d rows. Schedule is %s.\n", res.Approved, res.Status)
				printCreated(res.Created, res.Skipped, "")
				return nil
			})
		},
	}

	cmd.Flags().Int64SliceVar(&rows, "rows", nil, "row ids to approve")
	cmd.Flags().BoolVar(&create, "create-visits", true, "create visits for approved rows (default: server policy)")
	return cmd
}

func newScheduleApproveRowCmd() *cobra.Command {
	var create bool

	cmd := &cobra.Command{
		Use:   "approve-row <row-id>",
		Short: "Approve a single schedule row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var createVisit *bool
			if cmd.Flags().Changed("create-visit") {
				createVisit = &create
			}
			res, err := newAPIClient().ApproveRow(id, createVisit)
			if err != nil {
				return fmt.Errorf("approving row: %w", err)
			}
			return output(res, func() error {
				fmt.Printf("Row #%d approved. Schedule is %s.\n", id, res.Status)
				printCreated(res.Created, res.Skipped, "")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&create, "create-visit", true, "create a visit for the row (default: server policy)")
	return cmd
}

func newScheduleCreateVisitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-visits <schedule-id>",
		Short: "Create visits for approved rows that have none",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			res, err := newAPIClient().CreateScheduleVisits(id)
			if err != nil {
				return fmt.Errorf("creating visits: %w", err)
			}
			return output(res, func() error {
				printCreated(res.Created, res.Skipped, res.Message)
				return nil
			})
		},
	}
}

func newSchedulePlanCmd() *cobra.Command {
	var user, week string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Create visits from the approved rows of a week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newAPIClient().PlanVisits(user, week)
			if err != nil {
				return fmt.Errorf("planning visits: %w", err)
			}
			return output(res, func() error {
				printCreated(res.Created, res.Skipped, res.Message)
				return nil
			})
		},
	}
	weekFlags(cmd, &user, &week)
	return cmd
}

func newScheduleRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <schedule-id>",
		Short: "Reject a weekly schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ws, err := newAPIClient().RejectSchedule(id)
			if err != nil {
				return fmt.Errorf("rejecting schedule: %w", err)
			}
			return output(ws, func() error {
				fmt.Printf("Schedule #%d is %s.\n", ws.ID, ws.Status)
				return nil
			})
		},
	}
}
