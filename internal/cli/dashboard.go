package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/promise4all/visit-management/internal/dashboard"
)

func newKPIsCmd() *cobra.Command {
	var req dashboard.KPIRequest

	cmd := &cobra.Command{
		Use:   "kpis",
		Short: "Show visit KPIs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := newAPIClient().KPIs(req)
			if err != nil {
				return fmt.Errorf("getting KPIs: %w", err)
			}
			return output(k, func() error {
				printKPIs(k)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Mode, "mode", dashboard.ModeMy, "my or team (team needs a manager role)")
	cmd.Flags().StringVar(&req.User, "user", "", "narrow team mode to one user")
	cmd.Flags().StringVar(&req.Period, "period", "", "today, week, month, quarter, year or custom")
	cmd.Flags().StringVar(&req.From, "from", "", "custom window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&req.To, "to", "", "custom window end (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&req.OverdueWithinPeriod, "overdue-within-period", false, "count only overdue visits scheduled in the window")

	return cmd
}

func newOverdueCmd() *cobra.Command {
	var report, all bool

	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "Count clients overdue for a visit",
		Long:  "Counts the clients whose visit frequency says a visit is due. With --report, lists every client on a frequency policy.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient()
			if !report {
				n, err := c.OverdueCount()
				if err != nil {
					return fmt.Errorf("counting overdue clients: %w", err)
				}
				return output(dashboard.NumberCard{Value: n, FieldType: "Int"}, func() error {
					fmt.Printf("%d clients overdue for a visit (%s)\n", n, time.Now().UTC().Format("2006-01-02"))
					return nil
				})
			}

			rows, err := c.OverdueReport(!all)
			if err != nil {
				return fmt.Errorf("getting overdue report: %w", err)
			}
			return output(rows, func() error {
				return printFrequencyTable(rows)
			})
		},
	}

	cmd.Flags().BoolVar(&report, "report", false, "list clients instead of counting")
	cmd.Flags().BoolVar(&all, "all", false, "with --report, include clients that are not overdue")

	return cmd
}

