// Package cli defines the cobra command tree for visits.
package cli

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/promise4all/visit-management/internal/client"
	"github.com/promise4all/visit-management/internal/db"
)

var (
	flagFormat string
	flagDB     string
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "visits",
		Short:         "Plan and track field sales visits",
		Long:          "Plan weekly visit schedules, check in and out of client visits, and follow visit KPIs via the CLI or the JSON API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format (text|json)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (default: ~/.visit-management/visits.db)")

	root.AddCommand(
		newVisitCmd(),
		newScheduleCmd(),
		newKPIsCmd(),
		newOverdueCmd(),
		newJobsCmd(),
		newAdminCmd(),
		newServeCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

// openDB opens the SQLite database from --db, then fallback, then the
// stored CLI setting, then the default path.
// Used by the commands that work on the database directly.
func openDB(fallback string) (*sql.DB, error) {
	path := flagDB
	if path == "" {
		path = fallback
	}
	if path == "" {
		path = getDatabasePath()
	}
	if path == "" {
		var err error
		path, err = db.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return db.Open(path)
}

// newAPIClient creates an HTTP client for the visits API.
func newAPIClient() *client.Client {
	return client.New(getServerURL(), getAPIKey())
}

// isJSON returns true if the --format flag is set to json.
func isJSON() bool {
	return flagFormat == "json"
}

// closeDB closes the database, logging any error to stderr.
func closeDB(database *sql.DB) {
	if err := database.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing database: %v\n", err)
	}
}

// parseID parses a positive numeric id argument.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid ID %q", s)
	}
	return id, nil
}
