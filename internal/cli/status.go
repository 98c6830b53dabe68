package cli

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/promise4all/visit-management/internal/client"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the server and API key in use",
		Long:  "Reports whether the configured server is reachable and whether it accepts the stored API key.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

// runStatus only reports. Connection and auth failures are printed, not
// returned.
func runStatus() error {
	serverURL, apiKey := getServerURL(), getAPIKey()
	c := client.New(serverURL, apiKey)

	server := "reachable"
	if err := c.Health(); err != nil {
		server = fmt.Sprintf("unreachable (%v)", err)
	}

	key, hint := "not configured", "Run 'visits login' to store an API key."
	if apiKey != "" {
		key, hint = checkKey(c), ""
	}

	fmt.Printf("Server:  %s\n", serverURL)
	fmt.Printf("Health:  %s\n", server)
	fmt.Printf("API key: %s %s\n", maskKey(apiKey), key)
	if hint != "" {
		fmt.Println("\n" + hint)
	}
	return nil
}

func checkKey(c *client.Client) string {
	_, err := c.Assignees()
	var apiErr *client.APIError
	switch {
	case err == nil:
		return "(accepted)"
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized:
		return "(rejected, run 'visits login' again)"
	case errors.As(err, &apiErr):
		return fmt.Sprintf("(unexpected response %d)", apiErr.StatusCode)
	default:
		return "(not checked)"
	}
}

// maskKey keeps the prefix and the first few characters of a key.
func maskKey(key string) string {
	if key == "" {
		return "-"
	}
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}
