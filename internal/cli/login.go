package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/promise4all/visit-management/internal/client"
)

func newLoginCmd() *cobra.Command {
	var server, key string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the server URL and an API key",
		Long:  "Checks an API key against the server and stores it for CLI access. Keys are issued with 'visits admin key create'.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(server, key, os.Stdin)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "server URL (default: from config or http://localhost:8080)")
	cmd.Flags().StringVar(&key, "key", "", "API key (prompted when omitted)")

	return cmd
}

func runLogin(serverFlag, key string, in io.Reader) error {
	serverURL := serverFlag
	if serverURL == "" {
		serverURL = getServerURL()
	}

	if key == "" {
		fmt.Print("Paste your API key: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading input: %w", err)
		}
		key = line
	}

	key = strings.TrimSpace(key)
	if err := validateAPIKey(key); err != nil {
		return err
	}

	if _, err := client.New(serverURL, key).Assignees(); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("the server rejected the API key")
		}
		return fmt.Errorf("checking API key: %w", err)
	}

	// Load existing config to preserve other fields
	cfg, err := loadConfig()
	if err != nil {
		cfg = CLIConfig{}
	}

	cfg.APIKey = key
	if serverFlag != "" {
		cfg.ServerURL = serverFlag
	}

	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println("✓ API key saved. You're logged in!")
	return nil
}

// validateAPIKey checks that the key is non-empty and has the expected prefix.
func validateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("no API key provided")
	}
	if !strings.HasPrefix(key, "vm_") {
		return fmt.Errorf("invalid API key format (should start with vm_)")
	}
	return nil
}
