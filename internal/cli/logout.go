package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored API key",
		Long:  "Removes the API key from the config file. The server URL is kept for the next login.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout()
		},
	}
}

func runLogout() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.APIKey == "" {
		fmt.Println("No API key stored.")
		return nil
	}

	cfg.APIKey = ""
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	if cfg.ServerURL != "" {
		fmt.Printf("Logged out of %s.\n", cfg.ServerURL)
	} else {
		fmt.Println("Logged out.")
	}
	return nil
}
