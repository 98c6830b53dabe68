// Package main is the entry point for the visits CLI and API server.
package main

import (
	"fmt"
	"os"

	"github.com/promise4all/visit-management/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
