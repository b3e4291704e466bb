// Package commands implements the dlepctl CLI commands.
package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// httpClient is the shared client for the daemon's introspection API.
	httpClient = &http.Client{Timeout: 10 * time.Second}

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the daemon's introspection HTTP address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for dlepctl.
var rootCmd = &cobra.Command{
	Use:   "dlepctl",
	Short: "CLI client for the godlep daemon",
	Long:  "dlepctl talks to the godlep daemon's JSON/HTTP introspection API to inspect and manage DLEP sessions.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8854",
		"godlep daemon introspection address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func baseURL() string {
	return "http://" + serverAddr
}
