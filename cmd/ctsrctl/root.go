package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
	userEmail string
)

var rootCmd = &cobra.Command{
	Use:   "ctsrctl",
	Short: "CLI for the clinical trial system registry",
	Long: `ctsrctl interacts with the compliance registry server: trials, their
linked systems, confirmation cycles, and the audit trail.

Write operations are attributed to the identity given with --as (or the
CTSR_USER_EMAIL environment variable).`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Registry server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&userEmail, "as", "", "Acting user email for write operations (default: from CTSR_USER_EMAIL env)")

	rootCmd.AddCommand(trialsCmd)
	rootCmd.AddCommand(systemsCmd)
	rootCmd.AddCommand(confirmationsCmd)
	rootCmd.AddCommand(auditCmd)
}

// resolvedUser returns the effective acting identity.
// Priority: --as flag > CTSR_USER_EMAIL env var.
func resolvedUser() string {
	if userEmail != "" {
		return userEmail
	}
	return os.Getenv("CTSR_USER_EMAIL")
}
