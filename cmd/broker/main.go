// Package main is the entrypoint for the broker CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time via -ldflags.
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "broker",
		Short: "Capability-gated code execution broker",
		Long:  "broker runs sandboxed code execution behind an explicit, auditable permission model.",
	}

	rootCmd.PersistentFlags().String("config", "", "path to server configuration file (or set BROKER_CONFIG)")
	rootCmd.PersistentFlags().String("control-url", "http://127.0.0.1:4556", "control surface base URL (or set BROKER_CONTROL_URL)")

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newGrantCmd(),
		newRevokeCmd(),
		newPermissionsCmd(),
		newSnippetCmd(),
		newAuditCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("broker version %s\n", version)
		},
	}
}

func controlURL(cmd *cobra.Command) string {
	url, _ := cmd.Flags().GetString("control-url")
	if env := os.Getenv("BROKER_CONTROL_URL"); env != "" {
		return env
	}
	return url
}
