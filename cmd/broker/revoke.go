package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a capability from the running broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("type")
			host, _ := cmd.Flags().GetString("host")
			pathPattern, _ := cmd.Flags().GetString("path")
			methods, _ := cmd.Flags().GetStringSlice("method")
			path, _ := cmd.Flags().GetString("file-path")
			operations, _ := cmd.Flags().GetStringSlice("operation")
			variables, _ := cmd.Flags().GetStringSlice("variable")

			body := map[string]any{"type": kind}
			switch kind {
			case "http":
				body["host"] = host
				body["pathPattern"] = pathPattern
				body["methods"] = methods
			case "file":
				body["path"] = path
				body["operations"] = operations
			case "env":
				body["variables"] = variables
			default:
				return fmt.Errorf("unknown capability type %q, want http, file, or env", kind)
			}

			return postCapability(controlURL(cmd)+"/permissions/revoke", body)
		},
	}

	cmd.Flags().String("type", "", "capability type: http, file, or env")
	cmd.Flags().String("host", "", "http: allowed host")
	cmd.Flags().String("path", "", "http: allowed path pattern")
	cmd.Flags().StringSlice("method", nil, "http: allowed methods")
	cmd.Flags().String("file-path", "", "file: allowed path pattern")
	cmd.Flags().StringSlice("operation", nil, "file: allowed operations")
	cmd.Flags().StringSlice("variable", nil, "env: allowed variable names")
	cmd.MarkFlagRequired("type")

	return cmd
}
