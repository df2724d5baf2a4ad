package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the execution and permission audit trail",
	}
	cmd.AddCommand(newAuditExecutionsCmd(), newAuditPermissionsCmd())
	return cmd
}

func newAuditExecutionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "executions",
		Short: "List recent executeCode audit records",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return getAuditList(fmt.Sprintf("%s/audit/executions?limit=%d", controlURL(cmd), limit), "executions")
		},
	}
	cmd.Flags().Int("limit", 100, "maximum number of records to return")
	return cmd
}

func newAuditPermissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "List recent permission grant/revoke/denial events",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return getAuditList(fmt.Sprintf("%s/audit/permissions?limit=%d", controlURL(cmd), limit), "permissionEvents")
		},
	}
	cmd.Flags().Int("limit", 100, "maximum number of records to return")
	return cmd
}

func getAuditList(url, field string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed: %v", result["error"])
	}

	out, _ := json.MarshalIndent(result[field], "", "  ")
	fmt.Println(string(out))
	return nil
}
