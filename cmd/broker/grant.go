package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

func newGrantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant a capability to the running broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("type")
			host, _ := cmd.Flags().GetString("host")
			pathPattern, _ := cmd.Flags().GetString("path")
			methods, _ := cmd.Flags().GetStringSlice("method")
			path, _ := cmd.Flags().GetString("file-path")
			operations, _ := cmd.Flags().GetStringSlice("operation")
			variables, _ := cmd.Flags().GetStringSlice("variable")
			description, _ := cmd.Flags().GetString("description")

			body := map[string]any{
				"type":        kind,
				"description": description,
			}
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

			return postCapability(controlURL(cmd)+"/permissions/grant", body)
		},
	}

	cmd.Flags().String("type", "", "capability type: http, file, or env")
	cmd.Flags().String("description", "", "human-readable description")
	cmd.Flags().String("host", "", "http: allowed host")
	cmd.Flags().String("path", "", "http: allowed path pattern")
	cmd.Flags().StringSlice("method", nil, "http: allowed methods")
	cmd.Flags().String("file-path", "", "file: allowed path pattern")
	cmd.Flags().StringSlice("operation", nil, "file: allowed operations")
	cmd.Flags().StringSlice("variable", nil, "env: allowed variable names")
	cmd.MarkFlagRequired("type")

	return cmd
}

func postCapability(url string, body map[string]any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	var result map[string]any
	json.Unmarshal(respBody, &result)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed: %v", result["error"])
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	return nil
}
