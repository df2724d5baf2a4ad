package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newPermissionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "permissions",
		Short: "List granted capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(controlURL(cmd) + "/permissions")
			if err != nil {
				return fmt.Errorf("connecting to broker: %w", err)
			}
			defer resp.Body.Close()

			var result map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				return err
			}

			out, _ := json.MarshalIndent(result["permissions"], "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}
