package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

func newSnippetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snippet",
		Short: "Manage reusable code snippets",
	}

	saveCmd := &cobra.Command{
		Use:   "save <name> <file>",
		Short: "Save a snippet from a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}

			body := map[string]string{"name": args[0], "code": string(code)}
			jsonBody, _ := json.Marshal(body)

			resp, err := http.Post(controlURL(cmd)+"/snippets", "application/json", bytes.NewReader(jsonBody))
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
			fmt.Printf("Saved snippet %q.\n", args[0])
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved snippets",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(controlURL(cmd) + "/snippets")
			if err != nil {
				return fmt.Errorf("connecting to broker: %w", err)
			}
			defer resp.Body.Close()

			var result map[string]any
			json.NewDecoder(resp.Body).Decode(&result)
			out, _ := json.MarshalIndent(result["snippets"], "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print a saved snippet's source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(controlURL(cmd) + "/snippets/" + args[0])
			if err != nil {
				return fmt.Errorf("connecting to broker: %w", err)
			}
			defer resp.Body.Close()

			var result map[string]any
			json.NewDecoder(resp.Body).Decode(&result)
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("failed: %v", result["error"])
			}
			fmt.Println(result["code"])
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved snippet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodDelete, controlURL(cmd)+"/snippets/"+args[0], nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("connecting to broker: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				var result map[string]any
				json.NewDecoder(resp.Body).Decode(&result)
				return fmt.Errorf("failed: %v", result["error"])
			}
			fmt.Printf("Deleted snippet %q.\n", args[0])
			return nil
		},
	}

	typesCmd := &cobra.Command{
		Use:   "types <name>",
		Short: "Print a snippet's exported function signatures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(controlURL(cmd) + "/snippets/" + args[0] + "/types")
			if err != nil {
				return fmt.Errorf("connecting to broker: %w", err)
			}
			defer resp.Body.Close()

			var result map[string]any
			json.NewDecoder(resp.Body).Decode(&result)
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("failed: %v", result["error"])
			}
			out, _ := json.MarshalIndent(result["types"], "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.AddCommand(saveCmd, listCmd, getCmd, deleteCmd, typesCmd)
	return cmd
}
