package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// buildStatusCmd creates the "status" command that queries a running
// gateway's /api/stats endpoint.
func buildStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running gateway's stats endpoint",
		Example: `  execgw status --addr http://localhost:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Base URL of a running gateway")
	return cmd
}

func runStatus(addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(addr + "/api/stats")
	if err != nil {
		return fmt.Errorf("query stats: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read stats response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %s: %s", resp.Status, string(body))
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(string(out))
	return nil
}
