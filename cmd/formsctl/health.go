package main

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/spf13/cobra"
)

func newHealthCmd(cfg *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health and readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := cfg.client()

			var health map[string]any
			if err := client.call(http.MethodGet, "/healthz", nil, nil, &health); err != nil {
				return fmt.Errorf("server unreachable: %w", err)
			}

			var ready struct {
				Status     string                       `json:"status"`
				Components map[string]map[string]string `json:"components"`
			}
			if err := client.call(http.MethodGet, "/readyz", nil, nil, &ready); err != nil {
				// Not fatal; the server might still be starting.
				ready.Status = "not_ready"
			}

			if cfg.output() != "table" {
				return printOutput(cmd.OutOrStdout(), cfg.output(), map[string]any{
					"health":    health,
					"readiness": ready,
				})
			}

			status, _ := health["status"].(string)
			uptime, _ := health["uptime"].(string)
			rows := [][]string{
				{"liveness", status},
				{"uptime", uptime},
				{"readiness", ready.Status},
			}
			names := make([]string, 0, len(ready.Components))
			for name := range ready.Components {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				rows = append(rows, []string{name, ready.Components[name]["status"]})
			}
			printTable(cmd.OutOrStdout(), []string{"Check", "Status"}, rows)
			return nil
		},
	}
}
