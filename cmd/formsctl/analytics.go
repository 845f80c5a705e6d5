package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatsCmd(cfg *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "stats FORM_ID",
		Short: "Show response counts for a form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats struct {
				Total     int64 `json:"total"`
				Submitted int64 `json:"submitted"`
				Draft     int64 `json:"draft"`
				ThisWeek  int64 `json:"this_week"`
				ThisMonth int64 `json:"this_month"`
			}
			path := formsAPI + "/forms/" + url.PathEscape(args[0]) + "/stats"
			if err := cfg.client().call(http.MethodGet, path, nil, nil, &stats); err != nil {
				return err
			}
			if cfg.output() != "table" {
				return printOutput(cmd.OutOrStdout(), cfg.output(), stats)
			}
			printTable(cmd.OutOrStdout(), []string{"Total", "Submitted", "Draft", "This Week", "This Month"}, [][]string{{
				strconv.FormatInt(stats.Total, 10),
				strconv.FormatInt(stats.Submitted, 10),
				strconv.FormatInt(stats.Draft, 10),
				strconv.FormatInt(stats.ThisWeek, 10),
				strconv.FormatInt(stats.ThisMonth, 10),
			}})
			return nil
		},
	}
}

func newTrendCmd(cfg *settings) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "trend FORM_ID",
		Short: "Show daily response counts for a form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if days > 0 {
				q.Set("days", strconv.Itoa(days))
			}
			var resp struct {
				Trend []struct {
					Date      string `json:"date"`
					Total     int    `json:"total"`
					Submitted int    `json:"submitted"`
				} `json:"trend"`
			}
			path := formsAPI + "/forms/" + url.PathEscape(args[0]) + "/trend"
			if err := cfg.client().call(http.MethodGet, path, q, nil, &resp); err != nil {
				return err
			}
			if cfg.output() != "table" {
				return printOutput(cmd.OutOrStdout(), cfg.output(), resp)
			}
			rows := make([][]string, len(resp.Trend))
			for i, p := range resp.Trend {
				rows[i] = []string{p.Date, strconv.Itoa(p.Total), strconv.Itoa(p.Submitted)}
			}
			printTable(cmd.OutOrStdout(), []string{"Date", "Total", "Submitted"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Trailing window in days (server default 30)")
	return cmd
}

func newExportCmd(cfg *settings) *cobra.Command {
	var format, file string
	cmd := &cobra.Command{
		Use:   "export FORM_ID",
		Short: "Download the submitted responses of a form as CSV or XLSX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "xlsx" {
				return fmt.Errorf("--format must be csv or xlsx")
			}
			if format == "xlsx" && file == "" {
				return fmt.Errorf("--file is required for xlsx exports")
			}
			q := url.Values{"format": {format}}
			path := formsAPI + "/forms/" + url.PathEscape(args[0]) + "/export"
			data, _, err := cfg.client().do(http.MethodGet, path, q, nil)
			if err != nil {
				return err
			}
			if file == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(file, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", file, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(data), file)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "Export format: csv or xlsx")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Write to this file instead of stdout")
	return cmd
}
