package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

type exportJob struct {
	ID           string `json:"id"`
	FormID       string `json:"formId"`
	Format       string `json:"format"`
	RequestedBy  string `json:"requestedBy"`
	RequestedAt  string `json:"requestedAt"`
	State        string `json:"state"`
	Message      string `json:"message,omitempty"`
	FinishedAt   string `json:"finishedAt,omitempty"`
	AttemptCount int    `json:"attemptCount"`
	LastError    string `json:"lastError,omitempty"`
	Rows         int    `json:"rows,omitempty"`
}

func jobRow(j exportJob) []string {
	rows := ""
	if j.Rows > 0 {
		rows = strconv.Itoa(j.Rows)
	}
	return []string{j.ID, j.FormID, j.Format, j.State, rows, j.RequestedBy, j.RequestedAt}
}

var jobHeaders = []string{"ID", "Form", "Format", "State", "Rows", "Requested By", "Requested At"}

func newExportsCmd(cfg *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exports",
		Short: "Run and track background exports",
	}

	var format string
	create := &cobra.Command{
		Use:   "create FORM_ID",
		Short: "Queue a background export of a form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var job exportJob
			body := map[string]string{"formId": args[0], "format": format}
			if err := cfg.client().call(http.MethodPost, jobsAPI+"/exports", nil, body, &job); err != nil {
				return err
			}
			if cfg.output() != "table" {
				return printOutput(cmd.OutOrStdout(), cfg.output(), job)
			}
			printTable(cmd.OutOrStdout(), jobHeaders, [][]string{jobRow(job)})
			return nil
		},
	}
	create.Flags().StringVar(&format, "format", "csv", "Export format: csv or xlsx")

	var (
		formID, state string
		pageSize      int
		pageToken     string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List export jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := pageQuery(pageSize, pageToken)
			if formID != "" {
				q.Set("formId", formID)
			}
			if state != "" {
				q.Set("state", state)
			}
			var resp struct {
				Jobs          []exportJob `json:"jobs"`
				NextPageToken string      `json:"nextPageToken,omitempty"`
				TotalSize     int         `json:"totalSize"`
			}
			if err := cfg.client().call(http.MethodGet, jobsAPI+"/exports", q, nil, &resp); err != nil {
				return err
			}
			if cfg.output() != "table" {
				return printOutput(cmd.OutOrStdout(), cfg.output(), resp)
			}
			rows := make([][]string, len(resp.Jobs))
			for i, j := range resp.Jobs {
				rows[i] = jobRow(j)
			}
			printTable(cmd.OutOrStdout(), jobHeaders, rows)
			if resp.NextPageToken != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nmore results: --page-token %s\n", resp.NextPageToken)
			}
			return nil
		},
	}
	list.Flags().StringVar(&formID, "form", "", "Only jobs for this form")
	list.Flags().StringVar(&state, "state", "", "Only jobs in this state")
	pageFlags(list, &pageSize, &pageToken)

	get := &cobra.Command{
		Use:   "get JOB_ID",
		Short: "Show an export job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var job exportJob
			if err := cfg.client().call(http.MethodGet, jobsAPI+"/exports/"+url.PathEscape(args[0]), nil, nil, &job); err != nil {
				return err
			}
			if cfg.output() != "table" {
				return printOutput(cmd.OutOrStdout(), cfg.output(), job)
			}
			printTable(cmd.OutOrStdout(), jobHeaders, [][]string{jobRow(job)})
			if job.LastError != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nlast error: %s\n", job.LastError)
			}
			return nil
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel a queued or running export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := jobsAPI + "/exports/" + url.PathEscape(args[0]) + ":cancel"
			if err := cfg.client().call(http.MethodPost, path, nil, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export %s canceled\n", args[0])
			return nil
		},
	}

	download := &cobra.Command{
		Use:   "download JOB_ID",
		Short: "Print a short-lived download URL for a finished export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				URL       string `json:"url"`
				ExpiresAt string `json:"expiresAt"`
			}
			path := jobsAPI + "/exports/" + url.PathEscape(args[0]) + ":download"
			if err := cfg.client().call(http.MethodGet, path, nil, nil, &resp); err != nil {
				return err
			}
			if cfg.output() != "table" {
				return printOutput(cmd.OutOrStdout(), cfg.output(), resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.URL)
			return nil
		},
	}

	cmd.AddCommand(create, list, get, cancel, download)
	return cmd
}
