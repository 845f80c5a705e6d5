package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

type responseItem struct {
	ID          string         `json:"id"`
	FormID      string         `json:"formId"`
	UserID      string         `json:"userId"`
	JobID       *string        `json:"jobId,omitempty"`
	Data        map[string]any `json:"data"`
	Submitted   bool           `json:"submitted"`
	SubmittedAt string         `json:"submittedAt,omitempty"`
	CreatedAt   string         `json:"createdAt"`
}

func newResponsesCmd(cfg *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "responses",
		Aliases: []string{"response"},
		Short:   "Inspect captured responses",
	}

	var (
		submitted string
		userID    string
		pageSize  int
		pageToken string
	)
	list := &cobra.Command{
		Use:   "list FORM_ID",
		Short: "List the responses of a form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := pageQuery(pageSize, pageToken)
			if submitted != "" {
				if _, err := strconv.ParseBool(submitted); err != nil {
					return fmt.Errorf("--submitted must be true or false")
				}
				q.Set("submitted", submitted)
			}
			if userID != "" {
				q.Set("userId", userID)
			}
			var resp struct {
				Responses     []responseItem `json:"responses"`
				NextPageToken string         `json:"nextPageToken,omitempty"`
				TotalSize     int            `json:"totalSize"`
			}
			path := formsAPI + "/forms/" + url.PathEscape(args[0]) + "/responses"
			if err := cfg.client().call(http.MethodGet, path, q, nil, &resp); err != nil {
				return err
			}
			if cfg.output() != "table" {
				return printOutput(cmd.OutOrStdout(), cfg.output(), resp)
			}
			rows := make([][]string, len(resp.Responses))
			for i, r := range resp.Responses {
				state := "draft"
				if r.Submitted {
					state = "submitted"
				}
				rows[i] = []string{r.ID, r.UserID, state, r.SubmittedAt, r.CreatedAt}
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "User", "State", "Submitted At", "Created"}, rows)
			if resp.NextPageToken != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nmore results: --page-token %s\n", resp.NextPageToken)
			}
			return nil
		},
	}
	list.Flags().StringVar(&submitted, "submitted", "", "Only submitted (true) or draft (false) responses")
	list.Flags().StringVar(&userID, "user-id", "", "Only responses captured by this user")
	pageFlags(list, &pageSize, &pageToken)

	get := &cobra.Command{
		Use:   "get RESPONSE_ID",
		Short: "Show a response and its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp responseItem
			if err := cfg.client().call(http.MethodGet, formsAPI+"/responses/"+url.PathEscape(args[0]), nil, nil, &resp); err != nil {
				return err
			}
			format := cfg.output()
			if format == "table" {
				format = "yaml"
			}
			return printOutput(cmd.OutOrStdout(), format, resp)
		},
	}

	signatures := &cobra.Command{
		Use:   "signatures RESPONSE_ID",
		Short: "List the signatures attached to a response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Signatures []struct {
					ID         string `json:"id"`
					FieldName  string `json:"fieldName,omitempty"`
					SignerName string `json:"signerName"`
					SignerRole string `json:"signerRole,omitempty"`
					ImageRef   string `json:"imageRef"`
					SignedAt   string `json:"signedAt"`
				} `json:"signatures"`
			}
			path := formsAPI + "/responses/" + url.PathEscape(args[0]) + "/signatures"
			if err := cfg.client().call(http.MethodGet, path, nil, nil, &resp); err != nil {
				return err
			}
			if cfg.output() != "table" {
				return printOutput(cmd.OutOrStdout(), cfg.output(), resp)
			}
			rows := make([][]string, len(resp.Signatures))
			for i, s := range resp.Signatures {
				rows[i] = []string{s.SignerName, s.SignerRole, s.FieldName, s.SignedAt, truncate(s.ImageRef, 48)}
			}
			printTable(cmd.OutOrStdout(), []string{"Signer", "Role", "Field", "Signed At", "Image"}, rows)
			return nil
		},
	}

	cmd.AddCommand(list, get, signatures)
	return cmd
}
