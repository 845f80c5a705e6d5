package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

type formItem struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      string         `json:"type,omitempty"`
	Schema    map[string]any `json:"schema,omitempty"`
	CreatedAt string         `json:"createdAt"`
	UpdatedAt string         `json:"updatedAt"`
}

type formList struct {
	Forms         []formItem `json:"forms"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
	TotalSize     int        `json:"totalSize"`
}

// pageFlags adds --page-size and --page-token to cmd.
func pageFlags(cmd *cobra.Command, size *int, token *string) {
	cmd.Flags().IntVar(size, "page-size", 0, "Items per page (server default 20, max 100)")
	cmd.Flags().StringVar(token, "page-token", "", "Token of the page to fetch")
}

func pageQuery(size int, token string) url.Values {
	q := url.Values{}
	if size > 0 {
		q.Set("pageSize", strconv.Itoa(size))
	}
	if token != "" {
		q.Set("pageToken", token)
	}
	return q
}

func newFormsCmd(cfg *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "forms",
		Aliases: []string{"form"},
		Short:   "Manage form definitions",
	}

	var (
		formType, name string
		pageSize       int
		pageToken      string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List forms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := pageQuery(pageSize, pageToken)
			if formType != "" {
				q.Set("type", formType)
			}
			if name != "" {
				q.Set("name", name)
			}
			var resp formList
			if err := cfg.client().call(http.MethodGet, formsAPI+"/forms", q, nil, &resp); err != nil {
				return err
			}
			if cfg.output() != "table" {
				return printOutput(cmd.OutOrStdout(), cfg.output(), resp)
			}
			rows := make([][]string, len(resp.Forms))
			for i, f := range resp.Forms {
				rows[i] = []string{f.ID, truncate(f.Name, 40), f.Type, f.UpdatedAt}
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Name", "Type", "Updated"}, rows)
			if resp.NextPageToken != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nmore results: --page-token %s\n", resp.NextPageToken)
			}
			return nil
		},
	}
	list.Flags().StringVar(&formType, "type", "", "Only forms of this type")
	list.Flags().StringVar(&name, "name", "", "Only forms whose name contains this text")
	pageFlags(list, &pageSize, &pageToken)

	get := &cobra.Command{
		Use:   "get FORM_ID",
		Short: "Show a form and its schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var form formItem
			if err := cfg.client().call(http.MethodGet, formsAPI+"/forms/"+url.PathEscape(args[0]), nil, nil, &form); err != nil {
				return err
			}
			format := cfg.output()
			if format == "table" {
				format = "yaml"
			}
			return printOutput(cmd.OutOrStdout(), format, form)
		},
	}

	var file string
	apply := &cobra.Command{
		Use:   "apply -f FILE",
		Short: "Create a form, or replace it when the file names an id",
		Long: `Apply reads a form document with name, type and schema keys from a YAML
or JSON file. Without an id the form is created; with an id its name, type
and schema are replaced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			body, ok := doc.(map[string]any)
			if !ok {
				return fmt.Errorf("%s: form document must be an object", file)
			}

			client := cfg.client()
			var form formItem
			id, _ := body["id"].(string)
			delete(body, "id")
			if id == "" {
				err = client.call(http.MethodPost, formsAPI+"/forms", nil, body, &form)
			} else {
				err = client.call(http.MethodPut, formsAPI+"/forms/"+url.PathEscape(id), nil, body, &form)
			}
			if err != nil {
				return err
			}

			verb := "created"
			if id != "" {
				verb = "updated"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "form %s %s\n", form.ID, verb)
			return nil
		},
	}
	apply.Flags().StringVarP(&file, "file", "f", "", "Form document (YAML or JSON, - for stdin)")
	_ = apply.MarkFlagRequired("file")

	del := &cobra.Command{
		Use:   "delete FORM_ID",
		Short: "Delete a form without responses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.client().call(http.MethodDelete, formsAPI+"/forms/"+url.PathEscape(args[0]), nil, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "form %s deleted\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, get, apply, del)
	return cmd
}
