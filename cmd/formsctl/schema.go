package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fieldworks/backoffice/pkg/forms"
)

// readDocument decodes a YAML or JSON file, or stdin for "-", into
// generic values.
func readDocument(in io.Reader, path string) (any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func newSchemaCmd(cfg *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Validate form schemas and list field types",
	}

	var local bool
	validate := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a schema document (YAML or JSON, - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			if local {
				schema, err := forms.ParseSchemaDocument(doc)
				if err != nil {
					return describeSchemaErrors(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema is valid: %d fields in %d sections\n",
					len(schema.Fields()), len(schema.Sections))
				return nil
			}

			var result struct {
				Valid  bool `json:"valid"`
				Fields int  `json:"fields"`
			}
			if err := cfg.client().call(http.MethodPost, formsAPI+"/schema:validate", nil, doc, &result); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema is valid: %d fields\n", result.Fields)
			return nil
		},
	}
	validate.Flags().BoolVar(&local, "local", false, "Validate without contacting the server")

	fieldTypes := &cobra.Command{
		Use:   "field-types",
		Short: "List the field types the server accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				FieldTypes []struct {
					Type            string `json:"type"`
					ValueShape      string `json:"valueShape"`
					SupportsOptions bool   `json:"supportsOptions"`
					Special         bool   `json:"special"`
				} `json:"fieldTypes"`
			}
			if err := cfg.client().call(http.MethodGet, formsAPI+"/field-types", nil, nil, &resp); err != nil {
				return err
			}
			if cfg.output() != "table" {
				return printOutput(cmd.OutOrStdout(), cfg.output(), resp)
			}
			rows := make([][]string, len(resp.FieldTypes))
			for i, ft := range resp.FieldTypes {
				rows[i] = []string{ft.Type, ft.ValueShape, strconv.FormatBool(ft.SupportsOptions), strconv.FormatBool(ft.Special)}
			}
			printTable(cmd.OutOrStdout(), []string{"Type", "Value Shape", "Options", "Special"}, rows)
			return nil
		},
	}

	cmd.AddCommand(validate, fieldTypes)
	return cmd
}

func describeSchemaErrors(err error) error {
	list := forms.AsFieldErrors(err)
	if len(list) == 0 {
		return err
	}
	lines := []string{"invalid schema:"}
	for _, fe := range list {
		line := "  " + forms.KindCode(fe.Kind) + ": "
		if fe.Field != "" {
			line += fe.Field + ": "
		}
		lines = append(lines, line+fe.Message)
	}
	return errors.New(strings.Join(lines, "\n"))
}
