package forms

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExportPrefix is the fixed leading header of every export.
var ExportPrefix = []string{"ResponseID", "UserName", "UserEmail", "SubmittedAt"}

const submittedAtLayout = "2006-01-02 15:04:05"

// ExportTable is the flat projection of a form's submitted responses:
// ExportPrefix followed by the schema's field names in schema order, one
// row per submitted response, newest first.
type ExportTable struct {
	FormName string
	Header   []string
	Rows     [][]string
}

// ExportRows builds the export projection of a form. Drafts never appear.
func (s *Service) ExportRows(ctx context.Context, tenantID, formID string) (*ExportTable, error) {
	form, err := s.GetForm(ctx, tenantID, formID)
	if err != nil {
		return nil, err
	}
	fieldNames := form.Schema.Data().FieldNames()

	responses, err := s.store.SubmittedResponses(ctx, tenantID, formID, s.cfg.ExportMaxRows)
	if err != nil {
		return nil, err
	}

	userIDs := make([]string, 0, len(responses))
	seen := make(map[string]bool)
	for _, r := range responses {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			userIDs = append(userIDs, r.UserID)
		}
	}
	users, err := s.store.UserProfiles(ctx, tenantID, userIDs)
	if err != nil {
		return nil, err
	}

	table := &ExportTable{
		FormName: form.Name,
		Header:   append(append([]string{}, ExportPrefix...), fieldNames...),
		Rows:     make([][]string, 0, len(responses)),
	}
	for _, r := range responses {
		user := users[r.UserID]
		row := make([]string, 0, len(table.Header))
		row = append(row, r.ID, user.Name, user.Email, "")
		if r.SubmittedAt != nil {
			row[3] = r.SubmittedAt.In(s.cfg.AnalyticsLocation).Format(submittedAtLayout)
		}
		for _, name := range fieldNames {
			row = append(row, FormatCell(r.ResponseData[name]))
		}
		table.Rows = append(table.Rows, row)
	}

	s.logger.Debug("export built", "tenant", tenantID, "formID", formID, "rows", len(table.Rows))
	return table, nil
}

// WriteCSV writes the header and rows with standard CSV quoting.
func (t *ExportTable) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// WriteXLSX writes the same projection as a single-sheet workbook.
func (t *ExportTable) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if name := sheetName(t.FormName); name != "" && name != sheet {
		if err := f.SetSheetName(sheet, name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
		sheet = name
	}

	header := t.Header
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}

	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("resolve cell: %w", err)
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// sheetName trims a form name to what Excel accepts as a sheet title.
func sheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	runes := []rune(name)
	if len(runes) > 31 {
		runes = runes[:31]
	}
	return string(runes)
}
