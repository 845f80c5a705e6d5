package forms

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func threeFieldSchema() Schema {
	return Schema{Sections: []Section{
		{Title: "A", Fields: []Field{
			{Name: "f1", Label: "F1", Type: FieldTypeText},
			{Name: "f2", Label: "F2", Type: FieldTypeNumber},
		}},
		{Title: "B", Fields: []Field{
			{Name: "f3", Label: "F3", Type: FieldTypeCheckbox, Options: []string{"x", "y"}},
		}},
	}}
}

func readCSV(t *testing.T, table *ExportTable) [][]string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, table.WriteCSV(&buf))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExport_HeaderFollowsSchemaOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	form := createTestForm(t, svc, "Three", threeFieldSchema())

	payloads := []map[string]any{
		{"f3": []any{"y"}},
		{"f2": 1.5, "f1": "only two"},
		{},
	}
	for _, data := range payloads {
		_, err := svc.CreateResponse(ctx, testTenant, CreateResponseInput{FormID: form.ID, User: inspector, Data: data, Submitted: true})
		require.NoError(t, err)
	}

	table, err := svc.ExportRows(ctx, testTenant, form.ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, table.WriteCSV(&buf))
	firstLine := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.Equal(t, "ResponseID,UserName,UserEmail,SubmittedAt,f1,f2,f3", firstLine)

	for _, row := range readCSV(t, table)[1:] {
		assert.Len(t, row, 7)
	}
}

func TestExport_DraftsExcluded(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, WithClock(clock.Now))
	ctx := context.Background()
	form := createTestForm(t, svc, "Checklist", safetyChecklist())

	var submittedIDs []string
	for i, submitted := range []bool{true, false, true, false, true} {
		clock.Advance(time.Duration(i+1) * time.Minute)
		resp, err := svc.CreateResponse(ctx, testTenant, CreateResponseInput{
			FormID: form.ID, User: inspector, Data: map[string]any{"hard_hat": true}, Submitted: submitted,
		})
		require.NoError(t, err)
		if submitted {
			submittedIDs = append(submittedIDs, resp.ID)
		}
	}

	table, err := svc.ExportRows(ctx, testTenant, form.ID)
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)

	// Newest first.
	assert.Equal(t, submittedIDs[2], table.Rows[0][0])
	assert.Equal(t, submittedIDs[0], table.Rows[2][0])
}

func TestExport_RowContents(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 3, 13, 15, 4, 5, 0, time.UTC)}
	svc, _ := newTestService(t, WithClock(clock.Now))
	ctx := context.Background()
	form := createTestForm(t, svc, "Three", threeFieldSchema())

	resp, err := svc.CreateResponse(ctx, testTenant, CreateResponseInput{
		FormID: form.ID, User: inspector, Submitted: true,
		Data: map[string]any{"f1": `says "hi", twice`, "f2": 3.0, "f3": []any{"x", "y"}},
	})
	require.NoError(t, err)
	_, err = svc.CreateResponse(ctx, testTenant, CreateResponseInput{
		FormID: form.ID, User: Actor{ID: "u-unknown"}, Submitted: true,
	})
	require.NoError(t, err)

	table, err := svc.ExportRows(ctx, testTenant, form.ID)
	require.NoError(t, err)
	records := readCSV(t, table)
	require.Len(t, records, 3)

	var row []string
	for _, r := range records[1:] {
		if r[0] == resp.ID {
			row = r
		}
	}
	require.NotNil(t, row)
	assert.Equal(t, []string{resp.ID, inspector.Name, inspector.Email, "2024-03-13 15:04:05", `says "hi", twice`, "3", "x; y"}, row)

	for _, r := range records[1:] {
		if r[0] != resp.ID {
			assert.Equal(t, "", r[1], "unknown users export blank names")
			assert.Equal(t, []string{"", "", ""}, r[4:])
		}
	}
}

func TestExport_AnalyticsZoneAndRowLimit(t *testing.T) {
	cfg := DefaultFormsConfig()
	cfg.AnalyticsLocation = time.FixedZone("UTC-5", -5*60*60)
	cfg.ExportMaxRows = 1
	clock := &testClock{now: time.Date(2024, 3, 13, 2, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, WithClock(clock.Now), WithConfig(cfg))
	ctx := context.Background()
	form := createTestForm(t, svc, "Checklist", safetyChecklist())

	for i := 0; i < 2; i++ {
		clock.Advance(time.Minute)
		_, err := svc.CreateResponse(ctx, testTenant, CreateResponseInput{FormID: form.ID, User: inspector, Data: map[string]any{"hard_hat": true}, Submitted: true})
		require.NoError(t, err)
	}

	table, err := svc.ExportRows(ctx, testTenant, form.ID)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "2024-03-12 21:02:00", table.Rows[0][3])
}

func TestExport_XLSX(t *testing.T) {
	table := &ExportTable{
		FormName: "Site/Inspection: [March] with a very long name indeed",
		Header:   append(append([]string{}, ExportPrefix...), "f1"),
		Rows: [][]string{
			{"r-1", "Ivy", "ivy@example.com", "2024-03-13 15:04:05", "value"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, table.WriteXLSX(&buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	require.Len(t, sheets, 1)
	assert.Equal(t, "Site_Inspection_ _March_ with a", sheets[0])
	assert.LessOrEqual(t, len([]rune(sheets[0])), 31)

	rows, err := f.GetRows(sheets[0])
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, table.Header, rows[0])
	assert.Equal(t, table.Rows[0], rows[1])
}

func TestExport_UnknownForm(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ExportRows(context.Background(), testTenant, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
