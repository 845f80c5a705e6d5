package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fieldworks/backoffice/pkg/forms"
)

// Content types of the export formats.
const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ObjectWriter stores export files.
type ObjectWriter interface {
	PutObject(ctx context.Context, key, contentType string, body io.Reader, size int64) error
}

// ExportSource builds the export projection of a form.
type ExportSource interface {
	ExportRows(ctx context.Context, tenantID, formID string) (*forms.ExportTable, error)
}

// FormExporter renders form exports and writes them to an object store.
type FormExporter struct {
	source  ExportSource
	objects ObjectWriter
}

// NewFormExporter creates a FormExporter.
func NewFormExporter(source ExportSource, objects ObjectWriter) *FormExporter {
	return &FormExporter{source: source, objects: objects}
}

// Export implements Exporter. A form that no longer exists fails the job
// permanently.
func (e *FormExporter) Export(ctx context.Context, job *ExportJob) (string, int, error) {
	table, err := e.source.ExportRows(ctx, job.TenantID, job.FormID)
	if err != nil {
		if errors.Is(err, forms.ErrNotFound) {
			return "", 0, fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		return "", 0, err
	}

	var buf bytes.Buffer
	contentType := ContentTypeCSV
	switch job.Format {
	case FormatCSV:
		err = table.WriteCSV(&buf)
	case FormatXLSX:
		contentType = ContentTypeXLSX
		err = table.WriteXLSX(&buf)
	default:
		return "", 0, fmt.Errorf("%w: unsupported export format %q", ErrPermanent, job.Format)
	}
	if err != nil {
		return "", 0, err
	}

	key := ExportObjectKey(job)
	if err := e.objects.PutObject(ctx, key, contentType, bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
		return "", 0, fmt.Errorf("store export: %w", err)
	}
	return key, len(table.Rows), nil
}

// ExportObjectKey is where the file of job is stored:
// tenants/{tenantID}/exports/{formID}/{jobID}.{format}.
func ExportObjectKey(job *ExportJob) string {
	return fmt.Sprintf("tenants/%s/exports/%s/%s.%s", job.TenantID, job.FormID, job.ID, job.Format)
}
