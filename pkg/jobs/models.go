// Package jobs runs form exports in the background. An export job renders a
// form's submitted responses to CSV or XLSX and stores the file in the blob
// store, where it can be downloaded through a presigned URL.
package jobs

import (
	"time"
)

// JobState represents the lifecycle state of an export job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCanceled  JobState = "canceled"
)

// Export file formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ExportJob is the GORM model for an export job.
type ExportJob struct {
	ID             string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	TenantID       string     `gorm:"column:tenant_id;index:idx_export_tenant_state,priority:1;not null"`
	FormID         string     `gorm:"column:form_id;index:idx_export_form;not null"`
	Format         string     `gorm:"column:format;not null"`
	RequestedBy    string     `gorm:"column:requested_by;not null"`
	RequestedAt    time.Time  `gorm:"column:requested_at;not null"`
	State          JobState   `gorm:"column:state;index:idx_export_tenant_state,priority:2;index:idx_export_state;not null;default:queued"`
	Message        string     `gorm:"column:message"`
	StartedAt      *time.Time `gorm:"column:started_at"`
	FinishedAt     *time.Time `gorm:"column:finished_at"`
	AttemptCount   int        `gorm:"column:attempt_count;default:0"`
	LastError      string     `gorm:"column:last_error"`
	IdempotencyKey *string    `gorm:"column:idempotency_key;uniqueIndex:idx_export_idemp_key"`
	Rows           int        `gorm:"column:rows"`
	ObjectKey      string     `gorm:"column:object_key"`
	DurationMs     int64      `gorm:"column:duration_ms"`
}

// TableName returns the GORM table name.
func (ExportJob) TableName() string { return "export_jobs" }

// IsTerminal returns true if the job is in a terminal state.
func (j *ExportJob) IsTerminal() bool {
	switch j.State {
	case JobStateSucceeded, JobStateFailed, JobStateCanceled:
		return true
	}
	return false
}

// ExportIdempotencyKey identifies the export of one form in one format. At
// most one queued or running job exists per key.
func ExportIdempotencyKey(tenantID, formID, format string) string {
	return tenantID + ":" + formID + ":" + format
}

// ValidFormat reports whether format is a supported export format.
func ValidFormat(format string) bool {
	return format == FormatCSV || format == FormatXLSX
}
