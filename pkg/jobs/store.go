package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fieldworks/backoffice/internal/pagination"
)

var (
	// ErrJobNotFound is returned when a job does not exist for the tenant.
	ErrJobNotFound = errors.New("export job not found")
	// ErrJobNotCancelable is returned when canceling a job that already finished.
	ErrJobNotCancelable = errors.New("only queued or running export jobs can be canceled")
	// ErrJobNotRunning is returned when a worker reports the outcome of a job
	// that was canceled or recovered while it ran.
	ErrJobNotRunning = errors.New("export job is no longer running")
	// ErrInvalidPageToken is returned when a page token cannot be parsed.
	ErrInvalidPageToken = pagination.ErrInvalidPageToken
)

var activeStates = []JobState{JobStateQueued, JobStateRunning}
var terminalStates = []JobState{JobStateSucceeded, JobStateFailed, JobStateCanceled}

var clauseForUpdateSkipLocked = clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}

// JobStore provides database operations for export jobs.
type JobStore struct {
	db *gorm.DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// AutoMigrate creates or updates the export_jobs table.
func (s *JobStore) AutoMigrate() error {
	return s.db.AutoMigrate(&ExportJob{})
}

// JobListFilter defines filters for listing jobs.
type JobListFilter struct {
	FormID      string
	State       string
	RequestedBy string
}

// Enqueue creates a new queued job. If idempotencyKey is non-empty and a
// non-terminal job with the same key exists, the existing job is returned
// instead of creating a duplicate. Safe for concurrent use.
func (s *JobStore) Enqueue(ctx context.Context, job *ExportJob) (*ExportJob, error) {
	if job.State == "" {
		job.State = JobStateQueued
	}
	db := s.db.WithContext(ctx)

	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := db.Create(job).Error; err != nil {
			return nil, fmt.Errorf("enqueue export job: %w", err)
		}
		return job, nil
	}

	var result *ExportJob
	err := db.Transaction(func(tx *gorm.DB) error {
		var existing ExportJob
		err := tx.Where("idempotency_key = ? AND state IN ?", *job.IdempotencyKey, activeStates).First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check idempotency key: %w", err)
		}

		// Release the key from finished jobs so the unique index admits a new one.
		if err := tx.Model(&ExportJob{}).
			Where("idempotency_key = ? AND state IN ?", *job.IdempotencyKey, terminalStates).
			Update("idempotency_key", nil).Error; err != nil {
			return fmt.Errorf("release idempotency key: %w", err)
		}

		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("enqueue export job: %w", err)
		}
		result = job
		return nil
	})
	if err != nil {
		// Another request may have created the job between the check and the insert.
		var raced ExportJob
		if lookupErr := db.Where("idempotency_key = ? AND state IN ?", *job.IdempotencyKey, activeStates).
			First(&raced).Error; lookupErr == nil {
			return &raced, nil
		}
		return nil, err
	}
	return result, nil
}

// Claim atomically picks the oldest queued job and transitions it to
// running. Returns nil if no jobs are available.
func (s *JobStore) Claim(ctx context.Context, maxRetries int) (*ExportJob, error) {
	var job ExportJob

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("state = ? AND attempt_count <= ?", JobStateQueued, maxRetries).
			Order("requested_at ASC").
			Limit(1)
		if s.supportsSkipLocked() {
			q = q.Clauses(clauseForUpdateSkipLocked)
		}
		if err := q.Find(&job).Error; err != nil {
			return err
		}
		if job.ID == "" {
			return nil
		}

		now := time.Now().UTC()
		result := tx.Model(&ExportJob{}).Where("id = ? AND state = ?", job.ID, JobStateQueued).
			Updates(map[string]any{
				"state":         JobStateRunning,
				"started_at":    now,
				"attempt_count": gorm.Expr("attempt_count + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			job = ExportJob{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim export job: %w", err)
	}
	if job.ID == "" {
		return nil, nil
	}

	if err := s.db.WithContext(ctx).First(&job, "id = ?", job.ID).Error; err != nil {
		return nil, fmt.Errorf("reload claimed export job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) supportsSkipLocked() bool {
	switch s.db.Dialector.Name() {
	case "postgres", "mysql":
		return true
	}
	return false
}

// Complete marks a running job as succeeded. It returns ErrJobNotRunning
// when the job left the running state in the meantime.
func (s *JobStore) Complete(ctx context.Context, jobID string, rows int, objectKey string, durationMs int64) error {
	result := s.db.WithContext(ctx).Model(&ExportJob{}).
		Where("id = ? AND state = ?", jobID, JobStateRunning).
		Updates(map[string]any{
			"state":       JobStateSucceeded,
			"finished_at": time.Now().UTC(),
			"rows":        rows,
			"object_key":  objectKey,
			"duration_ms": durationMs,
			"message":     fmt.Sprintf("Exported %d rows", rows),
		})
	if result.Error != nil {
		return fmt.Errorf("complete export job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotRunning, jobID)
	}
	return nil
}

// Fail records a failed attempt. While the attempt count is within
// maxRetries the job is re-queued; otherwise it becomes failed. Like
// Complete, it only applies to a job that is still running.
func (s *JobStore) Fail(ctx context.Context, jobID, errMsg string, maxRetries int) error {
	db := s.db.WithContext(ctx)

	var job ExportJob
	if err := db.First(&job, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("load export job for fail: %w", err)
	}

	updates := map[string]any{
		"last_error":  errMsg,
		"finished_at": time.Now().UTC(),
	}
	if job.AttemptCount < maxRetries {
		updates["state"] = JobStateQueued
		updates["started_at"] = nil
		updates["finished_at"] = nil
	} else {
		updates["state"] = JobStateFailed
		updates["message"] = "Export failed: " + errMsg
	}

	result := db.Model(&ExportJob{}).
		Where("id = ? AND state = ? AND attempt_count = ?", jobID, JobStateRunning, job.AttemptCount).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("fail export job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotRunning, jobID)
	}
	return nil
}

// Cancel marks a queued or running job of the tenant as canceled. A worker
// still running the job finds it canceled when it reports the outcome.
func (s *JobStore) Cancel(ctx context.Context, tenantID, jobID string) error {
	result := s.db.WithContext(ctx).Model(&ExportJob{}).
		Where("tenant_id = ? AND id = ? AND state IN ?", tenantID, jobID, activeStates).
		Updates(map[string]any{
			"state":       JobStateCanceled,
			"finished_at": time.Now().UTC(),
			"message":     "Canceled by user",
		})
	if result.Error != nil {
		return fmt.Errorf("cancel export job: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	job, err := s.Get(ctx, tenantID, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return fmt.Errorf("%w: job %s is %s", ErrJobNotCancelable, jobID, job.State)
}

// Get retrieves a job of the tenant by ID.
func (s *JobStore) Get(ctx context.Context, tenantID, jobID string) (*ExportJob, error) {
	var job ExportJob
	if err := s.db.WithContext(ctx).First(&job, "tenant_id = ? AND id = ?", tenantID, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return &job, nil
}

// List returns the tenant's jobs matching filter, newest first.
func (s *JobStore) List(ctx context.Context, tenantID string, filter JobListFilter, pageSize int, pageToken string) ([]ExportJob, string, int, error) {
	pageSize = pagination.Size(pageSize)

	base := s.db.WithContext(ctx).Model(&ExportJob{}).Where("tenant_id = ?", tenantID)
	if filter.FormID != "" {
		base = base.Where("form_id = ?", filter.FormID)
	}
	if filter.State != "" {
		base = base.Where("state = ?", filter.State)
	}
	if filter.RequestedBy != "" {
		base = base.Where("requested_by = ?", filter.RequestedBy)
	}

	var totalSize int64
	if err := base.Session(&gorm.Session{}).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count export jobs: %w", err)
	}

	query, err := pagination.Apply(base.Session(&gorm.Session{}), "requested_at", pageToken)
	if err != nil {
		return nil, "", 0, err
	}

	var records []ExportJob
	if err := query.Limit(pageSize + 1).Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list export jobs: %w", err)
	}

	records, nextToken := pagination.Next(records, pageSize, func(j ExportJob) pagination.Cursor {
		return pagination.Cursor{At: j.RequestedAt, ID: j.ID}
	})
	return records, nextToken, int(totalSize), nil
}

// CleanupStuckJobs transitions running jobs whose started_at is older than
// claimTimeout back to queued for retry.
func (s *JobStore) CleanupStuckJobs(ctx context.Context, claimTimeout time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-claimTimeout)
	result := s.db.WithContext(ctx).Model(&ExportJob{}).
		Where("state = ? AND started_at < ?", JobStateRunning, cutoff).
		Updates(map[string]any{
			"state":      JobStateQueued,
			"started_at": nil,
			"last_error": "Timed out (stuck job recovery)",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup stuck export jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteOlderThan removes terminal jobs that finished before cutoff.
func (s *JobStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("state IN ? AND finished_at < ?", terminalStates, cutoff).
		Delete(&ExportJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old export jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
