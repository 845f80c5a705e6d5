package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fieldworks/backoffice/pkg/forms"
)

// setupTestDB opens a private in-memory database with the job and form
// tables. A single connection keeps transactions on one database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, NewJobStore(db).AutoMigrate())
	require.NoError(t, forms.NewFormStore(db).AutoMigrate())
	return db
}

func newTestJob(tenantID, formID, format string) *ExportJob {
	key := ExportIdempotencyKey(tenantID, formID, format)
	return &ExportJob{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		FormID:         formID,
		Format:         format,
		RequestedBy:    "inspector",
		RequestedAt:    time.Now().UTC(),
		IdempotencyKey: &key,
	}
}

func TestEnqueueCreatesJob(t *testing.T) {
	store := NewJobStore(setupTestDB(t))

	job := newTestJob("acme", "f1", FormatCSV)
	created, err := store.Enqueue(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, job.ID, created.ID)
	assert.Equal(t, JobStateQueued, created.State)
}

func TestEnqueueIdempotencyReturnsActiveJob(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))

	first, err := store.Enqueue(ctx, newTestJob("acme", "f1", FormatCSV))
	require.NoError(t, err)

	second, err := store.Enqueue(ctx, newTestJob("acme", "f1", FormatCSV))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// A different format is a different export.
	xlsx, err := store.Enqueue(ctx, newTestJob("acme", "f1", FormatXLSX))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, xlsx.ID)
}

func TestEnqueueIdempotencyAllowsAfterTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))

	first, err := store.Enqueue(ctx, newTestJob("acme", "f1", FormatCSV))
	require.NoError(t, err)
	require.NoError(t, store.Cancel(ctx, "acme", first.ID))

	second, err := store.Enqueue(ctx, newTestJob("acme", "f1", FormatCSV))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	third, err := store.Enqueue(ctx, newTestJob("acme", "f1", FormatCSV))
	require.NoError(t, err)
	assert.Equal(t, second.ID, third.ID)
}

func TestEnqueueWithoutKey(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))

	for i := 0; i < 2; i++ {
		job := newTestJob("acme", "f1", FormatCSV)
		job.IdempotencyKey = nil
		_, err := store.Enqueue(ctx, job)
		require.NoError(t, err)
	}

	_, _, total, err := store.List(ctx, "acme", JobListFilter{}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestClaimOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))

	older := newTestJob("acme", "f1", FormatCSV)
	older.RequestedAt = time.Now().UTC().Add(-time.Minute)
	newer := newTestJob("acme", "f2", FormatCSV)
	_, err := store.Enqueue(ctx, newer)
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, older)
	require.NoError(t, err)

	claimed, err := store.Claim(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, older.ID, claimed.ID)
	assert.Equal(t, JobStateRunning, claimed.State)
	assert.Equal(t, 1, claimed.AttemptCount)
	assert.NotNil(t, claimed.StartedAt)

	claimed, err = store.Claim(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, newer.ID, claimed.ID)

	claimed, err = store.Claim(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestCompleteAndFail(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))

	job, err := store.Enqueue(ctx, newTestJob("acme", "f1", FormatCSV))
	require.NoError(t, err)
	_, err = store.Claim(ctx, 2)
	require.NoError(t, err)

	// First failure re-queues.
	require.NoError(t, store.Fail(ctx, job.ID, "bucket unavailable", 2))
	got, err := store.Get(ctx, "acme", job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateQueued, got.State)
	assert.Equal(t, "bucket unavailable", got.LastError)

	// Second attempt exhausts retries.
	_, err = store.Claim(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, job.ID, "bucket unavailable", 2))
	got, err = store.Get(ctx, "acme", job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateFailed, got.State)
	assert.True(t, got.IsTerminal())

	other, err := store.Enqueue(ctx, newTestJob("acme", "f2", FormatXLSX))
	require.NoError(t, err)
	_, err = store.Claim(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, other.ID, 12, "tenants/acme/exports/f2/x.xlsx", 40))
	got, err = store.Get(ctx, "acme", other.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateSucceeded, got.State)
	assert.Equal(t, 12, got.Rows)
	assert.Equal(t, "tenants/acme/exports/f2/x.xlsx", got.ObjectKey)
	assert.NotNil(t, got.FinishedAt)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))

	job, err := store.Enqueue(ctx, newTestJob("acme", "f1", FormatCSV))
	require.NoError(t, err)

	err = store.Cancel(ctx, "globex", job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	// A running job can be canceled; the worker's later report is refused.
	_, err = store.Claim(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, store.Cancel(ctx, "acme", job.ID))

	err = store.Complete(ctx, job.ID, 4, "tenants/acme/exports/f1/x.csv", 10)
	assert.ErrorIs(t, err, ErrJobNotRunning)
	got, err := store.Get(ctx, "acme", job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateCanceled, got.State)
	assert.Empty(t, got.ObjectKey)

	err = store.Cancel(ctx, "acme", job.ID)
	assert.ErrorIs(t, err, ErrJobNotCancelable)
}

func TestFailOnlyAppliesToRunningJobs(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewJobStore(db)

	canceled, err := store.Enqueue(ctx, newTestJob("acme", "f1", FormatCSV))
	require.NoError(t, err)
	_, err = store.Claim(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, store.Cancel(ctx, "acme", canceled.ID))

	err = store.Fail(ctx, canceled.ID, "bucket unavailable", 3)
	assert.ErrorIs(t, err, ErrJobNotRunning)
	got, err := store.Get(ctx, "acme", canceled.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateCanceled, got.State)
	assert.Empty(t, got.LastError)

	recovered, err := store.Enqueue(ctx, newTestJob("acme", "f2", FormatCSV))
	require.NoError(t, err)
	_, err = store.Claim(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, db.Model(&ExportJob{}).Where("id = ?", recovered.ID).
		Update("started_at", time.Now().UTC().Add(-time.Hour)).Error)
	_, err = store.CleanupStuckJobs(ctx, 10*time.Minute)
	require.NoError(t, err)

	err = store.Fail(ctx, recovered.ID, "late failure", 0)
	assert.ErrorIs(t, err, ErrJobNotRunning)
	got, err = store.Get(ctx, "acme", recovered.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateQueued, got.State)
}

func TestGetIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))

	job, err := store.Enqueue(ctx, newTestJob("acme", "f1", FormatCSV))
	require.NoError(t, err)

	got, err := store.Get(ctx, "globex", job.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		job := newTestJob("acme", uuid.NewString(), FormatCSV)
		job.RequestedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := store.Enqueue(ctx, job)
		require.NoError(t, err)
	}
	_, err := store.Enqueue(ctx, newTestJob("globex", "g1", FormatCSV))
	require.NoError(t, err)

	page1, token, total, err := store.List(ctx, "acme", JobListFilter{}, 3, "")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page1, 3)
	require.NotEmpty(t, token)
	assert.True(t, page1[0].RequestedAt.After(page1[1].RequestedAt))

	page2, token, _, err := store.List(ctx, "acme", JobListFilter{}, 3, token)
	require.NoError(t, err)
	assert.Len(t, page2, 2)
	assert.Empty(t, token)

	_, _, _, err = store.List(ctx, "acme", JobListFilter{}, 3, "not-a-time")
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestListPaginationEqualRequestTimes(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		job := newTestJob("acme", uuid.NewString(), FormatCSV)
		job.RequestedAt = at
		_, err := store.Enqueue(ctx, job)
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	token := ""
	for pages := 1; ; pages++ {
		require.LessOrEqual(t, pages, 5, "pagination did not terminate")
		page, next, _, err := store.List(ctx, "acme", JobListFilter{}, 2, token)
		require.NoError(t, err)
		for _, j := range page {
			assert.False(t, seen[j.ID], "job %s listed twice", j.ID)
			seen[j.ID] = true
		}
		if next == "" {
			break
		}
		token = next
	}
	assert.Len(t, seen, 5)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))

	a, err := store.Enqueue(ctx, newTestJob("acme", "f1", FormatCSV))
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, newTestJob("acme", "f2", FormatCSV))
	require.NoError(t, err)
	require.NoError(t, store.Cancel(ctx, "acme", a.ID))

	byForm, _, _, err := store.List(ctx, "acme", JobListFilter{FormID: "f2"}, 10, "")
	require.NoError(t, err)
	assert.Len(t, byForm, 1)

	canceled, _, _, err := store.List(ctx, "acme", JobListFilter{State: string(JobStateCanceled)}, 10, "")
	require.NoError(t, err)
	require.Len(t, canceled, 1)
	assert.Equal(t, a.ID, canceled[0].ID)
}

func TestCleanupStuckJobsAndRetention(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewJobStore(db)

	stuck, err := store.Enqueue(ctx, newTestJob("acme", "f1", FormatCSV))
	require.NoError(t, err)
	_, err = store.Claim(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, db.Model(&ExportJob{}).Where("id = ?", stuck.ID).
		Update("started_at", time.Now().UTC().Add(-time.Hour)).Error)

	recovered, err := store.CleanupStuckJobs(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	old, err := store.Enqueue(ctx, newTestJob("acme", "f2", FormatCSV))
	require.NoError(t, err)
	require.NoError(t, store.Cancel(ctx, "acme", old.ID))
	require.NoError(t, db.Model(&ExportJob{}).Where("id = ?", old.ID).
		Update("finished_at", time.Now().UTC().AddDate(0, 0, -30)).Error)

	deleted, err := store.DeleteOlderThan(ctx, time.Now().UTC().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	got, err := store.Get(ctx, "acme", stuck.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, JobStateQueued, got.State)
}
