package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Exporter renders and stores the file of one export job, returning the
// object key and the number of exported rows.
type Exporter interface {
	Export(ctx context.Context, job *ExportJob) (objectKey string, rows int, err error)
}

// ErrPermanent marks an export failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent export failure")

// WorkerPool processes queued export jobs using a pool of goroutines.
type WorkerPool struct {
	store    *JobStore
	exporter Exporter
	cfg      *JobConfig
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(store *JobStore, exporter Exporter, cfg *JobConfig, logger *slog.Logger) *WorkerPool {
	if cfg == nil {
		cfg = DefaultJobConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		store:    store,
		exporter: exporter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run starts the worker pool. It spawns cfg.Concurrency goroutines,
// each polling for jobs. It blocks until the context is cancelled,
// then waits for all workers to finish.
func (wp *WorkerPool) Run(ctx context.Context) {
	if wp.store == nil || wp.exporter == nil || !wp.cfg.Enabled {
		wp.logger.Info("export worker pool disabled")
		return
	}

	wp.logger.Info("export worker pool starting",
		"concurrency", wp.cfg.Concurrency,
		"maxRetries", wp.cfg.MaxRetries,
		"pollInterval", wp.cfg.PollInterval.String())

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		wp.cleanupLoop(ctx)
	}()

	for i := 0; i < wp.cfg.Concurrency; i++ {
		wp.wg.Add(1)
		go func(workerID int) {
			defer wp.wg.Done()
			wp.workerLoop(ctx, workerID)
		}(i)
	}

	<-ctx.Done()
	wp.logger.Info("export worker pool shutting down, waiting for workers to finish")
	wp.wg.Wait()
	wp.logger.Info("export worker pool stopped")
}

func (wp *WorkerPool) workerLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(wp.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain the queue before waiting for the next tick.
			for wp.processOne(ctx, workerID) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// processOne claims and runs a single job. It reports whether a job was
// claimed.
func (wp *WorkerPool) processOne(ctx context.Context, workerID int) bool {
	job, err := wp.store.Claim(ctx, wp.cfg.MaxRetries)
	if err != nil {
		wp.logger.Error("failed to claim export job", "workerID", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}

	wp.logger.Info("processing export job",
		"workerID", workerID,
		"jobID", job.ID,
		"tenant", job.TenantID,
		"formID", job.FormID,
		"format", job.Format,
		"attempt", job.AttemptCount)

	start := time.Now()
	objectKey, rows, err := wp.exporter.Export(ctx, job)
	if err != nil {
		wp.logger.Error("export job failed", "workerID", workerID, "jobID", job.ID, "error", err)
		maxRetries := wp.cfg.MaxRetries
		if errors.Is(err, ErrPermanent) {
			maxRetries = 0
		}
		failErr := wp.store.Fail(ctx, job.ID, err.Error(), maxRetries)
		switch {
		case errors.Is(failErr, ErrJobNotRunning):
			wp.logger.Info("export job was canceled or recovered before its failure was recorded", "jobID", job.ID)
		case failErr != nil:
			wp.logger.Error("failed to mark export job as failed", "jobID", job.ID, "error", failErr)
		}
		return true
	}

	duration := time.Since(start)
	wp.logger.Info("export job completed",
		"workerID", workerID,
		"jobID", job.ID,
		"rows", rows,
		"objectKey", objectKey,
		"duration", duration.String())

	err = wp.store.Complete(ctx, job.ID, rows, objectKey, duration.Milliseconds())
	switch {
	case errors.Is(err, ErrJobNotRunning):
		// The uploaded file is left for the bucket lifecycle rules.
		wp.logger.Info("export job was canceled while running, result discarded", "jobID", job.ID, "objectKey", objectKey)
	case err != nil:
		wp.logger.Error("failed to mark export job as complete", "jobID", job.ID, "error", err)
	}
	return true
}

// cleanupLoop periodically recovers stuck jobs and deletes old finished ones.
func (wp *WorkerPool) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.cleanup(ctx)
		}
	}
}

func (wp *WorkerPool) cleanup(ctx context.Context) {
	if wp.cfg.ClaimTimeout > 0 {
		recovered, err := wp.store.CleanupStuckJobs(ctx, wp.cfg.ClaimTimeout)
		if err != nil {
			wp.logger.Error("failed to cleanup stuck export jobs", "error", err)
		} else if recovered > 0 {
			wp.logger.Info("recovered stuck export jobs", "count", recovered)
		}
	}

	if wp.cfg.RetentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -wp.cfg.RetentionDays)
		deleted, err := wp.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			wp.logger.Error("failed to delete old export jobs", "error", err)
		} else if deleted > 0 {
			wp.logger.Info("deleted old export jobs", "count", deleted)
		}
	}
}
