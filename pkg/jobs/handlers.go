package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fieldworks/backoffice/pkg/authz"
	"github.com/fieldworks/backoffice/pkg/forms"
	"github.com/fieldworks/backoffice/pkg/tenancy"
)

// FormLookup resolves a form of a tenant. *forms.Service satisfies it.
type FormLookup interface {
	GetForm(ctx context.Context, tenantID, formID string) (*forms.Form, error)
}

// DownloadPresigner issues short-lived download URLs for stored exports.
type DownloadPresigner interface {
	PresignDownload(ctx context.Context, key, filename string) (url string, expiresAt time.Time, err error)
}

type createExportRequest struct {
	FormID string `json:"formId"`
	Format string `json:"format"`
}

// CreateExportHandler handles POST /exports
// The body names the form and the format (csv or xlsx, default csv). A
// matching export that is still queued or running is returned instead of a
// new one.
func CreateExportHandler(store *JobStore, lookup FormLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createExportRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
			return
		}
		if body.Format == "" {
			body.Format = FormatCSV
		}
		if !ValidFormat(body.Format) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format %q", body.Format))
			return
		}
		if body.FormID == "" {
			writeError(w, http.StatusBadRequest, "formId is required")
			return
		}

		tenantID := tenantOf(r)
		if _, err := lookup.GetForm(r.Context(), tenantID, body.FormID); err != nil {
			if errors.Is(err, forms.ErrNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			internalError(w, r, "failed to look up form", err)
			return
		}

		key := ExportIdempotencyKey(tenantID, body.FormID, body.Format)
		job, err := store.Enqueue(r.Context(), &ExportJob{
			ID:             uuid.NewString(),
			TenantID:       tenantID,
			FormID:         body.FormID,
			Format:         body.Format,
			RequestedBy:    requesterOf(r),
			RequestedAt:    time.Now().UTC(),
			IdempotencyKey: &key,
		})
		if err != nil {
			internalError(w, r, "failed to enqueue export", err)
			return
		}

		writeJSON(w, http.StatusAccepted, jobToResponse(job))
	}
}

// GetJobHandler handles GET /exports/{jobId}
func GetJobHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")
		job, err := store.Get(r.Context(), tenantOf(r), jobID)
		if err != nil {
			internalError(w, r, "failed to get export job", err)
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("export job %q not found", jobID))
			return
		}

		writeJSON(w, http.StatusOK, jobToResponse(job))
	}
}

// ListJobsHandler handles GET /exports
// Query params: formId, state, requestedBy, pageSize, pageToken
func ListJobsHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := JobListFilter{
			FormID:      r.URL.Query().Get("formId"),
			State:       r.URL.Query().Get("state"),
			RequestedBy: r.URL.Query().Get("requestedBy"),
		}

		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}
		pageToken := r.URL.Query().Get("pageToken")

		records, nextToken, total, err := store.List(r.Context(), tenantOf(r), filter, pageSize, pageToken)
		if errors.Is(err, ErrInvalidPageToken) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			internalError(w, r, "failed to list export jobs", err)
			return
		}

		out := make([]jobResponse, len(records))
		for i := range records {
			out[i] = jobToResponse(&records[i])
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"jobs":          out,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// CancelJobHandler handles POST /exports/{jobId}:cancel
func CancelJobHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")
		err := store.Cancel(r.Context(), tenantOf(r), jobID)
		switch {
		case errors.Is(err, ErrJobNotFound):
			writeError(w, http.StatusNotFound, err.Error())
			return
		case errors.Is(err, ErrJobNotCancelable):
			writeError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			internalError(w, r, "failed to cancel export job", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status": "canceled",
			"jobId":  jobID,
		})
	}
}

// DownloadJobHandler handles GET /exports/{jobId}:download
// It returns a presigned URL for the file of a succeeded export.
func DownloadJobHandler(store *JobStore, presigner DownloadPresigner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if presigner == nil {
			writeError(w, http.StatusNotImplemented, "export downloads are not configured")
			return
		}

		jobID := chi.URLParam(r, "jobId")
		job, err := store.Get(r.Context(), tenantOf(r), jobID)
		if err != nil {
			internalError(w, r, "failed to get export job", err)
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("export job %q not found", jobID))
			return
		}
		if job.State != JobStateSucceeded || job.ObjectKey == "" {
			writeError(w, http.StatusConflict, fmt.Sprintf("export job %q is %s", jobID, job.State))
			return
		}

		filename := fmt.Sprintf("form-%s.%s", job.FormID, job.Format)
		url, expiresAt, err := presigner.PresignDownload(r.Context(), job.ObjectKey, filename)
		if err != nil {
			internalError(w, r, "failed to presign export download", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"url":       url,
			"expiresAt": expiresAt.UTC().Format(time.RFC3339),
		})
	}
}

// jobResponse is the API response for an export job.
type jobResponse struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenantId"`
	FormID       string `json:"formId"`
	Format       string `json:"format"`
	RequestedBy  string `json:"requestedBy"`
	RequestedAt  string `json:"requestedAt"`
	State        string `json:"state"`
	Message      string `json:"message,omitempty"`
	StartedAt    string `json:"startedAt,omitempty"`
	FinishedAt   string `json:"finishedAt,omitempty"`
	AttemptCount int    `json:"attemptCount"`
	LastError    string `json:"lastError,omitempty"`
	Rows         int    `json:"rows,omitempty"`
	DurationMs   int64  `json:"durationMs,omitempty"`
}

func jobToResponse(job *ExportJob) jobResponse {
	resp := jobResponse{
		ID:           job.ID,
		TenantID:     job.TenantID,
		FormID:       job.FormID,
		Format:       job.Format,
		RequestedBy:  job.RequestedBy,
		RequestedAt:  job.RequestedAt.UTC().Format(time.RFC3339),
		State:        string(job.State),
		Message:      job.Message,
		AttemptCount: job.AttemptCount,
		LastError:    job.LastError,
		Rows:         job.Rows,
		DurationMs:   job.DurationMs,
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.UTC().Format(time.RFC3339)
	}
	if job.FinishedAt != nil {
		resp.FinishedAt = job.FinishedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func tenantOf(r *http.Request) string {
	if t := tenancy.TenantIDFromContext(r.Context()); t != "" {
		return t
	}
	return tenancy.DefaultTenant
}

func requesterOf(r *http.Request) string {
	if id, ok := authz.IdentityFromContext(r.Context()); ok && id.User != "" {
		return id.User
	}
	return authz.Anonymous
}

func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.ErrorContext(r.Context(), msg, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
