package audit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/fieldworks/backoffice/pkg/authz"
	"github.com/fieldworks/backoffice/pkg/tenancy"
)

// responseCapture wraps http.ResponseWriter to capture the status code.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// AuditMiddleware records an http EventRecord for every mutating request,
// including rejected ones, after the handler completes.
func AuditMiddleware(store *Store, cfg *AuditConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg == nil || !cfg.Enabled || store == nil || !isAuditedRequest(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			startTime := time.Now().UTC()
			capture := &responseCapture{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(capture, r)

			statusCode := capture.statusCode
			outcome := outcomeFromStatus(statusCode)
			if outcome == OutcomeDenied && !cfg.LogDenied {
				return
			}

			ctx := r.Context()
			tenant := tenancy.TenantIDFromContext(ctx)
			if tenant == "" {
				tenant = tenancy.DefaultTenant
			}

			actor := authz.Anonymous
			var groups []string
			if id, ok := authz.IdentityFromContext(ctx); ok && id.User != "" {
				actor = id.User
				groups = id.Groups
			}

			requestID := middleware.GetReqID(ctx)
			correlationID := r.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = requestID
			}

			event := &EventRecord{
				ID:            uuid.NewString(),
				TenantID:      tenant,
				CorrelationID: correlationID,
				EventType:     EventTypeHTTP,
				Actor:         actor,
				RequestID:     requestID,
				ResourceType:  extractResourceType(r.Method, r.URL.Path),
				ResourceIDs:   datatypes.NewJSONSlice(extractResourceIDs(r.URL.Path)),
				Action:        extractActionVerb(r.Method, r.URL.Path),
				Outcome:       outcome,
				StatusCode:    statusCode,
				CreatedAt:     startTime,
				EventMetadata: datatypes.JSONMap{
					"method":   r.Method,
					"path":     r.URL.Path,
					"duration": time.Since(startTime).String(),
					"groups":   groups,
				},
			}

			// Best-effort write: the response has already been sent.
			if err := store.Append(ctx, event); err != nil {
				logger.Error("failed to write audit event", "error", err, "requestID", requestID)
			}
		})
	}
}
