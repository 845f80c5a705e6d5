package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldworks/backoffice/pkg/tenancy"
)

// ListEventsHandler handles GET /api/audit/v1/events
// Query params: actor, eventType, resourceType, action, pageSize, pageToken
func ListEventsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			Actor:        q.Get("actor"),
			EventType:    q.Get("eventType"),
			ResourceType: q.Get("resourceType"),
			Action:       q.Get("action"),
		}

		pageSize := 20
		if ps := q.Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		records, nextToken, total, err := store.List(r.Context(), tenantOf(r), filter, pageSize, q.Get("pageToken"))
		if errors.Is(err, ErrInvalidPageToken) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list audit events: %v", err))
			return
		}

		events := make([]eventResponse, len(records))
		for i, rec := range records {
			events[i] = recordToResponse(rec)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"events":        events,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// GetEventHandler handles GET /api/audit/v1/events/{eventId}
func GetEventHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventId")
		if eventID == "" {
			writeError(w, http.StatusBadRequest, "missing event ID")
			return
		}

		record, err := store.Get(r.Context(), tenantOf(r), eventID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get audit event: %v", err))
			return
		}
		if record == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("audit event %q not found", eventID))
			return
		}

		writeJSON(w, http.StatusOK, recordToResponse(*record))
	}
}

// eventResponse is the API response for an audit event.
type eventResponse struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenantId"`
	CorrelationID string         `json:"correlationId,omitempty"`
	EventType     string         `json:"eventType"`
	Actor         string         `json:"actor"`
	RequestID     string         `json:"requestId,omitempty"`
	ResourceType  string         `json:"resourceType,omitempty"`
	ResourceIDs   []string       `json:"resourceIds,omitempty"`
	Action        string         `json:"action"`
	Outcome       string         `json:"outcome"`
	StatusCode    int            `json:"statusCode,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     string         `json:"createdAt"`
}

func recordToResponse(rec EventRecord) eventResponse {
	return eventResponse{
		ID:            rec.ID,
		TenantID:      rec.TenantID,
		CorrelationID: rec.CorrelationID,
		EventType:     rec.EventType,
		Actor:         rec.Actor,
		RequestID:     rec.RequestID,
		ResourceType:  rec.ResourceType,
		ResourceIDs:   []string(rec.ResourceIDs),
		Action:        rec.Action,
		Outcome:       rec.Outcome,
		StatusCode:    rec.StatusCode,
		Metadata:      map[string]any(rec.EventMetadata),
		CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func tenantOf(r *http.Request) string {
	if t := tenancy.TenantIDFromContext(r.Context()); t != "" {
		return t
	}
	return tenancy.DefaultTenant
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
