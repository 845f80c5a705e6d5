package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/fieldworks/backoffice/pkg/forms"
)

// EventSink records committed form engine writes as domain audit events.
type EventSink struct {
	store  *Store
	logger *slog.Logger
	now    func() time.Time
}

// NewEventSink creates an EventSink writing to store.
func NewEventSink(store *Store, logger *slog.Logger) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{store: store, logger: logger, now: time.Now}
}

// RecordFormEvent implements forms.EventSink. Write failures are logged;
// the form engine write has already committed.
func (s *EventSink) RecordFormEvent(ctx context.Context, ev forms.Event) {
	resourceType, action, _ := strings.Cut(ev.Type, ".")

	ids := []string{}
	if ev.FormID != "" {
		ids = append(ids, ev.FormID)
	}
	if ev.ResponseID != "" {
		ids = append(ids, ev.ResponseID)
	}

	actor := ev.Actor
	if actor == "" {
		actor = "system"
	}

	metadata := datatypes.JSONMap{}
	for k, v := range ev.Detail {
		metadata[k] = v
	}

	requestID := middleware.GetReqID(ctx)
	record := &EventRecord{
		ID:            uuid.NewString(),
		TenantID:      ev.TenantID,
		CorrelationID: requestID,
		EventType:     EventTypeDomain,
		Actor:         actor,
		RequestID:     requestID,
		ResourceType:  resourceType,
		ResourceIDs:   datatypes.NewJSONSlice(ids),
		Action:        action,
		Outcome:       OutcomeSuccess,
		EventMetadata: metadata,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.Append(ctx, record); err != nil {
		s.logger.Error("failed to write audit event", "error", err, "type", ev.Type, "tenant", ev.TenantID)
	}
}
