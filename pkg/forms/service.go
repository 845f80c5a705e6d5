package forms

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Domain event types published through an EventSink.
const (
	EventFormCreated       = "form.created"
	EventFormUpdated       = "form.updated"
	EventFormDeleted       = "form.deleted"
	EventResponseCreated   = "response.created"
	EventResponseUpdated   = "response.updated"
	EventResponseSubmitted = "response.submitted"
	EventResponseDeleted   = "response.deleted"
	EventSignatureAttached = "signature.attached"
)

// Event describes a completed write in the form engine.
type Event struct {
	Type       string
	TenantID   string
	Actor      string
	FormID     string
	ResponseID string
	Detail     map[string]any
}

// EventSink receives events after the write they describe has committed.
type EventSink interface {
	RecordFormEvent(ctx context.Context, ev Event)
}

// EventSinks fans events out to every non-nil sink in order.
func EventSinks(sinks ...EventSink) EventSink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multiSink []EventSink

func (m multiSink) RecordFormEvent(ctx context.Context, ev Event) {
	for _, s := range m {
		s.RecordFormEvent(ctx, ev)
	}
}

// Actor is the user on whose behalf an operation runs, as supplied by the
// authentication layer.
type Actor struct {
	ID    string
	Name  string
	Email string
}

// Service implements the form engine operations. Every operation takes the
// tenant explicitly; nothing is read from ambient request state.
type Service struct {
	store  *FormStore
	cfg    *FormsConfig
	logger *slog.Logger
	events EventSink
	now    func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithConfig sets the engine configuration. Defaults to DefaultFormsConfig.
func WithConfig(cfg *FormsConfig) ServiceOption {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventSink publishes domain events to sink.
func WithEventSink(sink EventSink) ServiceOption {
	return func(s *Service) {
		s.events = sink
	}
}

// WithClock overrides the time source. Returned times are stored in UTC.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service over store.
func NewService(store *FormStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		cfg:    DefaultFormsConfig(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the active configuration.
func (s *Service) Config() *FormsConfig { return s.cfg }

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) emit(ctx context.Context, ev Event) {
	if s.events == nil {
		return
	}
	s.events.RecordFormEvent(ctx, ev)
}

// FormInput is the authored content of a form. Updates replace all of it.
type FormInput struct {
	Name   string
	Type   string
	Schema Schema
}

func (in FormInput) validate() error {
	var errs FieldErrors
	if strings.TrimSpace(in.Name) == "" {
		errs.add(ErrFieldValueInvalid, "name", "must be a non-empty string")
	}
	if err := ValidateSchema(in.Schema); err != nil {
		errs = append(errs, AsFieldErrors(err)...)
	}
	return errs.orNil()
}

// CreateForm validates and persists a new form.
func (s *Service) CreateForm(ctx context.Context, tenantID string, actor Actor, in FormInput) (*Form, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.clock()
	form := &Form{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      strings.TrimSpace(in.Name),
		Type:      in.Type,
		Schema:    datatypes.NewJSONType(in.Schema),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateForm(ctx, form); err != nil {
		return nil, err
	}

	s.logger.Info("form created", "tenant", tenantID, "formID", form.ID, "fields", len(in.Schema.Fields()))
	s.emit(ctx, Event{Type: EventFormCreated, TenantID: tenantID, Actor: actor.ID, FormID: form.ID,
		Detail: map[string]any{"name": form.Name, "type": form.Type}})
	return form, nil
}

// GetForm returns a form of the tenant.
func (s *Service) GetForm(ctx context.Context, tenantID, formID string) (*Form, error) {
	form, err := s.store.GetForm(ctx, tenantID, formID)
	if err != nil {
		return nil, err
	}
	if form == nil {
		return nil, notFound("form", formID)
	}
	return form, nil
}

// ListForms returns a page of the tenant's forms.
func (s *Service) ListForms(ctx context.Context, tenantID string, filter FormListFilter, pageSize int, pageToken string) ([]Form, string, int, error) {
	return s.store.ListForms(ctx, tenantID, filter, pageSize, pageToken)
}

// UpdateForm replaces a form's name, type and schema.
func (s *Service) UpdateForm(ctx context.Context, tenantID string, actor Actor, formID string, in FormInput) (*Form, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateForm(ctx, tenantID, formID, map[string]any{
		"name":       strings.TrimSpace(in.Name),
		"type":       in.Type,
		"schema":     datatypes.NewJSONType(in.Schema),
		"updated_at": s.clock(),
	})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, notFound("form", formID)
	}

	s.emit(ctx, Event{Type: EventFormUpdated, TenantID: tenantID, Actor: actor.ID, FormID: formID})
	return s.GetForm(ctx, tenantID, formID)
}

// DeleteForm deletes a form. Forms with any response are kept and
// ErrFormHasResponses is returned.
func (s *Service) DeleteForm(ctx context.Context, tenantID string, actor Actor, formID string) error {
	if err := s.store.DeleteForm(ctx, tenantID, formID); err != nil {
		return err
	}
	s.logger.Info("form deleted", "tenant", tenantID, "formID", formID)
	s.emit(ctx, Event{Type: EventFormDeleted, TenantID: tenantID, Actor: actor.ID, FormID: formID})
	return nil
}

// actorProfile returns the directory entry to record alongside a response,
// or nil when the actor carries nothing worth keeping.
func (s *Service) actorProfile(tenantID string, actor Actor) *UserProfile {
	if actor.ID == "" || (actor.Name == "" && actor.Email == "") {
		return nil
	}
	return &UserProfile{
		TenantID:  tenantID,
		ID:        actor.ID,
		Name:      actor.Name,
		Email:     actor.Email,
		UpdatedAt: s.clock(),
	}
}
