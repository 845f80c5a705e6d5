package forms

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CreateResponseInput is a new draft or submitted response.
type CreateResponseInput struct {
	FormID     string
	User       Actor
	JobID      *string
	Data       map[string]any
	Submitted  bool
	Signatures []SignatureInput
}

// UpdateResponseInput replaces the data of a draft response. Data is not
// merged with what was stored before.
type UpdateResponseInput struct {
	Data       map[string]any
	Submitted  bool
	Signatures []SignatureInput
}

// CreateResponse validates data against the form's current schema and
// stores the response, stamping submitted_at when it is created submitted.
func (s *Service) CreateResponse(ctx context.Context, tenantID string, in CreateResponseInput) (*FormResponse, error) {
	form, err := s.GetForm(ctx, tenantID, in.FormID)
	if err != nil {
		return nil, err
	}
	schema := form.Schema.Data()

	data, err := CheckResponseData(schema, in.Data, in.Submitted)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	resp := &FormResponse{
		ID:           uuid.NewString(),
		FormID:       form.ID,
		TenantID:     tenantID,
		UserID:       in.User.ID,
		JobID:        in.JobID,
		ResponseData: datatypes.JSONMap(data),
		Submitted:    in.Submitted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.Submitted {
		resp.SubmittedAt = &now
	}

	sigs, err := s.buildSignatures(schema, tenantID, resp.ID, in.Signatures, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateResponse(ctx, resp, sigs, s.actorProfile(tenantID, in.User)); err != nil {
		return nil, err
	}

	s.logger.Info("response created", "tenant", tenantID, "formID", form.ID, "responseID", resp.ID, "submitted", resp.Submitted)
	s.emit(ctx, Event{Type: EventResponseCreated, TenantID: tenantID, Actor: in.User.ID, FormID: form.ID, ResponseID: resp.ID,
		Detail: map[string]any{"submitted": resp.Submitted, "signatures": len(sigs)}})
	if resp.Submitted {
		s.emit(ctx, Event{Type: EventResponseSubmitted, TenantID: tenantID, Actor: in.User.ID, FormID: form.ID, ResponseID: resp.ID})
	}
	return resp, nil
}

// UpdateResponse replaces the data of a draft response and optionally
// submits it. A response that is already submitted is never modified and
// ErrAlreadySubmitted is returned.
func (s *Service) UpdateResponse(ctx context.Context, tenantID string, actor Actor, responseID string, in UpdateResponseInput) (*FormResponse, error) {
	existing, err := s.GetResponse(ctx, tenantID, responseID)
	if err != nil {
		return nil, err
	}
	if existing.Submitted {
		return nil, alreadySubmitted(responseID)
	}

	form, err := s.GetForm(ctx, tenantID, existing.FormID)
	if err != nil {
		return nil, err
	}
	schema := form.Schema.Data()

	data, err := CheckResponseData(schema, in.Data, in.Submitted)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	sigs, err := s.buildSignatures(schema, tenantID, responseID, in.Signatures, now)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"response_data": datatypes.JSONMap(data),
		"submitted":     in.Submitted,
		"submitted_at":  nil,
		"updated_at":    now,
	}
	if in.Submitted {
		updates["submitted_at"] = now
	}

	updated, err := s.store.UpdateDraft(ctx, tenantID, responseID, updates, sigs)
	if err != nil {
		return nil, err
	}
	if !updated {
		// Lost a race: the row was submitted or deleted after it was read.
		current, err := s.store.GetResponse(ctx, tenantID, responseID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, notFound("response", responseID)
		}
		return nil, alreadySubmitted(responseID)
	}

	s.logger.Info("response updated", "tenant", tenantID, "responseID", responseID, "submitted", in.Submitted)
	s.emit(ctx, Event{Type: EventResponseUpdated, TenantID: tenantID, Actor: actor.ID, FormID: form.ID, ResponseID: responseID,
		Detail: map[string]any{"submitted": in.Submitted, "signatures": len(sigs)}})
	if in.Submitted {
		s.emit(ctx, Event{Type: EventResponseSubmitted, TenantID: tenantID, Actor: actor.ID, FormID: form.ID, ResponseID: responseID})
	}
	return s.GetResponse(ctx, tenantID, responseID)
}

// GetResponse returns a response of the tenant.
func (s *Service) GetResponse(ctx context.Context, tenantID, responseID string) (*FormResponse, error) {
	resp, err := s.store.GetResponse(ctx, tenantID, responseID)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, notFound("response", responseID)
	}
	return resp, nil
}

// ListResponses returns a page of the tenant's responses. When the filter
// names a form, the form must exist.
func (s *Service) ListResponses(ctx context.Context, tenantID string, filter ResponseListFilter, pageSize int, pageToken string) ([]FormResponse, string, int, error) {
	if filter.FormID != "" {
		if _, err := s.GetForm(ctx, tenantID, filter.FormID); err != nil {
			return nil, "", 0, err
		}
	}
	return s.store.ListResponses(ctx, tenantID, filter, pageSize, pageToken)
}

// DeleteResponse removes a response and its signatures.
func (s *Service) DeleteResponse(ctx context.Context, tenantID string, actor Actor, responseID string) error {
	existing, err := s.GetResponse(ctx, tenantID, responseID)
	if err != nil {
		return err
	}
	deleted, err := s.store.DeleteResponse(ctx, tenantID, responseID)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("response", responseID)
	}
	s.emit(ctx, Event{Type: EventResponseDeleted, TenantID: tenantID, Actor: actor.ID, FormID: existing.FormID, ResponseID: responseID})
	return nil
}

func alreadySubmitted(responseID string) error {
	return fmt.Errorf("response %q: %w", responseID, ErrAlreadySubmitted)
}
