package forms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SignatureInput is a completed signing. ImageRef points at an image that
// the blob store already holds.
type SignatureInput struct {
	FieldName  string
	SignerName string
	SignerRole string
	ImageRef   string
}

// AttachSignature appends a signature to a response. The response may be a
// draft or submitted; signatures never gate submission.
func (s *Service) AttachSignature(ctx context.Context, tenantID string, actor Actor, responseID string, in SignatureInput) (*Signature, error) {
	resp, err := s.GetResponse(ctx, tenantID, responseID)
	if err != nil {
		return nil, err
	}
	form, err := s.GetForm(ctx, tenantID, resp.FormID)
	if err != nil {
		return nil, err
	}

	sigs, err := s.buildSignatures(form.Schema.Data(), tenantID, responseID, []SignatureInput{in}, s.clock())
	if err != nil {
		return nil, err
	}
	sig := &sigs[0]
	if err := s.store.CreateSignature(ctx, sig); err != nil {
		return nil, err
	}

	s.emit(ctx, Event{Type: EventSignatureAttached, TenantID: tenantID, Actor: actor.ID, FormID: form.ID, ResponseID: responseID,
		Detail: map[string]any{"signatureID": sig.ID, "fieldName": sig.FieldName, "signerName": sig.SignerName}})
	return sig, nil
}

// ListSignatures returns a response's signatures in signing order.
func (s *Service) ListSignatures(ctx context.Context, tenantID, responseID string) ([]Signature, error) {
	if _, err := s.GetResponse(ctx, tenantID, responseID); err != nil {
		return nil, err
	}
	return s.store.ListSignatures(ctx, tenantID, responseID)
}

// buildSignatures checks signature inputs against the schema and turns them
// into rows. The form must declare at least one signature field, and a
// named field must be one of them.
func (s *Service) buildSignatures(schema Schema, tenantID, responseID string, inputs []SignatureInput, now time.Time) ([]Signature, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	var errs FieldErrors
	if !schema.HasFieldType(FieldTypeSignature) {
		errs.add(ErrSchemaMismatch, "signatures", "form declares no signature field")
		return nil, errs
	}

	index, _ := schema.fieldIndex()
	out := make([]Signature, 0, len(inputs))
	for i, in := range inputs {
		path := fmt.Sprintf("signatures[%d]", i)
		if in.FieldName != "" {
			if f, ok := index[in.FieldName]; !ok || f.Type != FieldTypeSignature {
				errs.add(ErrSchemaMismatch, path+".fieldName", "%q is not a signature field of the form", in.FieldName)
			}
		}
		if strings.TrimSpace(in.SignerName) == "" {
			errs.add(ErrFieldValueInvalid, path+".signerName", "must be a non-empty string")
		}
		if strings.TrimSpace(in.ImageRef) == "" {
			errs.add(ErrFieldValueInvalid, path+".imageRef", "must be a non-empty string")
		}
		out = append(out, Signature{
			ID:         uuid.NewString(),
			ResponseID: responseID,
			TenantID:   tenantID,
			FieldName:  in.FieldName,
			SignerName: strings.TrimSpace(in.SignerName),
			SignerRole: in.SignerRole,
			ImageRef:   in.ImageRef,
			SignedAt:   now,
		})
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}
