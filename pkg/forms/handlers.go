package forms

import (
	"bytes"
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

	"github.com/fieldworks/backoffice/pkg/authz"
	"github.com/fieldworks/backoffice/pkg/tenancy"
)

// maxBodyBytes bounds request bodies for every write endpoint.
const maxBodyBytes = 4 << 20

// SignatureUploadTarget is where a client uploads a signature image before
// attaching it. ImageRef is the value to send as imageRef afterwards.
type SignatureUploadTarget struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ImageRef  string            `json:"imageRef"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// SignatureUploadPresigner issues short-lived upload URLs for signature images.
type SignatureUploadPresigner interface {
	PresignSignatureUpload(ctx context.Context, tenantID, responseID, contentType string) (*SignatureUploadTarget, error)
}

// ListFieldTypesHandler handles GET /field-types
func ListFieldTypesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types := FieldTypes()
		out := make([]fieldTypeResponse, len(types))
		for i, info := range types {
			out[i] = fieldTypeResponse{
				Type:            string(info.Type),
				ValueShape:      string(info.Shape),
				SupportsOptions: info.SupportsOptions,
				Special:         info.Special,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"fieldTypes": out})
	}
}

// ValidateSchemaHandler handles POST /schema:validate
// The body is a schema document. A valid schema echoes its normalized form.
func ValidateSchemaHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := readBody(w, r)
		if !ok {
			return
		}
		schema, err := ParseSchema(raw)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":  true,
			"fields": len(schema.Fields()),
			"schema": schema,
		})
	}
}

// CreateFormHandler handles POST /forms
func CreateFormHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := decodeFormInput(w, r)
		if !ok {
			return
		}
		form, err := svc.CreateForm(r.Context(), tenantOf(r), actorOf(r), in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, formToResponse(form))
	}
}

// GetFormHandler handles GET /forms/{formId}
func GetFormHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, err := svc.GetForm(r.Context(), tenantOf(r), chi.URLParam(r, "formId"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, formToResponse(form))
	}
}

// ListFormsHandler handles GET /forms
// Query params: type, name, pageSize, pageToken
func ListFormsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := FormListFilter{
			Type: r.URL.Query().Get("type"),
			Name: r.URL.Query().Get("name"),
		}
		records, nextToken, total, err := svc.ListForms(r.Context(), tenantOf(r), filter, pageSizeOf(r), r.URL.Query().Get("pageToken"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		forms := make([]formResponse, len(records))
		for i := range records {
			forms[i] = formToResponse(&records[i])
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"forms":         forms,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// UpdateFormHandler handles PUT /forms/{formId}
func UpdateFormHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := decodeFormInput(w, r)
		if !ok {
			return
		}
		form, err := svc.UpdateForm(r.Context(), tenantOf(r), actorOf(r), chi.URLParam(r, "formId"), in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, formToResponse(form))
	}
}

// DeleteFormHandler handles DELETE /forms/{formId}
func DeleteFormHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteForm(r.Context(), tenantOf(r), actorOf(r), chi.URLParam(r, "formId")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CreateResponseHandler handles POST /forms/{formId}/responses
// The response is owned by the calling user.
func CreateResponseHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body responseRequest
		if !decodeJSON(w, r, &body) {
			return
		}
		resp, err := svc.CreateResponse(r.Context(), tenantOf(r), CreateResponseInput{
			FormID:     chi.URLParam(r, "formId"),
			User:       actorOf(r),
			JobID:      body.JobID,
			Data:       body.Data,
			Submitted:  body.Submitted,
			Signatures: body.signatureInputs(),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, responseToResponse(resp))
	}
}

// ListResponsesHandler handles GET /forms/{formId}/responses
// Query params: userId, jobId, submitted, pageSize, pageToken
func ListResponsesHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ResponseListFilter{
			FormID: chi.URLParam(r, "formId"),
			UserID: q.Get("userId"),
			JobID:  q.Get("jobId"),
		}
		if v := q.Get("submitted"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid submitted filter %q", v))
				return
			}
			filter.Submitted = &b
		}

		records, nextToken, total, err := svc.ListResponses(r.Context(), tenantOf(r), filter, pageSizeOf(r), q.Get("pageToken"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		responses := make([]responseResponse, len(records))
		for i := range records {
			responses[i] = responseToResponse(&records[i])
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"responses":     responses,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// GetResponseHandler handles GET /responses/{responseId}
func GetResponseHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := svc.GetResponse(r.Context(), tenantOf(r), chi.URLParam(r, "responseId"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, responseToResponse(resp))
	}
}

// UpdateResponseHandler handles PUT /responses/{responseId}
func UpdateResponseHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body responseRequest
		if !decodeJSON(w, r, &body) {
			return
		}
		resp, err := svc.UpdateResponse(r.Context(), tenantOf(r), actorOf(r), chi.URLParam(r, "responseId"), UpdateResponseInput{
			Data:       body.Data,
			Submitted:  body.Submitted,
			Signatures: body.signatureInputs(),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, responseToResponse(resp))
	}
}

// DeleteResponseHandler handles DELETE /responses/{responseId}
func DeleteResponseHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteResponse(r.Context(), tenantOf(r), actorOf(r), chi.URLParam(r, "responseId")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AttachSignatureHandler handles POST /responses/{responseId}/signatures
func AttachSignatureHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body signatureRequest
		if !decodeJSON(w, r, &body) {
			return
		}
		sig, err := svc.AttachSignature(r.Context(), tenantOf(r), actorOf(r), chi.URLParam(r, "responseId"), body.input())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, signatureToResponse(sig))
	}
}

// ListSignaturesHandler handles GET /responses/{responseId}/signatures
func ListSignaturesHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sigs, err := svc.ListSignatures(r.Context(), tenantOf(r), chi.URLParam(r, "responseId"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		out := make([]signatureResponse, len(sigs))
		for i := range sigs {
			out[i] = signatureToResponse(&sigs[i])
		}
		writeJSON(w, http.StatusOK, map[string]any{"signatures": out})
	}
}

// PresignSignatureHandler handles POST /responses/{responseId}/signatures:presign
// Body: {"contentType": "image/png"}; the content type is optional.
func PresignSignatureHandler(svc *Service, presigner SignatureUploadPresigner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if presigner == nil {
			writeError(w, http.StatusNotImplemented, "signature uploads are not configured")
			return
		}
		var body struct {
			ContentType string `json:"contentType"`
		}
		raw, ok := readBody(w, r)
		if !ok {
			return
		}
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
				return
			}
		}

		tenant := tenantOf(r)
		responseID := chi.URLParam(r, "responseId")
		if _, err := svc.GetResponse(r.Context(), tenant, responseID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		target, err := presigner.PresignSignatureUpload(r.Context(), tenant, responseID, body.ContentType)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, target)
	}
}

// ResponseStatsHandler handles GET /forms/{formId}/stats
func ResponseStatsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.ResponseStats(r.Context(), tenantOf(r), chi.URLParam(r, "formId"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// CompletionTrendHandler handles GET /forms/{formId}/trend?days=N
func CompletionTrendHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := 0
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid days %q", v))
				return
			}
			days = n
		}
		points, err := svc.CompletionTrend(r.Context(), tenantOf(r), chi.URLParam(r, "formId"), days)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if points == nil {
			points = []TrendPoint{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"trend": points})
	}
}

// ExportHandler handles GET /forms/{formId}/export?format=csv|xlsx
// The table is rendered to memory first so that a failure can still
// produce an error status.
func ExportHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := r.URL.Query().Get("format")
		if format == "" {
			format = "csv"
		}
		if format != "csv" && format != "xlsx" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format %q", format))
			return
		}

		formID := chi.URLParam(r, "formId")
		table, err := svc.ExportRows(r.Context(), tenantOf(r), formID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		var buf bytes.Buffer
		contentType := "text/csv; charset=utf-8"
		if format == "xlsx" {
			contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
			err = table.WriteXLSX(&buf)
		} else {
			err = table.WriteCSV(&buf)
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="form-%s.%s"`, formID, format))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

// formResponse is the API response for a form.
type formResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	Schema    Schema `json:"schema"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func formToResponse(f *Form) formResponse {
	return formResponse{
		ID:        f.ID,
		Name:      f.Name,
		Type:      f.Type,
		Schema:    f.Schema.Data(),
		CreatedAt: f.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: f.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// responseResponse is the API response for a form response.
type responseResponse struct {
	ID          string         `json:"id"`
	FormID      string         `json:"formId"`
	UserID      string         `json:"userId"`
	JobID       *string        `json:"jobId,omitempty"`
	Data        map[string]any `json:"data"`
	Submitted   bool           `json:"submitted"`
	SubmittedAt string         `json:"submittedAt,omitempty"`
	CreatedAt   string         `json:"createdAt"`
	UpdatedAt   string         `json:"updatedAt"`
}

func responseToResponse(fr *FormResponse) responseResponse {
	resp := responseResponse{
		ID:        fr.ID,
		FormID:    fr.FormID,
		UserID:    fr.UserID,
		JobID:     fr.JobID,
		Data:      map[string]any(fr.ResponseData),
		Submitted: fr.Submitted,
		CreatedAt: fr.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: fr.UpdatedAt.Format(time.RFC3339Nano),
	}
	if resp.Data == nil {
		resp.Data = map[string]any{}
	}
	if fr.SubmittedAt != nil {
		resp.SubmittedAt = fr.SubmittedAt.Format(time.RFC3339Nano)
	}
	return resp
}

// signatureResponse is the API response for a signature.
type signatureResponse struct {
	ID         string `json:"id"`
	ResponseID string `json:"responseId"`
	FieldName  string `json:"fieldName,omitempty"`
	SignerName string `json:"signerName"`
	SignerRole string `json:"signerRole,omitempty"`
	ImageRef   string `json:"imageRef"`
	SignedAt   string `json:"signedAt"`
}

func signatureToResponse(s *Signature) signatureResponse {
	return signatureResponse{
		ID:         s.ID,
		ResponseID: s.ResponseID,
		FieldName:  s.FieldName,
		SignerName: s.SignerName,
		SignerRole: s.SignerRole,
		ImageRef:   s.ImageRef,
		SignedAt:   s.SignedAt.Format(time.RFC3339Nano),
	}
}

type fieldTypeResponse struct {
	Type            string `json:"type"`
	ValueShape      string `json:"valueShape"`
	SupportsOptions bool   `json:"supportsOptions"`
	Special         bool   `json:"special"`
}

type signatureRequest struct {
	FieldName  string `json:"fieldName"`
	SignerName string `json:"signerName"`
	SignerRole string `json:"signerRole"`
	ImageRef   string `json:"imageRef"`
}

func (s signatureRequest) input() SignatureInput {
	return SignatureInput(s)
}

type responseRequest struct {
	JobID      *string            `json:"jobId"`
	Data       map[string]any     `json:"data"`
	Submitted  bool               `json:"submitted"`
	Signatures []signatureRequest `json:"signatures"`
}

func (b responseRequest) signatureInputs() []SignatureInput {
	if len(b.Signatures) == 0 {
		return nil
	}
	out := make([]SignatureInput, len(b.Signatures))
	for i, s := range b.Signatures {
		out[i] = s.input()
	}
	return out
}

// decodeFormInput reads {"name", "type", "schema"}. The schema goes through
// ParseSchema so that structural errors carry their document path.
func decodeFormInput(w http.ResponseWriter, r *http.Request) (FormInput, bool) {
	var body struct {
		Name   string          `json:"name"`
		Type   string          `json:"type"`
		Schema json.RawMessage `json:"schema"`
	}
	if !decodeJSON(w, r, &body) {
		return FormInput{}, false
	}
	if len(body.Schema) == 0 {
		writeServiceError(w, r, FieldErrors{{Kind: ErrSchemaStructureInvalid, Field: "schema", Message: "is required"}})
		return FormInput{}, false
	}
	schema, err := ParseSchema(body.Schema)
	if err != nil {
		writeServiceError(w, r, err)
		return FormInput{}, false
	}
	return FormInput{Name: body.Name, Type: body.Type, Schema: schema}, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read body: %v", err))
		return nil, false
	}
	return raw, true
}

// decodeJSON decodes the body into v with numbers kept as json.Number.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	raw, ok := readBody(w, r)
	if !ok {
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func tenantOf(r *http.Request) string {
	if t := tenancy.TenantIDFromContext(r.Context()); t != "" {
		return t
	}
	return tenancy.DefaultTenant
}

func actorOf(r *http.Request) Actor {
	id, ok := authz.IdentityFromContext(r.Context())
	if !ok || id.User == "" {
		return Actor{ID: authz.Anonymous}
	}
	return Actor{ID: id.User, Name: id.Name, Email: id.Email}
}

func pageSizeOf(r *http.Request) int {
	pageSize := 20
	if ps := r.URL.Query().Get("pageSize"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 {
			pageSize = v
		}
	}
	return pageSize
}

type fieldErrorResponse struct {
	Kind    string `json:"kind"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// KindCode returns the stable wire name of an error kind.
func KindCode(kind error) string {
	switch {
	case errors.Is(kind, ErrSchemaStructureInvalid):
		return "schema_structure_invalid"
	case errors.Is(kind, ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(kind, ErrRequiredFieldMissing):
		return "required_field_missing"
	case errors.Is(kind, ErrFieldValueInvalid):
		return "field_value_invalid"
	case errors.Is(kind, ErrAlreadySubmitted):
		return "already_submitted"
	case errors.Is(kind, ErrFormHasResponses):
		return "form_has_responses"
	case errors.Is(kind, ErrNotFound):
		return "not_found"
	}
	return "internal"
}

// writeServiceError maps engine errors onto HTTP statuses. Validation
// failures list every violation; storage failures are logged and hidden.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if list := AsFieldErrors(err); len(list) > 0 {
		out := make([]fieldErrorResponse, len(list))
		for i, fe := range list {
			out[i] = fieldErrorResponse{Kind: KindCode(fe.Kind), Field: fe.Field, Message: fe.Message}
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  err.Error(),
			"errors": out,
		})
		return
	}

	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidPageToken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAlreadySubmitted), errors.Is(err, ErrFormHasResponses):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "kind": KindCode(err)})
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusRequestTimeout, "request canceled")
	default:
		slog.ErrorContext(r.Context(), "forms request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
