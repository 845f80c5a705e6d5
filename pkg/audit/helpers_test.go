package audit

import (
	"net/http"
	"reflect"
	"testing"
)

func TestExtractResourceType(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodPost, "/api/forms/v1/forms", "forms"},
		{http.MethodPut, "/api/forms/v1/forms/f1", "forms"},
		{http.MethodPost, "/api/forms/v1/forms/f1/responses", "responses"},
		{http.MethodDelete, "/api/forms/v1/responses/r1", "responses"},
		{http.MethodPost, "/api/forms/v1/responses/r1/signatures", "signatures"},
		{http.MethodPost, "/api/forms/v1/responses/r1/signatures:presign", "signatures"},
		{http.MethodPost, "/api/jobs/v1/exports", "exports"},
		{http.MethodPost, "/api/forms/v1/schema:validate", "forms"},
		{http.MethodPost, "/api/unknown", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if got := extractResourceType(tt.method, tt.path); got != tt.want {
				t.Errorf("extractResourceType(%q, %q) = %q, want %q", tt.method, tt.path, got, tt.want)
			}
		})
	}
}

func TestExtractResourceIDs(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []string
	}{
		{"form collection", "/api/forms/v1/forms", nil},
		{"form item", "/api/forms/v1/forms/f1", []string{"f1"}},
		{"form responses", "/api/forms/v1/forms/f1/responses", []string{"f1"}},
		{"response item", "/api/forms/v1/responses/r1", []string{"r1"}},
		{"presign", "/api/forms/v1/responses/r1/signatures:presign", []string{"r1"}},
		{"schema validate", "/api/forms/v1/schema:validate", nil},
		{"export cancel", "/api/jobs/v1/exports/j1:cancel", []string{"j1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractResourceIDs(tt.path)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("extractResourceIDs(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestExtractActionVerb(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodPost, "/api/forms/v1/schema:validate", "validate"},
		{http.MethodPost, "/api/forms/v1/responses/r1/signatures:presign", "presign"},
		{http.MethodPost, "/api/jobs/v1/exports/j1:cancel", "cancel"},
		{http.MethodPost, "/api/forms/v1/forms", "create"},
		{http.MethodPut, "/api/forms/v1/responses/r1", "update"},
		{http.MethodPatch, "/api/forms/v1/forms/f1", "patch"},
		{http.MethodDelete, "/api/forms/v1/forms/f1", "delete"},
		{http.MethodGet, "/api/forms/v1/forms", "get"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if got := extractActionVerb(tt.method, tt.path); got != tt.want {
				t.Errorf("extractActionVerb(%q, %q) = %q, want %q", tt.method, tt.path, got, tt.want)
			}
		})
	}
}

func TestIsAuditedRequest(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodPost, "/api/forms/v1/forms", true},
		{http.MethodPut, "/api/forms/v1/responses/r1", true},
		{http.MethodDelete, "/api/forms/v1/forms/f1", true},
		{http.MethodGet, "/api/forms/v1/forms", false},
		{http.MethodGet, "/api/forms/v1/forms/f1/export", false},
		{http.MethodPost, "/healthz", false},
		{http.MethodGet, "/readyz", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if got := isAuditedRequest(tt.method, tt.path); got != tt.want {
				t.Errorf("isAuditedRequest(%q, %q) = %v, want %v", tt.method, tt.path, got, tt.want)
			}
		})
	}
}

func TestOutcomeFromStatus(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{http.StatusOK, OutcomeSuccess},
		{http.StatusCreated, OutcomeSuccess},
		{http.StatusNoContent, OutcomeSuccess},
		{http.StatusForbidden, OutcomeDenied},
		{http.StatusUnauthorized, OutcomeFailure},
		{http.StatusUnprocessableEntity, OutcomeFailure},
		{http.StatusConflict, OutcomeFailure},
		{http.StatusInternalServerError, OutcomeFailure},
	}

	for _, tt := range tests {
		if got := outcomeFromStatus(tt.code); got != tt.want {
			t.Errorf("outcomeFromStatus(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
