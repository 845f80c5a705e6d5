package audit

import (
	"net/http"
	"strings"

	"github.com/fieldworks/backoffice/pkg/authz"
)

// extractResourceType returns the authorization resource a path addresses,
// e.g. "forms" or "responses". Unknown paths yield "".
func extractResourceType(method, path string) string {
	return authz.MapRequest(method, path).Resource
}

// extractResourceIDs returns the form, response and export job IDs named in a path.
//
//	/api/forms/v1/forms/{formId}/responses        -> [formId]
//	/api/forms/v1/responses/{responseId}:presign  -> [responseId]
//	/api/jobs/v1/exports/{jobId}:cancel           -> [jobId]
func extractResourceIDs(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	var ids []string

	for i, p := range parts {
		switch p {
		case "forms", "responses", "exports":
			if i+1 < len(parts) && i > 0 && parts[i-1] != "api" {
				id := parts[i+1]
				if colonIdx := strings.Index(id, ":"); colonIdx > 0 {
					id = id[:colonIdx]
				}
				ids = append(ids, id)
			}
		}
	}

	return ids
}

// extractActionVerb returns a human-readable action name from the HTTP method and path.
func extractActionVerb(method, path string) string {
	last := path[strings.LastIndex(path, "/")+1:]
	if colonIdx := strings.Index(last, ":"); colonIdx > 0 {
		switch suffix := last[colonIdx+1:]; suffix {
		case "validate", "presign", "cancel":
			return suffix
		}
	}

	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut:
		return "update"
	case http.MethodPatch:
		return "patch"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// isAuditedRequest returns true if the request should be audited.
// Mutating methods are audited; browsing, exports and analytics reads are not.
func isAuditedRequest(method, path string) bool {
	if isHealthEndpoint(path) {
		return false
	}

	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// isHealthEndpoint returns true for health-check paths.
func isHealthEndpoint(path string) bool {
	switch path {
	case "/livez", "/readyz", "/healthz":
		return true
	}
	return false
}

// outcomeFromStatus maps HTTP status codes to audit outcomes.
func outcomeFromStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code == http.StatusForbidden:
		return OutcomeDenied
	default:
		return OutcomeFailure
	}
}
