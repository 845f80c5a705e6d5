package authz

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fieldworks/backoffice/pkg/tenancy"
)

// RequirePermission returns middleware that enforces a specific resource/verb
// permission check. It retrieves the identity from context (via an identity
// middleware) and the tenant from context (via tenancy middleware), then calls
// the authorizer.
func RequirePermission(authorizer Authorizer, resource, verb string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authorize(w, r, authorizer, resource, verb) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// AuthzMiddleware returns middleware that auto-maps the HTTP method and URL path
// to a (resource, verb) pair and performs the authorization check. This can be
// mounted as global middleware on all API routes.
func AuthzMiddleware(authorizer Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mapping := MapRequest(r.Method, r.URL.Path)

			// If we cannot map the request, deny by default.
			if mapping == UnknownMapping {
				writeDenied(w, http.StatusForbidden, "forbidden", "unknown endpoint, access denied")
				return
			}

			if authorize(w, r, authorizer, mapping.Resource, mapping.Verb) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// authorize runs the check and writes the error response when it fails.
func authorize(w http.ResponseWriter, r *http.Request, authorizer Authorizer, resource, verb string) bool {
	id, _ := IdentityFromContext(r.Context())
	tenant := tenancy.TenantIDFromContext(r.Context())

	allowed, err := authorizer.Authorize(r.Context(), AuthzRequest{
		User:     id.User,
		Groups:   id.Groups,
		Resource: resource,
		Verb:     verb,
		Tenant:   tenant,
	})
	if err != nil {
		writeDenied(w, http.StatusInternalServerError, "internal_error", "authorization check failed")
		return false
	}
	if !allowed {
		writeDenied(w, http.StatusForbidden, "forbidden",
			fmt.Sprintf("insufficient permissions for %s/%s in tenant %s", resource, verb, tenant))
		return false
	}
	return true
}

func writeDenied(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
