package tenancy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

var (
	// ErrTenantRequired is returned when a request names no tenant.
	ErrTenantRequired = errors.New("tenant is required")
	// ErrTenantInvalid is returned for a tenant ID outside the accepted format.
	ErrTenantInvalid = errors.New("tenant is invalid")
)

const maxTenantIDLen = 64

// tenantIDRe accepts lowercase alphanumerics, hyphens and underscores,
// starting and ending with an alphanumeric character.
var tenantIDRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9_-]*[a-z0-9])?$`)

// TenantQueryParam is the query parameter name used for tenant resolution.
const TenantQueryParam = "tenant"

// TenantHeader is the HTTP header used for tenant resolution.
const TenantHeader = "X-Tenant-ID"

// TenantResolver resolves the tenant context from an HTTP request.
type TenantResolver interface {
	Resolve(r *http.Request) (TenantContext, error)
}

// SingleTenantResolver always returns the default tenant.
type SingleTenantResolver struct{}

// Resolve always returns a TenantContext for DefaultTenant.
func (s SingleTenantResolver) Resolve(_ *http.Request) (TenantContext, error) {
	return TenantContext{TenantID: DefaultTenant}, nil
}

// HeaderTenantResolver reads the tenant from the X-Tenant-ID header or the
// tenant query parameter. A tenant is always required.
type HeaderTenantResolver struct{}

// Resolve extracts the tenant from the request. The header wins over the
// query parameter. Returns an error if the tenant is missing or invalid.
func (h HeaderTenantResolver) Resolve(r *http.Request) (TenantContext, error) {
	tenantID := r.Header.Get(TenantHeader)
	if tenantID == "" {
		tenantID = r.URL.Query().Get(TenantQueryParam)
	}

	if tenantID == "" {
		return TenantContext{}, fmt.Errorf("%w: use the %s header or ?%s= query param", ErrTenantRequired, TenantHeader, TenantQueryParam)
	}

	if err := ValidateTenantID(tenantID); err != nil {
		return TenantContext{}, err
	}

	return TenantContext{TenantID: tenantID}, nil
}

// ValidateTenantID checks the tenant ID format: 1-64 characters of lowercase
// alphanumerics, hyphens and underscores, starting and ending with an
// alphanumeric.
func ValidateTenantID(tenantID string) error {
	if len(tenantID) > maxTenantIDLen {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrTenantInvalid, tenantID, maxTenantIDLen)
	}
	if !tenantIDRe.MatchString(tenantID) {
		return fmt.Errorf("%w: %q must be lowercase alphanumerics, hyphens or underscores, starting and ending with an alphanumeric", ErrTenantInvalid, tenantID)
	}
	return nil
}

// Resolver returns the resolver that implements mode.
func (m TenancyMode) Resolver() TenantResolver {
	if m == ModeHeader {
		return HeaderTenantResolver{}
	}
	return SingleTenantResolver{}
}

// NewMiddleware resolves tenants according to mode.
func NewMiddleware(mode TenancyMode) func(http.Handler) http.Handler {
	return Middleware(mode.Resolver())
}

// Middleware stores the tenant resolved by resolver in the request context.
// Unresolvable requests are answered with 400 and never reach next.
func Middleware(resolver TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, err := resolver.Resolve(r)
			if err != nil {
				kind := "tenant_invalid"
				if errors.Is(err, ErrTenantRequired) {
					kind = "tenant_required"
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "bad_request",
					"kind":    kind,
					"message": err.Error(),
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tc)))
		})
	}
}
