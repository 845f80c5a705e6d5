// Package authz provides authorization primitives for the forms server.
// It supports a file-backed role policy and an allow-all mode for development.
package authz

import "context"

// Resource names for permission mapping.
const (
	ResourceForms      = "forms"
	ResourceResponses  = "responses"
	ResourceSignatures = "signatures"
	ResourceAnalytics  = "analytics"
	ResourceAudit      = "audit"
	ResourceExports    = "exports"
)

// Verb names for permission mapping.
const (
	VerbGet    = "get"
	VerbList   = "list"
	VerbCreate = "create"
	VerbUpdate = "update"
	VerbDelete = "delete"
	VerbExport = "export"
)

// AuthzRequest represents an authorization check.
type AuthzRequest struct {
	User     string
	Groups   []string
	Resource string
	Verb     string
	Tenant   string
}

// Authorizer checks whether a user is authorized to perform an action.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthzRequest) (bool, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, req AuthzRequest) (bool, error)

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, req AuthzRequest) (bool, error) {
	return f(ctx, req)
}

// AllowAll grants every request. Routers treat a nil Authorizer the same
// way; AllowAll is for callers that need a non-nil value.
var AllowAll Authorizer = AuthorizerFunc(func(context.Context, AuthzRequest) (bool, error) {
	return true, nil
})
