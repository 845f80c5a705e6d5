package authz

import (
	"context"
	"net/http"
	"strings"
)

// identityCtxKey is an unexported type used as the context key for Identity.
type identityCtxKey struct{}

// Identity represents the authenticated user making a request.
type Identity struct {
	User   string
	Name   string
	Email  string
	Groups []string
}

// Anonymous is the user recorded when a request carries no identity.
const Anonymous = "anonymous"

// WithIdentity returns a new context with the given Identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns the zero value and false if no identity is set.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// IdentityMiddleware returns HTTP middleware that extracts identity from the
// X-Remote-User, X-Remote-Group, X-Remote-Name and X-Remote-Email headers and
// stores it in the request context. If X-Remote-User is missing, the user
// defaults to "anonymous". X-Remote-Group is comma-separated.
func IdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := strings.TrimSpace(r.Header.Get("X-Remote-User"))
			if user == "" {
				user = Anonymous
			}

			id := Identity{
				User:   user,
				Name:   strings.TrimSpace(r.Header.Get("X-Remote-Name")),
				Email:  strings.TrimSpace(r.Header.Get("X-Remote-Email")),
				Groups: splitGroups(r.Header.Get("X-Remote-Group")),
			}
			ctx := WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func splitGroups(header string) []string {
	var groups []string
	for _, g := range strings.Split(header, ",") {
		g = strings.TrimSpace(g)
		if g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}
