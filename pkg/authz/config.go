package authz

import (
	"os"
	"strconv"
	"time"
)

// AuthzMode selects the authorization backend.
type AuthzMode string

const (
	// AuthzModeNone disables authorization checks (development).
	AuthzModeNone AuthzMode = "none"
	// AuthzModePolicy checks permissions against a role policy file.
	AuthzModePolicy AuthzMode = "policy"
)

// AuthMode selects where request identity comes from.
type AuthMode string

const (
	// AuthModeHeader trusts X-Remote-* headers set by an authenticating proxy.
	AuthModeHeader AuthMode = "header"
	// AuthModeJWT reads identity from a Bearer token.
	AuthModeJWT AuthMode = "jwt"
)

// AuthzConfig configures identity extraction and authorization.
type AuthzConfig struct {
	Mode       AuthzMode
	PolicyFile string
	CacheTTL   time.Duration
	AuthMode   AuthMode
	JWT        JWTConfig
}

// DefaultAuthzConfig returns the default configuration: header identity and
// no authorization.
func DefaultAuthzConfig() *AuthzConfig {
	return &AuthzConfig{
		Mode:       AuthzModeNone,
		PolicyFile: "/config/authz-policy.yaml",
		CacheTTL:   DefaultCacheTTL,
		AuthMode:   AuthModeHeader,
	}
}

// AuthzConfigFromEnv loads config from environment variables.
// FORMS_AUTHZ_MODE, FORMS_AUTHZ_POLICY_FILE, FORMS_AUTHZ_CACHE_TTL_SECONDS,
// FORMS_AUTH_MODE, FORMS_JWT_PUBLIC_KEY_PATH, FORMS_JWT_ISSUER,
// FORMS_JWT_AUDIENCE, FORMS_JWT_GROUPS_CLAIM
func AuthzConfigFromEnv() *AuthzConfig {
	cfg := DefaultAuthzConfig()

	if v := os.Getenv("FORMS_AUTHZ_MODE"); v == string(AuthzModePolicy) {
		cfg.Mode = AuthzModePolicy
	}

	if v := os.Getenv("FORMS_AUTHZ_POLICY_FILE"); v != "" {
		cfg.PolicyFile = v
	}

	if v := os.Getenv("FORMS_AUTHZ_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.CacheTTL = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("FORMS_AUTH_MODE"); v == string(AuthModeJWT) {
		cfg.AuthMode = AuthModeJWT
	}

	cfg.JWT.PublicKeyPath = os.Getenv("FORMS_JWT_PUBLIC_KEY_PATH")
	cfg.JWT.Issuer = os.Getenv("FORMS_JWT_ISSUER")
	cfg.JWT.Audience = os.Getenv("FORMS_JWT_AUDIENCE")
	cfg.JWT.GroupsClaim = os.Getenv("FORMS_JWT_GROUPS_CLAIM")

	return cfg
}
