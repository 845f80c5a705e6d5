package authz

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures identity extraction from Bearer tokens.
type JWTConfig struct {
	// PublicKeyPath is the path to the PEM-encoded RSA public key for RS256 verification.
	// If empty, tokens are parsed but NOT verified (trusted proxy mode).
	PublicKeyPath string

	// Issuer is the expected token issuer (iss claim). If empty, issuer is not validated.
	Issuer string

	// Audience is the expected token audience (aud claim). If empty, audience is not validated.
	Audience string

	// GroupsClaim is the claim path holding the user's groups. Supports
	// dot-notation for nested claims (e.g., "realm_access.roles").
	// Default: "groups"
	GroupsClaim string
}

// JWTIdentityExtractor reads an Identity from an "Authorization: Bearer" token.
type JWTIdentityExtractor struct {
	cfg       JWTConfig
	publicKey *rsa.PublicKey
	logger    *slog.Logger
}

var errNoToken = errors.New("no bearer token")

// NewJWTIdentityExtractor creates an extractor. When cfg.PublicKeyPath is
// set the key is loaded now and every token must carry a valid RS256 signature.
func NewJWTIdentityExtractor(cfg JWTConfig, logger *slog.Logger) (*JWTIdentityExtractor, error) {
	if cfg.GroupsClaim == "" {
		cfg.GroupsClaim = "groups"
	}
	if logger == nil {
		logger = slog.Default()
	}

	x := &JWTIdentityExtractor{cfg: cfg, logger: logger}
	if cfg.PublicKeyPath == "" {
		logger.Warn("JWT identity: no public key configured, tokens parsed without verification (trusted proxy mode)")
		return x, nil
	}

	keyData, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read JWT public key from %s: %w", cfg.PublicKeyPath, err)
	}
	x.publicKey, err = parseRSAPublicKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("load JWT public key from %s: %w", cfg.PublicKeyPath, err)
	}
	logger.Info("JWT identity: using RS256 verification", "keyPath", cfg.PublicKeyPath)
	return x, nil
}

func parseRSAPublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA (got %T)", parsed)
	}
	return key, nil
}

// Extract returns the identity carried by the request's token. A request
// without a token yields errNoToken.
func (x *JWTIdentityExtractor) Extract(r *http.Request) (Identity, error) {
	token := extractBearerToken(r)
	if token == "" {
		return Identity{}, errNoToken
	}
	claims, err := x.parseClaims(token)
	if err != nil {
		return Identity{}, err
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return Identity{}, errors.New("token has no subject")
	}
	id := Identity{
		User:   sub,
		Groups: stringsAt(claims, x.cfg.GroupsClaim),
	}
	id.Name, _ = claims["name"].(string)
	id.Email, _ = claims["email"].(string)
	return id, nil
}

// Middleware stores the token identity in the request context. Requests
// without a token run as anonymous; requests with a bad token get 401.
func (x *JWTIdentityExtractor) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := x.Extract(r)
			switch {
			case errors.Is(err, errNoToken):
				id = Identity{User: Anonymous}
			case err != nil:
				x.logger.Debug("JWT rejected", "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "unauthorized",
					"message": "invalid bearer token",
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (x *JWTIdentityExtractor) parseClaims(tokenString string) (jwt.MapClaims, error) {
	var parserOpts []jwt.ParserOption
	if x.cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(x.cfg.Issuer))
	}
	if x.cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(x.cfg.Audience))
	}

	var token *jwt.Token
	var err error
	if x.publicKey != nil {
		token, err = jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return x.publicKey, nil
		}, parserOpts...)
	} else {
		token, _, err = jwt.NewParser(parserOpts...).ParseUnverified(tokenString, jwt.MapClaims{})
	}
	if err != nil {
		return nil, fmt.Errorf("JWT parse error: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return claims, nil
}

// stringsAt resolves a dot-notation claim path to a list of strings. A
// single string claim becomes a one-element list.
func stringsAt(claims jwt.MapClaims, path string) []string {
	var current interface{} = map[string]interface{}(claims)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		if current, ok = m[part]; !ok {
			return nil
		}
	}

	switch v := current.(type) {
	case string:
		return splitGroups(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
