package authz

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePublicKey(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "jwt.pub")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))
	return path
}

func TestJWTIdentityExtractor(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	sign := func(key *rsa.PrivateKey, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		require.NoError(t, err, "failed to sign token")
		return s
	}
	exp := time.Now().Add(time.Hour).Unix()
	keyPath := writePublicKey(t, privateKey)

	tests := []struct {
		name    string
		token   string
		config  JWTConfig
		want    Identity
		wantErr bool
	}{
		{
			name:   "subject, profile and groups",
			token:  sign(privateKey, jwt.MapClaims{"sub": "u-1", "name": "Dana", "email": "dana@example.com", "groups": []interface{}{"inspectors", "crew"}, "exp": exp}),
			config: JWTConfig{PublicKeyPath: keyPath},
			want:   Identity{User: "u-1", Name: "Dana", Email: "dana@example.com", Groups: []string{"inspectors", "crew"}},
		},
		{
			name: "nested groups claim",
			token: sign(privateKey, jwt.MapClaims{"sub": "u-2", "exp": exp,
				"realm_access": map[string]interface{}{"roles": []interface{}{"form-admins"}}}),
			config: JWTConfig{PublicKeyPath: keyPath, GroupsClaim: "realm_access.roles"},
			want:   Identity{User: "u-2", Groups: []string{"form-admins"}},
		},
		{
			name:   "comma separated string groups",
			token:  sign(privateKey, jwt.MapClaims{"sub": "u-3", "groups": "a, b", "exp": exp}),
			config: JWTConfig{PublicKeyPath: keyPath},
			want:   Identity{User: "u-3", Groups: []string{"a", "b"}},
		},
		{
			name:    "wrong signing key",
			token:   sign(otherKey, jwt.MapClaims{"sub": "u-1", "exp": exp}),
			config:  JWTConfig{PublicKeyPath: keyPath},
			wantErr: true,
		},
		{
			name:    "expired token",
			token:   sign(privateKey, jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(-time.Hour).Unix()}),
			config:  JWTConfig{PublicKeyPath: keyPath},
			wantErr: true,
		},
		{
			name:    "issuer mismatch",
			token:   sign(privateKey, jwt.MapClaims{"sub": "u-1", "iss": "someone-else", "exp": exp}),
			config:  JWTConfig{PublicKeyPath: keyPath, Issuer: "https://id.example.com"},
			wantErr: true,
		},
		{
			name:   "audience match",
			token:  sign(privateKey, jwt.MapClaims{"sub": "u-1", "aud": "forms", "exp": exp}),
			config: JWTConfig{PublicKeyPath: keyPath, Audience: "forms"},
			want:   Identity{User: "u-1"},
		},
		{
			name:    "missing subject",
			token:   sign(privateKey, jwt.MapClaims{"exp": exp}),
			config:  JWTConfig{PublicKeyPath: keyPath},
			wantErr: true,
		},
		{
			name:   "unverified mode accepts any signer",
			token:  sign(otherKey, jwt.MapClaims{"sub": "u-9", "exp": exp}),
			config: JWTConfig{},
			want:   Identity{User: "u-9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := NewJWTIdentityExtractor(tt.config, nil)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)

			got, err := x.Extract(req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.User, got.User)
			assert.Equal(t, tt.want.Name, got.Name)
			assert.Equal(t, tt.want.Email, got.Email)
			assert.ElementsMatch(t, tt.want.Groups, got.Groups)
		})
	}
}

func TestJWTIdentityExtractor_Middleware(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	x, err := NewJWTIdentityExtractor(JWTConfig{PublicKeyPath: writePublicKey(t, privateKey)}, nil)
	require.NoError(t, err)

	var seen Identity
	handler := x.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("no token runs as anonymous", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, Anonymous, seen.User)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "unauthorized")
	})

	t.Run("valid token sets identity", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"sub": "u-7", "exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString(privateKey)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "u-7", seen.User)
	})
}

func TestNewJWTIdentityExtractor_BadKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(path, []byte("not pem"), 0o600))

	_, err := NewJWTIdentityExtractor(JWTConfig{PublicKeyPath: path}, nil)
	assert.Error(t, err)

	_, err = NewJWTIdentityExtractor(JWTConfig{PublicKeyPath: filepath.Join(t.TempDir(), "missing.pem")}, nil)
	assert.Error(t, err)
}
