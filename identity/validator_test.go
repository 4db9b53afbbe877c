package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://auth.example.test/auth/v1"
	testAudience = "authenticated"
)

func generateTestKeyPair(t *testing.T) *rsa.PrivateKey {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return privateKey
}

func toJWK(publicKey *rsa.PublicKey, kid string) JWK {
	return JWK{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
	}
}

// jwksServer serves whatever keys currently holds and counts requests
type jwksServer struct {
	*httptest.Server
	keys atomic.Value
	hits atomic.Int32
	fail atomic.Bool
}

func newJWKSServer(t *testing.T, keys ...JWK) *jwksServer {
	s := &jwksServer{}
	s.keys.Store(keys)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if s.fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(JWKS{Keys: s.keys.Load().([]JWK)})
	}))
	t.Cleanup(s.Close)
	return s
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func baseClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":           "user-123",
		"email":         "reviewer@example.com",
		"iss":           testIssuer,
		"aud":           testAudience,
		"iat":           now.Unix(),
		"exp":           now.Add(time.Hour).Unix(),
		"role":          "authenticated",
		"enterprise_id": "2d1f1c4e-6f7a-4b0e-9d55-7c1a2b3c4d5e",
	}
}

func newTestValidator(url string) *Validator {
	return NewValidator(Config{
		JWKSURL:  url,
		Issuer:   testIssuer,
		Audience: testAudience,
	})
}

func TestNewValidator_Defaults(t *testing.T) {
	v := NewValidator(Config{JWKSURL: "http://localhost/jwks"})

	assert.Equal(t, time.Hour, v.jwksCacheTTL)
	assert.Equal(t, 10*time.Second, v.httpClient.Timeout)
	assert.NotNil(t, v.keyCache)
}

func TestFetchJWKS_Cached(t *testing.T) {
	key := generateTestKeyPair(t)
	server := newJWKSServer(t, toJWK(&key.PublicKey, "kid-1"))
	v := newTestValidator(server.URL)

	first, err := v.FetchJWKS(context.Background())
	require.NoError(t, err)
	second, err := v.FetchJWKS(context.Background())
	require.NoError(t, err)

	assert.True(t, first == second)
	assert.Equal(t, int32(1), server.hits.Load())
}

func TestFetchJWKS_Failure(t *testing.T) {
	server := newJWKSServer(t)
	server.fail.Store(true)
	v := newTestValidator(server.URL)

	_, err := v.FetchJWKS(context.Background())
	assert.ErrorIs(t, err, ErrJWKSFetchFailed)
}

func TestValidateToken_Success(t *testing.T) {
	key := generateTestKeyPair(t)
	server := newJWKSServer(t, toJWK(&key.PublicKey, "kid-1"))
	v := newTestValidator(server.URL)

	claims := baseClaims()
	claims["app_metadata"] = map[string]interface{}{"roles": []interface{}{"compliance_officer"}}
	token := signToken(t, key, "kid-1", claims)

	parsed, err := v.ValidateToken(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, "user-123", parsed.Subject)
	assert.Equal(t, "reviewer@example.com", parsed.Email)
	assert.Equal(t, "2d1f1c4e-6f7a-4b0e-9d55-7c1a2b3c4d5e", parsed.TenantID)
	assert.Equal(t, []string{"authenticated", "compliance_officer"}, parsed.Roles)
	assert.False(t, parsed.ExpiresAt.IsZero())

	stats := v.GetCacheStats()
	assert.True(t, stats.JWKSCached)
	assert.Equal(t, 1, stats.CachedKeysCount)
}

func TestValidateToken_Failures(t *testing.T) {
	key := generateTestKeyPair(t)
	otherKey := generateTestKeyPair(t)
	server := newJWKSServer(t, toJWK(&key.PublicKey, "kid-1"))

	tests := []struct {
		name    string
		token   func() string
		wantErr error
	}{
		{
			name: "wrong signing key",
			token: func() string {
				return signToken(t, otherKey, "kid-1", baseClaims())
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "expired",
			token: func() string {
				c := baseClaims()
				c["exp"] = time.Now().Add(-time.Minute).Unix()
				return signToken(t, key, "kid-1", c)
			},
			wantErr: ErrTokenExpired,
		},
		{
			name: "wrong issuer",
			token: func() string {
				c := baseClaims()
				c["iss"] = "https://evil.example.test"
				return signToken(t, key, "kid-1", c)
			},
			wantErr: ErrInvalidIssuer,
		},
		{
			name: "wrong audience",
			token: func() string {
				c := baseClaims()
				c["aud"] = "service"
				return signToken(t, key, "kid-1", c)
			},
			wantErr: ErrInvalidAudience,
		},
		{
			name: "unknown kid",
			token: func() string {
				return signToken(t, key, "kid-unknown", baseClaims())
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "hmac token",
			token: func() string {
				tok := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims())
				tok.Header["kid"] = "kid-1"
				s, err := tok.SignedString([]byte("shared-secret"))
				require.NoError(t, err)
				return s
			},
			wantErr: ErrInvalidToken,
		},
		{
			name:    "garbage",
			token:   func() string { return "not-a-jwt" },
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestValidator(server.URL)
			_, err := v.ValidateToken(context.Background(), tt.token())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateToken_KeyRotation(t *testing.T) {
	oldKey := generateTestKeyPair(t)
	newKey := generateTestKeyPair(t)
	server := newJWKSServer(t, toJWK(&oldKey.PublicKey, "kid-old"))
	v := newTestValidator(server.URL)

	_, err := v.ValidateToken(context.Background(), signToken(t, oldKey, "kid-old", baseClaims()))
	require.NoError(t, err)

	server.keys.Store([]JWK{toJWK(&oldKey.PublicKey, "kid-old"), toJWK(&newKey.PublicKey, "kid-new")})

	_, err = v.ValidateToken(context.Background(), signToken(t, newKey, "kid-new", baseClaims()))
	require.NoError(t, err)
	assert.Equal(t, int32(2), server.hits.Load())
}

func TestValidateToken_JWKSUnavailable(t *testing.T) {
	key := generateTestKeyPair(t)
	server := newJWKSServer(t)
	server.fail.Store(true)
	v := newTestValidator(server.URL)

	_, err := v.ValidateToken(context.Background(), signToken(t, key, "kid-1", baseClaims()))
	assert.ErrorIs(t, err, ErrJWKSFetchFailed)
}

func TestInvalidateCache(t *testing.T) {
	key := generateTestKeyPair(t)
	server := newJWKSServer(t, toJWK(&key.PublicKey, "kid-1"))
	v := newTestValidator(server.URL)

	_, err := v.ValidateToken(context.Background(), signToken(t, key, "kid-1", baseClaims()))
	require.NoError(t, err)

	v.InvalidateCache()
	stats := v.GetCacheStats()
	assert.False(t, stats.JWKSCached)
	assert.Zero(t, stats.CachedKeysCount)
}
