// Package identity verifies bearer tokens issued by the identity provider.
//
// Tokens are RS256/384/512 JWTs whose signing keys are published as a JWKS
// document. The key set and parsed public keys are cached; policy data is
// never cached here.
package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when the token issuer is invalid
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience is returned when the token audience is invalid
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrJWKSFetchFailed is returned when JWKS fetching fails
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")
)

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// Config holds configuration for Validator
type Config struct {
	JWKSURL     string
	Issuer      string // Skipped when empty
	Audience    string // Skipped when empty
	CacheTTL    time.Duration
	HTTPTimeout time.Duration
}

// Validator verifies provider-issued JWTs
type Validator struct {
	jwksURL    string
	issuer     string
	audience   string
	httpClient *http.Client

	jwksCache    *JWKS
	jwksCacheExp time.Time
	jwksCacheTTL time.Duration
	cacheMu      sync.RWMutex

	keyCache   map[string]*rsa.PublicKey
	keyCacheMu sync.RWMutex
}

// NewValidator creates a new JWKS-backed token validator
func NewValidator(config Config) *Validator {
	if config.CacheTTL == 0 {
		config.CacheTTL = 1 * time.Hour
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 10 * time.Second
	}

	return &Validator{
		jwksURL:      config.JWKSURL,
		issuer:       config.Issuer,
		audience:     config.Audience,
		jwksCacheTTL: config.CacheTTL,
		httpClient: &http.Client{
			Timeout: config.HTTPTimeout,
		},
		keyCache: make(map[string]*rsa.PublicKey),
	}
}

// ValidateToken verifies the signature, expiry, issuer and audience of a
// token and returns its claims
func (v *Validator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	raw := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, raw, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid header not found")
		}

		publicKey, err := v.getPublicKey(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("failed to get public key: %w", err)
		}
		return publicKey, nil
	}, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		if errors.Is(err, ErrJWKSFetchFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if v.issuer != "" {
		iss, _ := raw.GetIssuer()
		if iss != v.issuer {
			return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidIssuer, v.issuer, iss)
		}
	}

	if v.audience != "" {
		aud, _ := raw.GetAudience()
		if !containsAudience(aud, v.audience) {
			return nil, ErrInvalidAudience
		}
	}

	return NewClaims(raw), nil
}

// FetchJWKS fetches the key set, serving it from cache until the TTL elapses
func (v *Validator) FetchJWKS(ctx context.Context) (*JWKS, error) {
	v.cacheMu.RLock()
	if v.jwksCache != nil && time.Now().Before(v.jwksCacheExp) {
		defer v.cacheMu.RUnlock()
		return v.jwksCache, nil
	}
	v.cacheMu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrJWKSFetchFailed, err)
	}

	v.cacheMu.Lock()
	v.jwksCache = &jwks
	v.jwksCacheExp = time.Now().Add(v.jwksCacheTTL)
	v.cacheMu.Unlock()

	return &jwks, nil
}

// getPublicKey returns the key for kid. An unknown kid forces one refetch
// so rotated keys are picked up before the TTL runs out.
func (v *Validator) getPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.keyCacheMu.RLock()
	if key, exists := v.keyCache[kid]; exists {
		v.keyCacheMu.RUnlock()
		return key, nil
	}
	v.keyCacheMu.RUnlock()

	jwks, err := v.FetchJWKS(ctx)
	if err != nil {
		return nil, err
	}

	jwk := findKey(jwks, kid)
	if jwk == nil {
		v.expireJWKS()
		if jwks, err = v.FetchJWKS(ctx); err != nil {
			return nil, err
		}
		if jwk = findKey(jwks, kid); jwk == nil {
			return nil, fmt.Errorf("key with kid %s not found in JWKS", kid)
		}
	}

	publicKey, err := jwkToRSAPublicKey(jwk)
	if err != nil {
		return nil, fmt.Errorf("failed to convert JWK to RSA public key: %w", err)
	}

	v.keyCacheMu.Lock()
	v.keyCache[kid] = publicKey
	v.keyCacheMu.Unlock()

	return publicKey, nil
}

func findKey(jwks *JWKS, kid string) *JWK {
	for i := range jwks.Keys {
		if jwks.Keys[i].Kid == kid {
			return &jwks.Keys[i]
		}
	}
	return nil
}

func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	if jwk.Kty != "" && jwk.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", jwk.Kty)
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var e int
	for _, b := range eBytes {
		e = e*256 + int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

func containsAudience(audiences jwt.ClaimStrings, audience string) bool {
	for _, aud := range audiences {
		if aud == audience {
			return true
		}
	}
	return false
}

func (v *Validator) expireJWKS() {
	v.cacheMu.Lock()
	v.jwksCacheExp = time.Time{}
	v.cacheMu.Unlock()
}

// InvalidateCache drops the cached key set and parsed keys
func (v *Validator) InvalidateCache() {
	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()
	v.jwksCache = nil
	v.jwksCacheExp = time.Time{}

	v.keyCacheMu.Lock()
	defer v.keyCacheMu.Unlock()
	v.keyCache = make(map[string]*rsa.PublicKey)
}

// CacheStats describes the key cache
type CacheStats struct {
	JWKSCached      bool      `json:"jwks_cached"`
	JWKSExpiresAt   time.Time `json:"jwks_expires_at"`
	JWKSKeysCount   int       `json:"jwks_keys_count"`
	CachedKeysCount int       `json:"cached_keys_count"`
}

// GetCacheStats returns cache statistics
func (v *Validator) GetCacheStats() CacheStats {
	v.cacheMu.RLock()
	defer v.cacheMu.RUnlock()

	v.keyCacheMu.RLock()
	defer v.keyCacheMu.RUnlock()

	stats := CacheStats{
		JWKSCached:      v.jwksCache != nil,
		JWKSExpiresAt:   v.jwksCacheExp,
		CachedKeysCount: len(v.keyCache),
	}
	if v.jwksCache != nil {
		stats.JWKSKeysCount = len(v.jwksCache.Keys)
	}
	return stats
}
