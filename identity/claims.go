package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")
)

// TenantClaimKeys are the claim names that may carry the enterprise id, in
// priority order. They are looked up at the top level, then under
// app_metadata, then under user_metadata.
var TenantClaimKeys = []string{"enterprise_id", "enterpriseId", "org_id", "organization_id"}

var mfaMethods = []string{"mfa", "otp", "totp"}

// Claims is the verified content of a token
type Claims struct {
	Subject   string
	Email     string
	TenantID  string // Empty when no tenant claim is present
	Roles     []string
	AMR       []string
	AAL       string
	IssuedAt  time.Time
	ExpiresAt time.Time

	Raw jwt.MapClaims
}

// NewClaims extracts the claims the service reads from a raw claim set
func NewClaims(raw jwt.MapClaims) *Claims {
	c := &Claims{
		Subject:  stringClaim(raw, "sub"),
		Email:    stringClaim(raw, "email"),
		TenantID: tenantFrom(raw),
		Roles:    rolesFrom(raw),
		AMR:      amrFrom(raw),
		AAL:      stringClaim(raw, "aal"),
		Raw:      raw,
	}
	if iat, err := raw.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := raw.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c
}

// RequireSubject returns ErrMissingClaim when the token has no subject
func (c *Claims) RequireSubject() error {
	if c == nil || c.Subject == "" {
		return fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return nil
}

// RequireTenant returns ErrMissingClaim when no tenant claim is present
func (c *Claims) RequireTenant() error {
	if c == nil || c.TenantID == "" {
		return fmt.Errorf("%w: %s", ErrMissingClaim, strings.Join(TenantClaimKeys, "|"))
	}
	return nil
}

// HasMFA reports whether the session was established with a second factor
func (c *Claims) HasMFA() bool {
	if c == nil {
		return false
	}
	if c.AAL == "aal2" {
		return true
	}
	for _, method := range c.AMR {
		for _, m := range mfaMethods {
			if strings.EqualFold(method, m) {
				return true
			}
		}
	}
	return false
}

func tenantFrom(raw jwt.MapClaims) string {
	if id := firstString(raw, TenantClaimKeys); id != "" {
		return id
	}
	for _, nested := range []string{"app_metadata", "user_metadata"} {
		if m, ok := raw[nested].(map[string]interface{}); ok {
			if id := firstString(m, TenantClaimKeys); id != "" {
				return id
			}
		}
	}
	return ""
}

func rolesFrom(raw jwt.MapClaims) []string {
	var roles []string
	if role := stringClaim(raw, "role"); role != "" {
		roles = append(roles, role)
	}
	if m, ok := raw["app_metadata"].(map[string]interface{}); ok {
		for _, r := range stringSlice(m["roles"]) {
			if !containsString(roles, r) {
				roles = append(roles, r)
			}
		}
	}
	return roles
}

// amrFrom accepts both the RFC 8176 string form and the object form
// ({"method": "otp", "timestamp": ...}).
func amrFrom(raw jwt.MapClaims) []string {
	list, ok := raw["amr"].([]interface{})
	if !ok {
		return nil
	}
	var methods []string
	for _, entry := range list {
		switch v := entry.(type) {
		case string:
			methods = append(methods, v)
		case map[string]interface{}:
			if m, ok := v["method"].(string); ok {
				methods = append(methods, m)
			}
		}
	}
	return methods
}

func firstString(m map[string]interface{}, keys []string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func stringClaim(raw jwt.MapClaims, key string) string {
	s, _ := raw[key].(string)
	return s
}

func stringSlice(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
