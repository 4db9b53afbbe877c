package models

import "github.com/google/uuid"

// RoleServiceRole is granted to callers presenting the service credential
const RoleServiceRole = "service_role"

// ScopeAll is the wildcard scope of the service credential
const ScopeAll = "*"

// AuthContext is the resolved identity of a caller
type AuthContext struct {
	UserID        string    `json:"user_id"`
	EnterpriseID  uuid.UUID `json:"enterprise_id"`
	Roles         []string  `json:"roles"`
	Scopes        []string  `json:"scopes"`
	IsServiceRole bool      `json:"is_service_role"`
}

// HasRole reports whether the caller holds role
func (a *AuthContext) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanAccessEnterprise reports whether the caller may act on enterprise.
// The service role may act on any enterprise.
func (a *AuthContext) CanAccessEnterprise(enterprise uuid.UUID) bool {
	if a == nil {
		return false
	}
	return a.IsServiceRole || a.EnterpriseID == enterprise
}
