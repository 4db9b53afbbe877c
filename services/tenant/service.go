// Package tenant resolves the caller of a request into an AuthContext and
// enforces tenant isolation.
//
// Every denial is counted, logged and queued on the security audit writer.
// Queueing is best-effort: a full or stopped writer never changes the
// outcome of the request.
package tenant

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/governance-engine/identity"
	"github.com/upb/governance-engine/internal/observability"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/repositories"
	"github.com/upb/governance-engine/services"
	"github.com/upb/governance-engine/services/audit"
	"go.uber.org/zap"
)

// Denial reasons, used as the metric label and the audit reason
const (
	ReasonMissingToken   = "missing_token"
	ReasonInvalidToken   = "invalid_token"
	ReasonMissingSubject = "missing_subject"
	ReasonMissingTenant  = "missing_tenant"
	ReasonMFARequired    = "mfa_required"
	ReasonTenantMismatch = "tenant_mismatch"
	ReasonNotMember      = "not_member"
	ReasonWorkspace      = "workspace_forbidden"
)

// ServiceUserID identifies callers authenticated with the service credential
const ServiceUserID = "service"

// TokenValidator verifies bearer tokens
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*identity.Claims, error)
}

// Config holds the resolver settings
type Config struct {
	ServiceRoleKey string
	RequireMFA     bool
}

// Options are per-route resolution settings
type Options struct {
	// AllowServiceRole lets the service credential bypass token verification
	AllowServiceRole bool
}

// DefaultOptions allows the service credential
func DefaultOptions() Options {
	return Options{AllowServiceRole: true}
}

// Credentials is what a request presented
type Credentials struct {
	BearerToken string
	APIKey      string
	// ClaimedEnterprise comes from the X-Enterprise-Id header
	ClaimedEnterprise string

	Path      string
	IPAddress string
	RequestID string
}

// Resolver builds AuthContexts
type Resolver struct {
	validator TokenValidator
	tenants   repositories.TenantRepository
	audit     *audit.Writer
	metrics   *observability.Metrics
	logger    *zap.Logger
	config    Config
}

// NewResolver creates a new Resolver. auditWriter and metrics may be nil.
func NewResolver(
	validator TokenValidator,
	tenants repositories.TenantRepository,
	auditWriter *audit.Writer,
	metrics *observability.Metrics,
	logger *zap.Logger,
	config Config,
) *Resolver {
	return &Resolver{
		validator: validator,
		tenants:   tenants,
		audit:     auditWriter,
		metrics:   metrics,
		logger:    logger,
		config:    config,
	}
}

// denial describes a rejected request for the audit trail
type denial struct {
	reason     string
	userID     string
	enterprise *uuid.UUID
	claimed    *uuid.UUID
	workspace  *uuid.UUID
}

// Resolve authenticates the request. It returns an unauthorized, forbidden
// or mfa_required DomainError on denial and an internal one when the
// membership lookup fails.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials, opts Options) (*models.AuthContext, error) {
	if opts.AllowServiceRole && r.isServiceKey(creds) {
		auth := &models.AuthContext{
			UserID:        ServiceUserID,
			Roles:         []string{models.RoleServiceRole},
			Scopes:        []string{models.ScopeAll},
			IsServiceRole: true,
		}
		if id, err := uuid.Parse(strings.TrimSpace(creds.ClaimedEnterprise)); err == nil {
			auth.EnterpriseID = id
		}
		return auth, nil
	}

	if creds.BearerToken == "" {
		return nil, r.deny(creds, denial{reason: ReasonMissingToken}, services.ErrMissingToken)
	}

	claims, err := r.validator.ValidateToken(ctx, creds.BearerToken)
	if err != nil {
		r.logger.Debug("token verification failed",
			zap.String("request_id", creds.RequestID),
			zap.Error(err))
		msg := "invalid authentication token"
		if errors.Is(err, identity.ErrTokenExpired) {
			msg = "authentication token expired"
		}
		return nil, r.deny(creds, denial{reason: ReasonInvalidToken},
			services.NewDomainError(services.ErrorTypeUnauthorized, msg, err))
	}

	if err := claims.RequireSubject(); err != nil {
		return nil, r.deny(creds, denial{reason: ReasonMissingSubject}, services.ErrMissingUser)
	}
	d := denial{userID: claims.Subject}

	if err := claims.RequireTenant(); err != nil {
		d.reason = ReasonMissingTenant
		return nil, r.deny(creds, d, services.ErrMissingTenant)
	}
	enterpriseID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		d.reason = ReasonMissingTenant
		return nil, r.deny(creds, d, services.NewDomainError(services.ErrorTypeForbidden, "token enterprise is not a valid id", nil))
	}
	d.enterprise = &enterpriseID

	if r.config.RequireMFA && !claims.HasMFA() {
		d.reason = ReasonMFARequired
		return nil, r.deny(creds, d, services.ErrMFARequired)
	}

	if claimed := strings.TrimSpace(creds.ClaimedEnterprise); claimed != "" {
		claimedID, err := uuid.Parse(claimed)
		if err != nil || claimedID != enterpriseID {
			d.reason = ReasonTenantMismatch
			if err == nil {
				d.claimed = &claimedID
			}
			return nil, r.deny(creds, d, services.ErrTenantMismatch)
		}
	}

	member, err := r.tenants.IsMember(ctx, enterpriseID, claims.Subject)
	if err != nil {
		return nil, services.WrapInternal("failed to verify enterprise membership", err)
	}
	if !member {
		d.reason = ReasonNotMember
		return nil, r.deny(creds, d, services.ErrNotMember)
	}

	return &models.AuthContext{
		UserID:       claims.Subject,
		EnterpriseID: enterpriseID,
		Roles:        claims.Roles,
		Scopes:       []string{},
	}, nil
}

// AuthorizeEnterprise checks an enterprise id claimed in a request body
func (r *Resolver) AuthorizeEnterprise(auth *models.AuthContext, claimed uuid.UUID, creds Credentials) error {
	if auth == nil {
		return services.ErrUnauthorized
	}
	if auth.CanAccessEnterprise(claimed) {
		return nil
	}
	return r.deny(creds, denial{
		reason:     ReasonTenantMismatch,
		userID:     auth.UserID,
		enterprise: &auth.EnterpriseID,
		claimed:    &claimed,
	}, services.ErrTenantMismatch)
}

// AuthorizeWorkspace checks that a workspace belongs to the caller's enterprise.
// The service role may act on any workspace.
func (r *Resolver) AuthorizeWorkspace(ctx context.Context, auth *models.AuthContext, workspaceID uuid.UUID, creds Credentials) error {
	if auth == nil {
		return services.ErrUnauthorized
	}
	if auth.IsServiceRole {
		return nil
	}

	d := denial{
		reason:     ReasonWorkspace,
		userID:     auth.UserID,
		enterprise: &auth.EnterpriseID,
		workspace:  &workspaceID,
	}

	owner, err := r.tenants.WorkspaceEnterprise(ctx, workspaceID)
	if errors.Is(err, repositories.ErrNotFound) {
		return r.deny(creds, d, services.ErrWorkspaceForbidden)
	}
	if err != nil {
		return services.WrapInternal("failed to resolve workspace", err)
	}
	if owner != auth.EnterpriseID {
		return r.deny(creds, d, services.ErrWorkspaceForbidden)
	}
	return nil
}

func (r *Resolver) isServiceKey(creds Credentials) bool {
	key := r.config.ServiceRoleKey
	if key == "" {
		return false
	}
	return constantTimeEqual(creds.BearerToken, key) || constantTimeEqual(creds.APIKey, key)
}

func constantTimeEqual(a, b string) bool {
	return a != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (r *Resolver) deny(creds Credentials, d denial, err error) error {
	r.metrics.RecordAuthDenial(d.reason)

	r.logger.Warn("request denied",
		zap.String("reason", d.reason),
		zap.String("user_id", d.userID),
		zap.String("path", creds.Path),
		zap.String("request_id", creds.RequestID),
	)

	if r.audit != nil {
		entry := &models.SecurityAuditEntry{
			Reason:            d.reason,
			UserID:            d.userID,
			EnterpriseID:      d.enterprise,
			ClaimedEnterprise: d.claimed,
			WorkspaceID:       d.workspace,
			Path:              creds.Path,
			IPAddress:         creds.IPAddress,
			RequestID:         creds.RequestID,
		}
		if qerr := r.audit.Record(entry); qerr != nil {
			r.logger.Debug("security audit entry not queued",
				zap.String("reason", d.reason),
				zap.Error(qerr))
		}
	}
	return err
}
