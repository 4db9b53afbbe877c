package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/services"
	"github.com/upb/governance-engine/services/tenant"
	"github.com/upb/governance-engine/utils"
	"go.uber.org/zap"
)

// EnterpriseHeader carries the enterprise a caller claims to act for
const EnterpriseHeader = "X-Enterprise-Id"

// APIKeyHeader may carry the service credential instead of Authorization
const APIKeyHeader = "apikey"

// Resolver turns request credentials into an AuthContext
type Resolver interface {
	Resolve(ctx context.Context, creds tenant.Credentials, opts tenant.Options) (*models.AuthContext, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	resolver Resolver
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(resolver Resolver, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		resolver: resolver,
		logger:   logger,
	}
}

// RequireAuth resolves the caller with the default options (service
// credential allowed)
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return m.RequireAuthWith(tenant.DefaultOptions())(next)
}

// RequireAuthWith resolves the caller with per-route options
func (m *AuthMiddleware) RequireAuthWith(opts tenant.Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			creds := CredentialsFromRequest(r)

			auth, err := m.resolver.Resolve(ctx, creds, opts)
			if err != nil {
				WriteAuthError(w, err, m.logger)
				return
			}

			ctx = WithCredentials(ctx, creds)
			ctx = WithAuthContext(ctx, auth)

			m.logger.Debug("authentication successful",
				zap.String("request_id", creds.RequestID),
				zap.String("user_id", auth.UserID),
				zap.String("enterprise_id", auth.EnterpriseID.String()),
				zap.Strings("roles", auth.Roles),
				zap.Bool("service_role", auth.IsServiceRole))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CredentialsFromRequest collects what the request presented
func CredentialsFromRequest(r *http.Request) tenant.Credentials {
	return tenant.Credentials{
		BearerToken:       extractBearerToken(r),
		APIKey:            strings.TrimSpace(r.Header.Get(APIKeyHeader)),
		ClaimedEnterprise: strings.TrimSpace(r.Header.Get(EnterpriseHeader)),
		Path:              r.URL.Path,
		IPAddress:         clientIP(r),
		RequestID:         GetRequestIDFromContext(r.Context()),
	}
}

// WriteAuthError writes the response for a resolution failure. Only the
// domain message is returned; wrapped verification errors stay in the logs.
func WriteAuthError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var domainErr *services.DomainError
	msg := ""
	if errors.As(err, &domainErr) {
		msg = domainErr.Message
	}

	var writeErr error
	switch {
	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, msg)
	case services.IsMFARequiredError(err):
		writeErr = utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse{
			Error:   "mfa_required",
			Message: msg,
		})
	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, msg)
	default:
		logger.Error("authentication failed", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")
	}
	if writeErr != nil {
		logger.Error("failed to write auth error response", zap.Error(writeErr))
	}
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// clientIP returns the remote host. chi's RealIP middleware has already
// replaced RemoteAddr with X-Forwarded-For / X-Real-IP when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
