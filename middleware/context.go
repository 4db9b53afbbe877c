package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/services/tenant"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// AuthContextKey is the context key for the resolved caller
	AuthContextKey contextKey = "auth_context"

	// CredentialsKey is the context key for the presented credentials
	CredentialsKey contextKey = "credentials"
)

// GetRequestIDFromContext retrieves the request ID from context, falling back
// to the id assigned by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetAuthContext retrieves the resolved caller from context
func GetAuthContext(ctx context.Context) *models.AuthContext {
	if val := ctx.Value(AuthContextKey); val != nil {
		if auth, ok := val.(*models.AuthContext); ok {
			return auth
		}
	}
	return nil
}

// WithAuthContext adds the resolved caller to the context
func WithAuthContext(ctx context.Context, auth *models.AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, auth)
}

// GetCredentials retrieves the presented credentials from context. Handlers
// pass them on to body-level tenant checks so denials are audited with the
// request's path and address.
func GetCredentials(ctx context.Context) tenant.Credentials {
	if val := ctx.Value(CredentialsKey); val != nil {
		if creds, ok := val.(tenant.Credentials); ok {
			return creds
		}
	}
	return tenant.Credentials{}
}

// WithCredentials adds the presented credentials to the context
func WithCredentials(ctx context.Context, creds tenant.Credentials) context.Context {
	return context.WithValue(ctx, CredentialsKey, creds)
}
