package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/upb/governance-engine/middleware"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/services/tenant"
	"github.com/upb/governance-engine/services/validation"
	"github.com/upb/governance-engine/utils"
	"go.uber.org/zap"
)

// ValidationService decides whether a tool version may be used
type ValidationService interface {
	Validate(ctx context.Context, req validation.Request) (*validation.Response, error)
}

// TenantAuthorizer checks body-level tenant claims against the caller
type TenantAuthorizer interface {
	AuthorizeEnterprise(auth *models.AuthContext, claimed uuid.UUID, creds tenant.Credentials) error
	AuthorizeWorkspace(ctx context.Context, auth *models.AuthContext, workspaceID uuid.UUID, creds tenant.Credentials) error
}

// ValidationHandler handles usage-validation HTTP requests
type ValidationHandler struct {
	service    ValidationService
	authorizer TenantAuthorizer
	logger     *zap.Logger
}

// NewValidationHandler creates a new ValidationHandler
func NewValidationHandler(service ValidationService, authorizer TenantAuthorizer, logger *zap.Logger) *ValidationHandler {
	return &ValidationHandler{
		service:    service,
		authorizer: authorizer,
		logger:     logger,
	}
}

// HandleValidate handles POST /api/v1/usage/validate
func (h *ValidationHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	defer recoverJSON(w, h.logger, validation.SystemErrorResponse())

	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req validation.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	auth := middleware.GetAuthContext(ctx)
	creds := middleware.GetCredentials(ctx)
	if req.EnterpriseID != nil {
		if err := h.authorizer.AuthorizeEnterprise(auth, *req.EnterpriseID, creds); err != nil {
			HandleServiceError(w, err, h.logger)
			return
		}
	}
	if err := h.authorizer.AuthorizeWorkspace(ctx, auth, req.WorkspaceID, creds); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	resp, err := h.service.Validate(ctx, req)
	if err != nil {
		h.logger.Error("usage validation failed",
			zap.String("request_id", requestID),
			zap.String("tool_version_id", req.ToolVersionID.String()),
			zap.Error(err))
		_ = utils.WriteJSON(w, http.StatusInternalServerError, validation.SystemErrorResponse())
		return
	}

	if err := utils.WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("failed to write validation response", zap.Error(err))
	}
}
