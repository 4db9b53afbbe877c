package handlers

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/upb/governance-engine/middleware"
	"github.com/upb/governance-engine/services"
	"github.com/upb/governance-engine/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	msg := publicMessage(err)

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, msg)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, msg, details)

	case services.IsUnauthorizedError(err), services.IsForbiddenError(err), services.IsMFARequiredError(err):
		middleware.WriteAuthError(w, err, logger)
		return

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// isAuthError reports whether err must keep its 401/403 status
func isAuthError(err error) bool {
	return services.IsUnauthorizedError(err) || services.IsForbiddenError(err) || services.IsMFARequiredError(err)
}

// publicMessage is the part of an error that may be shown to callers
func publicMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return "An unexpected error occurred"
}

// recoverJSON turns a panic in a handler into a JSON 500. chi's Recoverer
// still guards everything outside the handler.
func recoverJSON(w http.ResponseWriter, logger *zap.Logger, body interface{}) {
	if rec := recover(); rec != nil {
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
		logger.Error("handler panic",
			zap.Any("panic", rec),
			zap.ByteString("stack", debug.Stack()))
		_ = utils.WriteJSON(w, http.StatusInternalServerError, body)
	}
}
