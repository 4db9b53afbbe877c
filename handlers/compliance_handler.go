package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/upb/governance-engine/middleware"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/services"
	"github.com/upb/governance-engine/services/compliance"
	"github.com/upb/governance-engine/utils"
	"go.uber.org/zap"
)

// ComplianceService defines the compliance operations the handler needs
type ComplianceService interface {
	CheckActivity(ctx context.Context, auth *models.AuthContext, req compliance.CheckRequest) (*compliance.CheckResult, error)
	CheckBatch(ctx context.Context, auth *models.AuthContext, req compliance.BatchRequest) ([]compliance.BatchItem, error)
}

// CheckResponse is the body of a successful compliance check
type CheckResponse struct {
	Success           bool                    `json:"success"`
	ActivityID        uuid.UUID               `json:"activity_id"`
	OrganizationID    uuid.UUID               `json:"organization_id"`
	PoliciesChecked   int                     `json:"policies_checked"`
	ViolationsFound   int                     `json:"violations_found"`
	AlertsGenerated   int                     `json:"alerts_generated"`
	ComplianceResults models.ComplianceResult `json:"compliance_results"`
	Alerts            []models.Alert          `json:"alerts"`
	Timestamp         string                  `json:"timestamp"`
}

// SkippedResponse is returned when the activity has no organization context
type SkippedResponse struct {
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	ActivityID uuid.UUID `json:"activity_id"`
}

// FailureResponse is the body of a failed compliance request
type FailureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// BatchItemResponse is one entry of a batch response
type BatchItemResponse struct {
	ActivityID uuid.UUID   `json:"activity_id"`
	Success    bool        `json:"success"`
	Error      string      `json:"error,omitempty"`
	Result     interface{} `json:"result,omitempty"`
}

// BatchResponse is the body of a batch check
type BatchResponse struct {
	Success   bool                `json:"success"`
	Total     int                 `json:"total"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Results   []BatchItemResponse `json:"results"`
}

// ComplianceHandler handles compliance-check HTTP requests
type ComplianceHandler struct {
	service ComplianceService
	logger  *zap.Logger
}

// NewComplianceHandler creates a new ComplianceHandler
func NewComplianceHandler(service ComplianceService, logger *zap.Logger) *ComplianceHandler {
	return &ComplianceHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCheck handles POST /api/v1/compliance/check
func (h *ComplianceHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	defer recoverJSON(w, h.logger, FailureResponse{Error: "internal server error"})

	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req compliance.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, "Invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		h.fail(w, err.Error())
		return
	}
	if req.TriggerType == "" {
		req.TriggerType = compliance.TriggerInsert
	}

	h.logger.Debug("compliance check requested",
		zap.String("request_id", requestID),
		zap.String("activity_id", req.ActivityID.String()),
		zap.String("trigger_type", req.TriggerType))

	ctx = compliance.WithRequestID(ctx, requestID)
	result, err := h.service.CheckActivity(ctx, middleware.GetAuthContext(ctx), req)
	if err != nil {
		h.serviceFailure(w, err)
		return
	}

	if result.Skipped() {
		_ = utils.WriteJSON(w, http.StatusOK, SkippedResponse{
			Success:    true,
			Message:    compliance.NoOrganizationMessage,
			ActivityID: result.ActivityID,
		})
		return
	}

	if err := utils.WriteJSON(w, http.StatusOK, toCheckResponse(result)); err != nil {
		h.logger.Error("failed to write compliance response", zap.Error(err))
	}
}

// HandleBatch handles POST /api/v1/compliance/check/batch
func (h *ComplianceHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	defer recoverJSON(w, h.logger, FailureResponse{Error: "internal server error"})

	ctx := r.Context()

	var req compliance.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, "Invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		h.fail(w, err.Error())
		return
	}
	if req.TriggerType == "" {
		req.TriggerType = compliance.TriggerInsert
	}

	ctx = compliance.WithRequestID(ctx, middleware.GetRequestIDFromContext(ctx))
	items, err := h.service.CheckBatch(ctx, middleware.GetAuthContext(ctx), req)
	if err != nil {
		h.serviceFailure(w, err)
		return
	}

	resp := BatchResponse{
		Success: true,
		Total:   len(items),
		Results: make([]BatchItemResponse, 0, len(items)),
	}
	for _, item := range items {
		entry := BatchItemResponse{ActivityID: item.ActivityID}
		switch {
		case item.Err != nil:
			entry.Error = publicMessage(item.Err)
			resp.Failed++
		case item.Result.Skipped():
			entry.Success = true
			entry.Result = SkippedResponse{Success: true, Message: compliance.NoOrganizationMessage, ActivityID: item.ActivityID}
			resp.Succeeded++
		default:
			entry.Success = true
			entry.Result = toCheckResponse(item.Result)
			resp.Succeeded++
		}
		resp.Results = append(resp.Results, entry)
	}

	if err := utils.WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("failed to write batch response", zap.Error(err))
	}
}

// serviceFailure keeps auth statuses and reports every other failure as 400
func (h *ComplianceHandler) serviceFailure(w http.ResponseWriter, err error) {
	if isAuthError(err) {
		HandleServiceError(w, err, h.logger)
		return
	}
	if services.IsInternalError(err) {
		h.logger.Error("compliance check failed", zap.Error(err))
	}
	h.fail(w, publicMessage(err))
}

func (h *ComplianceHandler) fail(w http.ResponseWriter, message string) {
	_ = utils.WriteJSON(w, http.StatusBadRequest, FailureResponse{Success: false, Error: message})
}

func toCheckResponse(result *compliance.CheckResult) CheckResponse {
	alerts := result.Alerts
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return CheckResponse{
		Success:           true,
		ActivityID:        result.ActivityID,
		OrganizationID:    *result.OrganizationID,
		PoliciesChecked:   result.PoliciesChecked,
		ViolationsFound:   len(result.Result.Violations),
		AlertsGenerated:   len(alerts),
		ComplianceResults: result.Result,
		Alerts:            alerts,
		Timestamp:         result.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}
