// Package validation decides whether a tool version may be used in a workspace.
//
// Each active runtime binding is checked against its policy instance. The
// effective policy snapshot (EPS) is preferred over the instance's raw POM;
// the raw POM is only used when fallback is enabled, and every fallback is
// counted and audited.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/governance-engine/internal/observability"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/repositories"
	"github.com/upb/governance-engine/services/effects"
	"go.uber.org/zap"
)

// Messages reported for bindings that could not be evaluated
const (
	NoPolicyMessage     = "No policy bindings active for this tool. Consider creating a policy instance."
	NoPolicyDenyMessage = "No policy bindings active for this tool. Usage is denied until a policy instance is bound."
)

// Request asks whether a tool version may be used in a workspace
type Request struct {
	ToolVersionID uuid.UUID           `json:"tool_version_id" validate:"required"`
	WorkspaceID   uuid.UUID           `json:"workspace_id" validate:"required"`
	UsageContext  models.UsageContext `json:"usage_context"`
	// EnterpriseID optionally restates the caller's tenant; it must match the token
	EnterpriseID  *uuid.UUID          `json:"enterprise_id,omitempty"`
}

// Response is the validation decision. Allowed is true iff Violations is empty.
type Response struct {
	Allowed           bool                     `json:"allowed"`
	Violations        []models.PolicyViolation `json:"violations"`
	Warnings          []models.PolicyViolation `json:"warnings"`
	BindingIDsChecked []string                 `json:"binding_ids_checked"`
	Error             string                   `json:"error,omitempty"`

	Report effects.Report `json:"-"`
}

// SystemErrorMessage is the only error text a caller sees when validation fails
const SystemErrorMessage = "validation could not be completed"

// SystemErrorResponse is returned when validation could not run at all.
// The cause stays in the server log.
func SystemErrorResponse() *Response {
	return &Response{
		Allowed: false,
		Error:   SystemErrorMessage,
		Violations: []models.PolicyViolation{{
			RuleID:   models.RuleSystemError,
			Severity: models.UsageSeverityError,
			Message:  "System error during validation",
		}},
		Warnings:          []models.PolicyViolation{},
		BindingIDsChecked: []string{},
	}
}

// Config controls the fail-open and fail-closed postures
type Config struct {
	// EPSFallbackEnabled allows the raw POM when an approved instance has no snapshot
	EPSFallbackEnabled bool
	// DefaultDeny blocks usage when no binding applies
	DefaultDeny bool
}

// Service validates tool usage
type Service struct {
	repos   *repositories.Repositories
	writer  *effects.Writer
	metrics *observability.Metrics
	logger  *zap.Logger
	config  Config
	now     func() time.Time
}

// NewService creates a new validation Service. metrics may be nil.
func NewService(repos *repositories.Repositories, writer *effects.Writer, metrics *observability.Metrics, logger *zap.Logger, config Config) *Service {
	return &Service{
		repos:   repos,
		writer:  writer,
		metrics: metrics,
		logger:  logger,
		config:  config,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Validate checks every active binding of the tool version in the workspace.
// An error means the decision could not be computed; callers should answer
// with SystemErrorResponse.
func (s *Service) Validate(ctx context.Context, req Request) (*Response, error) {
	startedAt := s.now()
	defer s.metrics.ObserveDuration("usage_validation", time.Now())

	logger := s.logger.With(
		zap.String("tool_version_id", req.ToolVersionID.String()),
		zap.String("workspace_id", req.WorkspaceID.String()),
	)

	bindings, err := s.repos.Bindings.GetActiveBindings(ctx, req.ToolVersionID, req.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load runtime bindings: %w", err)
	}

	resp := &Response{
		Violations:        []models.PolicyViolation{},
		Warnings:          []models.PolicyViolation{},
		BindingIDsChecked: []string{},
	}

	if len(bindings) == 0 {
		s.noPolicy(resp)
		s.metrics.RecordValidation(resp.Allowed)
		logger.Info("no active policy bindings", zap.Bool("allowed", resp.Allowed))
		return resp, nil
	}

	var (
		list     []effects.Effect
		violated []uuid.UUID
	)
	for _, binding := range bindings {
		resp.BindingIDsChecked = append(resp.BindingIDsChecked, binding.ID.String())

		outcome, err := s.checkBinding(ctx, req, binding, startedAt)
		if err != nil {
			return nil, err
		}
		resp.Violations = append(resp.Violations, outcome.violations...)
		resp.Warnings = append(resp.Warnings, outcome.warnings...)
		list = append(list, outcome.effects...)
		if len(outcome.violations) > 0 {
			violated = append(violated, binding.ID)
		}
	}

	list = append(list, effects.TouchBindings{BindingIDs: violated, At: s.now()})
	resp.Allowed = len(resp.Violations) == 0
	resp.Report = s.writer.Apply(ctx, list)
	s.metrics.RecordValidation(resp.Allowed)

	logger.Info("usage validated",
		zap.Bool("allowed", resp.Allowed),
		zap.Int("bindings", len(bindings)),
		zap.Int("violations", len(resp.Violations)),
		zap.Int("warnings", len(resp.Warnings)),
		zap.Duration("elapsed", s.now().Sub(startedAt)),
	)
	return resp, nil
}

func (s *Service) noPolicy(resp *Response) {
	if s.config.DefaultDeny {
		resp.Allowed = false
		resp.Violations = append(resp.Violations, models.PolicyViolation{
			RuleID:   models.RuleNoPolicy,
			Severity: models.UsageSeverityError,
			Message:  NoPolicyDenyMessage,
		})
		return
	}
	resp.Allowed = true
	resp.Warnings = append(resp.Warnings, models.PolicyViolation{
		RuleID:   models.RuleNoPolicy,
		Severity: models.UsageSeverityWarning,
		Message:  NoPolicyMessage,
	})
}

// bindingOutcome is what one binding contributed
type bindingOutcome struct {
	violations []models.PolicyViolation
	warnings   []models.PolicyViolation
	effects    []effects.Effect
}

// resolved is the POM a binding is enforced against
type resolved struct {
	pom     *models.POM
	epsID   *uuid.UUID
	epsHash *string
}

func (s *Service) checkBinding(ctx context.Context, req Request, binding *models.RuntimeBinding, startedAt time.Time) (bindingOutcome, error) {
	var out bindingOutcome
	instanceID := binding.PolicyInstanceID.String()
	bindingID := binding.ID.String()
	instance := binding.Instance

	if !instance.IsApproved() {
		out.warnings = append(out.warnings, models.PolicyViolation{
			RuleID:           models.RulePolicyNotApproved,
			Severity:         models.UsageSeverityWarning,
			Message:          fmt.Sprintf("Policy instance %s is not approved", instanceID),
			PolicyInstanceID: instanceID,
			BindingID:        bindingID,
		})
		return out, nil
	}

	res, fallbackEvent, err := s.resolvePOM(ctx, req, binding)
	if err != nil {
		return out, err
	}
	if fallbackEvent != nil {
		out.effects = append(out.effects, effects.InsertAuditEvent{Event: fallbackEvent})
	}

	if res == nil {
		v := models.PolicyViolation{
			RuleID:           models.RuleEPSMissing,
			Severity:         models.UsageSeverityError,
			Message:          fmt.Sprintf("No Effective Policy Snapshot found for policy instance %s. Policy must be activated to generate EPS.", instanceID),
			PolicyInstanceID: instanceID,
			BindingID:        bindingID,
		}
		out.violations = append(out.violations, v)
		out.effects = append(out.effects, effects.InsertValidationEvent{
			Event: s.event(req, binding, nil, models.DecisionBlocked, out.violations, nil, startedAt),
		})
		return out, nil
	}

	out.violations, out.warnings = CheckPOM(req.UsageContext, instance, res.pom, instanceID, bindingID)

	decision := models.DecisionAllowed
	if len(out.violations) > 0 {
		decision = models.DecisionBlocked
	}
	out.effects = append(out.effects, effects.InsertValidationEvent{
		Event: s.event(req, binding, res, decision, out.violations, out.warnings, startedAt),
	})
	return out, nil
}

// resolvePOM prefers the instance's current EPS. When it is absent it falls
// back to the raw POM if enabled, returning the audit event to record. A nil
// result with no error means the binding has no enforceable policy.
func (s *Service) resolvePOM(ctx context.Context, req Request, binding *models.RuntimeBinding) (*resolved, *models.AuditEvent, error) {
	instance := binding.Instance

	if instance.CurrentEPSID != nil {
		eps, err := s.repos.Snapshots.GetByID(ctx, *instance.CurrentEPSID)
		switch {
		case err == nil:
			pom, err := models.ParsePOM(eps.EffectivePOM)
			if err != nil {
				return nil, nil, fmt.Errorf("snapshot %s: %w", eps.ID, err)
			}
			id, hash := eps.ID, eps.ContentHash
			s.logger.Debug("using effective policy snapshot",
				zap.String("eps_id", id.String()),
				zap.String("content_hash", shortHash(hash)),
				zap.String("policy_instance_id", instance.ID.String()),
			)
			return &resolved{pom: pom, epsID: &id, epsHash: &hash}, nil, nil
		case !errors.Is(err, repositories.ErrNotFound):
			return nil, nil, fmt.Errorf("failed to load effective policy snapshot: %w", err)
		}
	}

	if !s.config.EPSFallbackEnabled {
		return nil, nil, nil
	}

	pom, err := models.ParsePOM(instance.POM)
	if err != nil {
		return nil, nil, fmt.Errorf("policy instance %s: %w", instance.ID, err)
	}

	s.logger.Warn("effective policy snapshot missing, using raw POM",
		zap.String("policy_instance_id", binding.PolicyInstanceID.String()),
		zap.String("binding_id", binding.ID.String()),
	)
	s.metrics.RecordEPSFallback()

	hash := models.FallbackContentHash
	event := &models.AuditEvent{
		ID:           uuid.New(),
		EventType:    models.AuditEventEPSMissingFallback,
		EntityType:   "policy_instance",
		EntityID:     binding.PolicyInstanceID,
		EnterpriseID: instance.EnterpriseID,
		WorkspaceID:  instance.WorkspaceID,
		Details: models.JSONMap{
			"workspace_id":    uuidString(instance.WorkspaceID),
			"tool_version_id": req.ToolVersionID.String(),
			"binding_id":      binding.ID.String(),
		},
		CreatedAt: s.now(),
	}
	return &resolved{pom: pom, epsHash: &hash}, event, nil
}

func (s *Service) event(
	req Request,
	binding *models.RuntimeBinding,
	res *resolved,
	decision models.Decision,
	violations, warnings []models.PolicyViolation,
	startedAt time.Time,
) *models.ValidationEvent {
	now := s.now()
	event := &models.ValidationEvent{
		ID:               uuid.New(),
		EnterpriseID:     binding.Instance.EnterpriseID,
		ToolVersionID:    req.ToolVersionID,
		WorkspaceID:      req.WorkspaceID,
		PolicyInstanceID: binding.PolicyInstanceID,
		ScopePath:        binding.ScopePath,
		Decision:         decision,
		Violations:       violations,
		Warnings:         warnings,
		UsageContext:     req.UsageContext,
		ResponseTimeMs:   now.Sub(startedAt).Milliseconds(),
		CreatedAt:        now,
	}
	if res != nil {
		event.EPSID = res.epsID
		event.EPSHash = res.epsHash
	}
	return event
}

// CheckPOM applies the jurisdiction, data classification, HITL and
// data-protection checks of one policy instance to a usage context.
func CheckPOM(usage models.UsageContext, instance *models.PolicyInstance, pom *models.POM, instanceID, bindingID string) (violations, warnings []models.PolicyViolation) {
	finding := func(ruleID string, severity models.UsageSeverity, message string) models.PolicyViolation {
		return models.PolicyViolation{
			RuleID:           ruleID,
			Severity:         severity,
			Message:          message,
			PolicyInstanceID: instanceID,
			BindingID:        bindingID,
		}
	}

	if len(usage.Jurisdiction) > 0 && instance.Jurisdiction != nil && !containsAny(instance.Jurisdiction, usage.Jurisdiction) {
		violations = append(violations, finding(models.RuleJurisdictionMismatch, models.UsageSeverityError,
			fmt.Sprintf("Tool usage jurisdiction [%s] not allowed by policy. Allowed: [%s]",
				strings.Join(usage.Jurisdiction, ", "), strings.Join(instance.Jurisdiction, ", "))))
	}

	allowed := pom.DataControls.DataClasses
	if allowed != nil && len(usage.DataClassification) > 0 {
		var unauthorized []string
		for _, dc := range usage.DataClassification {
			if !contains(allowed, dc) {
				unauthorized = append(unauthorized, dc)
			}
		}
		if len(unauthorized) > 0 {
			violations = append(violations, finding(models.RuleDataClassificationBlocked, models.UsageSeverityError,
				fmt.Sprintf("Unauthorized data classifications detected: %s. Policy allows: %s",
					strings.Join(unauthorized, ", "), strings.Join(allowed, ", "))))
		}
	}

	hitl := pom.Controls.HITL
	if hitl.Required && usage.UserRole != "" && len(hitl.Reviewers) > 0 && !contains(hitl.Reviewers, usage.UserRole) {
		violations = append(violations, finding(models.RuleHITLReviewerRequired, models.UsageSeverityError,
			fmt.Sprintf("Human-in-the-loop review required. Your role [%s] is not authorized. Allowed reviewers: %s",
				usage.UserRole, strings.Join(hitl.Reviewers, ", "))))
	}

	if usage.DataClassification != nil {
		for _, rule := range pom.Rules {
			if rule.Enforcement == "mandatory" && rule.Category == "data-protection" {
				warnings = append(warnings, finding(rule.ID, models.UsageSeverityWarning,
					fmt.Sprintf("Data protection rule active: %s", rule.Description)))
			}
		}
	}

	return violations, warnings
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsAny(list, candidates []string) bool {
	for _, c := range candidates {
		if contains(list, c) {
			return true
		}
	}
	return false
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

func uuidString(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}
