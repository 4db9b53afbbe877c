package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageSeverity grades a usage-validation finding
type UsageSeverity string

const (
	UsageSeverityError   UsageSeverity = "error"
	UsageSeverityWarning UsageSeverity = "warning"
)

// Rule ids reported by usage validation
const (
	RuleNoPolicy                  = "no-policy"
	RulePolicyNotApproved         = "policy-not-approved"
	RuleEPSMissing                = "eps-missing"
	RuleJurisdictionMismatch      = "jurisdiction-mismatch"
	RuleDataClassificationBlocked = "data-classification-violation"
	RuleHITLReviewerRequired      = "hitl-reviewer-required"
	RuleSystemError               = "system-error"
)

// PolicyViolation is a usage-validation finding. Warnings use the same shape.
type PolicyViolation struct {
	RuleID           string        `json:"rule_id"`
	Severity         UsageSeverity `json:"severity"`
	Message          string        `json:"message"`
	PolicyInstanceID string        `json:"policy_instance_id"`
	BindingID        string        `json:"binding_id"`
}

// UsageContext describes how a tool is about to be used
type UsageContext struct {
	UseCase            string   `json:"use_case,omitempty"`
	DataClassification []string `json:"data_classification,omitempty"`
	Jurisdiction       []string `json:"jurisdiction,omitempty"`
	UserRole           string   `json:"user_role,omitempty"`
}

// Decision is the per-binding outcome of usage validation
type Decision string

const (
	DecisionAllowed Decision = "allowed"
	DecisionBlocked Decision = "blocked"
)

// ValidationEvent is the append-only record of one binding's validation decision
type ValidationEvent struct {
	ID               uuid.UUID         `json:"id" db:"id"`
	EnterpriseID     uuid.UUID         `json:"enterprise_id" db:"enterprise_id"`
	ToolVersionID    uuid.UUID         `json:"tool_version_id" db:"tool_version_id"`
	WorkspaceID      uuid.UUID         `json:"workspace_id" db:"workspace_id"`
	PolicyInstanceID uuid.UUID         `json:"policy_instance_id" db:"policy_instance_id"`
	EPSID            *uuid.UUID        `json:"eps_id" db:"eps_id"`
	EPSHash          *string           `json:"eps_hash" db:"eps_hash"`
	ScopePath        string            `json:"scope_path" db:"scope_path"`
	Decision         Decision          `json:"decision" db:"decision"`
	Violations       []PolicyViolation `json:"violations" db:"violations"`
	Warnings         []PolicyViolation `json:"warnings" db:"warnings"`
	UsageContext     UsageContext      `json:"usage_context" db:"usage_context"`
	ResponseTimeMs   int64             `json:"response_time_ms" db:"response_time_ms"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the ValidationEvent model
func (ValidationEvent) TableName() string {
	return "policy_validation_events"
}
