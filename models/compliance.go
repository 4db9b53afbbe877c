package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity grades a violation or alert
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (1) to critical (4). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// MaxSeverity returns the more severe of a and b
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// RiskLevel is the overall classification of one evaluated activity
type RiskLevel = Severity

// CheckStatus is the outcome of one rule evaluation
type CheckStatus string

const (
	CheckStatusPassed  CheckStatus = "passed"
	CheckStatusFailed  CheckStatus = "failed"
	CheckStatusWarning CheckStatus = "warning"
	CheckStatusPending CheckStatus = "pending"
)

// CheckType records what triggered a compliance check
type CheckType string

const (
	CheckTypeAutomated CheckType = "automated"
	CheckTypeManual    CheckType = "manual"
	CheckTypeScheduled CheckType = "scheduled"
)

// ViolationStatus tracks the human resolution workflow of a violation
type ViolationStatus string

const (
	ViolationStatusOpen          ViolationStatus = "open"
	ViolationStatusInvestigating ViolationStatus = "investigating"
	ViolationStatusResolved      ViolationStatus = "resolved"
	ViolationStatusClosed        ViolationStatus = "closed"
)

// ViolationTypePolicyBreach is the type recorded for rule violations
const ViolationTypePolicyBreach = "policy_breach"

// ComplianceCheck is one (activity, rule) evaluation
type ComplianceCheck struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	OrganizationID  uuid.UUID   `json:"organization_id" db:"organization_id"`
	PolicyID        uuid.UUID   `json:"policy_id" db:"policy_id"`
	RuleID          uuid.UUID   `json:"rule_id" db:"rule_id"`
	ActivityID      uuid.UUID   `json:"activity_id" db:"activity_id"`
	CheckType       CheckType   `json:"check_type" db:"check_type"`
	CheckDate       time.Time   `json:"check_date" db:"check_date"`
	Status          CheckStatus `json:"status" db:"status"`
	Score           int         `json:"score" db:"score"`
	Findings        JSONMap     `json:"findings" db:"findings"`
	Recommendations []string    `json:"recommendations" db:"recommendations"`
}

// TableName returns the table name for the ComplianceCheck model
func (ComplianceCheck) TableName() string {
	return "compliance_checks"
}

// ComplianceViolation is recorded only for violated rule evaluations
type ComplianceViolation struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	OrganizationID    uuid.UUID       `json:"organization_id" db:"organization_id"`
	PolicyID          uuid.UUID       `json:"policy_id" db:"policy_id"`
	RuleID            uuid.UUID       `json:"rule_id" db:"rule_id"`
	ActivityID        uuid.UUID       `json:"activity_id" db:"activity_id"`
	ViolationType     string          `json:"violation_type" db:"violation_type"`
	Severity          Severity        `json:"severity" db:"severity"`
	Description       string          `json:"description" db:"description"`
	CorrectiveActions []string        `json:"corrective_actions" db:"corrective_actions"`
	Status            ViolationStatus `json:"status" db:"status"`
	DetectedAt        time.Time       `json:"detected_at" db:"detected_at"`
}

// TableName returns the table name for the ComplianceViolation model
func (ComplianceViolation) TableName() string {
	return "compliance_violations"
}

// ComplianceResult is the aggregated outcome for one activity
type ComplianceResult struct {
	Violations   []ComplianceViolation `json:"violations"`
	Checks       []ComplianceCheck     `json:"checks"`
	OverallScore int                   `json:"overall_score"`
	RiskLevel    RiskLevel             `json:"risk_level"`
}
