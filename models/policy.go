package models

import (
	"time"

	"github.com/google/uuid"
)

// PolicyStatus gates whether a policy participates in evaluation
type PolicyStatus string

const (
	PolicyStatusDraft    PolicyStatus = "draft"
	PolicyStatusActive   PolicyStatus = "active"
	PolicyStatusArchived PolicyStatus = "archived"
)

// Policy is an organization's compliance policy with its ordered rules
type Policy struct {
	ID                  uuid.UUID    `json:"id" yaml:"id" db:"id"`
	OrganizationID      uuid.UUID    `json:"organization_id" yaml:"organization_id" db:"organization_id"`
	Name                string       `json:"name" yaml:"name" db:"name"`
	ComplianceFramework string       `json:"compliance_framework" yaml:"compliance_framework" db:"compliance_framework"`
	Status              PolicyStatus `json:"status" yaml:"status" db:"status"`
	Rules               []Rule       `json:"policy_rules" yaml:"rules"`
	CreatedAt           time.Time    `json:"created_at" yaml:"-" db:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at" yaml:"-" db:"updated_at"`
}

// TableName returns the table name for the Policy model
func (Policy) TableName() string {
	return "policies"
}

// IsActive reports whether the policy should be evaluated
func (p *Policy) IsActive() bool {
	return p.Status == PolicyStatusActive
}

// Rule is one check inside a policy. RiskWeight is never negative; a zero
// weight keeps the rule out of the overall score but it may still raise a violation.
type Rule struct {
	ID               uuid.UUID `json:"id" yaml:"id" db:"id"`
	PolicyID         uuid.UUID `json:"policy_id" yaml:"-" db:"policy_id"`
	RuleType         string    `json:"rule_type" yaml:"rule_type" db:"rule_type"`
	RuleName         string    `json:"rule_name" yaml:"rule_name" db:"rule_name"`
	Conditions       JSONMap   `json:"conditions" yaml:"conditions" db:"conditions"`
	Requirements     JSONMap   `json:"requirements" yaml:"requirements" db:"requirements"`
	RiskWeight       float64   `json:"risk_weight" yaml:"risk_weight" db:"risk_weight"`
	IsMandatory      bool      `json:"is_mandatory" yaml:"is_mandatory" db:"is_mandatory"`
	EnforcementLevel string    `json:"enforcement_level" yaml:"enforcement_level" db:"enforcement_level"`
	Position         int       `json:"position" yaml:"-" db:"position"`
}

// TableName returns the table name for the Rule model
func (Rule) TableName() string {
	return "policy_rules"
}
