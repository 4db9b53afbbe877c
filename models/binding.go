package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PolicyInstanceStatusApproved is the only instance status that is enforced at runtime
const PolicyInstanceStatusApproved = "approved"

// FallbackContentHash marks validations that ran against the raw POM
const FallbackContentHash = "FALLBACK"

// PolicyInstance is a versioned configuration of a policy for one scope
type PolicyInstance struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UseCase      string          `json:"use_case" db:"use_case"`
	Jurisdiction []string        `json:"jurisdiction" db:"jurisdiction"`
	Audience     []string        `json:"audience" db:"audience"`
	POM          json.RawMessage `json:"pom" db:"pom"`
	Status       string          `json:"status" db:"status"`
	CurrentEPSID *uuid.UUID      `json:"current_eps_id,omitempty" db:"current_eps_id"`
	EnterpriseID uuid.UUID       `json:"enterprise_id" db:"enterprise_id"`
	WorkspaceID  *uuid.UUID      `json:"workspace_id,omitempty" db:"workspace_id"`
}

// TableName returns the table name for the PolicyInstance model
func (PolicyInstance) TableName() string {
	return "policy_instances"
}

// IsApproved reports whether the instance may be enforced
func (p *PolicyInstance) IsApproved() bool {
	return p != nil && p.Status == PolicyInstanceStatusApproved
}

// RuntimeBinding links a tool version to a policy instance inside a workspace.
// Instance is nil when the referenced instance row no longer exists.
type RuntimeBinding struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	PolicyInstanceID uuid.UUID       `json:"policy_instance_id" db:"policy_instance_id"`
	ToolVersionID    uuid.UUID       `json:"tool_version_id" db:"tool_version_id"`
	WorkspaceID      uuid.UUID       `json:"workspace_id" db:"workspace_id"`
	ScopePath        string          `json:"scope_path" db:"scope_path"`
	Status           string          `json:"status" db:"status"`
	LastViolationAt  *time.Time      `json:"last_violation_at,omitempty" db:"last_violation_at"`
	Instance         *PolicyInstance `json:"policy_instance,omitempty"`
}

// TableName returns the table name for the RuntimeBinding model
func (RuntimeBinding) TableName() string {
	return "runtime_bindings"
}

// EffectivePolicySnapshot is the immutable, content-hashed POM computed at activation
type EffectivePolicySnapshot struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	PolicyInstanceID uuid.UUID       `json:"policy_instance_id" db:"policy_instance_id"`
	EffectivePOM     json.RawMessage `json:"effective_pom" db:"effective_pom"`
	ContentHash      string          `json:"content_hash" db:"content_hash"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the EffectivePolicySnapshot model
func (EffectivePolicySnapshot) TableName() string {
	return "effective_policy_snapshots"
}

// POM is the subset of the policy object model that usage validation reads
type POM struct {
	DataControls struct {
		DataClasses []string `json:"data_classes"`
	} `json:"data_controls"`
	Controls struct {
		HITL struct {
			Required  bool     `json:"required"`
			Reviewers []string `json:"reviewers"`
		} `json:"hitl"`
	} `json:"controls"`
	Rules []POMRule `json:"rules"`
}

// POMRule is a declarative rule inside a POM
type POMRule struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Enforcement string `json:"enforcement"`
	Category    string `json:"category"`
}

// ParsePOM decodes a raw POM document. An empty document yields an empty POM.
func ParsePOM(raw json.RawMessage) (*POM, error) {
	pom := &POM{}
	if len(raw) == 0 || string(raw) == "null" {
		return pom, nil
	}
	if err := json.Unmarshal(raw, pom); err != nil {
		return nil, fmt.Errorf("failed to decode POM: %w", err)
	}
	return pom, nil
}
