package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionComplianceCheckCompleted AuditAction = "compliance_check_completed"
)

// AuditLog is the trail entry written after every compliance check
type AuditLog struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OrganizationID uuid.UUID       `json:"organization_id" db:"organization_id"`
	UserID         *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Action         AuditAction     `json:"action" db:"action"`
	EntityType     string          `json:"entity_type" db:"entity_type"`
	EntityID       *uuid.UUID      `json:"entity_id,omitempty" db:"entity_id"`
	Details        json.RawMessage `json:"details" db:"details"` // JSONB for flexible metadata
	RiskLevel      *RiskLevel      `json:"risk_level,omitempty" db:"risk_level"`
	RequestID      string          `json:"request_id,omitempty" db:"request_id"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(orgID uuid.UUID, action AuditAction, entityType string) *AuditLog {
	return &AuditLog{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Action:         action,
		EntityType:     entityType,
		Details:        json.RawMessage("{}"),
		CreatedAt:      time.Now().UTC(),
	}
}

// WithUser sets the user ID
func (a *AuditLog) WithUser(userID uuid.UUID) *AuditLog {
	a.UserID = &userID
	return a
}

// WithEntity sets the entity ID
func (a *AuditLog) WithEntity(entityID uuid.UUID) *AuditLog {
	a.EntityID = &entityID
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRiskLevel sets the risk level
func (a *AuditLog) WithRiskLevel(level RiskLevel) *AuditLog {
	a.RiskLevel = &level
	return a
}

// WithRequest sets the request correlation ID
func (a *AuditLog) WithRequest(requestID string) *AuditLog {
	a.RequestID = requestID
	return a
}

// AuditEventType names operational audit events
type AuditEventType string

const (
	AuditEventEPSMissingFallback AuditEventType = "EPS_MISSING_FALLBACK"
)

// AuditEvent is an operational event about policy enforcement itself
type AuditEvent struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	EventType    AuditEventType `json:"event_type" db:"event_type"`
	EntityType   string         `json:"entity_type" db:"entity_type"`
	EntityID     uuid.UUID      `json:"entity_id" db:"entity_id"`
	EnterpriseID uuid.UUID      `json:"enterprise_id" db:"enterprise_id"`
	WorkspaceID  *uuid.UUID     `json:"workspace_id,omitempty" db:"workspace_id"`
	Details      JSONMap        `json:"details" db:"details"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the AuditEvent model
func (AuditEvent) TableName() string {
	return "audit_events"
}

// SecurityAuditEntry records an authentication or tenant-isolation denial
type SecurityAuditEntry struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	Reason            string     `json:"reason" db:"reason"`
	UserID            string     `json:"user_id,omitempty" db:"user_id"`
	EnterpriseID      *uuid.UUID `json:"enterprise_id,omitempty" db:"enterprise_id"`
	ClaimedEnterprise *uuid.UUID `json:"claimed_enterprise_id,omitempty" db:"claimed_enterprise_id"`
	WorkspaceID       *uuid.UUID `json:"workspace_id,omitempty" db:"workspace_id"`
	Path              string     `json:"path" db:"path"`
	IPAddress         string     `json:"ip_address" db:"ip_address"`
	RequestID         string     `json:"request_id" db:"request_id"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the SecurityAuditEntry model
func (SecurityAuditEntry) TableName() string {
	return "security_audit_log"
}
