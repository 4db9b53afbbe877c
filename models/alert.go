package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertType classifies what raised an alert
type AlertType string

const (
	AlertTypeComplianceViolation AlertType = "compliance_violation"
	AlertTypePolicyBreach        AlertType = "policy_breach"
	AlertTypeRiskEscalation      AlertType = "risk_escalation"
	AlertTypeSystemAlert         AlertType = "system_alert"
)

// AlertStatus follows active -> acknowledged -> resolved
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// EntityTypeAgentActivity is the entity type used for activity-scoped alerts and audit rows
const EntityTypeAgentActivity = "agent_activity"

// Alert is an operator-facing notification derived from evaluation results
type Alert struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	OrganizationID uuid.UUID   `json:"organization_id" db:"organization_id"`
	AlertType      AlertType   `json:"alert_type" db:"alert_type"`
	Severity       Severity    `json:"severity" db:"severity"`
	Title          string      `json:"title" db:"title"`
	Description    string      `json:"description" db:"description"`
	EntityType     string      `json:"entity_type" db:"entity_type"`
	EntityID       uuid.UUID   `json:"entity_id" db:"entity_id"`
	Metadata       JSONMap     `json:"metadata" db:"metadata"`
	Status         AlertStatus `json:"status" db:"status"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Alert model
func (Alert) TableName() string {
	return "alerts"
}
