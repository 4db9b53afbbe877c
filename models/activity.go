package models

import (
	"time"

	"github.com/google/uuid"
)

// ActivityStatus is the outcome an agent reported for an action
type ActivityStatus string

const (
	ActivityStatusSuccess ActivityStatus = "success"
	ActivityStatusWarning ActivityStatus = "warning"
	ActivityStatusError   ActivityStatus = "error"
	ActivityStatusRunning ActivityStatus = "running"
)

// Activity is an observed action by an agent or tool. Rows are written by the
// activity logger and never modified afterwards.
type Activity struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	Agent        string         `json:"agent" db:"agent"`
	Action       string         `json:"action" db:"action"`
	Status       ActivityStatus `json:"status" db:"status"`
	ProjectID    *uuid.UUID     `json:"project_id,omitempty" db:"project_id"`
	WorkspaceID  *uuid.UUID     `json:"workspace_id,omitempty" db:"workspace_id"`
	EnterpriseID *uuid.UUID     `json:"enterprise_id,omitempty" db:"enterprise_id"`
	Details      JSONMap        `json:"details" db:"details"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Activity model
func (Activity) TableName() string {
	return "agent_activities"
}
