package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/governance-engine/models"
)

// ErrNotFound is wrapped by repositories when a looked-up row does not exist
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// ActivityRepository reads agent activities
type ActivityRepository interface {
	// GetByID retrieves an activity by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error)
}

// PolicyRepository reads the policy catalog
type PolicyRepository interface {
	// GetActiveByOrganization returns active policies of an organization with
	// their rules ordered by position
	GetActiveByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Policy, error)
}

// BindingRepository reads runtime bindings
type BindingRepository interface {
	// GetActiveBindings returns active bindings for a tool version in a workspace,
	// joined to their policy instances
	GetActiveBindings(ctx context.Context, toolVersionID, workspaceID uuid.UUID) ([]*models.RuntimeBinding, error)

	// TouchViolation sets last_violation_at on the given bindings
	TouchViolation(ctx context.Context, bindingIDs []uuid.UUID, at time.Time) error
}

// SnapshotRepository reads effective policy snapshots
type SnapshotRepository interface {
	// GetByID retrieves a snapshot; wraps ErrNotFound when missing
	GetByID(ctx context.Context, id uuid.UUID) (*models.EffectivePolicySnapshot, error)
}

// ComplianceRepository stores compliance checks and violations
type ComplianceRepository interface {
	InsertChecks(ctx context.Context, checks []models.ComplianceCheck) error
	InsertViolations(ctx context.Context, violations []models.ComplianceViolation) error
}

// AlertRepository stores alerts
type AlertRepository interface {
	InsertAlerts(ctx context.Context, alerts []models.Alert) error
}

// AuditRepository handles the append-only audit trails
type AuditRepository interface {
	// Insert inserts a compliance audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// InsertEvent inserts an operational audit event
	InsertEvent(ctx context.Context, event *models.AuditEvent) error

	// InsertSecurityEntry records an authentication or tenant denial
	InsertSecurityEntry(ctx context.Context, entry *models.SecurityAuditEntry) error
}

// ValidationEventRepository stores usage-validation decisions
type ValidationEventRepository interface {
	Insert(ctx context.Context, event *models.ValidationEvent) error
}

// TenantRepository answers tenant-isolation lookups
type TenantRepository interface {
	// IsMember reports whether a live membership row exists
	IsMember(ctx context.Context, enterpriseID uuid.UUID, userID string) (bool, error)

	// WorkspaceEnterprise returns the enterprise owning a workspace; wraps ErrNotFound when missing
	WorkspaceEnterprise(ctx context.Context, workspaceID uuid.UUID) (uuid.UUID, error)

	// ProjectOrganization returns the organization of a project; wraps ErrNotFound when missing
	ProjectOrganization(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error)

	// WorkspaceOrganization returns the organization of a workspace; wraps ErrNotFound when missing
	WorkspaceOrganization(ctx context.Context, workspaceID uuid.UUID) (uuid.UUID, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Activities       ActivityRepository
	Policies         PolicyRepository
	Bindings         BindingRepository
	Snapshots        SnapshotRepository
	Compliance       ComplianceRepository
	Alerts           AlertRepository
	Audit            AuditRepository
	ValidationEvents ValidationEventRepository
	Tenants          TenantRepository
}
