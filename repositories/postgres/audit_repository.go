package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/repositories"
	"go.uber.org/zap"
)

// AuditRepository implements the repositories.AuditRepository interface.
// It may point at a separate audit database.
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, organization_id, user_id, action, entity_type, entity_id,
			details, risk_level, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	details := log.Details
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.OrganizationID,
		log.UserID,
		log.Action,
		log.EntityType,
		log.EntityID,
		[]byte(details),
		log.RiskLevel,
		log.RequestID,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// InsertEvent inserts an operational audit event
func (r *AuditRepository) InsertEvent(ctx context.Context, event *models.AuditEvent) error {
	query := `
		INSERT INTO audit_events (
			id, event_type, entity_type, entity_id, enterprise_id, workspace_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.EntityType,
		event.EntityID,
		event.EnterpriseID,
		event.WorkspaceID,
		event.Details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	r.logger.Debug("audit event inserted", zap.String("event_type", string(event.EventType)))
	return nil
}

// InsertSecurityEntry records an authentication or tenant denial
func (r *AuditRepository) InsertSecurityEntry(ctx context.Context, entry *models.SecurityAuditEntry) error {
	query := `
		INSERT INTO security_audit_log (
			id, reason, user_id, enterprise_id, claimed_enterprise_id, workspace_id,
			path, ip_address, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		entry.ID,
		entry.Reason,
		entry.UserID,
		entry.EnterpriseID,
		entry.ClaimedEnterprise,
		entry.WorkspaceID,
		entry.Path,
		entry.IPAddress,
		entry.RequestID,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert security audit entry: %w", err)
	}

	return nil
}
