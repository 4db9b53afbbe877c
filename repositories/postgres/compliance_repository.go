package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/repositories"
	"go.uber.org/zap"
)

// ComplianceRepository implements the repositories.ComplianceRepository interface.
// Batch inserts run on the executor in ctx, so callers wrap them in a transaction
// to make a batch atomic.
type ComplianceRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewComplianceRepository creates a new compliance repository
func NewComplianceRepository(db *DB, logger *zap.Logger) repositories.ComplianceRepository {
	return &ComplianceRepository{
		db:     db,
		logger: logger,
	}
}

// InsertChecks inserts compliance checks
func (r *ComplianceRepository) InsertChecks(ctx context.Context, checks []models.ComplianceCheck) error {
	query := `
		INSERT INTO compliance_checks (
			id, organization_id, policy_id, rule_id, activity_id, check_type,
			check_date, status, score, findings, recommendations
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	executor := GetExecutor(ctx, r.db)
	for i := range checks {
		c := &checks[i]
		_, err := executor.ExecContext(ctx, query,
			c.ID,
			c.OrganizationID,
			c.PolicyID,
			c.RuleID,
			c.ActivityID,
			c.CheckType,
			c.CheckDate,
			c.Status,
			c.Score,
			c.Findings,
			pq.Array(c.Recommendations),
		)
		if err != nil {
			return fmt.Errorf("failed to insert compliance check: %w", err)
		}
	}

	r.logger.Debug("compliance checks inserted", zap.Int("count", len(checks)))
	return nil
}

// InsertViolations inserts compliance violations
func (r *ComplianceRepository) InsertViolations(ctx context.Context, violations []models.ComplianceViolation) error {
	query := `
		INSERT INTO compliance_violations (
			id, organization_id, policy_id, rule_id, activity_id, violation_type,
			severity, description, corrective_actions, status, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	executor := GetExecutor(ctx, r.db)
	for i := range violations {
		v := &violations[i]
		_, err := executor.ExecContext(ctx, query,
			v.ID,
			v.OrganizationID,
			v.PolicyID,
			v.RuleID,
			v.ActivityID,
			v.ViolationType,
			v.Severity,
			v.Description,
			pq.Array(v.CorrectiveActions),
			v.Status,
			v.DetectedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert compliance violation: %w", err)
		}
	}

	r.logger.Debug("compliance violations inserted", zap.Int("count", len(violations)))
	return nil
}

// AlertRepository implements the repositories.AlertRepository interface
type AlertRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *DB, logger *zap.Logger) repositories.AlertRepository {
	return &AlertRepository{
		db:     db,
		logger: logger,
	}
}

// InsertAlerts inserts alerts
func (r *AlertRepository) InsertAlerts(ctx context.Context, alerts []models.Alert) error {
	query := `
		INSERT INTO alerts (
			id, organization_id, alert_type, severity, title, description,
			entity_type, entity_id, metadata, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	executor := GetExecutor(ctx, r.db)
	for i := range alerts {
		a := &alerts[i]
		_, err := executor.ExecContext(ctx, query,
			a.ID,
			a.OrganizationID,
			a.AlertType,
			a.Severity,
			a.Title,
			a.Description,
			a.EntityType,
			a.EntityID,
			a.Metadata,
			a.Status,
			a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
	}

	r.logger.Debug("alerts inserted", zap.Int("count", len(alerts)))
	return nil
}
