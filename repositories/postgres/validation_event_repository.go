package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/repositories"
	"go.uber.org/zap"
)

// ValidationEventRepository implements the repositories.ValidationEventRepository interface
type ValidationEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewValidationEventRepository creates a new validation event repository
func NewValidationEventRepository(db *DB, logger *zap.Logger) repositories.ValidationEventRepository {
	return &ValidationEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends one validation decision
func (r *ValidationEventRepository) Insert(ctx context.Context, event *models.ValidationEvent) error {
	violations, err := marshalFindings(event.Violations)
	if err != nil {
		return err
	}
	warnings, err := marshalFindings(event.Warnings)
	if err != nil {
		return err
	}
	usage, err := json.Marshal(event.UsageContext)
	if err != nil {
		return fmt.Errorf("failed to encode usage context: %w", err)
	}

	query := `
		INSERT INTO policy_validation_events (
			id, enterprise_id, tool_version_id, workspace_id, policy_instance_id,
			eps_id, eps_hash, scope_path, decision, violations, warnings,
			usage_context, response_time_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		event.ID,
		event.EnterpriseID,
		event.ToolVersionID,
		event.WorkspaceID,
		event.PolicyInstanceID,
		event.EPSID,
		event.EPSHash,
		event.ScopePath,
		event.Decision,
		violations,
		warnings,
		usage,
		event.ResponseTimeMs,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert validation event: %w", err)
	}

	r.logger.Debug("validation event inserted",
		zap.String("policy_instance_id", event.PolicyInstanceID.String()),
		zap.String("decision", string(event.Decision)),
	)
	return nil
}

func marshalFindings(findings []models.PolicyViolation) ([]byte, error) {
	if findings == nil {
		findings = []models.PolicyViolation{}
	}
	data, err := json.Marshal(findings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode findings: %w", err)
	}
	return data, nil
}
