package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/repositories"
	"go.uber.org/zap"
)

// ActivityRepository implements the repositories.ActivityRepository interface
type ActivityRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *DB, logger *zap.Logger) repositories.ActivityRepository {
	return &ActivityRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves an activity by ID
func (r *ActivityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	query := `
		SELECT id, agent, action, status, project_id, workspace_id, enterprise_id, details, created_at
		FROM agent_activities
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	activity := &models.Activity{}

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&activity.ID,
		&activity.Agent,
		&activity.Action,
		&activity.Status,
		&activity.ProjectID,
		&activity.WorkspaceID,
		&activity.EnterpriseID,
		&activity.Details,
		&activity.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("activity %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}

	return activity, nil
}
