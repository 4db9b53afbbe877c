package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/repositories"
	"go.uber.org/zap"
)

// BindingRepository implements the repositories.BindingRepository interface
type BindingRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewBindingRepository creates a new runtime binding repository
func NewBindingRepository(db *DB, logger *zap.Logger) repositories.BindingRepository {
	return &BindingRepository{
		db:     db,
		logger: logger,
	}
}

// GetActiveBindings returns active bindings joined to their policy instances.
// A binding whose instance row is gone is returned with a nil Instance.
func (r *BindingRepository) GetActiveBindings(ctx context.Context, toolVersionID, workspaceID uuid.UUID) ([]*models.RuntimeBinding, error) {
	query := `
		SELECT b.id, b.policy_instance_id, b.tool_version_id, b.workspace_id, b.scope_path,
		       b.status, b.last_violation_at,
		       pi.id, pi.use_case, pi.jurisdiction, pi.audience, pi.pom, pi.status,
		       pi.current_eps_id, pi.enterprise_id, pi.workspace_id
		FROM runtime_bindings b
		LEFT JOIN policy_instances pi ON pi.id = b.policy_instance_id
		WHERE b.tool_version_id = $1 AND b.workspace_id = $2 AND b.status = 'active'
		ORDER BY b.id
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, toolVersionID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runtime bindings: %w", err)
	}
	defer rows.Close()

	var bindings []*models.RuntimeBinding
	for rows.Next() {
		var (
			b            models.RuntimeBinding
			instanceID   *uuid.UUID
			useCase      sql.NullString
			jurisdiction []string
			audience     []string
			pom          []byte
			status       sql.NullString
			currentEPSID *uuid.UUID
			enterpriseID *uuid.UUID
			instanceWS   *uuid.UUID
		)
		if err := rows.Scan(
			&b.ID,
			&b.PolicyInstanceID,
			&b.ToolVersionID,
			&b.WorkspaceID,
			&b.ScopePath,
			&b.Status,
			&b.LastViolationAt,
			&instanceID,
			&useCase,
			pq.Array(&jurisdiction),
			pq.Array(&audience),
			&pom,
			&status,
			&currentEPSID,
			&enterpriseID,
			&instanceWS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan runtime binding: %w", err)
		}

		if instanceID != nil {
			instance := &models.PolicyInstance{
				ID:           *instanceID,
				UseCase:      useCase.String,
				Jurisdiction: jurisdiction,
				Audience:     audience,
				POM:          json.RawMessage(pom),
				Status:       status.String,
				CurrentEPSID: currentEPSID,
				WorkspaceID:  instanceWS,
			}
			if enterpriseID != nil {
				instance.EnterpriseID = *enterpriseID
			}
			b.Instance = instance
		}
		bindings = append(bindings, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runtime bindings: %w", err)
	}

	return bindings, nil
}

// TouchViolation sets last_violation_at on the given bindings
func (r *BindingRepository) TouchViolation(ctx context.Context, bindingIDs []uuid.UUID, at time.Time) error {
	if len(bindingIDs) == 0 {
		return nil
	}

	ids := make([]string, len(bindingIDs))
	for i, id := range bindingIDs {
		ids[i] = id.String()
	}

	query := `UPDATE runtime_bindings SET last_violation_at = $1 WHERE id = ANY($2::uuid[])`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, at, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to update binding violation time: %w", err)
	}
	return nil
}

// SnapshotRepository implements the repositories.SnapshotRepository interface
type SnapshotRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSnapshotRepository creates a new effective policy snapshot repository
func NewSnapshotRepository(db *DB, logger *zap.Logger) repositories.SnapshotRepository {
	return &SnapshotRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a snapshot by ID
func (r *SnapshotRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EffectivePolicySnapshot, error) {
	query := `
		SELECT id, policy_instance_id, effective_pom, content_hash, created_at
		FROM effective_policy_snapshots
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	eps := &models.EffectivePolicySnapshot{}
	var pom []byte

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&eps.ID,
		&eps.PolicyInstanceID,
		&pom,
		&eps.ContentHash,
		&eps.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("snapshot %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	eps.EffectivePOM = json.RawMessage(pom)

	return eps, nil
}
