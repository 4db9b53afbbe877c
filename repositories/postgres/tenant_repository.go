package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/governance-engine/repositories"
	"go.uber.org/zap"
)

// TenantRepository implements the repositories.TenantRepository interface
type TenantRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB, logger *zap.Logger) repositories.TenantRepository {
	return &TenantRepository{
		db:     db,
		logger: logger,
	}
}

// IsMember reports whether the user has a membership row in the enterprise
func (r *TenantRepository) IsMember(ctx context.Context, enterpriseID uuid.UUID, userID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM enterprise_members WHERE enterprise_id = $1 AND user_id = $2)`

	var exists bool
	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, query, enterpriseID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

// WorkspaceEnterprise returns the enterprise owning a workspace
func (r *TenantRepository) WorkspaceEnterprise(ctx context.Context, workspaceID uuid.UUID) (uuid.UUID, error) {
	return r.lookupID(ctx, "workspace", `SELECT enterprise_id FROM workspaces WHERE id = $1`, workspaceID)
}

// ProjectOrganization returns the organization of a project
func (r *TenantRepository) ProjectOrganization(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error) {
	return r.lookupID(ctx, "project", `SELECT organization_id FROM projects WHERE id = $1`, projectID)
}

// WorkspaceOrganization returns the organization of a workspace
func (r *TenantRepository) WorkspaceOrganization(ctx context.Context, workspaceID uuid.UUID) (uuid.UUID, error) {
	return r.lookupID(ctx, "workspace", `SELECT organization_id FROM workspaces WHERE id = $1`, workspaceID)
}

// lookupID runs a single-column uuid lookup. A NULL column counts as missing.
func (r *TenantRepository) lookupID(ctx context.Context, entity, query string, id uuid.UUID) (uuid.UUID, error) {
	var found *uuid.UUID
	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query, id).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("%s %s: %w", entity, id, repositories.ErrNotFound)
		}
		return uuid.Nil, fmt.Errorf("failed to look up %s: %w", entity, err)
	}
	if found == nil {
		return uuid.Nil, fmt.Errorf("%s %s has no owner: %w", entity, id, repositories.ErrNotFound)
	}
	return *found, nil
}
