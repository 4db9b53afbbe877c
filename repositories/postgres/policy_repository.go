package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/repositories"
	"go.uber.org/zap"
)

// PolicyRepository implements the repositories.PolicyRepository interface
type PolicyRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *DB, logger *zap.Logger) repositories.PolicyRepository {
	return &PolicyRepository{
		db:     db,
		logger: logger,
	}
}

// GetActiveByOrganization returns active policies with their rules ordered by position
func (r *PolicyRepository) GetActiveByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Policy, error) {
	query := `
		SELECT id, organization_id, name, compliance_framework, status, created_at, updated_at
		FROM policies
		WHERE organization_id = $1 AND status = $2
		ORDER BY created_at ASC, id ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, orgID, models.PolicyStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []*models.Policy
	byID := make(map[uuid.UUID]*models.Policy)
	ids := make([]string, 0)
	for rows.Next() {
		policy := &models.Policy{}
		if err := rows.Scan(
			&policy.ID,
			&policy.OrganizationID,
			&policy.Name,
			&policy.ComplianceFramework,
			&policy.Status,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policy.Rules = []models.Rule{}
		policies = append(policies, policy)
		byID[policy.ID] = policy
		ids = append(ids, policy.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating policies: %w", err)
	}

	if len(policies) == 0 {
		return policies, nil
	}

	if err := r.attachRules(ctx, ids, byID); err != nil {
		return nil, err
	}

	r.logger.Debug("active policies loaded",
		zap.String("org_id", orgID.String()),
		zap.Int("count", len(policies)),
	)
	return policies, nil
}

func (r *PolicyRepository) attachRules(ctx context.Context, ids []string, byID map[uuid.UUID]*models.Policy) error {
	query := `
		SELECT id, policy_id, rule_type, rule_name, conditions, requirements,
		       risk_weight, is_mandatory, enforcement_level, position
		FROM policy_rules
		WHERE policy_id = ANY($1::uuid[])
		ORDER BY policy_id, position ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query policy rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rule models.Rule
		if err := rows.Scan(
			&rule.ID,
			&rule.PolicyID,
			&rule.RuleType,
			&rule.RuleName,
			&rule.Conditions,
			&rule.Requirements,
			&rule.RiskWeight,
			&rule.IsMandatory,
			&rule.EnforcementLevel,
			&rule.Position,
		); err != nil {
			return fmt.Errorf("failed to scan policy rule: %w", err)
		}
		if policy, ok := byID[rule.PolicyID]; ok {
			policy.Rules = append(policy.Rules, rule)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating policy rules: %w", err)
	}
	return nil
}
