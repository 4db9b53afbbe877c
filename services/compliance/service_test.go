package compliance

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/governance-engine/internal/observability"
	"github.com/upb/governance-engine/internal/policy"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/repositories"
	"github.com/upb/governance-engine/repositories/mocks"
	"github.com/upb/governance-engine/services"
	"github.com/upb/governance-engine/services/effects"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(set *mocks.Set, metrics *observability.Metrics) *Service {
	writer := effects.NewWriter(set.Repositories(), set.Tx, zap.NewNop())
	svc := NewService(set.Repositories(), policy.NewEvaluator(policy.DefaultCatalog()), writer, metrics, zap.NewNop(),
		Config{BatchConcurrency: 3, MaxBatchSize: 5})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func serviceAuth() *models.AuthContext {
	return &models.AuthContext{IsServiceRole: true, Roles: []string{models.RoleServiceRole}, Scopes: []string{models.ScopeAll}}
}

func contentPolicy(orgID uuid.UUID) *models.Policy {
	return &models.Policy{
		ID:                  uuid.New(),
		OrganizationID:      orgID,
		Name:                "Promotional content",
		ComplianceFramework: "FDA",
		Status:              models.PolicyStatusActive,
		Rules: []models.Rule{
			{
				ID:           uuid.New(),
				RuleType:     "content_creation",
				RuleName:     "AI disclosure",
				Requirements: models.JSONMap{"ai_disclosure_required": true},
				RiskWeight:   1,
			},
			{
				ID:           uuid.New(),
				RuleType:     "disclosure",
				RuleName:     "Consent",
				Requirements: models.JSONMap{"patient_consent_required": true},
				RiskWeight:   0,
			},
		},
	}
}

func expectAllWrites(set *mocks.Set) {
	set.Compliance.On("InsertChecks", mock.Anything, mock.Anything).Return(nil)
	set.Compliance.On("InsertViolations", mock.Anything, mock.Anything).Return(nil)
	set.Alerts.On("InsertAlerts", mock.Anything, mock.Anything).Return(nil)
	set.Audit.On("Insert", mock.Anything, mock.Anything).Return(nil)
}

func TestCheckActivity_ViolationsAlertsAndAudit(t *testing.T) {
	set := mocks.NewSet()
	metrics := observability.NewMetrics()
	svc := newTestService(set, metrics)

	orgID := uuid.New()
	activity := &models.Activity{
		ID:           uuid.New(),
		Agent:        "content-ai",
		Action:       "generate_post",
		Status:       models.ActivityStatusSuccess,
		EnterpriseID: &orgID,
		Details:      models.JSONMap{"ai_disclosed": false},
	}
	pol := contentPolicy(orgID)

	set.Activities.On("GetByID", mock.Anything, activity.ID).Return(activity, nil)
	set.Policies.On("GetActiveByOrganization", mock.Anything, orgID).Return([]*models.Policy{pol}, nil)
	expectAllWrites(set)

	res, err := svc.CheckActivity(context.Background(), serviceAuth(), CheckRequest{ActivityID: activity.ID, TriggerType: TriggerManual})
	require.NoError(t, err)
	require.False(t, res.Skipped())

	assert.Equal(t, orgID, *res.OrganizationID)
	assert.Equal(t, 1, res.PoliciesChecked)
	require.Len(t, res.Result.Checks, 2)
	require.Len(t, res.Result.Violations, 2)

	// the consent rule has weight 0, so only the disclosure rule's 70 counts
	assert.Equal(t, 70, res.Result.OverallScore)
	assert.Equal(t, models.SeverityHigh, res.Result.RiskLevel)

	for _, c := range res.Result.Checks {
		assert.Equal(t, models.CheckTypeManual, c.CheckType)
		assert.Equal(t, models.CheckStatusFailed, c.Status)
		assert.Equal(t, "FDA", c.Findings["compliance_framework"])
	}
	for _, v := range res.Result.Violations {
		assert.Equal(t, models.ViolationTypePolicyBreach, v.ViolationType)
		assert.Equal(t, models.ViolationStatusOpen, v.Status)
		assert.NotEqual(t, uuid.Nil, v.ID)
	}

	// two violation alerts plus one escalation
	require.Len(t, res.Alerts, 3)
	assert.Equal(t, models.AlertTypeRiskEscalation, res.Alerts[2].AlertType)
	assert.Equal(t, 0, res.Report.Failed())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ComplianceChecks.WithLabelValues("high")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Violations.WithLabelValues("high")))

	set.Audit.AssertCalled(t, "Insert", mock.Anything, mock.MatchedBy(func(log *models.AuditLog) bool {
		return log.Action == models.AuditActionComplianceCheckCompleted && log.EntityID != nil && *log.EntityID == activity.ID
	}))
}

func TestCheckActivity_ZeroPoliciesIsPerfectScore(t *testing.T) {
	set := mocks.NewSet()
	svc := newTestService(set, nil)

	orgID := uuid.New()
	activity := &models.Activity{ID: uuid.New(), Agent: "bot", Action: "read", EnterpriseID: &orgID}

	set.Activities.On("GetByID", mock.Anything, activity.ID).Return(activity, nil)
	set.Policies.On("GetActiveByOrganization", mock.Anything, orgID).Return([]*models.Policy{}, nil)
	set.Audit.On("Insert", mock.Anything, mock.Anything).Return(nil)

	res, err := svc.CheckActivity(context.Background(), serviceAuth(), CheckRequest{ActivityID: activity.ID})
	require.NoError(t, err)

	assert.Equal(t, 100, res.Result.OverallScore)
	assert.Equal(t, models.SeverityLow, res.Result.RiskLevel)
	assert.Empty(t, res.Alerts)
	set.Audit.AssertNumberOfCalls(t, "Insert", 1)
	set.Compliance.AssertNotCalled(t, "InsertChecks", mock.Anything, mock.Anything)
}

func TestCheckActivity_PersistenceFailureStillReturnsResult(t *testing.T) {
	set := mocks.NewSet()
	svc := newTestService(set, nil)

	orgID := uuid.New()
	activity := &models.Activity{ID: uuid.New(), Agent: "content-ai", Action: "generate", EnterpriseID: &orgID}

	set.Activities.On("GetByID", mock.Anything, activity.ID).Return(activity, nil)
	set.Policies.On("GetActiveByOrganization", mock.Anything, orgID).Return([]*models.Policy{contentPolicy(orgID)}, nil)
	set.Compliance.On("InsertChecks", mock.Anything, mock.Anything).Return(errors.New("db down"))
	set.Compliance.On("InsertViolations", mock.Anything, mock.Anything).Return(errors.New("db down"))
	set.Alerts.On("InsertAlerts", mock.Anything, mock.Anything).Return(errors.New("db down"))
	set.Audit.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down"))

	res, err := svc.CheckActivity(context.Background(), serviceAuth(), CheckRequest{ActivityID: activity.ID})
	require.NoError(t, err)
	assert.Len(t, res.Result.Violations, 2)
	assert.Equal(t, 4, res.Report.Failed())

	_, _, rolledBack := set.Tx.Counts()
	assert.Equal(t, 2, rolledBack)
}

func TestCheckActivity_OrganizationResolution(t *testing.T) {
	projectOrg := uuid.New()
	workspaceOrg := uuid.New()

	tests := []struct {
		name    string
		setup   func(set *mocks.Set, a *models.Activity)
		wantOrg *uuid.UUID
		wantErr bool
	}{
		{
			name: "project organization",
			setup: func(set *mocks.Set, a *models.Activity) {
				p := uuid.New()
				a.ProjectID = &p
				set.Tenants.On("ProjectOrganization", mock.Anything, p).Return(projectOrg, nil)
			},
			wantOrg: &projectOrg,
		},
		{
			name: "project missing falls through to workspace",
			setup: func(set *mocks.Set, a *models.Activity) {
				p, w := uuid.New(), uuid.New()
				a.ProjectID, a.WorkspaceID = &p, &w
				set.Tenants.On("ProjectOrganization", mock.Anything, p).
					Return(uuid.Nil, fmt.Errorf("project: %w", repositories.ErrNotFound))
				set.Tenants.On("WorkspaceOrganization", mock.Anything, w).Return(workspaceOrg, nil)
			},
			wantOrg: &workspaceOrg,
		},
		{
			name:  "no context skips",
			setup: func(set *mocks.Set, a *models.Activity) {},
		},
		{
			name: "lookup failure is an error",
			setup: func(set *mocks.Set, a *models.Activity) {
				w := uuid.New()
				a.WorkspaceID = &w
				set.Tenants.On("WorkspaceOrganization", mock.Anything, w).Return(uuid.Nil, errors.New("timeout"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := mocks.NewSet()
			svc := newTestService(set, nil)
			activity := &models.Activity{ID: uuid.New(), Agent: "bot", Action: "read"}
			tt.setup(set, activity)

			set.Activities.On("GetByID", mock.Anything, activity.ID).Return(activity, nil)
			set.Policies.On("GetActiveByOrganization", mock.Anything, mock.Anything).Return([]*models.Policy{}, nil)
			set.Audit.On("Insert", mock.Anything, mock.Anything).Return(nil)

			res, err := svc.CheckActivity(context.Background(), serviceAuth(), CheckRequest{ActivityID: activity.ID})
			if tt.wantErr {
				assert.True(t, services.IsInternalError(err))
				return
			}
			require.NoError(t, err)
			if tt.wantOrg == nil {
				assert.True(t, res.Skipped())
				set.Policies.AssertNotCalled(t, "GetActiveByOrganization", mock.Anything, mock.Anything)
				return
			}
			assert.Equal(t, *tt.wantOrg, *res.OrganizationID)
		})
	}
}

func TestCheckActivity_Errors(t *testing.T) {
	t.Run("activity not found", func(t *testing.T) {
		set := mocks.NewSet()
		svc := newTestService(set, nil)
		id := uuid.New()
		set.Activities.On("GetByID", mock.Anything, id).Return(nil, fmt.Errorf("activity: %w", repositories.ErrNotFound))

		_, err := svc.CheckActivity(context.Background(), serviceAuth(), CheckRequest{ActivityID: id})
		assert.True(t, services.IsNotFoundError(err))
		assert.Contains(t, err.Error(), "Activity not found")
	})

	t.Run("other tenant's activity", func(t *testing.T) {
		set := mocks.NewSet()
		svc := newTestService(set, nil)
		other := uuid.New()
		activity := &models.Activity{ID: uuid.New(), EnterpriseID: &other}
		set.Activities.On("GetByID", mock.Anything, activity.ID).Return(activity, nil)

		auth := &models.AuthContext{UserID: "u1", EnterpriseID: uuid.New()}
		_, err := svc.CheckActivity(context.Background(), auth, CheckRequest{ActivityID: activity.ID})
		assert.True(t, services.IsForbiddenError(err))
		set.Policies.AssertNotCalled(t, "GetActiveByOrganization", mock.Anything, mock.Anything)
	})

	t.Run("policy fetch failure", func(t *testing.T) {
		set := mocks.NewSet()
		svc := newTestService(set, nil)
		orgID := uuid.New()
		activity := &models.Activity{ID: uuid.New(), EnterpriseID: &orgID}
		set.Activities.On("GetByID", mock.Anything, activity.ID).Return(activity, nil)
		set.Policies.On("GetActiveByOrganization", mock.Anything, orgID).Return(nil, errors.New("boom"))

		_, err := svc.CheckActivity(context.Background(), serviceAuth(), CheckRequest{ActivityID: activity.ID})
		assert.True(t, services.IsInternalError(err))
	})
}

func TestCheckActivity_ResolvedOrganizationMustMatchCaller(t *testing.T) {
	caller := uuid.New()
	other := uuid.New()

	tests := []struct {
		name      string
		setup     func(set *mocks.Set, a *models.Activity, org uuid.UUID)
		org       uuid.UUID
		forbidden bool
	}{
		{
			name: "project in another enterprise",
			setup: func(set *mocks.Set, a *models.Activity, org uuid.UUID) {
				p := uuid.New()
				a.ProjectID = &p
				set.Tenants.On("ProjectOrganization", mock.Anything, p).Return(org, nil)
			},
			org:       other,
			forbidden: true,
		},
		{
			name: "workspace in another enterprise",
			setup: func(set *mocks.Set, a *models.Activity, org uuid.UUID) {
				w := uuid.New()
				a.WorkspaceID = &w
				set.Tenants.On("WorkspaceOrganization", mock.Anything, w).Return(org, nil)
			},
			org:       other,
			forbidden: true,
		},
		{
			name: "project in the caller's enterprise",
			setup: func(set *mocks.Set, a *models.Activity, org uuid.UUID) {
				p := uuid.New()
				a.ProjectID = &p
				set.Tenants.On("ProjectOrganization", mock.Anything, p).Return(org, nil)
			},
			org: caller,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := mocks.NewSet()
			svc := newTestService(set, nil)
			activity := &models.Activity{ID: uuid.New(), Agent: "bot", Action: "read"}
			tt.setup(set, activity, tt.org)
			set.Activities.On("GetByID", mock.Anything, activity.ID).Return(activity, nil)

			auth := &models.AuthContext{UserID: "u1", EnterpriseID: caller}

			if tt.forbidden {
				res, err := svc.CheckActivity(context.Background(), auth, CheckRequest{ActivityID: activity.ID})
				assert.Nil(t, res)
				assert.ErrorIs(t, err, services.ErrTenantMismatch)
				assert.True(t, services.IsForbiddenError(err))
				set.Policies.AssertNotCalled(t, "GetActiveByOrganization", mock.Anything, mock.Anything)
				set.Compliance.AssertNotCalled(t, "InsertChecks", mock.Anything, mock.Anything)
				set.Alerts.AssertNotCalled(t, "InsertAlerts", mock.Anything, mock.Anything)
				set.Audit.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
				return
			}

			set.Policies.On("GetActiveByOrganization", mock.Anything, caller).Return([]*models.Policy{}, nil)
			set.Audit.On("Insert", mock.Anything, mock.Anything).Return(nil)

			res, err := svc.CheckActivity(context.Background(), auth, CheckRequest{ActivityID: activity.ID})
			require.NoError(t, err)
			assert.Equal(t, caller, *res.OrganizationID)
		})
	}
}

func TestCheckBatch(t *testing.T) {
	set := mocks.NewSet()
	svc := newTestService(set, nil)

	orgID := uuid.New()
	ok1 := &models.Activity{ID: uuid.New(), Agent: "bot", Action: "read", EnterpriseID: &orgID}
	ok2 := &models.Activity{ID: uuid.New(), Agent: "bot", Action: "write", EnterpriseID: &orgID}
	missing := uuid.New()

	set.Activities.On("GetByID", mock.Anything, ok1.ID).Return(ok1, nil)
	set.Activities.On("GetByID", mock.Anything, ok2.ID).Return(ok2, nil)
	set.Activities.On("GetByID", mock.Anything, missing).Return(nil, repositories.ErrNotFound)
	set.Policies.On("GetActiveByOrganization", mock.Anything, orgID).Return([]*models.Policy{}, nil)
	set.Audit.On("Insert", mock.Anything, mock.Anything).Return(nil)

	items, err := svc.CheckBatch(context.Background(), serviceAuth(), BatchRequest{
		ActivityIDs: []uuid.UUID{ok1.ID, missing, ok2.ID},
	})
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, ok1.ID, items[0].ActivityID)
	assert.NoError(t, items[0].Err)
	assert.Equal(t, missing, items[1].ActivityID)
	assert.True(t, services.IsNotFoundError(items[1].Err))
	assert.Nil(t, items[1].Result)
	assert.Equal(t, ok2.ID, items[2].ActivityID)
	assert.NoError(t, items[2].Err)
}

func TestCheckBatch_TooLarge(t *testing.T) {
	svc := newTestService(mocks.NewSet(), nil)
	ids := make([]uuid.UUID, 6)
	for i := range ids {
		ids[i] = uuid.New()
	}

	_, err := svc.CheckBatch(context.Background(), serviceAuth(), BatchRequest{ActivityIDs: ids})
	assert.ErrorIs(t, err, services.ErrBatchTooLarge)
}

func TestEvaluate_EffectsOrderAndRequestID(t *testing.T) {
	orgID := uuid.New()
	activity := &models.Activity{ID: uuid.New(), Agent: "content-ai", Action: "generate"}

	eval := Evaluate(policy.NewEvaluator(policy.DefaultCatalog()), Input{
		Activity:       activity,
		OrganizationID: orgID,
		CheckType:      models.CheckTypeAutomated,
		RequestID:      "req-42",
		Now:            fixedNow,
	}, []*models.Policy{contentPolicy(orgID)})

	assert.Equal(t, []effects.Kind{
		effects.KindInsertChecks,
		effects.KindInsertViolations,
		effects.KindInsertAlerts,
		effects.KindInsertAuditLog,
	}, effects.Kinds(eval.Effects))
	assert.Equal(t, "req-42", eval.AuditLog.RequestID)
	assert.Equal(t, fixedNow, eval.AuditLog.CreatedAt)
	assert.JSONEq(t, fmt.Sprintf(`{
		"activity_agent": "content-ai",
		"activity_action": "generate",
		"policies_checked": 1,
		"checks_run": 2,
		"violations_found": 2,
		"overall_score": %d,
		"risk_level": "%s"
	}`, eval.Result.OverallScore, eval.Result.RiskLevel), string(eval.AuditLog.Details))
}

func TestBuildAlerts(t *testing.T) {
	activity := &models.Activity{ID: uuid.New(), Agent: "a", Action: "b"}
	in := Input{Activity: activity, OrganizationID: uuid.New(), Now: fixedNow}

	t.Run("medium risk has no escalation", func(t *testing.T) {
		alerts := BuildAlerts(in, models.ComplianceResult{
			RiskLevel:  models.SeverityMedium,
			Violations: []models.ComplianceViolation{{ID: uuid.New(), Severity: models.SeverityMedium, Description: "x"}},
		})
		require.Len(t, alerts, 1)
		assert.Equal(t, models.AlertTypeComplianceViolation, alerts[0].AlertType)
		assert.Equal(t, "Compliance Violation: x", alerts[0].Title)
		assert.Equal(t, models.AlertStatusActive, alerts[0].Status)
	})

	t.Run("critical risk escalates once", func(t *testing.T) {
		alerts := BuildAlerts(in, models.ComplianceResult{
			RiskLevel:    models.SeverityCritical,
			OverallScore: 40,
			Violations: []models.ComplianceViolation{
				{ID: uuid.New(), Severity: models.SeverityCritical},
				{ID: uuid.New(), Severity: models.SeverityCritical},
			},
		})
		require.Len(t, alerts, 3)
		escalations := 0
		for _, a := range alerts {
			if a.AlertType == models.AlertTypeRiskEscalation {
				escalations++
				assert.Equal(t, models.SeverityCritical, a.Severity)
				assert.Equal(t, 40, a.Metadata["compliance_score"])
			}
		}
		assert.Equal(t, 1, escalations)
	})
}
