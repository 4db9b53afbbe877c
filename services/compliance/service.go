// Package compliance checks agent activities against their organization's policies.
package compliance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/governance-engine/internal/observability"
	"github.com/upb/governance-engine/internal/policy"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/repositories"
	"github.com/upb/governance-engine/services"
	"github.com/upb/governance-engine/services/effects"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Trigger types accepted by the check endpoint
const (
	TriggerInsert = "insert"
	TriggerUpdate = "update"
	TriggerManual = "manual"
)

// NoOrganizationMessage is returned when an activity cannot be tied to an organization
const NoOrganizationMessage = "No organization context found, compliance check skipped"

// CheckRequest asks for one activity to be checked
type CheckRequest struct {
	ActivityID  uuid.UUID `json:"activity_id" validate:"required"`
	TriggerType string    `json:"trigger_type" validate:"omitempty,oneof=insert update manual"`
	ForceCheck  bool      `json:"force_check"`
}

// BatchRequest asks for several activities to be checked
type BatchRequest struct {
	ActivityIDs []uuid.UUID `json:"activity_ids" validate:"required,min=1,dive,required"`
	TriggerType string      `json:"trigger_type" validate:"omitempty,oneof=insert update manual"`
	ForceCheck  bool        `json:"force_check"`
}

// CheckResult is the outcome of checking one activity. OrganizationID is nil
// when the activity has no organization context and nothing was evaluated.
type CheckResult struct {
	ActivityID      uuid.UUID
	OrganizationID  *uuid.UUID
	PoliciesChecked int
	Result          models.ComplianceResult
	Alerts          []models.Alert
	Report          effects.Report
	Timestamp       time.Time
}

// Skipped reports whether the check was skipped for lack of organization context
func (r *CheckResult) Skipped() bool {
	return r.OrganizationID == nil
}

// BatchItem is the per-activity outcome of a batch check
type BatchItem struct {
	ActivityID uuid.UUID
	Result     *CheckResult
	Err        error
}

// Config holds the batch limits
type Config struct {
	BatchConcurrency int
	MaxBatchSize     int
}

// Service orchestrates compliance checks
type Service struct {
	repos     *repositories.Repositories
	evaluator *policy.Evaluator
	writer    *effects.Writer
	metrics   *observability.Metrics
	logger    *zap.Logger
	config    Config
	now       func() time.Time
}

// NewService creates a new compliance Service. metrics may be nil.
func NewService(
	repos *repositories.Repositories,
	evaluator *policy.Evaluator,
	writer *effects.Writer,
	metrics *observability.Metrics,
	logger *zap.Logger,
	config Config,
) *Service {
	if config.BatchConcurrency < 1 {
		config.BatchConcurrency = 1
	}
	if config.MaxBatchSize < 1 {
		config.MaxBatchSize = 100
	}
	return &Service{
		repos:     repos,
		evaluator: evaluator,
		writer:    writer,
		metrics:   metrics,
		logger:    logger,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CheckActivity evaluates one activity, applies the resulting writes
// best-effort and returns the computed result. auth restricts which
// enterprise's activities the caller may check.
func (s *Service) CheckActivity(ctx context.Context, auth *models.AuthContext, req CheckRequest) (*CheckResult, error) {
	start := time.Now()
	defer s.metrics.ObserveDuration("compliance_check", start)

	logger := s.logger.With(zap.String("activity_id", req.ActivityID.String()))

	activity, err := s.repos.Activities.GetByID(ctx, req.ActivityID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewDomainError(services.ErrorTypeNotFound, "Activity not found: "+req.ActivityID.String(), err)
		}
		return nil, services.WrapInternal("failed to load activity", err)
	}

	orgID, err := s.resolveOrganization(ctx, activity)
	if err != nil {
		return nil, services.WrapInternal("failed to resolve organization", err)
	}
	if orgID == uuid.Nil {
		logger.Info("no organization context, compliance check skipped")
		return &CheckResult{ActivityID: activity.ID, Timestamp: s.now()}, nil
	}
	if !auth.CanAccessEnterprise(orgID) {
		logger.Warn("activity organization belongs to another enterprise",
			zap.String("org_id", orgID.String()),
			zap.String("enterprise_id", auth.EnterpriseID.String()))
		return nil, services.ErrTenantMismatch
	}
	logger = logger.With(zap.String("org_id", orgID.String()))

	policies, err := s.repos.Policies.GetActiveByOrganization(ctx, orgID)
	if err != nil {
		return nil, services.WrapInternal("Failed to fetch policies", err)
	}

	checkType := models.CheckTypeAutomated
	if req.TriggerType == TriggerManual {
		checkType = models.CheckTypeManual
	}

	now := s.now()
	eval := Evaluate(s.evaluator, Input{
		Activity:       activity,
		OrganizationID: orgID,
		CheckType:      checkType,
		RequestID:      requestIDFrom(ctx),
		Now:            now,
	}, policies)

	report := s.writer.Apply(ctx, eval.Effects)
	s.metrics.RecordCompliance(string(eval.Result.RiskLevel), severities(eval.Result.Violations))

	logger.Info("compliance check completed",
		zap.Int("policies_checked", len(policies)),
		zap.Int("violations_found", len(eval.Result.Violations)),
		zap.Int("overall_score", eval.Result.OverallScore),
		zap.String("risk_level", string(eval.Result.RiskLevel)),
		zap.Int("failed_writes", report.Failed()),
		zap.Bool("force_check", req.ForceCheck),
	)

	return &CheckResult{
		ActivityID:      activity.ID,
		OrganizationID:  &orgID,
		PoliciesChecked: len(policies),
		Result:          eval.Result,
		Alerts:          eval.Alerts,
		Report:          report,
		Timestamp:       now,
	}, nil
}

// CheckBatch checks each activity concurrently. Failures are reported per item
// and results keep the request order.
func (s *Service) CheckBatch(ctx context.Context, auth *models.AuthContext, req BatchRequest) ([]BatchItem, error) {
	if len(req.ActivityIDs) > s.config.MaxBatchSize {
		return nil, services.ErrBatchTooLarge
	}

	items := make([]BatchItem, len(req.ActivityIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.BatchConcurrency)

	for i, id := range req.ActivityIDs {
		i, id := i, id
		g.Go(func() error {
			items[i].ActivityID = id
			res, err := s.CheckActivity(gctx, auth, CheckRequest{
				ActivityID:  id,
				TriggerType: req.TriggerType,
				ForceCheck:  req.ForceCheck,
			})
			items[i].Result = res
			items[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	return items, nil
}

// resolveOrganization tries the activity's enterprise, then its project's
// organization, then its workspace's organization. uuid.Nil means none.
func (s *Service) resolveOrganization(ctx context.Context, activity *models.Activity) (uuid.UUID, error) {
	if activity.EnterpriseID != nil {
		return *activity.EnterpriseID, nil
	}

	if activity.ProjectID != nil {
		org, err := s.repos.Tenants.ProjectOrganization(ctx, *activity.ProjectID)
		switch {
		case err == nil:
			return org, nil
		case !errors.Is(err, repositories.ErrNotFound):
			return uuid.Nil, err
		}
	}

	if activity.WorkspaceID != nil {
		org, err := s.repos.Tenants.WorkspaceOrganization(ctx, *activity.WorkspaceID)
		switch {
		case err == nil:
			return org, nil
		case !errors.Is(err, repositories.ErrNotFound):
			return uuid.Nil, err
		}
	}

	return uuid.Nil, nil
}

type requestIDKey struct{}

// WithRequestID stores the request correlation id used on audit rows
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
