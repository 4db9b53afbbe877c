package compliance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/governance-engine/internal/policy"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/services/effects"
)

// Evaluation is the computed outcome for one activity plus the writes it implies.
// Building it performs no I/O.
type Evaluation struct {
	Result   models.ComplianceResult
	Alerts   []models.Alert
	AuditLog *models.AuditLog
	Effects  []effects.Effect
}

// Input is what an evaluation needs besides the policies themselves
type Input struct {
	Activity       *models.Activity
	OrganizationID uuid.UUID
	CheckType      models.CheckType
	RequestID      string
	Now            time.Time
}

// Evaluate runs every rule of every active policy, aggregates the outcomes and
// derives alerts, the audit entry and the ordered effect list.
func Evaluate(evaluator *policy.Evaluator, in Input, policies []*models.Policy) Evaluation {
	results := evaluator.EvaluateAll(in.Activity, policies)
	summary := policy.Aggregate(results)

	checks := make([]models.ComplianceCheck, 0, len(results))
	violations := make([]models.ComplianceViolation, 0, summary.Violations)
	for _, r := range results {
		status := models.CheckStatusPassed
		if r.Outcome.Violated {
			status = models.CheckStatusFailed
		}
		checks = append(checks, models.ComplianceCheck{
			ID:              uuid.New(),
			OrganizationID:  in.OrganizationID,
			PolicyID:        r.Policy.ID,
			RuleID:          r.Rule.ID,
			ActivityID:      in.Activity.ID,
			CheckType:       in.CheckType,
			CheckDate:       in.Now,
			Status:          status,
			Score:           r.Outcome.Score,
			Findings:        models.JSONMap(r.Outcome.Findings),
			Recommendations: r.Outcome.Recommendations,
		})

		if !r.Outcome.Violated {
			continue
		}
		violations = append(violations, models.ComplianceViolation{
			ID:                uuid.New(),
			OrganizationID:    in.OrganizationID,
			PolicyID:          r.Policy.ID,
			RuleID:            r.Rule.ID,
			ActivityID:        in.Activity.ID,
			ViolationType:     models.ViolationTypePolicyBreach,
			Severity:          r.Outcome.Severity,
			Description:       r.Outcome.Description,
			CorrectiveActions: r.Outcome.CorrectiveActions,
			Status:            models.ViolationStatusOpen,
			DetectedAt:        in.Now,
		})
	}

	result := models.ComplianceResult{
		Violations:   violations,
		Checks:       checks,
		OverallScore: summary.OverallScore,
		RiskLevel:    summary.RiskLevel,
	}
	alerts := BuildAlerts(in, result)
	audit := BuildAuditLog(in, result, countActive(policies))

	return Evaluation{
		Result:   result,
		Alerts:   alerts,
		AuditLog: audit,
		Effects: []effects.Effect{
			effects.InsertChecks{Checks: checks},
			effects.InsertViolations{Violations: violations},
			effects.InsertAlerts{Alerts: alerts},
			effects.InsertAuditLog{Log: audit},
		},
	}
}

// BuildAlerts returns one compliance_violation alert per violation and, when the
// overall risk is high or critical, a single risk_escalation alert.
func BuildAlerts(in Input, result models.ComplianceResult) []models.Alert {
	activity := in.Activity
	alerts := make([]models.Alert, 0, len(result.Violations)+1)

	for _, v := range result.Violations {
		alerts = append(alerts, models.Alert{
			ID:             uuid.New(),
			OrganizationID: in.OrganizationID,
			AlertType:      models.AlertTypeComplianceViolation,
			Severity:       v.Severity,
			Title:          fmt.Sprintf("Compliance Violation: %s", v.Description),
			Description:    fmt.Sprintf("Policy violation detected in agent activity: %s - %s", activity.Agent, activity.Action),
			EntityType:     models.EntityTypeAgentActivity,
			EntityID:       activity.ID,
			Metadata: models.JSONMap{
				"activity_id":    activity.ID.String(),
				"policy_id":      v.PolicyID.String(),
				"violation_id":   v.ID.String(),
				"agent":          activity.Agent,
				"action":         activity.Action,
				"violation_type": v.ViolationType,
			},
			Status:    models.AlertStatusActive,
			CreatedAt: in.Now,
		})
	}

	if result.RiskLevel == models.SeverityHigh || result.RiskLevel == models.SeverityCritical {
		alerts = append(alerts, models.Alert{
			ID:             uuid.New(),
			OrganizationID: in.OrganizationID,
			AlertType:      models.AlertTypeRiskEscalation,
			Severity:       result.RiskLevel,
			Title:          "High Risk Activity Detected",
			Description:    fmt.Sprintf("Agent activity %s - %s has been flagged as high risk", activity.Agent, activity.Action),
			EntityType:     models.EntityTypeAgentActivity,
			EntityID:       activity.ID,
			Metadata: models.JSONMap{
				"activity_id":      activity.ID.String(),
				"risk_level":       string(result.RiskLevel),
				"compliance_score": result.OverallScore,
				"agent":            activity.Agent,
				"action":           activity.Action,
			},
			Status:    models.AlertStatusActive,
			CreatedAt: in.Now,
		})
	}

	return alerts
}

// BuildAuditLog records that a check ran, whatever its outcome
func BuildAuditLog(in Input, result models.ComplianceResult, policiesChecked int) *models.AuditLog {
	log := models.NewAuditLog(in.OrganizationID, models.AuditActionComplianceCheckCompleted, models.EntityTypeAgentActivity).
		WithEntity(in.Activity.ID).
		WithRiskLevel(result.RiskLevel).
		WithRequest(in.RequestID).
		WithDetails(map[string]interface{}{
			"activity_agent":   in.Activity.Agent,
			"activity_action":  in.Activity.Action,
			"policies_checked": policiesChecked,
			"checks_run":       len(result.Checks),
			"violations_found": len(result.Violations),
			"overall_score":    result.OverallScore,
			"risk_level":       result.RiskLevel,
		})
	log.CreatedAt = in.Now
	return log
}

func countActive(policies []*models.Policy) int {
	n := 0
	for _, p := range policies {
		if p != nil && p.IsActive() {
			n++
		}
	}
	return n
}

// severities lists violation severities for metrics
func severities(violations []models.ComplianceViolation) []string {
	out := make([]string, len(violations))
	for i, v := range violations {
		out[i] = string(v.Severity)
	}
	return out
}
