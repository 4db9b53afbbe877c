package policy

import (
	"math"

	"github.com/upb/governance-engine/models"
)

// Summary is the aggregate verdict over a set of rule results
type Summary struct {
	OverallScore int              `json:"overall_score"`
	RiskLevel    models.RiskLevel `json:"risk_level"`
	Violations   int              `json:"violations"`
}

// OverallScore is the weight-weighted mean of rule scores, or 100 when no weight was evaluated
func OverallScore(results []RuleResult) int {
	var weighted, total float64
	for _, r := range results {
		w := r.Weight()
		weighted += float64(r.Outcome.Score) * w
		total += w
	}
	if total == 0 {
		return 100
	}
	return clampScore(int(math.Round(weighted / total)))
}

// DetermineRiskLevel classifies the overall risk. Violation severity dominates the score.
func DetermineRiskLevel(score int, violations []models.Severity) models.RiskLevel {
	worst := models.SeverityLow
	for _, s := range violations {
		worst = models.MaxSeverity(worst, s)
	}
	switch {
	case worst == models.SeverityCritical:
		return models.SeverityCritical
	case worst == models.SeverityHigh:
		return models.SeverityHigh
	case score < 60:
		return models.SeverityHigh
	case score < 80:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// Aggregate folds rule results into a Summary
func Aggregate(results []RuleResult) Summary {
	var severities []models.Severity
	for _, r := range results {
		if r.Outcome.Violated {
			severities = append(severities, r.Outcome.Severity)
		}
	}
	score := OverallScore(results)
	return Summary{
		OverallScore: score,
		RiskLevel:    DetermineRiskLevel(score, severities),
		Violations:   len(severities),
	}
}
