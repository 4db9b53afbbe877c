package policy

import (
	"github.com/upb/governance-engine/models"
)

// Evaluator runs rule handlers. It holds no per-request state and is safe for concurrent use.
type Evaluator struct {
	catalog Catalog
}

// NewEvaluator creates an evaluator over the given catalog
func NewEvaluator(catalog Catalog) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// Evaluate checks one activity against one rule of a policy
func (e *Evaluator) Evaluate(activity *models.Activity, rule *models.Rule, policy *models.Policy) Outcome {
	in := input{
		activity: activity,
		details:  activity.Details,
		rule:     rule,
	}
	if in.details == nil {
		in.details = models.JSONMap{}
	}

	var out Outcome
	switch ParseRuleKind(rule.RuleType) {
	case KindDataHandling:
		out = e.dataHandling(in)
	case KindContentCreation:
		out = e.contentCreation(in)
	case KindToolApproval:
		out = e.toolApproval(in)
	case KindDisclosure:
		out = e.disclosure(in)
	case KindRiskAssessment:
		out = e.riskAssessment(in)
	default:
		out = e.generic(in)
	}

	if policy != nil && policy.ComplianceFramework != "" {
		out = out.withFinding("compliance_framework", policy.ComplianceFramework)
	}
	return out
}

// EvaluateAll runs every rule of every active policy in order. Inactive
// policies are skipped; a policy without rules contributes nothing.
func (e *Evaluator) EvaluateAll(activity *models.Activity, policies []*models.Policy) []RuleResult {
	var results []RuleResult
	for _, p := range policies {
		if p == nil || !p.IsActive() {
			continue
		}
		for i := range p.Rules {
			rule := &p.Rules[i]
			results = append(results, RuleResult{
				Policy:  p,
				Rule:    rule,
				Outcome: e.Evaluate(activity, rule, p),
			})
		}
	}
	return results
}

// input bundles what every handler reads
type input struct {
	activity *models.Activity
	details  models.JSONMap
	rule     *models.Rule
}

func (in input) requirements() models.JSONMap {
	if in.rule.Requirements == nil {
		return models.JSONMap{}
	}
	return in.rule.Requirements
}

func (in input) conditions() models.JSONMap {
	if in.rule.Conditions == nil {
		return models.JSONMap{}
	}
	return in.rule.Conditions
}
