package policy

import (
	"github.com/upb/governance-engine/models"
)

// RuleKind is the closed set of rule types the evaluator knows how to check
type RuleKind int

const (
	// KindGeneric covers every rule type without a dedicated handler
	KindGeneric RuleKind = iota
	KindDataHandling
	KindContentCreation
	KindToolApproval
	KindDisclosure
	KindRiskAssessment
)

var ruleKindNames = map[RuleKind]string{
	KindGeneric:         "generic",
	KindDataHandling:    "data_handling",
	KindContentCreation: "content_creation",
	KindToolApproval:    "tool_approval",
	KindDisclosure:      "disclosure",
	KindRiskAssessment:  "risk_assessment",
}

// ParseRuleKind maps a stored rule type to its kind. Unknown types are generic.
func ParseRuleKind(ruleType string) RuleKind {
	for kind, name := range ruleKindNames {
		if kind != KindGeneric && name == ruleType {
			return kind
		}
	}
	return KindGeneric
}

func (k RuleKind) String() string {
	if name, ok := ruleKindNames[k]; ok {
		return name
	}
	return ruleKindNames[KindGeneric]
}

// Outcome is the verdict of one rule evaluation. It is always fully populated:
// a rule that finds nothing wrong scores 100 with severity low.
//
// Outcome values are never mutated once built; violate and withFinding return
// new values, so handlers can thread them through their checks.
type Outcome struct {
	Violated          bool                   `json:"violated"`
	Score             int                    `json:"score"`
	Severity          models.Severity        `json:"severity"`
	Description       string                 `json:"violation_description,omitempty"`
	CorrectiveActions []string               `json:"corrective_actions"`
	Findings          map[string]interface{} `json:"findings"`
	Recommendations   []string               `json:"recommendations"`
}

func newOutcome() Outcome {
	return Outcome{
		Score:             100,
		Severity:          models.SeverityLow,
		CorrectiveActions: []string{},
		Findings:          map[string]interface{}{},
		Recommendations:   []string{},
	}
}

// breach describes one failed check inside a rule
type breach struct {
	score          int
	severity       models.Severity
	description    string
	action         string
	recommendation string
}

// violate folds a failed check into the outcome. The score only decreases and
// the severity only escalates, so the order of checks never softens a verdict.
func (o Outcome) violate(b breach) Outcome {
	next := o.clone()
	next.Violated = true
	if b.score < next.Score {
		next.Score = b.score
	}
	next.Severity = models.MaxSeverity(next.Severity, b.severity)
	next.Description = b.description
	if b.action != "" {
		next.CorrectiveActions = append(next.CorrectiveActions, b.action)
	}
	if b.recommendation != "" {
		next.Recommendations = append(next.Recommendations, b.recommendation)
	}
	return next
}

func (o Outcome) withFinding(key string, value interface{}) Outcome {
	next := o.clone()
	next.Findings[key] = value
	return next
}

func (o Outcome) clone() Outcome {
	next := o
	next.CorrectiveActions = append([]string{}, o.CorrectiveActions...)
	next.Recommendations = append([]string{}, o.Recommendations...)
	next.Findings = make(map[string]interface{}, len(o.Findings)+1)
	for k, v := range o.Findings {
		next.Findings[k] = v
	}
	return next
}

// RuleResult pairs an outcome with the rule and policy that produced it
type RuleResult struct {
	Policy  *models.Policy
	Rule    *models.Rule
	Outcome Outcome
}

// Weight returns the rule's contribution weight. Negative weights are treated as zero.
func (r RuleResult) Weight() float64 {
	if r.Rule == nil || r.Rule.RiskWeight < 0 {
		return 0
	}
	return r.Rule.RiskWeight
}
