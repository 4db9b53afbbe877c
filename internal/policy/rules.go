package policy

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/upb/governance-engine/models"
)

func (e *Evaluator) dataHandling(in input) Outcome {
	req := in.requirements()
	sensitive := containsAny(in.details, e.catalog.SensitiveKeywords)

	out := newOutcome().
		withFinding("has_sensitive_data", sensitive).
		withFinding("data_types", dataTypes(in.details))

	if !sensitive {
		return out
	}

	if req.Bool("requires_encryption") && !in.details.Bool("encrypted") {
		out = out.violate(breach{
			score:          60,
			severity:       models.SeverityHigh,
			description:    "Sensitive data processing without encryption",
			action:         "Implement encryption for sensitive data processing",
			recommendation: "Enable encryption for all sensitive data operations",
		})
	}

	if req.Bool("requires_access_controls") && !in.details.Bool("access_controlled") {
		out = out.violate(breach{
			score:          70,
			severity:       models.SeverityHigh,
			description:    "Sensitive data access without proper controls",
			action:         "Implement proper access controls",
			recommendation: "Review and implement access control policies",
		})
	}

	limit, hasLimit := req.Number("data_retention_limit")
	period, hasPeriod := in.details.Number("retention_period")
	if hasLimit && limit != 0 && hasPeriod && period > limit {
		out = out.violate(breach{
			score:          80,
			severity:       models.SeverityMedium,
			description:    "Data retention exceeds policy limits",
			action:         "Adjust data retention period",
			recommendation: "Review data retention policies",
		})
	}

	return out
}

func (e *Evaluator) contentCreation(in input) Outcome {
	req := in.requirements()
	medicalClaims := containsAny(in.details, e.catalog.MedicalClaimKeywords)
	balanced := isBalanced(in.details)
	out := newOutcome()

	if req.Bool("no_medical_claims") && medicalClaims {
		out = out.violate(breach{
			score:          40,
			severity:       models.SeverityCritical,
			description:    "Content contains unauthorized medical claims",
			action:         "Remove medical claims from content",
			recommendation: "Review content for medical claim compliance",
		})
	}

	aiAgent := strings.Contains(in.activity.Agent, "ai")
	if req.Bool("ai_disclosure_required") && aiAgent && !in.details.Bool("ai_disclosed") {
		out = out.violate(breach{
			score:          70,
			severity:       models.SeverityHigh,
			description:    "AI-generated content without proper disclosure",
			action:         "Add AI disclosure to content",
			recommendation: "Implement AI disclosure requirements",
		})
	}

	if req.Bool("balanced_presentation_required") && !balanced {
		out = out.violate(breach{
			score:          80,
			severity:       models.SeverityMedium,
			description:    "Content lacks balanced presentation",
			action:         "Ensure balanced presentation in content",
			recommendation: "Review content for balanced presentation",
		})
	}

	return out.
		withFinding("content_type", in.activity.Action).
		withFinding("has_medical_claims", medicalClaims).
		withFinding("ai_disclosed", in.details.Bool("ai_disclosed")).
		withFinding("balanced_presentation", balanced)
}

func (e *Evaluator) toolApproval(in input) Outcome {
	req := in.requirements()

	toolName, ok := in.details.String("tool_name")
	if !ok || toolName == "" {
		toolName = in.activity.Agent
	}
	approved := containsString(stringList(req["approved_tools"]), toolName)

	out := newOutcome().
		withFinding("tool_name", toolName).
		withFinding("is_approved", approved)

	if req.Bool("requires_approval") && !approved {
		out = out.violate(breach{
			score:          30,
			severity:       models.SeverityCritical,
			description:    fmt.Sprintf("Unauthorized tool usage: %s", toolName),
			action:         fmt.Sprintf("Get approval for tool: %s", toolName),
			recommendation: "Submit tool for compliance approval",
		})
	}

	if req.Bool("verified_vendors_only") && !e.vendorVerified(toolName) {
		out = out.violate(breach{
			score:          50,
			severity:       models.SeverityHigh,
			description:    fmt.Sprintf("Unverified vendor tool: %s", toolName),
			action:         fmt.Sprintf("Verify vendor for tool: %s", toolName),
			recommendation: "Verify vendor compliance",
		})
	}

	return out
}

func (e *Evaluator) disclosure(in input) Outcome {
	req := in.requirements()
	out := newOutcome()

	if req.Bool("patient_consent_required") && !in.details.Bool("patient_consent") {
		out = out.violate(breach{
			score:          60,
			severity:       models.SeverityHigh,
			description:    "Patient consent not obtained",
			action:         "Obtain proper patient consent",
			recommendation: "Implement patient consent procedures",
		})
	}

	if req.Bool("adverse_event_reporting") && in.details.Bool("adverse_event") && !in.details.Bool("reported") {
		out = out.violate(breach{
			score:          40,
			severity:       models.SeverityCritical,
			description:    "Adverse event not reported",
			action:         "Report adverse event immediately",
			recommendation: "Implement adverse event reporting procedures",
		})
	}

	return out.
		withFinding("patient_consent", in.details.Bool("patient_consent")).
		withFinding("adverse_event_reported", in.details.Bool("adverse_event_reported"))
}

func (e *Evaluator) riskAssessment(in input) Outcome {
	risk := ActivityRisk(in.activity)
	out := newOutcome().
		withFinding("risk_level", risk).
		withFinding("risk_factors", RiskFactors(in.activity))

	ceiling, ok := in.requirements().Number("max_risk_level")
	if !ok || ceiling == 0 || risk <= ceiling {
		return out
	}

	severity := models.SeverityMedium
	switch {
	case risk > 0.8:
		severity = models.SeverityCritical
	case risk > 0.6:
		severity = models.SeverityHigh
	}

	return out.violate(breach{
		score:          clampScore(int(math.Round(100 - risk*10))),
		severity:       severity,
		description:    fmt.Sprintf("Activity risk level %g exceeds maximum allowed %g", risk, ceiling),
		action:         "Conduct additional risk assessment",
		recommendation: "Implement risk mitigation measures",
	})
}

func (e *Evaluator) generic(in input) Outcome {
	rule := in.rule
	out := newOutcome().
		withFinding("rule_name", rule.RuleName).
		withFinding("rule_type", rule.RuleType).
		withFinding("enforcement_level", rule.EnforcementLevel)

	met, exprErr := conditionsMet(in)
	if exprErr != nil {
		out = out.withFinding("expression_error", exprErr.Error())
	}
	out = out.withFinding("conditions_met", met)
	if !met {
		return out
	}

	satisfied := requirementsSatisfied(in.details, in.requirements())
	out = out.withFinding("requirements_satisfied", satisfied)
	if satisfied {
		return out
	}

	severity := models.SeverityMedium
	if rule.IsMandatory {
		severity = models.SeverityHigh
	}
	return out.violate(breach{
		score:          50,
		severity:       severity,
		description:    fmt.Sprintf("Rule requirements not satisfied: %s", rule.RuleName),
		action:         fmt.Sprintf("Address requirements for rule: %s", rule.RuleName),
		recommendation: fmt.Sprintf("Review and comply with rule: %s", rule.RuleName),
	})
}

// ActivityRisk scores an activity between 0.1 and 1.0, rounded to two decimals
func ActivityRisk(activity *models.Activity) float64 {
	risk := 0.1
	action := activity.Action
	details := activity.Details

	if strings.Contains(action, "generate") || strings.Contains(action, "create") {
		risk += 0.2
	}
	if strings.Contains(action, "process") || strings.Contains(action, "analyze") {
		risk += 0.3
	}
	if activity.Status == models.ActivityStatusError {
		risk += 0.4
	}
	if details.Bool("sensitive_data") {
		risk += 0.3
	}
	if details.Bool("external_api") {
		risk += 0.2
	}
	if details.Bool("ai_generated") {
		risk += 0.1
	}

	return math.Min(math.Round(risk*100)/100, 1.0)
}

// RiskFactors names the attributes that raised an activity's risk
func RiskFactors(activity *models.Activity) []string {
	factors := []string{}
	details := activity.Details
	if details.Bool("sensitive_data") {
		factors = append(factors, "sensitive_data_processing")
	}
	if details.Bool("external_api") {
		factors = append(factors, "external_api_usage")
	}
	if details.Bool("ai_generated") {
		factors = append(factors, "ai_generated_content")
	}
	if activity.Status == models.ActivityStatusError {
		factors = append(factors, "error_state")
	}
	if strings.Contains(activity.Action, "generate") {
		factors = append(factors, "content_generation")
	}
	return factors
}

// conditionsMet checks agent_type, action_type and an optional boolean expression.
// A malformed expression counts as not met.
func conditionsMet(in input) (bool, error) {
	cond := in.conditions()

	if agentType := conditionString(cond["agent_type"]); agentType != "" &&
		!strings.Contains(in.activity.Agent, agentType) {
		return false, nil
	}
	if actionType := conditionString(cond["action_type"]); actionType != "" &&
		!strings.Contains(in.activity.Action, actionType) {
		return false, nil
	}

	source, _ := cond.String("expression")
	if source == "" {
		return true, nil
	}

	env := map[string]interface{}{
		"agent":   in.activity.Agent,
		"action":  in.activity.Action,
		"status":  string(in.activity.Status),
		"details": map[string]interface{}(in.details),
	}
	program, err := expr.Compile(source, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("expression compile error: %w", err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("expression eval error: %w", err)
	}
	met, _ := result.(bool)
	return met, nil
}

// requirementsSatisfied requires every key to be present in details with an equal JSON value
func requirementsSatisfied(details, requirements models.JSONMap) bool {
	for key, want := range requirements {
		got, ok := details[key]
		if !ok || !jsonEqual(got, want) {
			return false
		}
	}
	return true
}

func jsonEqual(a, b interface{}) bool {
	left, errA := json.Marshal(a)
	right, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(left) == string(right)
}

func (e *Evaluator) vendorVerified(toolName string) bool {
	lower := strings.ToLower(toolName)
	for _, vendor := range e.catalog.VerifiedVendors {
		if strings.Contains(lower, strings.ToLower(vendor)) {
			return true
		}
	}
	return false
}

// containsAny reports whether the lowercased JSON rendering of details contains any keyword
func containsAny(details models.JSONMap, keywords []string) bool {
	data, err := json.Marshal(details)
	if err != nil {
		return false
	}
	text := strings.ToLower(string(data))
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func dataTypes(details models.JSONMap) []string {
	types := []string{}
	for _, key := range []string{"patient_data", "medical_records", "personal_info", "financial_data"} {
		if details.Bool(key) {
			types = append(types, key)
		}
	}
	return types
}

func isBalanced(details models.JSONMap) bool {
	return details["balanced_presentation"] == true ||
		details["risks_mentioned"] == true ||
		details["benefits_mentioned"] == true
}

func stringList(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func conditionString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
