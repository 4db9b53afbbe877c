// Package policy evaluates agent activities against organization policy rules.
//
// Evaluation is pure: an Evaluator maps (activity, rule, policy) to an Outcome
// without touching storage, and Aggregate folds a set of outcomes into an
// overall compliance score and risk level. Persisting checks, violations and
// alerts is left to the caller.
//
// Rule types form a closed set of kinds. Each kind has exactly one handler;
// unrecognized types are evaluated by the generic conditions/requirements handler.
package policy
