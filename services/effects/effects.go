// Package effects describes evaluation side effects as data and applies them.
//
// Evaluation code builds an ordered []Effect; a Writer applies the list
// best-effort. A failed effect is logged and recorded in the Report, and the
// remaining effects still run.
package effects

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/repositories"
	"github.com/upb/governance-engine/services"
	"go.uber.org/zap"
)

// Kind names an effect for logging and reports
type Kind string

const (
	KindInsertChecks          Kind = "insert_checks"
	KindInsertViolations      Kind = "insert_violations"
	KindInsertAlerts          Kind = "insert_alerts"
	KindInsertAuditLog        Kind = "insert_audit_log"
	KindInsertAuditEvent      Kind = "insert_audit_event"
	KindInsertValidationEvent Kind = "insert_validation_event"
	KindTouchBindings         Kind = "touch_bindings"
)

// Effect is one pending write
type Effect interface {
	Kind() Kind
	// Size is the number of rows the effect writes
	Size() int
	apply(ctx context.Context, w *Writer) error
}

// InsertChecks writes compliance checks in one transaction
type InsertChecks struct{ Checks []models.ComplianceCheck }

// InsertViolations writes compliance violations in one transaction
type InsertViolations struct{ Violations []models.ComplianceViolation }

// InsertAlerts writes alerts
type InsertAlerts struct{ Alerts []models.Alert }

// InsertAuditLog writes the compliance audit log entry
type InsertAuditLog struct{ Log *models.AuditLog }

// InsertAuditEvent writes an operational audit event
type InsertAuditEvent struct{ Event *models.AuditEvent }

// InsertValidationEvent writes one usage-validation decision
type InsertValidationEvent struct{ Event *models.ValidationEvent }

// TouchBindings bumps last_violation_at on bindings that produced violations
type TouchBindings struct {
	BindingIDs []uuid.UUID
	At         time.Time
}

func (InsertChecks) Kind() Kind          { return KindInsertChecks }
func (InsertViolations) Kind() Kind      { return KindInsertViolations }
func (InsertAlerts) Kind() Kind          { return KindInsertAlerts }
func (InsertAuditLog) Kind() Kind        { return KindInsertAuditLog }
func (InsertAuditEvent) Kind() Kind      { return KindInsertAuditEvent }
func (InsertValidationEvent) Kind() Kind { return KindInsertValidationEvent }
func (TouchBindings) Kind() Kind         { return KindTouchBindings }

func (e InsertChecks) Size() int     { return len(e.Checks) }
func (e InsertViolations) Size() int { return len(e.Violations) }
func (e InsertAlerts) Size() int     { return len(e.Alerts) }
func (e InsertAuditLog) Size() int {
	if e.Log == nil {
		return 0
	}
	return 1
}
func (e InsertAuditEvent) Size() int {
	if e.Event == nil {
		return 0
	}
	return 1
}
func (e InsertValidationEvent) Size() int {
	if e.Event == nil {
		return 0
	}
	return 1
}
func (e TouchBindings) Size() int { return len(e.BindingIDs) }

func (e InsertChecks) apply(ctx context.Context, w *Writer) error {
	return services.WithTransaction(ctx, w.txMgr, func(ctx context.Context) error {
		return w.repos.Compliance.InsertChecks(ctx, e.Checks)
	})
}

func (e InsertViolations) apply(ctx context.Context, w *Writer) error {
	return services.WithTransaction(ctx, w.txMgr, func(ctx context.Context) error {
		return w.repos.Compliance.InsertViolations(ctx, e.Violations)
	})
}

func (e InsertAlerts) apply(ctx context.Context, w *Writer) error {
	return w.repos.Alerts.InsertAlerts(ctx, e.Alerts)
}

func (e InsertAuditLog) apply(ctx context.Context, w *Writer) error {
	return w.repos.Audit.Insert(ctx, e.Log)
}

func (e InsertAuditEvent) apply(ctx context.Context, w *Writer) error {
	return w.repos.Audit.InsertEvent(ctx, e.Event)
}

func (e InsertValidationEvent) apply(ctx context.Context, w *Writer) error {
	return w.repos.ValidationEvents.Insert(ctx, e.Event)
}

func (e TouchBindings) apply(ctx context.Context, w *Writer) error {
	return w.repos.Bindings.TouchViolation(ctx, e.BindingIDs, e.At)
}

// Result is the outcome of one applied effect
type Result struct {
	Kind    Kind
	Rows    int
	Skipped bool
	Err     error
}

// Report lists results in the order effects were given
type Report struct {
	Results []Result
}

// Failed returns the number of effects that returned an error
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Err returns the first error recorded for kind, or nil
func (r Report) Err(kind Kind) error {
	for _, res := range r.Results {
		if res.Kind == kind && res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// Writer applies effects against the repositories
type Writer struct {
	repos  *repositories.Repositories
	txMgr  repositories.TransactionManager
	logger *zap.Logger
}

// NewWriter creates a new effect writer
func NewWriter(repos *repositories.Repositories, txMgr repositories.TransactionManager, logger *zap.Logger) *Writer {
	return &Writer{
		repos:  repos,
		txMgr:  txMgr,
		logger: logger,
	}
}

// Apply runs every effect in order. Empty effects are skipped. Errors never
// stop the list; they are logged and reported.
func (w *Writer) Apply(ctx context.Context, list []Effect) Report {
	report := Report{Results: make([]Result, 0, len(list))}

	for _, e := range list {
		res := Result{Kind: e.Kind(), Rows: e.Size()}
		if res.Rows == 0 {
			res.Skipped = true
			report.Results = append(report.Results, res)
			continue
		}

		if err := e.apply(ctx, w); err != nil {
			res.Err = err
			w.logger.Error("failed to apply effect",
				zap.String("effect", string(res.Kind)),
				zap.Int("rows", res.Rows),
				zap.Error(err),
			)
		}
		report.Results = append(report.Results, res)
	}

	if failed := report.Failed(); failed > 0 {
		w.logger.Warn("effects applied with failures",
			zap.Int("total", len(list)),
			zap.Int("failed", failed),
		)
	}
	return report
}

// Kinds lists the kinds of the given effects, in order
func Kinds(list []Effect) []Kind {
	kinds := make([]Kind, len(list))
	for i, e := range list {
		kinds[i] = e.Kind()
	}
	return kinds
}
