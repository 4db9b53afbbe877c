package effects

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/repositories/mocks"
	"go.uber.org/zap"
)

func inTx(ctx context.Context) bool { return mocks.InTx(ctx) }

func TestWriter_AppliesInOrder(t *testing.T) {
	set := mocks.NewSet()
	w := NewWriter(set.Repositories(), set.Tx, zap.NewNop())

	checks := []models.ComplianceCheck{{ID: uuid.New()}, {ID: uuid.New()}}
	violations := []models.ComplianceViolation{{ID: uuid.New()}}
	alerts := []models.Alert{{ID: uuid.New()}, {ID: uuid.New()}}
	log := models.NewAuditLog(uuid.New(), models.AuditActionComplianceCheckCompleted, models.EntityTypeAgentActivity)

	set.Compliance.On("InsertChecks", mock.MatchedBy(inTx), checks).Return(nil)
	set.Compliance.On("InsertViolations", mock.MatchedBy(inTx), violations).Return(nil)
	set.Alerts.On("InsertAlerts", mock.Anything, alerts).Return(nil)
	set.Audit.On("Insert", mock.Anything, log).Return(nil)

	report := w.Apply(context.Background(), []Effect{
		InsertChecks{Checks: checks},
		InsertViolations{Violations: violations},
		InsertAlerts{Alerts: alerts},
		InsertAuditLog{Log: log},
	})

	require.Len(t, report.Results, 4)
	assert.Equal(t, 0, report.Failed())
	assert.Equal(t, []Kind{KindInsertChecks, KindInsertViolations, KindInsertAlerts, KindInsertAuditLog},
		[]Kind{report.Results[0].Kind, report.Results[1].Kind, report.Results[2].Kind, report.Results[3].Kind})
	assert.Equal(t, 2, report.Results[0].Rows)

	begun, committed, rolledBack := set.Tx.Counts()
	assert.Equal(t, 2, begun)
	assert.Equal(t, 2, committed)
	assert.Equal(t, 0, rolledBack)

	set.Compliance.AssertExpectations(t)
	set.Alerts.AssertExpectations(t)
	set.Audit.AssertExpectations(t)
}

func TestWriter_FailureDoesNotStopList(t *testing.T) {
	set := mocks.NewSet()
	w := NewWriter(set.Repositories(), set.Tx, zap.NewNop())

	checkErr := errors.New("unique violation")
	set.Compliance.On("InsertChecks", mock.Anything, mock.Anything).Return(checkErr)
	set.Compliance.On("InsertViolations", mock.Anything, mock.Anything).Return(nil)
	set.Audit.On("Insert", mock.Anything, mock.Anything).Return(errors.New("audit db down"))
	set.Bindings.On("TouchViolation", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	report := w.Apply(context.Background(), []Effect{
		InsertChecks{Checks: []models.ComplianceCheck{{ID: uuid.New()}}},
		InsertViolations{Violations: []models.ComplianceViolation{{ID: uuid.New()}}},
		InsertAuditLog{Log: models.NewAuditLog(uuid.New(), models.AuditActionComplianceCheckCompleted, models.EntityTypeAgentActivity)},
		TouchBindings{BindingIDs: []uuid.UUID{uuid.New()}, At: time.Now()},
	})

	assert.Equal(t, 2, report.Failed())
	assert.ErrorIs(t, report.Err(KindInsertChecks), checkErr)
	assert.NoError(t, report.Err(KindInsertViolations))
	assert.Error(t, report.Err(KindInsertAuditLog))
	assert.NoError(t, report.Err(KindTouchBindings))

	_, committed, rolledBack := set.Tx.Counts()
	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, rolledBack)
	set.Bindings.AssertExpectations(t)
}

func TestWriter_SkipsEmptyEffects(t *testing.T) {
	set := mocks.NewSet()
	w := NewWriter(set.Repositories(), set.Tx, zap.NewNop())

	report := w.Apply(context.Background(), []Effect{
		InsertChecks{},
		InsertViolations{},
		InsertAlerts{},
		InsertAuditEvent{},
		TouchBindings{},
	})

	require.Len(t, report.Results, 5)
	for _, res := range report.Results {
		assert.True(t, res.Skipped, res.Kind)
	}
	begun, _, _ := set.Tx.Counts()
	assert.Equal(t, 0, begun)
	set.Compliance.AssertNotCalled(t, "InsertChecks", mock.Anything, mock.Anything)
}

func TestWriter_BeginFailureReported(t *testing.T) {
	set := mocks.NewSet()
	set.Tx.BeginErr = errors.New("pool exhausted")
	w := NewWriter(set.Repositories(), set.Tx, zap.NewNop())

	report := w.Apply(context.Background(), []Effect{
		InsertChecks{Checks: []models.ComplianceCheck{{ID: uuid.New()}}},
	})

	require.Error(t, report.Err(KindInsertChecks))
	assert.Contains(t, report.Err(KindInsertChecks).Error(), "failed to begin transaction")
}

func TestWriter_ValidationAndAuditEvents(t *testing.T) {
	set := mocks.NewSet()
	w := NewWriter(set.Repositories(), set.Tx, zap.NewNop())

	event := &models.ValidationEvent{ID: uuid.New(), Decision: models.DecisionAllowed}
	auditEvent := &models.AuditEvent{ID: uuid.New(), EventType: models.AuditEventEPSMissingFallback}
	set.ValidationEvents.On("Insert", mock.Anything, event).Return(nil)
	set.Audit.On("InsertEvent", mock.Anything, auditEvent).Return(nil)

	list := []Effect{InsertAuditEvent{Event: auditEvent}, InsertValidationEvent{Event: event}}
	report := w.Apply(context.Background(), list)

	assert.Equal(t, 0, report.Failed())
	assert.Equal(t, []Kind{KindInsertAuditEvent, KindInsertValidationEvent}, Kinds(list))
	set.ValidationEvents.AssertExpectations(t)
	set.Audit.AssertExpectations(t)
}
