// Package mocks provides testify mocks of the repository interfaces for service tests.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/repositories"
)

// ActivityRepository is a mock implementation of repositories.ActivityRepository
type ActivityRepository struct{ mock.Mock }

func (m *ActivityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	args := m.Called(ctx, id)
	if a := args.Get(0); a != nil {
		return a.(*models.Activity), args.Error(1)
	}
	return nil, args.Error(1)
}

// PolicyRepository is a mock implementation of repositories.PolicyRepository
type PolicyRepository struct{ mock.Mock }

func (m *PolicyRepository) GetActiveByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Policy, error) {
	args := m.Called(ctx, orgID)
	if p := args.Get(0); p != nil {
		return p.([]*models.Policy), args.Error(1)
	}
	return nil, args.Error(1)
}

// BindingRepository is a mock implementation of repositories.BindingRepository
type BindingRepository struct{ mock.Mock }

func (m *BindingRepository) GetActiveBindings(ctx context.Context, toolVersionID, workspaceID uuid.UUID) ([]*models.RuntimeBinding, error) {
	args := m.Called(ctx, toolVersionID, workspaceID)
	if b := args.Get(0); b != nil {
		return b.([]*models.RuntimeBinding), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *BindingRepository) TouchViolation(ctx context.Context, bindingIDs []uuid.UUID, at time.Time) error {
	args := m.Called(ctx, bindingIDs, at)
	return args.Error(0)
}

// SnapshotRepository is a mock implementation of repositories.SnapshotRepository
type SnapshotRepository struct{ mock.Mock }

func (m *SnapshotRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EffectivePolicySnapshot, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*models.EffectivePolicySnapshot), args.Error(1)
	}
	return nil, args.Error(1)
}

// ComplianceRepository is a mock implementation of repositories.ComplianceRepository
type ComplianceRepository struct{ mock.Mock }

func (m *ComplianceRepository) InsertChecks(ctx context.Context, checks []models.ComplianceCheck) error {
	args := m.Called(ctx, checks)
	return args.Error(0)
}

func (m *ComplianceRepository) InsertViolations(ctx context.Context, violations []models.ComplianceViolation) error {
	args := m.Called(ctx, violations)
	return args.Error(0)
}

// AlertRepository is a mock implementation of repositories.AlertRepository
type AlertRepository struct{ mock.Mock }

func (m *AlertRepository) InsertAlerts(ctx context.Context, alerts []models.Alert) error {
	args := m.Called(ctx, alerts)
	return args.Error(0)
}

// AuditRepository is a mock implementation of repositories.AuditRepository.
// It is safe for use from the async audit writer.
type AuditRepository struct {
	mock.Mock
	mu sync.Mutex
}

func (m *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *AuditRepository) InsertEvent(ctx context.Context, event *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *AuditRepository) InsertSecurityEntry(ctx context.Context, entry *models.SecurityAuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// ValidationEventRepository is a mock implementation of repositories.ValidationEventRepository
type ValidationEventRepository struct{ mock.Mock }

func (m *ValidationEventRepository) Insert(ctx context.Context, event *models.ValidationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// TenantRepository is a mock implementation of repositories.TenantRepository
type TenantRepository struct{ mock.Mock }

func (m *TenantRepository) IsMember(ctx context.Context, enterpriseID uuid.UUID, userID string) (bool, error) {
	args := m.Called(ctx, enterpriseID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *TenantRepository) WorkspaceEnterprise(ctx context.Context, workspaceID uuid.UUID) (uuid.UUID, error) {
	args := m.Called(ctx, workspaceID)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *TenantRepository) ProjectOrganization(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *TenantRepository) WorkspaceOrganization(ctx context.Context, workspaceID uuid.UUID) (uuid.UUID, error) {
	args := m.Called(ctx, workspaceID)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

// TransactionManager runs transactions without a database. Begin returns a
// Transaction whose context carries a marker so tests can tell which writes
// happened inside one.
type TransactionManager struct {
	mu         sync.Mutex
	Begun      int
	Committed  int
	RolledBack int
	BeginErr   error
}

type txKey struct{}

// InTx reports whether ctx was produced by a TransactionManager transaction
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*Transaction)
	return ok
}

func (m *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BeginErr != nil {
		return nil, m.BeginErr
	}
	m.Begun++
	tx := &Transaction{mgr: m}
	tx.ctx = context.WithValue(ctx, txKey{}, tx)
	return tx, nil
}

func (m *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx.Context(), tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Counts returns begun, committed and rolled back transaction counts
func (m *TransactionManager) Counts() (begun, committed, rolledBack int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Begun, m.Committed, m.RolledBack
}

// Transaction is the transaction handed out by TransactionManager
type Transaction struct {
	mgr *TransactionManager
	ctx context.Context
}

func (t *Transaction) Commit() error {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	t.mgr.Committed++
	return nil
}

func (t *Transaction) Rollback() error {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	t.mgr.RolledBack++
	return nil
}

func (t *Transaction) Context() context.Context {
	return t.ctx
}

// Set bundles one mock per repository
type Set struct {
	Activities       *ActivityRepository
	Policies         *PolicyRepository
	Bindings         *BindingRepository
	Snapshots        *SnapshotRepository
	Compliance       *ComplianceRepository
	Alerts           *AlertRepository
	Audit            *AuditRepository
	ValidationEvents *ValidationEventRepository
	Tenants          *TenantRepository
	Tx               *TransactionManager
}

// NewSet creates fresh mocks for every repository
func NewSet() *Set {
	return &Set{
		Activities:       new(ActivityRepository),
		Policies:         new(PolicyRepository),
		Bindings:         new(BindingRepository),
		Snapshots:        new(SnapshotRepository),
		Compliance:       new(ComplianceRepository),
		Alerts:           new(AlertRepository),
		Audit:            new(AuditRepository),
		ValidationEvents: new(ValidationEventRepository),
		Tenants:          new(TenantRepository),
		Tx:               new(TransactionManager),
	}
}

// Repositories exposes the set through the production aggregate
func (s *Set) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Activities:       s.Activities,
		Policies:         s.Policies,
		Bindings:         s.Bindings,
		Snapshots:        s.Snapshots,
		Compliance:       s.Compliance,
		Alerts:           s.Alerts,
		Audit:            s.Audit,
		ValidationEvents: s.ValidationEvents,
		Tenants:          s.Tenants,
	}
}
