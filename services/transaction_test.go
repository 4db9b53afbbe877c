package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/upb/governance-engine/repositories"
)

// MockTransactionManager is a mock implementation of TransactionManager
type MockTransactionManager struct {
	mock.Mock
}

func (m *MockTransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	args := m.Called(ctx)
	if tx := args.Get(0); tx != nil {
		return tx.(repositories.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

// MockTransaction is a mock implementation of Transaction
type MockTransaction struct {
	mock.Mock
	committed  bool
	rolledback bool
}

func (m *MockTransaction) Commit() error {
	args := m.Called()
	m.committed = true
	return args.Error(0)
}

func (m *MockTransaction) Rollback() error {
	args := m.Called()
	m.rolledback = true
	return args.Error(0)
}

func (m *MockTransaction) Context() context.Context {
	args := m.Called()
	return args.Get(0).(context.Context)
}

type txMarker struct{}

func TestWithTransaction_Success(t *testing.T) {
	ctx := context.Background()
	txCtx := context.WithValue(ctx, txMarker{}, "tx")
	mockTxMgr := new(MockTransactionManager)
	mockTx := new(MockTransaction)

	mockTxMgr.On("Begin", ctx).Return(mockTx, nil)
	mockTx.On("Context").Return(txCtx)
	mockTx.On("Commit").Return(nil)

	var seen context.Context
	err := WithTransaction(ctx, mockTxMgr, func(ctx context.Context) error {
		seen = ctx
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "tx", seen.Value(txMarker{}))
	assert.True(t, mockTx.committed)
	assert.False(t, mockTx.rolledback)
	mockTxMgr.AssertExpectations(t)
	mockTx.AssertExpectations(t)
}

func TestWithTransaction_ErrorInFunction(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTx := new(MockTransaction)
	expectedErr := errors.New("insert failed")

	mockTxMgr.On("Begin", ctx).Return(mockTx, nil)
	mockTx.On("Context").Return(ctx)
	mockTx.On("Rollback").Return(nil)

	err := WithTransaction(ctx, mockTxMgr, func(ctx context.Context) error {
		return expectedErr
	})

	assert.Equal(t, expectedErr, err)
	assert.False(t, mockTx.committed)
	assert.True(t, mockTx.rolledback)
	mockTxMgr.AssertExpectations(t)
	mockTx.AssertExpectations(t)
}

func TestWithTransaction_BeginError(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)

	mockTxMgr.On("Begin", ctx).Return(nil, errors.New("connection refused"))

	err := WithTransaction(ctx, mockTxMgr, func(ctx context.Context) error {
		return nil
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
	mockTxMgr.AssertExpectations(t)
}

func TestWithTransaction_CommitError(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTx := new(MockTransaction)

	mockTxMgr.On("Begin", ctx).Return(mockTx, nil)
	mockTx.On("Context").Return(ctx)
	mockTx.On("Commit").Return(errors.New("commit failed"))

	err := WithTransaction(ctx, mockTxMgr, func(ctx context.Context) error {
		return nil
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
	assert.True(t, mockTx.committed)
}

func TestWithTransaction_RollbackError(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTx := new(MockTransaction)

	mockTxMgr.On("Begin", ctx).Return(mockTx, nil)
	mockTx.On("Context").Return(ctx)
	mockTx.On("Rollback").Return(errors.New("rollback failed"))

	err := WithTransaction(ctx, mockTxMgr, func(ctx context.Context) error {
		return errors.New("insert failed")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "transaction error")
	assert.Contains(t, err.Error(), "rollback error")
	assert.True(t, mockTx.rolledback)
}

func TestWithTransaction_PanicRollsBack(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTx := new(MockTransaction)

	mockTxMgr.On("Begin", ctx).Return(mockTx, nil)
	mockTx.On("Context").Return(ctx)
	mockTx.On("Rollback").Return(nil)

	assert.Panics(t, func() {
		_ = WithTransaction(ctx, mockTxMgr, func(ctx context.Context) error {
			panic("boom")
		})
	})
	assert.True(t, mockTx.rolledback)
	assert.False(t, mockTx.committed)
}
