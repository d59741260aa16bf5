package mocks

import (
	"context"
	"time"

	"github.com/Pawieee/microbank/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockLedgerCache struct {
	mock.Mock
}

func (m *MockLedgerCache) GetCurrent(ctx context.Context, loanID string) (*domain.LoanDetail, bool, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.LoanDetail), args.Bool(1), args.Error(2)
}

func (m *MockLedgerCache) SetCurrent(ctx context.Context, detail *domain.LoanDetail) error {
	args := m.Called(ctx, detail)
	return args.Error(0)
}

func (m *MockLedgerCache) Invalidate(ctx context.Context, loanID string) error {
	args := m.Called(ctx, loanID)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) LoanReviewed(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockNotifier) LoanReleased(ctx context.Context, loan *domain.Loan, detail *domain.LoanDetail) error {
	args := m.Called(ctx, loan, detail)
	return args.Error(0)
}

func (m *MockNotifier) LoanSettled(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockNotifier) PaymentDue(ctx context.Context, due *domain.DueLoan) error {
	args := m.Called(ctx, due)
	return args.Error(0)
}

func (m *MockNotifier) PaymentOverdue(ctx context.Context, due *domain.DueLoan) error {
	args := m.Called(ctx, due)
	return args.Error(0)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) ApplicationScored(status string)        { m.Called(status) }
func (m *MockRecorder) LoanStatusChanged(to domain.LoanStatus) { m.Called(to) }
func (m *MockRecorder) PaymentApplied(remarks string, amount decimal.Decimal) {
	m.Called(remarks, amount)
}
func (m *MockRecorder) Contention(op string) { m.Called(op) }
func (m *MockRecorder) RemindersSent(n int)  { m.Called(n) }
func (m *MockRecorder) OverdueLoans(n int)   { m.Called(n) }

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) GetCurrent(ctx context.Context, loanID string) (*domain.LoanDetail, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanDetail), args.Error(1)
}

func (m *MockLedgerRepository) Deactivate(ctx context.Context, loanDetailID string) error {
	args := m.Called(ctx, loanDetailID)
	return args.Error(0)
}

func (m *MockLedgerRepository) Insert(ctx context.Context, detail *domain.LoanDetail) error {
	args := m.Called(ctx, detail)
	return args.Error(0)
}

func (m *MockLedgerRepository) History(ctx context.Context, loanID string) ([]*domain.LoanDetail, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LoanDetail), args.Error(1)
}

func (m *MockLedgerRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]*domain.DueLoan, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DueLoan), args.Error(1)
}

func (m *MockLedgerRepository) ListOverdue(ctx context.Context, before time.Time) ([]*domain.DueLoan, error) {
	args := m.Called(ctx, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DueLoan), args.Error(1)
}
