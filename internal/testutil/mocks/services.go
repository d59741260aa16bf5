package mocks

import (
	"context"

	"github.com/Pawieee/microbank/internal/domain"
	"github.com/Pawieee/microbank/internal/scoring"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockApplicationService struct {
	mock.Mock
}

func (m *MockApplicationService) Score(ctx context.Context, req *domain.EligibilityRequest) (*scoring.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scoring.Result), args.Error(1)
}

func (m *MockApplicationService) Submit(ctx context.Context, req *domain.ApplicationRequest) (*domain.SubmissionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SubmissionResult), args.Error(1)
}

func (m *MockApplicationService) Review(ctx context.Context, loanID string, req *domain.ReviewRequest) (*domain.Loan, error) {
	args := m.Called(ctx, loanID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) Release(ctx context.Context, loanID, releaseDate string) (*domain.LoanDetail, error) {
	args := m.Called(ctx, loanID, releaseDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanDetail), args.Error(1)
}

func (m *MockLedgerService) ApplyPayment(ctx context.Context, loanID string, amount decimal.Decimal) (*domain.PaymentResult, error) {
	args := m.Called(ctx, loanID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentResult), args.Error(1)
}

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) GetLoan(ctx context.Context, loanID string) (*domain.LoanView, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanView), args.Error(1)
}

func (m *MockQueryService) ListPayments(ctx context.Context, loanID string) (*domain.PaymentHistory, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentHistory), args.Error(1)
}

func (m *MockQueryService) LedgerHistory(ctx context.Context, loanID string) ([]*domain.LoanDetail, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LoanDetail), args.Error(1)
}

func (m *MockQueryService) ListLoans(ctx context.Context, status string) ([]*domain.Loan, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}
