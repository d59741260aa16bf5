package service

import (
	"context"
	"log/slog"

	"github.com/Pawieee/microbank/internal/domain"
	"github.com/Pawieee/microbank/internal/repository"
	apperrors "github.com/Pawieee/microbank/pkg/errors"
)

// QueryService serves read-only views of loans and their histories.
type QueryService struct {
	repos  repository.Repos
	cache  LedgerCache
	logger *slog.Logger
}

func NewQueryService(repos repository.Repos, cache LedgerCache, logger *slog.Logger) *QueryService {
	return &QueryService{
		repos:  repos,
		cache:  cacheOrNop(cache),
		logger: logger.With("component", "query"),
	}
}

// GetLoan returns the loan with its applicant, current ledger row and most
// recent payment.
func (s *QueryService) GetLoan(ctx context.Context, loanID string) (*domain.LoanView, error) {
	loan, err := s.loan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	view := &domain.LoanView{Loan: loan}

	applicant, err := s.repos.Applicants.GetByID(ctx, loan.ApplicantID)
	switch {
	case err == nil:
		view.Applicant = applicant
	case !isNotFound(err):
		return nil, apperrors.WrapDatabaseError(err)
	}

	if view.Current, err = s.current(ctx, loanID); err != nil {
		return nil, err
	}

	last, err := s.repos.Payments.GetLatestPayment(ctx, loanID)
	switch {
	case err == nil:
		view.LastPayment = last
	case !isNotFound(err):
		return nil, apperrors.WrapDatabaseError(err)
	}

	return view, nil
}

// ListPayments returns the loan's payments, newest first, and their total.
func (s *QueryService) ListPayments(ctx context.Context, loanID string) (*domain.PaymentHistory, error) {
	if _, err := s.loan(ctx, loanID); err != nil {
		return nil, err
	}

	payments, err := s.repos.Payments.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, apperrors.WrapDatabaseError(err)
	}

	total, err := s.repos.Payments.GetTotalPaid(ctx, loanID)
	if err != nil {
		return nil, apperrors.WrapDatabaseError(err)
	}

	return &domain.PaymentHistory{LoanID: loanID, Payments: payments, TotalPaid: total}, nil
}

// LedgerHistory returns every ledger row of the loan, oldest first.
func (s *QueryService) LedgerHistory(ctx context.Context, loanID string) ([]*domain.LoanDetail, error) {
	if _, err := s.loan(ctx, loanID); err != nil {
		return nil, err
	}

	rows, err := s.repos.Ledger.History(ctx, loanID)
	if err != nil {
		return nil, apperrors.WrapDatabaseError(err)
	}
	return rows, nil
}

// ListLoans lists loans in the given status, or all loans when status is
// empty.
func (s *QueryService) ListLoans(ctx context.Context, status string) ([]*domain.Loan, error) {
	st := domain.LoanStatus(status)
	if status != "" && !st.Valid() {
		return nil, apperrors.WrapInvalidField("status", "must be one of: Pending, For Release, Approved, Rejected, Settled")
	}

	loans, err := s.repos.Loans.ListByStatus(ctx, st)
	if err != nil {
		return nil, apperrors.WrapDatabaseError(err)
	}
	return loans, nil
}

func (s *QueryService) loan(ctx context.Context, loanID string) (*domain.Loan, error) {
	loan, err := s.repos.Loans.GetByLoanID(ctx, loanID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.WrapLoanNotFound(loanID)
		}
		return nil, apperrors.WrapDatabaseError(err)
	}
	return loan, nil
}

// current reads through the ledger cache. Cache failures fall back to the
// database.
func (s *QueryService) current(ctx context.Context, loanID string) (*domain.LoanDetail, error) {
	detail, hit, err := s.cache.GetCurrent(ctx, loanID)
	if err != nil {
		s.logger.WarnContext(ctx, "ledger cache read failed", "loan_id", loanID, "error", err)
	} else if hit {
		return detail, nil
	}

	detail, err = s.repos.Ledger.GetCurrent(ctx, loanID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, apperrors.WrapDatabaseError(err)
	}

	if err := s.cache.SetCurrent(ctx, detail); err != nil {
		s.logger.WarnContext(ctx, "ledger cache write failed", "loan_id", loanID, "error", err)
	}
	return detail, nil
}
