package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Pawieee/microbank/internal/domain"
	"github.com/Pawieee/microbank/internal/notify"
	"github.com/Pawieee/microbank/internal/repository"
	"github.com/Pawieee/microbank/pkg/amortization"
	apperrors "github.com/Pawieee/microbank/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerService releases loans and applies payments against the loan_details
// history. Every mutation runs under the loan's row lock.
type LedgerService struct {
	uow      repository.UnitOfWork
	cache    LedgerCache
	notifier notify.Notifier
	metrics  Recorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewLedgerService(
	uow repository.UnitOfWork,
	cache LedgerCache,
	notifier notify.Notifier,
	metrics Recorder,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		uow:      uow,
		cache:    cacheOrNop(cache),
		notifier: notifierOrNop(notifier),
		metrics:  recorderOrNop(metrics),
		logger:   logger.With("component", "ledger"),
		now:      time.Now,
	}
}

// Release disburses an approved application: it fixes the schedule, moves the
// loan to Approved and opens the first ledger row.
func (s *LedgerService) Release(ctx context.Context, loanID, releaseDate string) (*domain.LoanDetail, error) {
	released, err := ParseReleaseDate(releaseDate)
	if err != nil {
		return nil, apperrors.WrapInvalidField("release_date", "must be a date in YYYY-MM-DD or RFC 3339 format")
	}

	var (
		loan   *domain.Loan
		detail *domain.LoanDetail
	)

	err = s.uow.WithinLoanTx(ctx, loanID, func(r repository.Repos, l *domain.Loan) error {
		if !l.Status.CanTransitionTo(domain.LoanStatusApproved) {
			return apperrors.WrapInvalidTransition(loanID, string(l.Status), string(domain.LoanStatusApproved))
		}

		if _, err := r.Ledger.GetCurrent(ctx, loanID); err == nil {
			return apperrors.WrapLedgerState(loanID, "loan has already been released")
		} else if !isNotFound(err) {
			return err
		}

		sched := amortization.Calculate(l.Principal, l.InterestRate, l.PaymentTimePeriod, l.PaymentSchedule)
		if sched.Clamped {
			s.logger.WarnContext(ctx, "schedule term clamped to one installment",
				"loan_id", loanID, "term", l.PaymentTimePeriod, "schedule", l.PaymentSchedule)
		}

		now := s.now()
		start := released

		l.Status = domain.LoanStatusApproved
		l.TotalLoan = sched.TotalRepayable
		l.PaymentAmount = sched.InstallmentAmount
		l.PaymentStartDate = &start
		l.UpdatedAt = now
		if err := r.Loans.Update(ctx, l); err != nil {
			return err
		}

		nextDue := amortization.NextDue(released, l.PaymentSchedule)
		d := &domain.LoanDetail{
			LoanDetailID:      uuid.NewString(),
			LoanID:            loanID,
			Balance:           sched.TotalRepayable,
			DueAmount:         sched.FirstDue(),
			NextDue:           &nextDue,
			PaymentsRemaining: sched.TotalInstallments,
			IsCurrent:         true,
			CreatedAt:         now,
		}
		if err := r.Ledger.Insert(ctx, d); err != nil {
			return err
		}

		loan, detail = l, d
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "release", loanID, err)
	}

	s.logger.InfoContext(ctx, "loan released",
		"loan_id", loanID,
		"balance", detail.Balance.StringFixed(2),
		"due_amount", detail.DueAmount.StringFixed(2),
		"payments_remaining", detail.PaymentsRemaining,
	)

	s.publish(ctx, detail)
	s.metrics.LoanStatusChanged(domain.LoanStatusApproved)
	if err := s.notifier.LoanReleased(ctx, loan, detail); err != nil {
		s.logger.ErrorContext(ctx, "release notification failed", "loan_id", loanID, "error", err)
	}

	return detail, nil
}

// ApplyPayment records a payment and appends the resulting ledger row.
// Payments larger than the outstanding balance are refused with the maximum
// acceptable amount and leave the ledger untouched.
func (s *LedgerService) ApplyPayment(ctx context.Context, loanID string, amount decimal.Decimal) (*domain.PaymentResult, error) {
	if !amount.IsPositive() {
		return nil, apperrors.WrapInvalidField("amount", "must be greater than 0")
	}
	if !amount.Equal(amortization.RoundMoney(amount)) {
		return nil, apperrors.WrapInvalidField("amount", "must have at most 2 decimal places")
	}

	var (
		loan   *domain.Loan
		result *domain.PaymentResult
	)

	err := s.uow.WithinLoanTx(ctx, loanID, func(r repository.Repos, l *domain.Loan) error {
		if l.Status != domain.LoanStatusApproved {
			return apperrors.WrapLedgerState(loanID, fmt.Sprintf("cannot accept payments while the loan is %s", l.Status))
		}

		current, err := r.Ledger.GetCurrent(ctx, loanID)
		if err != nil {
			if isNotFound(err) {
				return apperrors.WrapLedgerState(loanID, "loan has no open balance")
			}
			return err
		}

		if amount.GreaterThan(current.Balance) {
			return apperrors.WrapOverpayment(loanID, amount, current.Balance)
		}

		now := s.now()
		next, remarks := NextLedgerRow(current, amount, l.Installment(), l.PaymentSchedule, now)

		if err := r.Ledger.Deactivate(ctx, current.LoanDetailID); err != nil {
			return err
		}

		if next.IsSettled() {
			l.Status = domain.LoanStatusSettled
			l.UpdatedAt = now
			if err := r.Loans.Update(ctx, l); err != nil {
				return err
			}
		}

		if err := r.Ledger.Insert(ctx, next); err != nil {
			return err
		}

		payment := &domain.Payment{
			PaymentID:       uuid.NewString(),
			LoanID:          loanID,
			AmountPaid:      amount,
			TransactionDate: now,
			Remarks:         remarks,
		}
		if err := r.Payments.Create(ctx, payment); err != nil {
			return err
		}

		loan = l
		result = &domain.PaymentResult{Payment: payment, Detail: next, LoanStatus: l.Status}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "apply_payment", loanID, err)
	}

	s.logger.InfoContext(ctx, "payment applied",
		"loan_id", loanID,
		"amount", amount.StringFixed(2),
		"remarks", result.Payment.Remarks,
		"balance", result.Detail.Balance.StringFixed(2),
		"payments_remaining", result.Detail.PaymentsRemaining,
	)

	s.publish(ctx, result.Detail)
	s.metrics.PaymentApplied(result.Payment.Remarks, amount)
	if result.LoanStatus == domain.LoanStatusSettled {
		s.metrics.LoanStatusChanged(domain.LoanStatusSettled)
		if err := s.notifier.LoanSettled(ctx, loan); err != nil {
			s.logger.ErrorContext(ctx, "settlement notification failed", "loan_id", loanID, "error", err)
		}
	}

	return result, nil
}

// NextLedgerRow computes the row that replaces current after a payment of
// amount, along with the payment's remarks. amount must not exceed the
// balance.
func NextLedgerRow(
	current *domain.LoanDetail,
	amount, installment decimal.Decimal,
	freq amortization.Frequency,
	now time.Time,
) (*domain.LoanDetail, string) {
	next := &domain.LoanDetail{
		LoanDetailID:      uuid.NewString(),
		LoanID:            current.LoanID,
		Balance:           amortization.RoundMoney(current.Balance.Sub(amount)),
		DueAmount:         amortization.RoundMoney(current.DueAmount.Sub(amount)),
		NextDue:           current.NextDue,
		PaymentsRemaining: current.PaymentsRemaining,
		IsCurrent:         true,
		CreatedAt:         now,
	}

	switch {
	case next.Balance.IsZero():
		next.DueAmount = decimal.Zero
		next.PaymentsRemaining = 0
		next.NextDue = nil
		return next, domain.RemarksSettled

	case !next.DueAmount.IsPositive():
		base := now
		if current.NextDue != nil {
			base = *current.NextDue
		}
		due := amortization.NextDue(base, freq)
		next.NextDue = &due

		// a positive balance always leaves at least one installment
		next.PaymentsRemaining--
		if next.PaymentsRemaining < 1 {
			next.PaymentsRemaining = 1
		}

		if next.PaymentsRemaining == 1 {
			next.DueAmount = next.Balance
			return next, domain.RemarksFinalPayment
		}
		next.DueAmount = decimal.Min(next.Balance, installment)
		return next, domain.RemarksOnTime

	default:
		return next, domain.RemarksPartial
	}
}

// ParseReleaseDate accepts a calendar date or an RFC 3339 timestamp.
func ParseReleaseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// publish writes the committed row through to the cache. If that fails the
// entry is dropped instead so readers go back to the database.
func (s *LedgerService) publish(ctx context.Context, detail *domain.LoanDetail) {
	err := s.cache.SetCurrent(ctx, detail)
	if err == nil {
		return
	}
	s.logger.WarnContext(ctx, "ledger cache write failed", "loan_id", detail.LoanID, "error", err)
	if err := s.cache.Invalidate(ctx, detail.LoanID); err != nil {
		s.logger.WarnContext(ctx, "ledger cache invalidation failed", "loan_id", detail.LoanID, "error", err)
	}
}

// fail classifies err, logs unexpected failures and counts contention.
func (s *LedgerService) fail(ctx context.Context, op, loanID string, err error) error {
	err = asBusinessError(err)

	switch {
	case apperrors.Is(err, apperrors.ErrContention):
		s.metrics.Contention(op)
		s.logger.WarnContext(ctx, "loan busy", "op", op, "loan_id", loanID, "error", err)
	case apperrors.Is(err, apperrors.ErrPersistence):
		s.logger.ErrorContext(ctx, "ledger update failed", "op", op, "loan_id", loanID, "error", err)
	}

	return err
}
