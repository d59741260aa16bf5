package service

import (
	"context"
	"errors"
	"time"

	"github.com/Pawieee/microbank/internal/domain"
	"github.com/Pawieee/microbank/internal/notify"
	"github.com/Pawieee/microbank/internal/repository"
	apperrors "github.com/Pawieee/microbank/pkg/errors"
	"github.com/shopspring/decimal"
)

// LedgerCache holds current ledger rows for reads. Writers store the new row
// after commit and SetCurrent must ignore rows older than the cached one; the
// database stays authoritative.
type LedgerCache interface {
	GetCurrent(ctx context.Context, loanID string) (*domain.LoanDetail, bool, error)
	SetCurrent(ctx context.Context, detail *domain.LoanDetail) error
	Invalidate(ctx context.Context, loanID string) error
}

// Recorder receives business metrics.
type Recorder interface {
	ApplicationScored(status string)
	LoanStatusChanged(to domain.LoanStatus)
	PaymentApplied(remarks string, amount decimal.Decimal)
	Contention(op string)
	RemindersSent(n int)
	OverdueLoans(n int)
}

type nopCache struct{}

func (nopCache) GetCurrent(context.Context, string) (*domain.LoanDetail, bool, error) {
	return nil, false, nil
}
func (nopCache) SetCurrent(context.Context, *domain.LoanDetail) error { return nil }
func (nopCache) Invalidate(context.Context, string) error             { return nil }

type nopRecorder struct{}

func (nopRecorder) ApplicationScored(string)               {}
func (nopRecorder) LoanStatusChanged(domain.LoanStatus)    {}
func (nopRecorder) PaymentApplied(string, decimal.Decimal) {}
func (nopRecorder) Contention(string)                      {}
func (nopRecorder) RemindersSent(int)                      {}
func (nopRecorder) OverdueLoans(int)                       {}

type nopNotifier struct{}

func (nopNotifier) LoanReviewed(context.Context, *domain.Loan) error                     { return nil }
func (nopNotifier) LoanReleased(context.Context, *domain.Loan, *domain.LoanDetail) error { return nil }
func (nopNotifier) LoanSettled(context.Context, *domain.Loan) error                      { return nil }
func (nopNotifier) PaymentDue(context.Context, *domain.DueLoan) error                    { return nil }
func (nopNotifier) PaymentOverdue(context.Context, *domain.DueLoan) error                { return nil }

func cacheOrNop(c LedgerCache) LedgerCache {
	if c == nil {
		return nopCache{}
	}
	return c
}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

func notifierOrNop(n notify.Notifier) notify.Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// asBusinessError passes typed errors through and reports anything else as a
// persistence failure.
func asBusinessError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.WrapDatabaseError(err)
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
