package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Pawieee/microbank/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by single-row lookups that match nothing.
	ErrNotFound = errors.New("record not found")

	// ErrStaleLedgerRow means the row a writer meant to close was already
	// closed by someone else.
	ErrStaleLedgerRow = errors.New("ledger row is no longer current")
)

// ApplicantRepository defines the interface for applicant data operations
type ApplicantRepository interface {
	// Create inserts an applicant. Applicants are never updated.
	Create(ctx context.Context, applicant *domain.Applicant) error

	// GetByID retrieves an applicant by ID
	GetByID(ctx context.Context, applicantID string) (*domain.Applicant, error)
}

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create creates a new loan
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByLoanID retrieves a loan by its loan ID
	GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error)

	// GetByLoanIDForUpdate retrieves a loan and row-locks it until the
	// surrounding transaction ends.
	GetByLoanIDForUpdate(ctx context.Context, loanID string) (*domain.Loan, error)

	// Update updates a loan
	Update(ctx context.Context, loan *domain.Loan) error

	// ListByStatus lists loans, newest application first. An empty status
	// lists every loan.
	ListByStatus(ctx context.Context, status domain.LoanStatus) ([]*domain.Loan, error)
}

// LedgerRepository manages the loan_details history.
type LedgerRepository interface {
	// GetCurrent returns the loan's current row or ErrNotFound.
	GetCurrent(ctx context.Context, loanID string) (*domain.LoanDetail, error)

	// Deactivate closes a current row. It returns ErrStaleLedgerRow when the
	// row is not current anymore.
	Deactivate(ctx context.Context, loanDetailID string) error

	// Insert appends a row.
	Insert(ctx context.Context, detail *domain.LoanDetail) error

	// History returns every row of a loan, oldest first.
	History(ctx context.Context, loanID string) ([]*domain.LoanDetail, error)

	// ListDueBetween returns current rows with next_due in [from, to].
	ListDueBetween(ctx context.Context, from, to time.Time) ([]*domain.DueLoan, error)

	// ListOverdue returns current rows with next_due before the given day.
	ListOverdue(ctx context.Context, before time.Time) ([]*domain.DueLoan, error)
}

// PaymentRepository defines the interface for payment data operations
type PaymentRepository interface {
	// Create creates a new payment record
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByLoanID retrieves all payments for a loan, newest first
	GetByLoanID(ctx context.Context, loanID string) ([]*domain.Payment, error)

	// GetTotalPaid calculates total amount paid for a loan
	GetTotalPaid(ctx context.Context, loanID string) (decimal.Decimal, error)

	// GetLatestPayment gets the most recent payment for a loan or ErrNotFound
	GetLatestPayment(ctx context.Context, loanID string) (*domain.Payment, error)
}

// Repos is the set of repositories bound to one transaction.
type Repos struct {
	Applicants ApplicantRepository
	Loans      LoanRepository
	Ledger     LedgerRepository
	Payments   PaymentRepository
}

// UnitOfWork runs work atomically.
type UnitOfWork interface {
	// WithinTx runs fn in a transaction. A non-nil error from fn rolls back.
	WithinTx(ctx context.Context, fn func(r Repos) error) error

	// WithinLoanTx locks the loan row first and hands it to fn, so all work
	// on one loan is serialized.
	WithinLoanTx(ctx context.Context, loanID string, fn func(r Repos, l *domain.Loan) error) error
}
