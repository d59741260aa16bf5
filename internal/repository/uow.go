package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Pawieee/microbank/internal/domain"
	apperrors "github.com/Pawieee/microbank/pkg/errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Postgres error codes that mean "try again".
const (
	pqLockNotAvailable     = "55P03"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"

	// raised when an id is not a valid UUID
	pqInvalidTextRepresentation = "22P02"
)

// IsContention reports whether err is a lock timeout, serialization failure
// or deadlock.
func IsContention(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case pqLockNotAvailable, pqSerializationFailure, pqDeadlockDetected:
		return true
	}
	return false
}

// isMalformedID reports whether Postgres rejected a lookup key as
// unparseable. No row can match such a key.
func isMalformedID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqInvalidTextRepresentation
}

// ReposFor binds every repository to db, which may be a *sqlx.DB or *sqlx.Tx.
func ReposFor(db sqlx.ExtContext) Repos {
	return Repos{
		Applicants: NewApplicantRepository(db),
		Loans:      NewLoanRepository(db),
		Ledger:     NewLedgerRepository(db),
		Payments:   NewPaymentRepository(db),
	}
}

type sqlUnitOfWork struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewUnitOfWork returns a UnitOfWork over db. lockTimeout bounds how long
// WithinLoanTx waits for a busy loan; zero waits forever.
func NewUnitOfWork(db *sqlx.DB, lockTimeout time.Duration) UnitOfWork {
	return &sqlUnitOfWork{db: db, lockTimeout: lockTimeout}
}

func (u *sqlUnitOfWork) WithinTx(ctx context.Context, fn func(r Repos) error) error {
	return u.run(ctx, "", func(tx *sqlx.Tx) error {
		return fn(ReposFor(tx))
	})
}

func (u *sqlUnitOfWork) WithinLoanTx(ctx context.Context, loanID string, fn func(r Repos, l *domain.Loan) error) error {
	return u.run(ctx, loanID, func(tx *sqlx.Tx) error {
		if u.lockTimeout > 0 {
			// SET does not take bind parameters.
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", u.lockTimeout.Milliseconds())
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}

		r := ReposFor(tx)

		// lock the loan row up-front to prevent races
		l, err := r.Loans.GetByLoanIDForUpdate(ctx, loanID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return apperrors.WrapLoanNotFound(loanID)
			}
			return err
		}

		return fn(r, l)
	})
}

func (u *sqlUnitOfWork) run(ctx context.Context, loanID string, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := u.db.BeginTxx(ctx, nil)
	if err != nil {
		return TranslateTxError(loanID, fmt.Errorf("begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return TranslateTxError(loanID, err)
	}

	if err := tx.Commit(); err != nil {
		return TranslateTxError(loanID, fmt.Errorf("commit transaction: %w", err))
	}

	return nil
}

// TranslateTxError turns retryable database failures and stale ledger rows
// into a contention error and leaves everything else alone.
func TranslateTxError(loanID string, err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if IsContention(err) || errors.Is(err, ErrStaleLedgerRow) {
		return apperrors.WrapContention(loanID, err)
	}
	return err
}
