package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Pawieee/microbank/internal/domain"

	"github.com/jmoiron/sqlx"
)

const ledgerColumns = `loan_detail_id, loan_id, balance, due_amount, next_due, payments_remaining, is_current, created_at`

const dueLoanSelect = `
		SELECT d.loan_id,
			concat_ws(' ', a.first_name, NULLIF(a.middle_name, ''), a.last_name) AS applicant_name,
			a.email, d.due_amount, d.balance, d.next_due
		FROM loan_details d
		JOIN loans l ON l.loan_id = d.loan_id
		JOIN applicants a ON a.applicant_id = l.applicant_id
		WHERE d.is_current AND l.status = 'Approved' AND d.next_due IS NOT NULL`

type ledgerRepository struct {
	db sqlx.ExtContext
}

func NewLedgerRepository(db sqlx.ExtContext) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) GetCurrent(ctx context.Context, loanID string) (*domain.LoanDetail, error) {
	query := `SELECT ` + ledgerColumns + ` FROM loan_details WHERE loan_id = $1 AND is_current`

	var detail domain.LoanDetail
	if err := sqlx.GetContext(ctx, r.db, &detail, query, loanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &detail, nil
}

func (r *ledgerRepository) Deactivate(ctx context.Context, loanDetailID string) error {
	query := `UPDATE loan_details SET is_current = false WHERE loan_detail_id = $1 AND is_current = true`

	res, err := r.db.ExecContext(ctx, query, loanDetailID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrStaleLedgerRow
	}

	return nil
}

func (r *ledgerRepository) Insert(ctx context.Context, d *domain.LoanDetail) error {
	query := `
		INSERT INTO loan_details (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		d.LoanDetailID,
		d.LoanID,
		d.Balance,
		d.DueAmount,
		d.NextDue,
		d.PaymentsRemaining,
		d.IsCurrent,
		d.CreatedAt,
	)

	return err
}

func (r *ledgerRepository) History(ctx context.Context, loanID string) ([]*domain.LoanDetail, error) {
	// payments_remaining and balance never increase along a history, so they
	// order rows written within the same instant.
	query := `SELECT ` + ledgerColumns + ` FROM loan_details WHERE loan_id = $1
		ORDER BY created_at ASC, payments_remaining DESC, balance DESC`

	rows := []*domain.LoanDetail{}
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, loanID); err != nil {
		return nil, err
	}

	return rows, nil
}

func (r *ledgerRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]*domain.DueLoan, error) {
	query := dueLoanSelect + ` AND d.next_due BETWEEN $1 AND $2 ORDER BY d.next_due ASC`

	due := []*domain.DueLoan{}
	if err := sqlx.SelectContext(ctx, r.db, &due, query, from, to); err != nil {
		return nil, err
	}

	return due, nil
}

func (r *ledgerRepository) ListOverdue(ctx context.Context, before time.Time) ([]*domain.DueLoan, error) {
	query := dueLoanSelect + ` AND d.next_due < $1 ORDER BY d.next_due ASC`

	due := []*domain.DueLoan{}
	if err := sqlx.SelectContext(ctx, r.db, &due, query, before); err != nil {
		return nil, err
	}

	return due, nil
}
