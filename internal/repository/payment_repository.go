package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Pawieee/microbank/internal/domain"
	"github.com/shopspring/decimal"

	"github.com/jmoiron/sqlx"
)

const paymentColumns = `payment_id, loan_id, amount_paid, transaction_date, remarks`

type paymentRepository struct {
	db sqlx.ExtContext
}

func NewPaymentRepository(db sqlx.ExtContext) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		payment.PaymentID,
		payment.LoanID,
		payment.AmountPaid,
		payment.TransactionDate,
		payment.Remarks,
	)

	return err
}

func (r *paymentRepository) GetByLoanID(ctx context.Context, loanID string) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE loan_id = $1 ORDER BY transaction_date DESC`

	payments := []*domain.Payment{}
	if err := sqlx.SelectContext(ctx, r.db, &payments, query, loanID); err != nil {
		return nil, err
	}

	return payments, nil
}

func (r *paymentRepository) GetTotalPaid(ctx context.Context, loanID string) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount_paid), 0) FROM payments WHERE loan_id = $1`

	var total decimal.Decimal
	if err := sqlx.GetContext(ctx, r.db, &total, query, loanID); err != nil {
		return decimal.Zero, err
	}

	return total, nil
}

func (r *paymentRepository) GetLatestPayment(ctx context.Context, loanID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE loan_id = $1 ORDER BY transaction_date DESC LIMIT 1`

	var payment domain.Payment
	if err := sqlx.GetContext(ctx, r.db, &payment, query, loanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &payment, nil
}
