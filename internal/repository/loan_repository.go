package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Pawieee/microbank/internal/domain"

	"github.com/jmoiron/sqlx"
)

const loanColumns = `loan_id, applicant_id, loan_plan_lvl, principal, interest_rate, total_loan, payment_amount,
		payment_time_period, payment_schedule, loan_purpose, disbursement_method, disbursement_account_number,
		status, application_date, payment_start_date, remarks, updated_at`

type loanRepository struct {
	db sqlx.ExtContext
}

func NewLoanRepository(db sqlx.ExtContext) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.ExecContext(ctx, query,
		loan.LoanID,
		loan.ApplicantID,
		loan.PlanLevel,
		loan.Principal,
		loan.InterestRate,
		loan.TotalLoan,
		loan.PaymentAmount,
		loan.PaymentTimePeriod,
		loan.PaymentSchedule,
		loan.LoanPurpose,
		loan.DisbursementMethod,
		loan.DisbursementAccountNumber,
		loan.Status,
		loan.ApplicationDate,
		loan.PaymentStartDate,
		loan.Remarks,
		loan.UpdatedAt,
	)

	return err
}

func (r *loanRepository) GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error) {
	return r.get(ctx, `SELECT `+loanColumns+` FROM loans WHERE loan_id = $1`, loanID)
}

func (r *loanRepository) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*domain.Loan, error) {
	return r.get(ctx, `SELECT `+loanColumns+` FROM loans WHERE loan_id = $1 FOR UPDATE`, loanID)
}

func (r *loanRepository) get(ctx context.Context, query, loanID string) (*domain.Loan, error) {
	var loan domain.Loan
	if err := sqlx.GetContext(ctx, r.db, &loan, query, loanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &loan, nil
}

func (r *loanRepository) Update(ctx context.Context, loan *domain.Loan) error {
	query := `
		UPDATE loans
		SET loan_plan_lvl = $2, interest_rate = $3, total_loan = $4, payment_amount = $5, status = $6,
			payment_start_date = $7, remarks = $8, updated_at = $9
		WHERE loan_id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		loan.LoanID,
		loan.PlanLevel,
		loan.InterestRate,
		loan.TotalLoan,
		loan.PaymentAmount,
		loan.Status,
		loan.PaymentStartDate,
		loan.Remarks,
		loan.UpdatedAt,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *loanRepository) ListByStatus(ctx context.Context, status domain.LoanStatus) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY application_date DESC`

	loans := []*domain.Loan{}
	if err := sqlx.SelectContext(ctx, r.db, &loans, query, args...); err != nil {
		return nil, err
	}

	return loans, nil
}
