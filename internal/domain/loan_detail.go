package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanDetail is one row of a loan's balance history. A loan has at most one
// current row; every release or payment closes the current row and appends a
// new one.
type LoanDetail struct {
	LoanDetailID      string          `json:"loan_detail_id" db:"loan_detail_id"`
	LoanID            string          `json:"loan_id" db:"loan_id"`
	Balance           decimal.Decimal `json:"balance" db:"balance"`
	DueAmount         decimal.Decimal `json:"due_amount" db:"due_amount"`
	NextDue           *time.Time      `json:"next_due" db:"next_due"`
	PaymentsRemaining int             `json:"payments_remaining" db:"payments_remaining"`
	IsCurrent         bool            `json:"is_current" db:"is_current"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// IsSettled is true once nothing is owed.
func (d *LoanDetail) IsSettled() bool {
	return d.Balance.IsZero()
}

// DueLoan joins a current ledger row with the contact data needed to remind
// the borrower.
type DueLoan struct {
	LoanID        string          `json:"loan_id" db:"loan_id"`
	ApplicantName string          `json:"applicant_name" db:"applicant_name"`
	Email         string          `json:"email" db:"email"`
	DueAmount     decimal.Decimal `json:"due_amount" db:"due_amount"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	NextDue       time.Time       `json:"next_due" db:"next_due"`
}
