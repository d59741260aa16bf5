package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment remarks
const (
	RemarksPartial      = "Partial Payment"
	RemarksOnTime       = "On-Time Payment"
	RemarksSettled      = "Settled"
	RemarksFinalPayment = "Final Payment Scheduled"
)

// Payment is an immutable record of money received against a loan.
type Payment struct {
	PaymentID       string          `json:"payment_id" db:"payment_id"`
	LoanID          string          `json:"loan_id" db:"loan_id"`
	AmountPaid      decimal.Decimal `json:"amount_paid" db:"amount_paid"`
	TransactionDate time.Time       `json:"transaction_date" db:"transaction_date"`
	Remarks         string          `json:"remarks" db:"remarks"`
}

type PaymentResult struct {
	Payment    *Payment    `json:"payment"`
	Detail     *LoanDetail `json:"loan_detail"`
	LoanStatus LoanStatus  `json:"loan_status"`
}

type PaymentHistory struct {
	LoanID    string          `json:"loan_id"`
	Payments  []*Payment      `json:"payments"`
	TotalPaid decimal.Decimal `json:"total_paid"`
}
