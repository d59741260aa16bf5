package domain

import (
	"time"

	"github.com/Pawieee/microbank/pkg/amortization"
	"github.com/shopspring/decimal"
)

// LoanStatus is a stage of the loan lifecycle.
type LoanStatus string

const (
	LoanStatusPending    LoanStatus = "Pending"
	LoanStatusForRelease LoanStatus = "For Release"
	LoanStatusApproved   LoanStatus = "Approved"
	LoanStatusRejected   LoanStatus = "Rejected"
	LoanStatusSettled    LoanStatus = "Settled"
)

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusPending:    {LoanStatusForRelease, LoanStatusRejected, LoanStatusApproved},
	LoanStatusForRelease: {LoanStatusApproved, LoanStatusRejected},
	LoanStatusApproved:   {LoanStatusSettled},
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal is true for Settled and Rejected.
func (s LoanStatus) IsTerminal() bool {
	return len(loanTransitions[s]) == 0
}

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusPending, LoanStatusForRelease, LoanStatusApproved, LoanStatusRejected, LoanStatusSettled:
		return true
	}
	return false
}

// Loan represents a loan entity
type Loan struct {
	LoanID                    string                 `json:"loan_id" db:"loan_id"`
	ApplicantID               string                 `json:"applicant_id" db:"applicant_id"`
	PlanLevel                 int                    `json:"loan_plan_lvl" db:"loan_plan_lvl"`
	Principal                 decimal.Decimal        `json:"principal" db:"principal"`
	InterestRate              decimal.Decimal        `json:"interest_rate" db:"interest_rate"`
	TotalLoan                 decimal.Decimal        `json:"total_loan" db:"total_loan"`
	PaymentAmount             decimal.Decimal        `json:"payment_amount" db:"payment_amount"`
	PaymentTimePeriod         int                    `json:"payment_time_period" db:"payment_time_period"`
	PaymentSchedule           amortization.Frequency `json:"payment_schedule" db:"payment_schedule"`
	LoanPurpose               string                 `json:"loan_purpose" db:"loan_purpose"`
	DisbursementMethod        string                 `json:"disbursement_method" db:"disbursement_method"`
	DisbursementAccountNumber string                 `json:"disbursement_account_number,omitempty" db:"disbursement_account_number"`
	Status                    LoanStatus             `json:"status" db:"status"`
	ApplicationDate           time.Time              `json:"application_date" db:"application_date"`
	PaymentStartDate          *time.Time             `json:"payment_start_date,omitempty" db:"payment_start_date"`
	Remarks                   *string                `json:"remarks,omitempty" db:"remarks"`
	UpdatedAt                 time.Time              `json:"updated_at" db:"updated_at"`
}

// Installment is the scheduled per-period amount for this loan.
func (l *Loan) Installment() decimal.Decimal {
	if l.PaymentAmount.IsPositive() {
		return l.PaymentAmount
	}
	return amortization.InstallmentFor(l.TotalLoan, l.PaymentTimePeriod, l.PaymentSchedule)
}

// DTOs for requests and responses

// ReviewDecision is a staff decision on a pending application.
type ReviewDecision string

const (
	ReviewApprove ReviewDecision = "approve"
	ReviewReject  ReviewDecision = "reject"
)

type ReviewRequest struct {
	Decision ReviewDecision `json:"decision" validate:"required,oneof=approve reject"`
	Remarks  string         `json:"remarks" validate:"required_if=Decision reject,max=500"`
}

type ReleaseRequest struct {
	ReleaseDate string `json:"release_date" validate:"required"`
}

type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"decimal_gt=0,money"`
}

// LoanView is a loan together with its current ledger state.
type LoanView struct {
	Loan        *Loan       `json:"loan"`
	Applicant   *Applicant  `json:"applicant,omitempty"`
	Current     *LoanDetail `json:"current,omitempty"`
	LastPayment *Payment    `json:"last_payment,omitempty"`
}
