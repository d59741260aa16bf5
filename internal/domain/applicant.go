package domain

import (
	"strings"
	"time"

	"github.com/Pawieee/microbank/internal/scoring"
	"github.com/Pawieee/microbank/pkg/amortization"
	"github.com/shopspring/decimal"
)

// Applicant is the borrower as captured at application time. Rows are never
// updated.
type Applicant struct {
	ApplicantID      string          `json:"applicant_id" db:"applicant_id"`
	FirstName        string          `json:"first_name" db:"first_name"`
	MiddleName       string          `json:"middle_name,omitempty" db:"middle_name"`
	LastName         string          `json:"last_name" db:"last_name"`
	DateOfBirth      time.Time       `json:"date_of_birth" db:"date_of_birth"`
	Email            string          `json:"email" db:"email"`
	PhoneNum         string          `json:"phone_num" db:"phone_num"`
	Address          string          `json:"address" db:"address"`
	Gender           string          `json:"gender,omitempty" db:"gender"`
	CivilStatus      string          `json:"civil_status,omitempty" db:"civil_status"`
	IDType           string          `json:"id_type" db:"id_type"`
	IDImageRef       string          `json:"id_image_ref" db:"id_image_ref"`
	EmploymentStatus string          `json:"employment_status" db:"employment_status"`
	MonthlyIncome    decimal.Decimal `json:"monthly_income" db:"monthly_income"`
	CreditScore      string          `json:"credit_score" db:"credit_score"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// FullName joins the name parts the way notices address the borrower.
func (a *Applicant) FullName() string {
	parts := []string{a.FirstName}
	if a.MiddleName != "" {
		parts = append(parts, a.MiddleName)
	}
	parts = append(parts, a.LastName)
	return strings.Join(parts, " ")
}

// EligibilityRequest carries the fields scoring looks at.
type EligibilityRequest struct {
	EmploymentStatus string          `json:"employment_status" validate:"required"`
	MonthlyIncome    decimal.Decimal `json:"monthly_income" validate:"decimal_gte=0"`
	CreditScore      string          `json:"credit_score" validate:"required"`
	LoanAmount       decimal.Decimal `json:"loan_amount" validate:"decimal_gt=0,money"`
	RepaymentPeriod  int             `json:"repayment_period" validate:"required,gte=1,lte=360"`
	PaymentSchedule  string          `json:"payment_schedule" validate:"required,oneof=Weekly Bi-Weekly Monthly"`
}

// ScoringInput projects the request onto the factors the scoring engine uses.
func (r *EligibilityRequest) ScoringInput() scoring.Input {
	freq, err := amortization.ParseFrequency(r.PaymentSchedule)
	if err != nil {
		freq = amortization.Monthly
	}
	return scoring.Input{
		EmploymentStatus: strings.ToLower(strings.TrimSpace(r.EmploymentStatus)),
		MonthlyIncome:    r.MonthlyIncome,
		CreditScore:      strings.TrimSpace(r.CreditScore),
		RequestedAmount:  r.LoanAmount,
		Term:             r.RepaymentPeriod,
		Frequency:        freq,
	}
}

// ApplicationRequest is the typed loan application payload.
type ApplicationRequest struct {
	FirstName   string `json:"first_name" validate:"required,max=100"`
	MiddleName  string `json:"middle_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	DateOfBirth string `json:"date_of_birth" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	PhoneNum    string `json:"phone_num" validate:"required,max=32"`
	Address     string `json:"address" validate:"required"`
	Gender      string `json:"gender" validate:"max=32"`
	CivilStatus string `json:"civil_status" validate:"max=32"`

	IDType     string `json:"id_type" validate:"required"`
	IDImageRef string `json:"id_image_ref" validate:"required"`

	EligibilityRequest

	LoanPurpose               string `json:"loan_purpose" validate:"required,max=255"`
	DisbursementMethod        string `json:"disbursement_method" validate:"required,max=64"`
	DisbursementAccountNumber string `json:"disbursement_account_number" validate:"max=64"`
}

// SubmissionResult is returned after an application has been scored and, when
// approved, persisted.
type SubmissionResult struct {
	Eligibility *scoring.Result `json:"eligibility"`
	ApplicantID string          `json:"applicant_id,omitempty"`
	LoanID      string          `json:"loan_id,omitempty"`
	Status      LoanStatus      `json:"status,omitempty"`
}
