// Package scoring decides loan eligibility from a weighted grade of four
// applicant factors and prices approved requests from the loan plan ladder.
package scoring

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Pawieee/microbank/pkg/amortization"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// Rejection reasons
const (
	ReasonScoreTooLow      = "score too low"
	ReasonAmountOutOfRange = "loan amount out of range"
)

// DefaultThreshold is the minimum weighted score for approval.
var DefaultThreshold = decimal.NewFromInt(7)

// Band values
const (
	EmploymentUnemployed   = "unemployed"
	EmploymentSelfEmployed = "self-employed"
	EmploymentEmployed     = "employed"

	RatioLow  = "low"
	RatioMid  = "mid"
	RatioHigh = "high"

	PeriodShort  = "short"
	PeriodMedium = "medium"
	PeriodLong   = "long"

	CreditPoor      = "poor"
	CreditFair      = "fair"
	CreditGood      = "good"
	CreditExcellent = "excellent"
)

var (
	employmentGrades = map[string]int{EmploymentUnemployed: 3, EmploymentSelfEmployed: 6, EmploymentEmployed: 10}
	ratioGrades      = map[string]int{RatioLow: 10, RatioMid: 7, RatioHigh: 2}
	periodGrades     = map[string]int{PeriodShort: 10, PeriodMedium: 6, PeriodLong: 3}
	creditGrades     = map[string]int{CreditPoor: 3, CreditFair: 6, CreditGood: 8, CreditExcellent: 10}

	weightEmployment = decimal.RequireFromString("0.10")
	weightRatio      = decimal.RequireFromString("0.50")
	weightPeriod     = decimal.RequireFromString("0.15")
	weightCredit     = decimal.RequireFromString("0.25")

	ratioLowMax  = decimal.RequireFromString("0.15")
	ratioMidMax  = decimal.RequireFromString("0.28")
	scoreCeiling = decimal.NewFromInt(10)
)

// Input is everything the engine looks at.
type Input struct {
	EmploymentStatus string
	MonthlyIncome    decimal.Decimal
	CreditScore      string
	RequestedAmount  decimal.Decimal
	Term             int
	Frequency        amortization.Frequency
}

// Factors are the banded values the score was graded from.
type Factors struct {
	Employment      string `json:"employment"`
	LoanToIncome    string `json:"loan_to_income"`
	RepaymentPeriod string `json:"repayment_period"`
	CreditScore     string `json:"credit_score"`

	// Ratio is nil when income is zero or negative, meaning unbounded.
	Ratio *decimal.Decimal `json:"ratio"`
}

// Offer is the priced loan for an approved request.
type Offer struct {
	Level             int                    `json:"loan_plan_lvl"`
	InterestRate      decimal.Decimal        `json:"interest_rate"`
	Principal         decimal.Decimal        `json:"principal"`
	TotalRepayable    decimal.Decimal        `json:"total_repayment"`
	InstallmentAmount decimal.Decimal        `json:"payment_amount"`
	InstallmentCount  int                    `json:"payment_count"`
	Schedule          amortization.Frequency `json:"schedule"`
}

type Result struct {
	Status  Status          `json:"status"`
	Reason  string          `json:"reason,omitempty"`
	Score   decimal.Decimal `json:"score"`
	Factors Factors         `json:"factors"`
	Offer   *Offer          `json:"offer,omitempty"`
}

func (r *Result) Approved() bool {
	return r.Status == StatusApproved
}

// Engine is safe for concurrent use; it holds no mutable state.
type Engine struct {
	threshold decimal.Decimal
	tiers     []Tier
}

// NewEngine validates the threshold and ladder. A nil tiers slice selects
// DefaultTiers.
func NewEngine(threshold decimal.Decimal, tiers []Tier) (*Engine, error) {
	if threshold.IsNegative() || threshold.GreaterThan(scoreCeiling) {
		return nil, fmt.Errorf("scoring: threshold %s outside [0, 10]", threshold)
	}
	if tiers == nil {
		tiers = DefaultTiers
	}
	if err := ValidateTiers(tiers); err != nil {
		return nil, err
	}

	ladder := make([]Tier, len(tiers))
	copy(ladder, tiers)

	return &Engine{threshold: threshold, tiers: ladder}, nil
}

// NewDefaultEngine uses DefaultThreshold and DefaultTiers.
func NewDefaultEngine() *Engine {
	e, err := NewEngine(DefaultThreshold, nil)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) Threshold() decimal.Decimal {
	return e.threshold
}

// TierFor returns the loan plan level for a principal.
func (e *Engine) TierFor(amount decimal.Decimal) (Tier, bool) {
	return tierFor(e.tiers, amount)
}

// Evaluate scores in and, when approved, prices the offer. It is total: every
// input yields a Result.
func (e *Engine) Evaluate(in Input) Result {
	tier, inRange := e.TierFor(in.RequestedAmount)

	rate := decimal.Zero
	if inRange {
		rate = tier.InterestRate
	}

	ratio := loanToIncome(in.RequestedAmount, rate, in.Term, in.MonthlyIncome)
	factors := Factors{
		Employment:      normalize(in.EmploymentStatus),
		LoanToIncome:    RatioBand(ratio),
		RepaymentPeriod: PeriodBand(in.Term),
		CreditScore:     CreditBand(in.CreditScore),
	}
	// banded on the exact ratio, reported to four places
	if ratio != nil {
		reported := ratio.Round(4)
		factors.Ratio = &reported
	}

	result := Result{
		Status:  StatusRejected,
		Score:   Score(factors),
		Factors: factors,
	}

	if result.Score.LessThan(e.threshold) {
		result.Reason = ReasonScoreTooLow
		return result
	}
	if !inRange {
		result.Reason = ReasonAmountOutOfRange
		return result
	}

	sched := amortization.Calculate(in.RequestedAmount, tier.InterestRate, in.Term, in.Frequency)
	result.Status = StatusApproved
	result.Offer = &Offer{
		Level:             tier.Level,
		InterestRate:      tier.InterestRate,
		Principal:         sched.Principal,
		TotalRepayable:    sched.TotalRepayable,
		InstallmentAmount: sched.InstallmentAmount,
		InstallmentCount:  sched.TotalInstallments,
		Schedule:          sched.Frequency,
	}
	return result
}

// Score is the weighted sum of factor grades. Values outside a factor's table
// take that factor's lowest grade.
func Score(f Factors) decimal.Decimal {
	return weighted(employmentGrades, f.Employment, weightEmployment).
		Add(weighted(ratioGrades, f.LoanToIncome, weightRatio)).
		Add(weighted(periodGrades, f.RepaymentPeriod, weightPeriod)).
		Add(weighted(creditGrades, f.CreditScore, weightCredit))
}

func weighted(grades map[string]int, value string, weight decimal.Decimal) decimal.Decimal {
	grade, ok := grades[value]
	if !ok {
		grade = minGrade(grades)
	}
	return decimal.NewFromInt(int64(grade)).Mul(weight)
}

func minGrade(grades map[string]int) int {
	lowest := -1
	for _, g := range grades {
		if lowest < 0 || g < lowest {
			lowest = g
		}
	}
	return lowest
}

// loanToIncome is the month-equivalent repayment over monthly income. It
// returns nil when income is not positive.
func loanToIncome(principal, rate decimal.Decimal, term int, income decimal.Decimal) *decimal.Decimal {
	if !income.IsPositive() {
		return nil
	}
	if term < 1 {
		term = 1
	}
	perPeriod := amortization.TotalRepayable(principal, rate).Div(decimal.NewFromInt(int64(term)))
	ratio := perPeriod.Div(income)
	return &ratio
}

// RatioBand maps a loan-to-income ratio to its band. nil is unbounded.
func RatioBand(ratio *decimal.Decimal) string {
	switch {
	case ratio == nil:
		return RatioHigh
	case ratio.LessThanOrEqual(ratioLowMax):
		return RatioLow
	case ratio.LessThanOrEqual(ratioMidMax):
		return RatioMid
	default:
		return RatioHigh
	}
}

func PeriodBand(term int) string {
	switch {
	case term <= 3:
		return PeriodShort
	case term <= 12:
		return PeriodMedium
	default:
		return PeriodLong
	}
}

// CreditBand accepts a band name or a numeric score. Numbers outside 300-850
// and anything unparseable band as poor.
func CreditBand(raw string) string {
	s := normalize(raw)
	if _, ok := creditGrades[s]; ok {
		return s
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 300 || n > 850 {
		return CreditPoor
	}

	switch {
	case n < 580:
		return CreditPoor
	case n < 670:
		return CreditFair
	case n < 740:
		return CreditGood
	default:
		return CreditExcellent
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
