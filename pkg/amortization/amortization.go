package amortization

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is how often an installment falls due.
type Frequency string

const (
	Weekly   Frequency = "Weekly"
	BiWeekly Frequency = "Bi-Weekly"
	Monthly  Frequency = "Monthly"
)

var hundred = decimal.NewFromInt(100)

// ParseFrequency accepts the canonical spellings only.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case Weekly, BiWeekly, Monthly:
		return f, nil
	}
	return "", fmt.Errorf("unknown payment schedule %q", s)
}

// Multiplier converts one term period (a month-equivalent) into installments.
func (f Frequency) Multiplier() int {
	switch f {
	case Weekly:
		return 4
	case BiWeekly:
		return 2
	default:
		return 1
	}
}

// IntervalDays is the fixed calendar-day gap between two due dates.
func (f Frequency) IntervalDays() int {
	switch f {
	case Weekly:
		return 7
	case BiWeekly:
		return 15
	default:
		return 30
	}
}

// Schedule is the repayment plan derived from a principal and rate.
type Schedule struct {
	Principal         decimal.Decimal `json:"principal"`
	InterestRate      decimal.Decimal `json:"interest_rate"`
	TotalRepayable    decimal.Decimal `json:"total_repayable"`
	InstallmentAmount decimal.Decimal `json:"installment_amount"`
	TotalInstallments int             `json:"total_installments"`
	Frequency         Frequency       `json:"payment_schedule"`

	// Clamped is set when a term or installment count below one had to be
	// raised to one.
	Clamped bool `json:"-"`
}

// RoundMoney rounds half away from zero to cents. Every money path uses it so
// release and payment arithmetic agree to the cent.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// TotalRepayable calculates principal plus flat interest.
// Formula: principal * (1 + rate/100)
func TotalRepayable(principal, ratePercent decimal.Decimal) decimal.Decimal {
	interest := principal.Mul(ratePercent).Div(hundred)
	return RoundMoney(principal.Add(interest))
}

// Calculate builds the schedule for a loan. term is the number of
// month-equivalent periods.
func Calculate(principal, ratePercent decimal.Decimal, term int, freq Frequency) Schedule {
	clamped := false
	if term < 1 {
		term = 1
		clamped = true
	}

	installments := term * freq.Multiplier()
	if installments < 1 {
		installments = 1
		clamped = true
	}

	total := TotalRepayable(principal, ratePercent)
	installment := RoundMoney(total.Div(decimal.NewFromInt(int64(installments))))

	return Schedule{
		Principal:         principal,
		InterestRate:      ratePercent,
		TotalRepayable:    total,
		InstallmentAmount: installment,
		TotalInstallments: installments,
		Frequency:         freq,
		Clamped:           clamped,
	}
}

// FirstDue returns the due amount of the first installment. A single
// installment plan is due in full.
func (s Schedule) FirstDue() decimal.Decimal {
	if s.TotalInstallments <= 1 {
		return s.TotalRepayable
	}
	return decimal.Min(s.InstallmentAmount, s.TotalRepayable)
}

// NextDue advances a due date by one installment interval. Months are
// approximated as 30 days.
func NextDue(from time.Time, freq Frequency) time.Time {
	return from.AddDate(0, 0, freq.IntervalDays())
}

// InstallmentFor recomputes the scheduled installment for a stored loan.
func InstallmentFor(totalRepayable decimal.Decimal, term int, freq Frequency) decimal.Decimal {
	installments := term * freq.Multiplier()
	if installments < 1 {
		installments = 1
	}
	return RoundMoney(totalRepayable.Div(decimal.NewFromInt(int64(installments))))
}
