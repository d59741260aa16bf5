package scoring

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier is a loan plan level: a bracket of principal amounts with its base
// interest rate in percent.
type Tier struct {
	Level        int             `json:"level"`
	Min          decimal.Decimal `json:"min"`
	Max          decimal.Decimal `json:"max"`
	InterestRate decimal.Decimal `json:"interest_rate"`
}

var cent = decimal.New(1, -2)

// DefaultTiers is the loan plan ladder.
//
//	level 1:  5,000.00 - 10,000.00   5%
//	level 2: 10,000.01 - 20,000.00   8%
//	level 3: 20,000.01 - 30,000.00  12%
//	level 4: 30,000.01 - 40,000.00  15%
//	level 5: 40,000.01 - 50,000.00  18%
var DefaultTiers = []Tier{
	{Level: 1, Min: decimal.RequireFromString("5000.00"), Max: decimal.RequireFromString("10000.00"), InterestRate: decimal.NewFromInt(5)},
	{Level: 2, Min: decimal.RequireFromString("10000.01"), Max: decimal.RequireFromString("20000.00"), InterestRate: decimal.NewFromInt(8)},
	{Level: 3, Min: decimal.RequireFromString("20000.01"), Max: decimal.RequireFromString("30000.00"), InterestRate: decimal.NewFromInt(12)},
	{Level: 4, Min: decimal.RequireFromString("30000.01"), Max: decimal.RequireFromString("40000.00"), InterestRate: decimal.NewFromInt(15)},
	{Level: 5, Min: decimal.RequireFromString("40000.01"), Max: decimal.RequireFromString("50000.00"), InterestRate: decimal.NewFromInt(18)},
}

// ValidateTiers checks the ladder is ascending and contiguous to the cent.
func ValidateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return errors.New("scoring: at least one tier is required")
	}

	for i, t := range tiers {
		if t.Max.LessThan(t.Min) {
			return fmt.Errorf("scoring: tier %d max %s is below min %s", t.Level, t.Max, t.Min)
		}
		if !t.InterestRate.IsPositive() {
			return fmt.Errorf("scoring: tier %d rate must be positive", t.Level)
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if t.Level <= prev.Level {
			return fmt.Errorf("scoring: tier levels must ascend (%d after %d)", t.Level, prev.Level)
		}
		if !t.Min.Equal(prev.Max.Add(cent)) {
			return fmt.Errorf("scoring: tier %d must start at %s, got %s", t.Level, prev.Max.Add(cent), t.Min)
		}
	}

	return nil
}

// tierFor finds the tier holding amount. A boundary amount belongs to the
// lower tier; tiers after the first are matched as (previous max, max] so no
// fractional amount falls between two tiers.
func tierFor(tiers []Tier, amount decimal.Decimal) (Tier, bool) {
	for i, t := range tiers {
		inLower := amount.GreaterThanOrEqual(t.Min)
		if i > 0 {
			inLower = amount.GreaterThan(tiers[i-1].Max)
		}
		if inLower && amount.LessThanOrEqual(t.Max) {
			return t, true
		}
	}
	return Tier{}, false
}
