package amortization

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name                string
		principal           decimal.Decimal
		rate                decimal.Decimal
		term                int
		freq                Frequency
		expectedTotal       decimal.Decimal
		expectedInstallment decimal.Decimal
		expectedCount       int
		expectedClamped     bool
	}{
		{
			name:                "monthly 8% over 12 periods",
			principal:           decimal.NewFromInt(10000),
			rate:                decimal.NewFromInt(8),
			term:                12,
			freq:                Monthly,
			expectedTotal:       decimal.RequireFromString("10800.00"),
			expectedInstallment: decimal.RequireFromString("900.00"),
			expectedCount:       12,
		},
		{
			name:                "weekly multiplies installments by four",
			principal:           decimal.NewFromInt(10000),
			rate:                decimal.NewFromInt(8),
			term:                3,
			freq:                Weekly,
			expectedTotal:       decimal.RequireFromString("10800.00"),
			expectedInstallment: decimal.RequireFromString("900.00"),
			expectedCount:       12,
		},
		{
			name:                "bi-weekly with repeating installment rounds to cents",
			principal:           decimal.NewFromInt(5000),
			rate:                decimal.NewFromInt(5),
			term:                3,
			freq:                BiWeekly,
			expectedTotal:       decimal.RequireFromString("5250.00"),
			expectedInstallment: decimal.RequireFromString("875.00"),
			expectedCount:       6,
		},
		{
			name:                "rounds half up",
			principal:           decimal.NewFromInt(10000),
			rate:                decimal.NewFromInt(5),
			term:                9,
			freq:                Monthly,
			expectedTotal:       decimal.RequireFromString("10500.00"),
			expectedInstallment: decimal.RequireFromString("1166.67"),
			expectedCount:       9,
		},
		{
			name:                "zero term treated as one",
			principal:           decimal.NewFromInt(6000),
			rate:                decimal.NewFromInt(5),
			term:                0,
			freq:                Monthly,
			expectedTotal:       decimal.RequireFromString("6300.00"),
			expectedInstallment: decimal.RequireFromString("6300.00"),
			expectedCount:       1,
			expectedClamped:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Calculate(tt.principal, tt.rate, tt.term, tt.freq)

			assert.True(t, s.TotalRepayable.Equal(tt.expectedTotal), "total: expected %s, got %s", tt.expectedTotal, s.TotalRepayable)
			assert.True(t, s.InstallmentAmount.Equal(tt.expectedInstallment), "installment: expected %s, got %s", tt.expectedInstallment, s.InstallmentAmount)
			assert.Equal(t, tt.expectedCount, s.TotalInstallments)
			assert.Equal(t, tt.expectedClamped, s.Clamped)
		})
	}
}

func TestFirstDue(t *testing.T) {
	single := Calculate(decimal.NewFromInt(6000), decimal.NewFromInt(5), 1, Monthly)
	assert.True(t, single.FirstDue().Equal(single.TotalRepayable))

	multi := Calculate(decimal.NewFromInt(10000), decimal.NewFromInt(8), 12, Monthly)
	assert.True(t, multi.FirstDue().Equal(decimal.RequireFromString("900")))
}

func TestNextDue(t *testing.T) {
	base := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, base.AddDate(0, 0, 30), NextDue(base, Monthly))
	assert.Equal(t, base.AddDate(0, 0, 15), NextDue(base, BiWeekly))
	assert.Equal(t, base.AddDate(0, 0, 7), NextDue(base, Weekly))
}

func TestParseFrequency(t *testing.T) {
	f, err := ParseFrequency("Bi-Weekly")
	require.NoError(t, err)
	assert.Equal(t, BiWeekly, f)
	assert.Equal(t, 2, f.Multiplier())

	_, err = ParseFrequency("Daily")
	assert.Error(t, err)
}

func TestInstallmentFor(t *testing.T) {
	got := InstallmentFor(decimal.RequireFromString("10800"), 12, Monthly)
	assert.True(t, got.Equal(decimal.NewFromInt(900)))

	got = InstallmentFor(decimal.RequireFromString("10800"), 0, Monthly)
	assert.True(t, got.Equal(decimal.NewFromInt(10800)))
}
