package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/Pawieee/microbank/internal/domain"
	"github.com/Pawieee/microbank/internal/repository"
	"github.com/Pawieee/microbank/internal/testutil/memstore"
	"github.com/Pawieee/microbank/internal/testutil/mocks"
	"github.com/Pawieee/microbank/pkg/amortization"
	apperrors "github.com/Pawieee/microbank/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 1, 20, 9, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLedgerService(store *memstore.Store) *LedgerService {
	s := NewLedgerService(store, nil, nil, nil, discardLogger())
	s.now = func() time.Time { return fixedNow }
	return s
}

// seedLoan stores a 10,000 @ 8% loan over 12 monthly installments in the
// given status.
func seedLoan(store *memstore.Store, loanID string, status domain.LoanStatus) domain.Loan {
	store.PutApplicant(domain.Applicant{
		ApplicantID: "applicant-" + loanID,
		FirstName:   "Ana",
		LastName:    "Reyes",
		Email:       "ana@example.com",
	})
	loan := domain.Loan{
		LoanID:            loanID,
		ApplicantID:       "applicant-" + loanID,
		PlanLevel:         1,
		Principal:         dec("10000"),
		InterestRate:      dec("8"),
		TotalLoan:         dec("10800"),
		PaymentAmount:     dec("900"),
		PaymentTimePeriod: 12,
		PaymentSchedule:   amortization.Monthly,
		Status:            status,
		ApplicationDate:   fixedNow.AddDate(0, 0, -10),
		UpdatedAt:         fixedNow.AddDate(0, 0, -10),
	}
	store.PutLoan(loan)
	return loan
}

// seedCurrent opens a current ledger row for an Approved loan.
func seedCurrent(store *memstore.Store, loanID, balance, due string, remaining int) domain.LoanDetail {
	next := time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)
	d := domain.LoanDetail{
		LoanDetailID:      "detail-" + loanID,
		LoanID:            loanID,
		Balance:           dec(balance),
		DueAmount:         dec(due),
		NextDue:           &next,
		PaymentsRemaining: remaining,
		IsCurrent:         true,
		CreatedAt:         fixedNow.AddDate(0, 0, -5),
	}
	store.PutDetail(d)
	return d
}

func currentRows(rows []domain.LoanDetail) []domain.LoanDetail {
	var out []domain.LoanDetail
	for _, r := range rows {
		if r.IsCurrent {
			out = append(out, r)
		}
	}
	return out
}

func TestLedgerService_Release(t *testing.T) {
	ctx := context.Background()

	t.Run("opens the first ledger row", func(t *testing.T) {
		store := memstore.New()
		seedLoan(store, "loan-1", domain.LoanStatusForRelease)

		detail, err := newLedgerService(store).Release(ctx, "loan-1", "2025-01-15")

		require.NoError(t, err)
		assert.Equal(t, "10800.00", detail.Balance.StringFixed(2))
		assert.Equal(t, "900.00", detail.DueAmount.StringFixed(2))
		assert.Equal(t, 12, detail.PaymentsRemaining)
		require.NotNil(t, detail.NextDue)
		assert.Equal(t, "2025-02-14", detail.NextDue.Format("2006-01-02"))

		loan, _ := store.Loan("loan-1")
		assert.Equal(t, domain.LoanStatusApproved, loan.Status)
		require.NotNil(t, loan.PaymentStartDate)
		assert.Equal(t, "2025-01-15", loan.PaymentStartDate.Format("2006-01-02"))
		assert.Len(t, store.Details("loan-1"), 1)
	})

	t.Run("pending loans can be released directly", func(t *testing.T) {
		store := memstore.New()
		seedLoan(store, "loan-1", domain.LoanStatusPending)

		_, err := newLedgerService(store).Release(ctx, "loan-1", "2025-01-15T08:00:00Z")
		assert.NoError(t, err)
	})

	t.Run("single installment is due in full", func(t *testing.T) {
		store := memstore.New()
		loan := seedLoan(store, "loan-1", domain.LoanStatusForRelease)
		loan.PaymentTimePeriod = 1
		store.PutLoan(loan)

		detail, err := newLedgerService(store).Release(ctx, "loan-1", "2025-01-15")

		require.NoError(t, err)
		assert.Equal(t, 1, detail.PaymentsRemaining)
		assert.True(t, detail.DueAmount.Equal(detail.Balance))
	})

	tests := []struct {
		name    string
		status  domain.LoanStatus
		date    string
		loanID  string
		wantErr error
	}{
		{"already approved", domain.LoanStatusApproved, "2025-01-15", "loan-1", apperrors.ErrPrecondition},
		{"rejected", domain.LoanStatusRejected, "2025-01-15", "loan-1", apperrors.ErrPrecondition},
		{"settled", domain.LoanStatusSettled, "2025-01-15", "loan-1", apperrors.ErrPrecondition},
		{"bad date", domain.LoanStatusForRelease, "15/01/2025", "loan-1", apperrors.ErrValidation},
		{"missing loan", domain.LoanStatusForRelease, "2025-01-15", "nope", apperrors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			seedLoan(store, "loan-1", tt.status)

			detail, err := newLedgerService(store).Release(ctx, tt.loanID, tt.date)

			assert.Nil(t, detail)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, store.Details("loan-1"))
		})
	}

	t.Run("existing ledger row blocks release", func(t *testing.T) {
		store := memstore.New()
		seedLoan(store, "loan-1", domain.LoanStatusForRelease)
		seedCurrent(store, "loan-1", "10800", "900", 12)

		_, err := newLedgerService(store).Release(ctx, "loan-1", "2025-01-15")

		be, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeLedgerState, be.Code)
		loan, _ := store.Loan("loan-1")
		assert.Equal(t, domain.LoanStatusForRelease, loan.Status)
	})
}

func TestLedgerService_ApplyPayment(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		balance       string
		due           string
		remaining     int
		amount        string
		wantBalance   string
		wantDue       string
		wantRemaining int
		wantNextDue   string
		wantRemarks   string
		wantStatus    domain.LoanStatus
	}{
		{
			name:    "settles the final installment",
			balance: "900", due: "900", remaining: 1, amount: "900",
			wantBalance: "0.00", wantDue: "0.00", wantRemaining: 0, wantNextDue: "",
			wantRemarks: domain.RemarksSettled, wantStatus: domain.LoanStatusSettled,
		},
		{
			name:    "overpaying the due amount advances one period",
			balance: "10800", due: "900", remaining: 12, amount: "1700",
			wantBalance: "9100.00", wantDue: "900.00", wantRemaining: 11, wantNextDue: "2025-03-16",
			wantRemarks: domain.RemarksOnTime, wantStatus: domain.LoanStatusApproved,
		},
		{
			name:    "exact installment is on time",
			balance: "10800", due: "900", remaining: 12, amount: "900",
			wantBalance: "9900.00", wantDue: "900.00", wantRemaining: 11, wantNextDue: "2025-03-16",
			wantRemarks: domain.RemarksOnTime, wantStatus: domain.LoanStatusApproved,
		},
		{
			name:    "partial payment keeps the schedule",
			balance: "10800", due: "900", remaining: 12, amount: "400",
			wantBalance: "10400.00", wantDue: "500.00", wantRemaining: 12, wantNextDue: "2025-02-14",
			wantRemarks: domain.RemarksPartial, wantStatus: domain.LoanStatusApproved,
		},
		{
			name:    "second to last installment schedules the final payment",
			balance: "1800", due: "900", remaining: 2, amount: "900",
			wantBalance: "900.00", wantDue: "900.00", wantRemaining: 1, wantNextDue: "2025-03-16",
			wantRemarks: domain.RemarksFinalPayment, wantStatus: domain.LoanStatusApproved,
		},
		{
			name:    "final installment absorbs rounding drift",
			balance: "1166.68", due: "583.33", remaining: 2, amount: "583.33",
			wantBalance: "583.35", wantDue: "583.35", wantRemaining: 1, wantNextDue: "2025-03-16",
			wantRemarks: domain.RemarksFinalPayment, wantStatus: domain.LoanStatusApproved,
		},
		{
			name:    "paying off early settles",
			balance: "5400", due: "900", remaining: 6, amount: "5400",
			wantBalance: "0.00", wantDue: "0.00", wantRemaining: 0, wantNextDue: "",
			wantRemarks: domain.RemarksSettled, wantStatus: domain.LoanStatusSettled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			seedLoan(store, "loan-1", domain.LoanStatusApproved)
			previous := seedCurrent(store, "loan-1", tt.balance, tt.due, tt.remaining)

			res, err := newLedgerService(store).ApplyPayment(ctx, "loan-1", dec(tt.amount))

			require.NoError(t, err)
			assert.Equal(t, tt.wantBalance, res.Detail.Balance.StringFixed(2))
			assert.Equal(t, tt.wantDue, res.Detail.DueAmount.StringFixed(2))
			assert.Equal(t, tt.wantRemaining, res.Detail.PaymentsRemaining)
			if tt.wantNextDue == "" {
				assert.Nil(t, res.Detail.NextDue)
			} else {
				require.NotNil(t, res.Detail.NextDue)
				assert.Equal(t, tt.wantNextDue, res.Detail.NextDue.Format("2006-01-02"))
			}
			assert.Equal(t, tt.wantRemarks, res.Payment.Remarks)
			assert.Equal(t, tt.wantStatus, res.LoanStatus)
			assert.True(t, dec(tt.amount).Equal(res.Payment.AmountPaid))
			assert.Equal(t, fixedNow, res.Payment.TransactionDate)

			rows := store.Details("loan-1")
			require.Len(t, rows, 2)
			assert.False(t, rows[0].IsCurrent)
			assert.Equal(t, previous.LoanDetailID, rows[0].LoanDetailID)
			assert.Len(t, currentRows(rows), 1)

			loan, _ := store.Loan("loan-1")
			assert.Equal(t, tt.wantStatus, loan.Status)
			assert.Len(t, store.Payments("loan-1"), 1)
		})
	}
}

func TestLedgerService_ApplyPayment_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("overpayment leaves the ledger unchanged", func(t *testing.T) {
		store := memstore.New()
		seedLoan(store, "loan-1", domain.LoanStatusApproved)
		seedCurrent(store, "loan-1", "500", "500", 1)

		res, err := newLedgerService(store).ApplyPayment(ctx, "loan-1", dec("501"))

		assert.Nil(t, res)
		assert.ErrorIs(t, err, apperrors.ErrOverpayment)
		maxAmount, ok := apperrors.MaxAmount(err)
		require.True(t, ok)
		assert.Equal(t, "500.00", maxAmount.StringFixed(2))

		rows := store.Details("loan-1")
		require.Len(t, rows, 1)
		assert.True(t, rows[0].IsCurrent)
		assert.Equal(t, "500.00", rows[0].Balance.StringFixed(2))
		assert.Empty(t, store.Payments("loan-1"))
	})

	amountTests := map[string]string{
		"zero":     "0",
		"negative": "-10",
		"sub-cent": "10.005",
	}
	for name, amount := range amountTests {
		t.Run("invalid amount "+name, func(t *testing.T) {
			store := memstore.New()
			seedLoan(store, "loan-1", domain.LoanStatusApproved)
			seedCurrent(store, "loan-1", "10800", "900", 12)

			_, err := newLedgerService(store).ApplyPayment(ctx, "loan-1", dec(amount))

			assert.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Len(t, store.Details("loan-1"), 1)
		})
	}

	for _, status := range []domain.LoanStatus{
		domain.LoanStatusPending,
		domain.LoanStatusForRelease,
		domain.LoanStatusRejected,
		domain.LoanStatusSettled,
	} {
		t.Run("loan "+string(status), func(t *testing.T) {
			store := memstore.New()
			seedLoan(store, "loan-1", status)

			_, err := newLedgerService(store).ApplyPayment(ctx, "loan-1", dec("100"))

			assert.ErrorIs(t, err, apperrors.ErrPrecondition)
			assert.Empty(t, store.Payments("loan-1"))
		})
	}

	t.Run("approved loan without ledger row", func(t *testing.T) {
		store := memstore.New()
		seedLoan(store, "loan-1", domain.LoanStatusApproved)

		_, err := newLedgerService(store).ApplyPayment(ctx, "loan-1", dec("100"))

		assert.ErrorIs(t, err, apperrors.ErrPrecondition)
	})

	t.Run("missing loan", func(t *testing.T) {
		_, err := newLedgerService(memstore.New()).ApplyPayment(ctx, "nope", dec("100"))

		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestLedgerService_ApplyPayment_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()

	for _, op := range []string{memstore.OpLedgerInsert, memstore.OpPaymentCreate, memstore.OpLoanUpdate} {
		t.Run(op, func(t *testing.T) {
			store := memstore.New()
			seedLoan(store, "loan-1", domain.LoanStatusApproved)
			seedCurrent(store, "loan-1", "900", "900", 1)
			store.Fail(op, errors.New("disk full"))

			_, err := newLedgerService(store).ApplyPayment(ctx, "loan-1", dec("900"))

			assert.ErrorIs(t, err, apperrors.ErrPersistence)
			be, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrCodeDatabaseError, be.Code)

			rows := store.Details("loan-1")
			require.Len(t, rows, 1)
			assert.True(t, rows[0].IsCurrent)
			assert.Empty(t, store.Payments("loan-1"))
			loan, _ := store.Loan("loan-1")
			assert.Equal(t, domain.LoanStatusApproved, loan.Status)
		})
	}
}

func TestLedgerService_ApplyPayment_StaleRowIsContention(t *testing.T) {
	store := memstore.New()
	seedLoan(store, "loan-1", domain.LoanStatusApproved)
	seedCurrent(store, "loan-1", "900", "900", 1)
	store.Fail(memstore.OpLedgerDeactivate, repository.ErrStaleLedgerRow)

	_, err := newLedgerService(store).ApplyPayment(context.Background(), "loan-1", dec("100"))

	assert.ErrorIs(t, err, apperrors.ErrContention)
}

func TestLedgerService_ApplyPayment_BusyLoan(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.LockTimeout = 50 * time.Millisecond
	seedLoan(store, "loan-1", domain.LoanStatusApproved)
	seedCurrent(store, "loan-1", "10800", "900", 12)

	recorder := &mocks.MockRecorder{}
	recorder.On("Contention", "apply_payment").Return().Once()

	svc := NewLedgerService(store, nil, nil, recorder, discardLogger())

	holding := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = store.WithinLoanTx(ctx, "loan-1", func(r repository.Repos, l *domain.Loan) error {
			close(holding)
			<-done
			return nil
		})
	}()
	<-holding

	_, err := svc.ApplyPayment(ctx, "loan-1", dec("100"))
	close(done)

	assert.ErrorIs(t, err, apperrors.ErrContention)
	assert.Empty(t, store.Payments("loan-1"))
	recorder.AssertExpectations(t)
}

func TestLedgerService_ApplyPayment_ConcurrentPaymentsSerialize(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.LockTimeout = 5 * time.Second
	seedLoan(store, "loan-1", domain.LoanStatusApproved)
	seedCurrent(store, "loan-1", "10800", "900", 12)
	svc := newLedgerService(store)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ApplyPayment(ctx, "loan-1", dec("100"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	rows := store.Details("loan-1")
	assert.Len(t, rows, workers+1)
	current := currentRows(rows)
	require.Len(t, current, 1)
	assert.Equal(t, "8800.00", current[0].Balance.StringFixed(2))
	assert.Len(t, store.Payments("loan-1"), workers)
}

func TestLedgerService_SideEffects(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedLoan(store, "loan-1", domain.LoanStatusApproved)
	seedCurrent(store, "loan-1", "900", "900", 1)

	cache := &mocks.MockLedgerCache{}
	cache.On("SetCurrent", mock.Anything, mock.MatchedBy(func(d *domain.LoanDetail) bool {
		return d.LoanID == "loan-1" && d.Balance.IsZero()
	})).Return(errors.New("redis down"))
	cache.On("Invalidate", mock.Anything, "loan-1").Return(errors.New("redis down"))

	notifier := &mocks.MockNotifier{}
	notifier.On("LoanSettled", mock.Anything, mock.MatchedBy(func(l *domain.Loan) bool {
		return l.LoanID == "loan-1" && l.Status == domain.LoanStatusSettled
	})).Return(errors.New("smtp down"))

	recorder := &mocks.MockRecorder{}
	recorder.On("PaymentApplied", domain.RemarksSettled, mock.Anything).Return()
	recorder.On("LoanStatusChanged", domain.LoanStatusSettled).Return()

	svc := NewLedgerService(store, cache, notifier, recorder, discardLogger())

	res, err := svc.ApplyPayment(ctx, "loan-1", dec("900"))

	require.NoError(t, err, "side effect failures must not fail a committed payment")
	assert.Equal(t, domain.LoanStatusSettled, res.LoanStatus)
	cache.AssertExpectations(t)
	notifier.AssertExpectations(t)
	recorder.AssertExpectations(t)
}

// TestLedgerService_Lifecycle drives loans from release to settlement with
// random payments and checks the ledger invariants after every step.
func TestLedgerService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	freqs := []amortization.Frequency{amortization.Weekly, amortization.BiWeekly, amortization.Monthly}

	for run := 0; run < 30; run++ {
		store := memstore.New()
		loan := seedLoan(store, "loan-1", domain.LoanStatusForRelease)
		loan.Principal = decimal.NewFromInt(int64(5000 + rng.Intn(45000)))
		loan.InterestRate = decimal.NewFromInt(int64([]int{5, 8, 12, 15, 18}[rng.Intn(5)]))
		loan.PaymentTimePeriod = 1 + rng.Intn(24)
		loan.PaymentSchedule = freqs[rng.Intn(len(freqs))]
		store.PutLoan(loan)

		svc := newLedgerService(store)
		first, err := svc.Release(ctx, "loan-1", "2025-01-15")
		require.NoError(t, err)
		total := first.Balance

		for step := 0; step < 500; step++ {
			current := currentRows(store.Details("loan-1"))
			require.Len(t, current, 1)
			if current[0].IsSettled() {
				break
			}

			// mostly installment-sized payments, sometimes a random slice
			// of the balance
			amount := current[0].DueAmount
			if rng.Intn(3) == 0 {
				cents := current[0].Balance.Mul(decimal.NewFromInt(100)).IntPart()
				amount = decimal.New(1+rng.Int63n(cents), -2)
			}

			prev := current[0]
			res, err := svc.ApplyPayment(ctx, "loan-1", amount)
			require.NoError(t, err)

			next := res.Detail
			assert.True(t, next.Balance.LessThan(prev.Balance), "balance must decrease")
			assert.False(t, next.Balance.IsNegative())
			assert.False(t, next.DueAmount.IsNegative())
			assert.True(t, next.DueAmount.LessThanOrEqual(next.Balance))

			settled := next.Balance.IsZero()
			assert.Equal(t, settled, next.PaymentsRemaining == 0)
			assert.Equal(t, settled, next.NextDue == nil)
			assert.Equal(t, settled, res.LoanStatus == domain.LoanStatusSettled)
			if !settled {
				assert.GreaterOrEqual(t, next.PaymentsRemaining, 1)
				assert.True(t, next.DueAmount.IsPositive())
			}
			if next.PaymentsRemaining == 1 {
				assert.True(t, next.DueAmount.Equal(next.Balance))
			}
		}

		loan, _ = store.Loan("loan-1")
		require.Equal(t, domain.LoanStatusSettled, loan.Status, "run %d did not settle", run)

		paid := decimal.Zero
		for _, p := range store.Payments("loan-1") {
			paid = paid.Add(p.AmountPaid)
		}
		assert.True(t, paid.Equal(total), "run %d: paid %s of %s", run, paid, total)
	}
}

func TestNextLedgerRow(t *testing.T) {
	due := time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)
	current := &domain.LoanDetail{
		LoanID:            "loan-1",
		Balance:           dec("2700"),
		DueAmount:         dec("900"),
		NextDue:           &due,
		PaymentsRemaining: 3,
	}

	next, remarks := NextLedgerRow(current, dec("900"), dec("900"), amortization.Weekly, fixedNow)

	assert.Equal(t, domain.RemarksOnTime, remarks)
	assert.Equal(t, 2, next.PaymentsRemaining)
	assert.Equal(t, "2025-02-21", next.NextDue.Format("2006-01-02"))
	assert.True(t, next.IsCurrent)
	assert.NotEqual(t, current.LoanDetailID, next.LoanDetailID)

	// the previous row is not modified
	assert.Equal(t, 3, current.PaymentsRemaining)
	assert.Equal(t, "2025-02-14", current.NextDue.Format("2006-01-02"))
}

func TestParseReleaseDate(t *testing.T) {
	d, err := ParseReleaseDate("2025-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseReleaseDate("2025-01-15T08:00:00+08:00")
	assert.NoError(t, err)

	_, err = ParseReleaseDate("tomorrow")
	assert.Error(t, err)
}
