package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Pawieee/microbank/internal/domain"
	"github.com/Pawieee/microbank/internal/testutil/memstore"
	"github.com/Pawieee/microbank/internal/testutil/mocks"
	apperrors "github.com/Pawieee/microbank/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func dueLoan(loanID string, next time.Time) *domain.DueLoan {
	return &domain.DueLoan{
		LoanID:        loanID,
		ApplicantName: "Ana Reyes",
		Email:         "ana@example.com",
		DueAmount:     dec("900.00"),
		Balance:       dec("9900.00"),
		NextDue:       next,
	}
}

func TestReminderService_SendDueReminders(t *testing.T) {
	ctx := context.Background()
	today := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 1, 23, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		setupMocks func(repo *mocks.MockLedgerRepository, n *mocks.MockNotifier, m *mocks.MockRecorder)
		wantSent   int
		wantErr    error
	}{
		{
			name: "every due loan is notified",
			setupMocks: func(repo *mocks.MockLedgerRepository, n *mocks.MockNotifier, m *mocks.MockRecorder) {
				repo.On("ListDueBetween", mock.Anything, today, until).Return([]*domain.DueLoan{
					dueLoan("loan-1", today),
					dueLoan("loan-2", until),
				}, nil)
				n.On("PaymentDue", mock.Anything, mock.Anything).Return(nil).Twice()
				m.On("RemindersSent", 2).Once()
			},
			wantSent: 2,
		},
		{
			name: "a failed notice does not stop the sweep",
			setupMocks: func(repo *mocks.MockLedgerRepository, n *mocks.MockNotifier, m *mocks.MockRecorder) {
				repo.On("ListDueBetween", mock.Anything, today, until).Return([]*domain.DueLoan{
					dueLoan("loan-1", today),
					dueLoan("loan-2", today),
				}, nil)
				n.On("PaymentDue", mock.Anything, mock.MatchedBy(func(d *domain.DueLoan) bool {
					return d.LoanID == "loan-1"
				})).Return(errors.New("smtp timeout"))
				n.On("PaymentDue", mock.Anything, mock.MatchedBy(func(d *domain.DueLoan) bool {
					return d.LoanID == "loan-2"
				})).Return(nil)
				m.On("RemindersSent", 1).Once()
			},
			wantSent: 1,
		},
		{
			name: "nothing due",
			setupMocks: func(repo *mocks.MockLedgerRepository, n *mocks.MockNotifier, m *mocks.MockRecorder) {
				repo.On("ListDueBetween", mock.Anything, today, until).Return([]*domain.DueLoan{}, nil)
				m.On("RemindersSent", 0).Once()
			},
		},
		{
			name: "query failure",
			setupMocks: func(repo *mocks.MockLedgerRepository, n *mocks.MockNotifier, m *mocks.MockRecorder) {
				repo.On("ListDueBetween", mock.Anything, today, until).Return(nil, errors.New("connection refused"))
			},
			wantErr: apperrors.ErrPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.MockLedgerRepository{}
			notifier := &mocks.MockNotifier{}
			recorder := &mocks.MockRecorder{}
			tt.setupMocks(repo, notifier, recorder)

			svc := NewReminderService(repo, notifier, recorder, discardLogger(), 3)
			sent, err := svc.SendDueReminders(ctx, fixedNow)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantSent, sent)

			repo.AssertExpectations(t)
			notifier.AssertExpectations(t)
			recorder.AssertExpectations(t)
		})
	}
}

func TestReminderService_FlagOverdue(t *testing.T) {
	ctx := context.Background()
	today := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)

	repo := &mocks.MockLedgerRepository{}
	notifier := &mocks.MockNotifier{}
	recorder := &mocks.MockRecorder{}

	repo.On("ListOverdue", mock.Anything, today).Return([]*domain.DueLoan{
		dueLoan("loan-1", today.AddDate(0, 0, -3)),
		dueLoan("loan-2", today.AddDate(0, 0, -1)),
	}, nil)
	notifier.On("PaymentOverdue", mock.Anything, mock.Anything).Return(errors.New("smtp timeout")).Once()
	notifier.On("PaymentOverdue", mock.Anything, mock.Anything).Return(nil).Once()
	recorder.On("OverdueLoans", 2).Once()

	n, err := NewReminderService(repo, notifier, recorder, discardLogger(), 3).FlagOverdue(ctx, fixedNow)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	repo.AssertExpectations(t)
	notifier.AssertExpectations(t)
	recorder.AssertExpectations(t)
}

func TestReminderService_FlagOverdue_QueryFailure(t *testing.T) {
	repo := &mocks.MockLedgerRepository{}
	repo.On("ListOverdue", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	n, err := NewReminderService(repo, nil, nil, discardLogger(), 3).FlagOverdue(context.Background(), fixedNow)

	assert.ErrorIs(t, err, apperrors.ErrPersistence)
	assert.Zero(t, n)
}

// Released loans come up for a reminder on their first due date and are only
// overdue once that date has passed.
func TestReminderService_AgainstLedger(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedLoan(store, "loan-1", domain.LoanStatusApproved)
	seedCurrent(store, "loan-1", "10800.00", "900.00", 12) // due 2025-02-14
	seedLoan(store, "loan-2", domain.LoanStatusPending)

	notifier := &mocks.MockNotifier{}
	notifier.On("PaymentDue", mock.Anything, mock.MatchedBy(func(d *domain.DueLoan) bool {
		return d.LoanID == "loan-1" && d.ApplicantName == "Ana Reyes"
	})).Return(nil).Once()
	notifier.On("PaymentOverdue", mock.Anything, mock.Anything).Return(nil).Once()

	svc := NewReminderService(store.Repos().Ledger, notifier, nil, discardLogger(), 3)

	sent, err := svc.SendDueReminders(ctx, time.Date(2025, 2, 10, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, sent)

	sent, err = svc.SendDueReminders(ctx, time.Date(2025, 2, 11, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	overdue, err := svc.FlagOverdue(ctx, time.Date(2025, 2, 14, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, overdue)

	overdue, err = svc.FlagOverdue(ctx, time.Date(2025, 2, 15, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, overdue)

	notifier.AssertExpectations(t)
}
