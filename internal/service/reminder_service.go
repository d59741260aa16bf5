package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Pawieee/microbank/internal/notify"
	"github.com/Pawieee/microbank/internal/repository"
	apperrors "github.com/Pawieee/microbank/pkg/errors"
)

// ReminderService runs the scheduled due-date sweeps.
type ReminderService struct {
	ledger     repository.LedgerRepository
	notifier   notify.Notifier
	metrics    Recorder
	logger     *slog.Logger
	windowDays int
}

func NewReminderService(
	ledger repository.LedgerRepository,
	notifier notify.Notifier,
	metrics Recorder,
	logger *slog.Logger,
	windowDays int,
) *ReminderService {
	if windowDays < 0 {
		windowDays = 0
	}
	return &ReminderService{
		ledger:     ledger,
		notifier:   notifierOrNop(notifier),
		metrics:    recorderOrNop(metrics),
		logger:     logger.With("component", "reminders"),
		windowDays: windowDays,
	}
}

// SendDueReminders notifies every open loan whose next due date falls within
// the reminder window starting today. It returns how many notices went out.
func (s *ReminderService) SendDueReminders(ctx context.Context, now time.Time) (int, error) {
	today := startOfDay(now)
	until := today.AddDate(0, 0, s.windowDays)

	due, err := s.ledger.ListDueBetween(ctx, today, until)
	if err != nil {
		return 0, apperrors.WrapDatabaseError(err)
	}

	sent := 0
	for _, d := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := s.notifier.PaymentDue(ctx, d); err != nil {
			s.logger.ErrorContext(ctx, "due reminder failed", "loan_id", d.LoanID, "error", err)
			continue
		}
		sent++
	}

	s.metrics.RemindersSent(sent)
	s.logger.InfoContext(ctx, "due reminders sent",
		"from", today.Format("2006-01-02"),
		"until", until.Format("2006-01-02"),
		"matched", len(due),
		"sent", sent,
	)

	return sent, nil
}

// FlagOverdue notifies every open loan whose due date has passed. No penalty
// is charged. It returns the number of overdue loans.
func (s *ReminderService) FlagOverdue(ctx context.Context, now time.Time) (int, error) {
	today := startOfDay(now)

	overdue, err := s.ledger.ListOverdue(ctx, today)
	if err != nil {
		return 0, apperrors.WrapDatabaseError(err)
	}

	for _, d := range overdue {
		if err := ctx.Err(); err != nil {
			return len(overdue), err
		}
		if err := s.notifier.PaymentOverdue(ctx, d); err != nil {
			s.logger.ErrorContext(ctx, "overdue notice failed", "loan_id", d.LoanID, "error", err)
		}
	}

	s.metrics.OverdueLoans(len(overdue))
	if len(overdue) > 0 {
		s.logger.WarnContext(ctx, "overdue loans flagged", "count", len(overdue))
	}

	return len(overdue), nil
}
