// Package notify tells borrowers and staff about loan events. Delivery is
// out of scope; LogNotifier records each notice as a structured log line.
package notify

import (
	"context"
	"log/slog"

	"github.com/Pawieee/microbank/internal/domain"
)

// Notifier is informed after a loan event has been committed.
type Notifier interface {
	LoanReviewed(ctx context.Context, loan *domain.Loan) error
	LoanReleased(ctx context.Context, loan *domain.Loan, detail *domain.LoanDetail) error
	LoanSettled(ctx context.Context, loan *domain.Loan) error
	PaymentDue(ctx context.Context, due *domain.DueLoan) error
	PaymentOverdue(ctx context.Context, due *domain.DueLoan) error
}

type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) LoanReviewed(ctx context.Context, loan *domain.Loan) error {
	attrs := []any{"loan_id", loan.LoanID, "applicant_id", loan.ApplicantID, "status", loan.Status}
	if loan.Remarks != nil {
		attrs = append(attrs, "remarks", *loan.Remarks)
	}
	n.logger.InfoContext(ctx, "loan reviewed", attrs...)
	return nil
}

func (n *LogNotifier) LoanReleased(ctx context.Context, loan *domain.Loan, detail *domain.LoanDetail) error {
	n.logger.InfoContext(ctx, "loan released",
		"loan_id", loan.LoanID,
		"applicant_id", loan.ApplicantID,
		"balance", detail.Balance.StringFixed(2),
		"due_amount", detail.DueAmount.StringFixed(2),
		"next_due", detail.NextDue,
	)
	return nil
}

func (n *LogNotifier) LoanSettled(ctx context.Context, loan *domain.Loan) error {
	n.logger.InfoContext(ctx, "loan settled",
		"loan_id", loan.LoanID,
		"applicant_id", loan.ApplicantID,
		"total_loan", loan.TotalLoan.StringFixed(2),
	)
	return nil
}

func (n *LogNotifier) PaymentDue(ctx context.Context, due *domain.DueLoan) error {
	n.logger.InfoContext(ctx, "payment due reminder",
		"loan_id", due.LoanID,
		"to", due.Email,
		"name", due.ApplicantName,
		"due_amount", due.DueAmount.StringFixed(2),
		"next_due", due.NextDue.Format("2006-01-02"),
	)
	return nil
}

func (n *LogNotifier) PaymentOverdue(ctx context.Context, due *domain.DueLoan) error {
	n.logger.WarnContext(ctx, "payment overdue notice",
		"loan_id", due.LoanID,
		"to", due.Email,
		"name", due.ApplicantName,
		"due_amount", due.DueAmount.StringFixed(2),
		"balance", due.Balance.StringFixed(2),
		"next_due", due.NextDue.Format("2006-01-02"),
	)
	return nil
}
