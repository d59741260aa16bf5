package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Pawieee/microbank/internal/domain"
	"github.com/Pawieee/microbank/internal/notify"
	"github.com/Pawieee/microbank/internal/repository"
	"github.com/Pawieee/microbank/internal/scoring"
	"github.com/Pawieee/microbank/pkg/amortization"
	apperrors "github.com/Pawieee/microbank/pkg/errors"
	"github.com/Pawieee/microbank/pkg/validation"

	"github.com/google/uuid"
)

// ApplicationService scores loan applications, persists approved ones and
// records staff review decisions.
type ApplicationService struct {
	uow       repository.UnitOfWork
	engine    *scoring.Engine
	validator *validation.Validator
	notifier  notify.Notifier
	metrics   Recorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewApplicationService(
	uow repository.UnitOfWork,
	engine *scoring.Engine,
	validator *validation.Validator,
	notifier notify.Notifier,
	metrics Recorder,
	logger *slog.Logger,
) *ApplicationService {
	return &ApplicationService{
		uow:       uow,
		engine:    engine,
		validator: validator,
		notifier:  notifierOrNop(notifier),
		metrics:   recorderOrNop(metrics),
		logger:    logger.With("component", "applications"),
		now:       time.Now,
	}
}

// Score checks eligibility without saving anything.
func (s *ApplicationService) Score(ctx context.Context, req *domain.EligibilityRequest) (*scoring.Result, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	result := s.engine.Evaluate(req.ScoringInput())
	s.metrics.ApplicationScored(string(result.Status))

	s.logger.DebugContext(ctx, "eligibility checked",
		"status", result.Status,
		"score", result.Score.String(),
		"reason", result.Reason,
	)

	return &result, nil
}

// Submit scores the application and, when approved, stores the applicant and
// a Pending loan in one transaction. Rejected applications are not stored.
func (s *ApplicationService) Submit(ctx context.Context, req *domain.ApplicationRequest) (*domain.SubmissionResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	result := s.engine.Evaluate(req.ScoringInput())
	s.metrics.ApplicationScored(string(result.Status))

	if !result.Approved() {
		s.logger.InfoContext(ctx, "application rejected",
			"score", result.Score.String(),
			"reason", result.Reason,
		)
		return &domain.SubmissionResult{Eligibility: &result, Status: domain.LoanStatusRejected}, nil
	}

	// validate already checked both of these
	dob, _ := time.Parse("2006-01-02", req.DateOfBirth)
	freq, _ := amortization.ParseFrequency(req.PaymentSchedule)

	now := s.now()
	applicant := &domain.Applicant{
		ApplicantID:      uuid.NewString(),
		FirstName:        strings.TrimSpace(req.FirstName),
		MiddleName:       strings.TrimSpace(req.MiddleName),
		LastName:         strings.TrimSpace(req.LastName),
		DateOfBirth:      dob,
		Email:            strings.TrimSpace(req.Email),
		PhoneNum:         strings.TrimSpace(req.PhoneNum),
		Address:          strings.TrimSpace(req.Address),
		Gender:           req.Gender,
		CivilStatus:      req.CivilStatus,
		IDType:           req.IDType,
		IDImageRef:       req.IDImageRef,
		EmploymentStatus: strings.ToLower(strings.TrimSpace(req.EmploymentStatus)),
		MonthlyIncome:    req.MonthlyIncome,
		CreditScore:      strings.TrimSpace(req.CreditScore),
		CreatedAt:        now,
	}

	offer := result.Offer
	loan := &domain.Loan{
		LoanID:                    uuid.NewString(),
		ApplicantID:               applicant.ApplicantID,
		PlanLevel:                 offer.Level,
		Principal:                 offer.Principal,
		InterestRate:              offer.InterestRate,
		TotalLoan:                 offer.TotalRepayable,
		PaymentAmount:             offer.InstallmentAmount,
		PaymentTimePeriod:         req.RepaymentPeriod,
		PaymentSchedule:           freq,
		LoanPurpose:               req.LoanPurpose,
		DisbursementMethod:        req.DisbursementMethod,
		DisbursementAccountNumber: req.DisbursementAccountNumber,
		Status:                    domain.LoanStatusPending,
		ApplicationDate:           now,
		UpdatedAt:                 now,
	}

	err := s.uow.WithinTx(ctx, func(r repository.Repos) error {
		if err := r.Applicants.Create(ctx, applicant); err != nil {
			return err
		}
		return r.Loans.Create(ctx, loan)
	})
	if err != nil {
		err = asBusinessError(err)
		s.logger.ErrorContext(ctx, "saving application failed", "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "application accepted",
		"loan_id", loan.LoanID,
		"applicant_id", applicant.ApplicantID,
		"loan_plan_lvl", loan.PlanLevel,
		"principal", loan.Principal.StringFixed(2),
	)
	s.metrics.LoanStatusChanged(domain.LoanStatusPending)

	return &domain.SubmissionResult{
		Eligibility: &result,
		ApplicantID: applicant.ApplicantID,
		LoanID:      loan.LoanID,
		Status:      loan.Status,
	}, nil
}

// Review records a staff decision: approve moves the loan to For Release,
// reject closes it with remarks.
func (s *ApplicationService) Review(ctx context.Context, loanID string, req *domain.ReviewRequest) (*domain.Loan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	target := domain.LoanStatusForRelease
	if req.Decision == domain.ReviewReject {
		target = domain.LoanStatusRejected
	}

	var reviewed *domain.Loan
	err := s.uow.WithinLoanTx(ctx, loanID, func(r repository.Repos, l *domain.Loan) error {
		if !l.Status.CanTransitionTo(target) {
			return apperrors.WrapInvalidTransition(loanID, string(l.Status), string(target))
		}

		l.Status = target
		if remarks := strings.TrimSpace(req.Remarks); remarks != "" {
			l.Remarks = &remarks
		}
		l.UpdatedAt = s.now()

		if err := r.Loans.Update(ctx, l); err != nil {
			return err
		}
		reviewed = l
		return nil
	})
	if err != nil {
		err = asBusinessError(err)
		if apperrors.Is(err, apperrors.ErrContention) {
			s.metrics.Contention("review")
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "loan reviewed", "loan_id", loanID, "status", reviewed.Status)
	s.metrics.LoanStatusChanged(reviewed.Status)
	if err := s.notifier.LoanReviewed(ctx, reviewed); err != nil {
		s.logger.ErrorContext(ctx, "review notification failed", "loan_id", loanID, "error", err)
	}

	return reviewed, nil
}

// validate runs the struct rules and the checks they cannot express, and
// reports every failing field together.
func (s *ApplicationService) validate(req *domain.ApplicationRequest) error {
	fields := map[string]string{}

	if err := s.validator.Struct(req); err != nil {
		be, ok := apperrors.As(err)
		if !ok || len(be.Details) == 0 {
			return err
		}
		for k, v := range be.Details {
			fields[k] = v
		}
	}

	if _, ok := fields["date_of_birth"]; !ok {
		dob, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			fields["date_of_birth"] = "must be a date in YYYY-MM-DD format"
		} else if !dob.Before(s.now()) {
			fields["date_of_birth"] = "must be in the past"
		}
	}

	if len(fields) > 0 {
		return apperrors.WrapValidation(fields)
	}
	return nil
}
