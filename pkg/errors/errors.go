package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Domain errors
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrPrecondition = errors.New("precondition failed")
	ErrOverpayment  = errors.New("payment exceeds outstanding balance")
	ErrContention   = errors.New("loan is busy")
	ErrPersistence  = errors.New("persistence failure")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
	Details map[string]string
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeLoanNotFound      = "LOAN_NOT_FOUND"
	ErrCodeApplicantNotFound = "APPLICANT_NOT_FOUND"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeLedgerState       = "LEDGER_STATE"
	ErrCodeOverpayment       = "OVERPAYMENT"
	ErrCodeContention        = "CONTENTION"
	ErrCodeDatabaseError     = "DATABASE_ERROR"
)

// As extracts a *BusinessError from err's chain.
func As(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// Is reports whether err matches target. Re-exported so callers can keep a
// single errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// WrapValidation reports every invalid field at once. fields maps field name
// to the reason it was rejected.
func WrapValidation(fields map[string]string) *BusinessError {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	return &BusinessError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf("invalid fields: %s", strings.Join(names, ", ")),
		Err:     ErrValidation,
		Details: fields,
	}
}

// WrapInvalidField is WrapValidation for a single field.
func WrapInvalidField(field, reason string) *BusinessError {
	return WrapValidation(map[string]string{field: reason})
}

func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrNotFound,
	)
}

func WrapApplicantNotFound(applicantID string) *BusinessError {
	return NewBusinessError(
		ErrCodeApplicantNotFound,
		fmt.Sprintf("Applicant with ID %s not found", applicantID),
		ErrNotFound,
	)
}

func WrapInvalidTransition(loanID, from, to string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidTransition,
		fmt.Sprintf("Loan %s cannot move from %s to %s", loanID, from, to),
		ErrPrecondition,
	)
}

func WrapLedgerState(loanID, message string) *BusinessError {
	return NewBusinessError(
		ErrCodeLedgerState,
		fmt.Sprintf("Loan %s: %s", loanID, message),
		ErrPrecondition,
	)
}

// WrapOverpayment carries the largest amount the loan would accept so the
// caller can show it back to the payer.
func WrapOverpayment(loanID string, amount, maxAmount decimal.Decimal) *BusinessError {
	return &BusinessError{
		Code: ErrCodeOverpayment,
		Message: fmt.Sprintf("Payment of %s exceeds the outstanding balance of loan %s; maximum acceptable amount is %s",
			amount.StringFixed(2), loanID, maxAmount.StringFixed(2)),
		Err:     ErrOverpayment,
		Details: map[string]string{"max_amount": maxAmount.StringFixed(2)},
	}
}

func WrapContention(loanID string, err error) *BusinessError {
	if err == nil {
		err = ErrContention
	} else {
		err = fmt.Errorf("%w: %w", ErrContention, err)
	}
	return NewBusinessError(
		ErrCodeContention,
		fmt.Sprintf("Loan %s is being updated by another request, retry shortly", loanID),
		err,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		fmt.Errorf("%w: %w", ErrPersistence, err),
	)
}

// MaxAmount returns the ceiling carried by an overpayment error.
func MaxAmount(err error) (decimal.Decimal, bool) {
	be, ok := As(err)
	if !ok || be.Code != ErrCodeOverpayment {
		return decimal.Zero, false
	}
	d, parseErr := decimal.NewFromString(be.Details["max_amount"])
	if parseErr != nil {
		return decimal.Zero, false
	}
	return d, true
}
