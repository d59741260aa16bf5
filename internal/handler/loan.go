package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Pawieee/microbank/internal/domain"
	"github.com/Pawieee/microbank/internal/scoring"
	"github.com/Pawieee/microbank/pkg/response"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type ApplicationService interface {
	Score(ctx context.Context, req *domain.EligibilityRequest) (*scoring.Result, error)
	Submit(ctx context.Context, req *domain.ApplicationRequest) (*domain.SubmissionResult, error)
	Review(ctx context.Context, loanID string, req *domain.ReviewRequest) (*domain.Loan, error)
}

type LedgerService interface {
	Release(ctx context.Context, loanID, releaseDate string) (*domain.LoanDetail, error)
	ApplyPayment(ctx context.Context, loanID string, amount decimal.Decimal) (*domain.PaymentResult, error)
}

type QueryService interface {
	GetLoan(ctx context.Context, loanID string) (*domain.LoanView, error)
	ListPayments(ctx context.Context, loanID string) (*domain.PaymentHistory, error)
	LedgerHistory(ctx context.Context, loanID string) ([]*domain.LoanDetail, error)
	ListLoans(ctx context.Context, status string) ([]*domain.Loan, error)
}

type LoanHandler struct {
	applications ApplicationService
	ledger       LedgerService
	queries      QueryService
}

func NewLoanHandler(applications ApplicationService, ledger LedgerService, queries QueryService) *LoanHandler {
	return &LoanHandler{
		applications: applications,
		ledger:       ledger,
		queries:      queries,
	}
}

// RegisterRoutes mounts the loan API on api. paymentGuard wraps the payment
// endpoint, normally with the idempotency middleware.
func (h *LoanHandler) RegisterRoutes(api *mux.Router, paymentGuard func(http.Handler) http.Handler) {
	if paymentGuard == nil {
		paymentGuard = func(next http.Handler) http.Handler { return next }
	}

	api.HandleFunc("/eligibility", h.CheckEligibility).Methods(http.MethodPost)
	api.HandleFunc("/applications", h.SubmitApplication).Methods(http.MethodPost)
	api.HandleFunc("/loans", h.ListLoans).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}", h.GetLoan).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}/review", h.ReviewLoan).Methods(http.MethodPost)
	api.HandleFunc("/loans/{loanId}/release", h.ReleaseLoan).Methods(http.MethodPost)
	api.Handle("/loans/{loanId}/payments", paymentGuard(http.HandlerFunc(h.MakePayment))).Methods(http.MethodPost)
	api.HandleFunc("/loans/{loanId}/payments", h.ListPayments).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}/ledger", h.LedgerHistory).Methods(http.MethodGet)
}

// CheckEligibility scores a prospective application without saving it.
func (h *LoanHandler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	var req domain.EligibilityRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.applications.Score(r.Context(), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.Success(w, result)
}

// SubmitApplication scores and, when approved, stores a new application.
// Rejected applications are answered with 200 and the rejection reason.
func (h *LoanHandler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	var req domain.ApplicationRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.applications.Submit(r.Context(), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	if result.LoanID == "" {
		response.Success(w, result)
		return
	}
	response.Created(w, result)
}

func (h *LoanHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.queries.ListLoans(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.Success(w, loans)
}

func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	view, err := h.queries.GetLoan(r.Context(), mux.Vars(r)["loanId"])
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.Success(w, view)
}

func (h *LoanHandler) ReviewLoan(w http.ResponseWriter, r *http.Request) {
	var req domain.ReviewRequest
	if !decode(w, r, &req) {
		return
	}

	loan, err := h.applications.Review(r.Context(), mux.Vars(r)["loanId"], &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.Success(w, loan)
}

// ReleaseLoan disburses a reviewed loan and returns its opening ledger row.
func (h *LoanHandler) ReleaseLoan(w http.ResponseWriter, r *http.Request) {
	var req domain.ReleaseRequest
	if !decode(w, r, &req) {
		return
	}

	detail, err := h.ledger.Release(r.Context(), mux.Vars(r)["loanId"], req.ReleaseDate)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.Success(w, detail)
}

func (h *LoanHandler) MakePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.ledger.ApplyPayment(r.Context(), mux.Vars(r)["loanId"], req.Amount)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.Created(w, result)
}

func (h *LoanHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	history, err := h.queries.ListPayments(r.Context(), mux.Vars(r)["loanId"])
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.Success(w, history)
}

func (h *LoanHandler) LedgerHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.queries.LedgerHistory(r.Context(), mux.Vars(r)["loanId"])
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.Success(w, rows)
}

// decode reads a JSON body into dst, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return false
	}
	return true
}
