// Package memstore is an in-memory repository.UnitOfWork for tests. It keeps
// the guarantees the postgres implementation gives the services: per-loan
// locking with a timeout, atomic commit or rollback, and a single current
// ledger row per loan.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Pawieee/microbank/internal/domain"
	"github.com/Pawieee/microbank/internal/repository"
	apperrors "github.com/Pawieee/microbank/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrDuplicateCurrent mirrors the partial unique index on current rows.
var ErrDuplicateCurrent = errors.New("memstore: loan already has a current ledger row")

// Fault points understood by Fail.
const (
	OpApplicantCreate  = "applicants.create"
	OpLoanCreate       = "loans.create"
	OpLoanUpdate       = "loans.update"
	OpLedgerDeactivate = "ledger.deactivate"
	OpLedgerInsert     = "ledger.insert"
	OpPaymentCreate    = "payments.create"
)

type state struct {
	applicants map[string]domain.Applicant
	loans      map[string]domain.Loan
	details    []domain.LoanDetail
	payments   []domain.Payment
}

func newState() *state {
	return &state{
		applicants: map[string]domain.Applicant{},
		loans:      map[string]domain.Loan{},
	}
}

func (s *state) clone() *state {
	c := &state{
		applicants: make(map[string]domain.Applicant, len(s.applicants)),
		loans:      make(map[string]domain.Loan, len(s.loans)),
		details:    append([]domain.LoanDetail(nil), s.details...),
		payments:   append([]domain.Payment(nil), s.payments...),
	}
	for k, v := range s.applicants {
		c.applicants[k] = v
	}
	for k, v := range s.loans {
		c.loans[k] = v
	}
	return c
}

// Store holds committed state. The zero value is not usable; call New.
type Store struct {
	// LockTimeout bounds how long WithinLoanTx waits for a busy loan.
	LockTimeout time.Duration

	mu sync.Mutex
	st *state

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	faultsMu sync.Mutex
	faults   map[string]error
}

var _ repository.UnitOfWork = (*Store)(nil)

func New() *Store {
	return &Store{
		LockTimeout: time.Second,
		st:          newState(),
		locks:       map[string]chan struct{}{},
		faults:      map[string]error{},
	}
}

// Fail makes the named operation return err until cleared with a nil err.
func (s *Store) Fail(op string, err error) {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	return s.faults[op]
}

// Repos returns repositories that read and write committed state directly.
func (s *Store) Repos() repository.Repos {
	return reposFor(&view{store: s})
}

func (s *Store) WithinTx(ctx context.Context, fn func(r repository.Repos) error) error {
	return s.run(ctx, "", func(v *view) error {
		return fn(reposFor(v))
	})
}

func (s *Store) WithinLoanTx(ctx context.Context, loanID string, fn func(r repository.Repos, l *domain.Loan) error) error {
	release, err := s.lockLoan(ctx, loanID)
	if err != nil {
		return err
	}
	defer release()

	return s.run(ctx, loanID, func(v *view) error {
		l, ok := v.st.loans[loanID]
		if !ok {
			return apperrors.WrapLoanNotFound(loanID)
		}
		return fn(reposFor(v), &l)
	})
}

func (s *Store) run(ctx context.Context, loanID string, fn func(v *view) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&view{store: s, st: work, inTx: true}); err != nil {
		return repository.TranslateTxError(loanID, err)
	}

	s.st = work
	return nil
}

func (s *Store) lockLoan(ctx context.Context, loanID string) (func(), error) {
	s.locksMu.Lock()
	lock, ok := s.locks[loanID]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[loanID] = lock
	}
	s.locksMu.Unlock()

	timer := time.NewTimer(s.LockTimeout)
	defer timer.Stop()

	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-timer.C:
		return nil, apperrors.WrapContention(loanID, errors.New("memstore: lock timeout"))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Seed helpers write committed state directly.

func (s *Store) PutApplicant(a domain.Applicant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.applicants[a.ApplicantID] = a
}

func (s *Store) PutLoan(l domain.Loan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.loans[l.LoanID] = l
}

func (s *Store) PutDetail(d domain.LoanDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.details = append(s.st.details, d)
}

// Snapshot accessors return copies of committed state.

func (s *Store) Loan(loanID string) (domain.Loan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.st.loans[loanID]
	return l, ok
}

func (s *Store) Details(loanID string) []domain.LoanDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LoanDetail
	for _, d := range s.st.details {
		if d.LoanID == loanID {
			out = append(out, d)
		}
	}
	return out
}

func (s *Store) Payments(loanID string) []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Payment
	for _, p := range s.st.payments {
		if p.LoanID == loanID {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) ApplicantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.applicants)
}

func (s *Store) LoanCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.loans)
}

// view is one set of repositories over either committed state (taking the
// store lock per call) or a transaction's working copy.
type view struct {
	store *Store
	st    *state
	inTx  bool
}

func (v *view) with(fn func(st *state) error) error {
	if v.inTx {
		return fn(v.st)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.st)
}

func reposFor(v *view) repository.Repos {
	return repository.Repos{
		Applicants: applicantRepo{v},
		Loans:      loanRepo{v},
		Ledger:     ledgerRepo{v},
		Payments:   paymentRepo{v},
	}
}

type applicantRepo struct{ v *view }

func (r applicantRepo) Create(_ context.Context, a *domain.Applicant) error {
	if err := r.v.store.fault(OpApplicantCreate); err != nil {
		return err
	}
	return r.v.with(func(st *state) error {
		if _, ok := st.applicants[a.ApplicantID]; ok {
			return fmt.Errorf("memstore: duplicate applicant %s", a.ApplicantID)
		}
		st.applicants[a.ApplicantID] = *a
		return nil
	})
}

func (r applicantRepo) GetByID(_ context.Context, applicantID string) (*domain.Applicant, error) {
	var out *domain.Applicant
	err := r.v.with(func(st *state) error {
		a, ok := st.applicants[applicantID]
		if !ok {
			return repository.ErrNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

type loanRepo struct{ v *view }

func (r loanRepo) Create(_ context.Context, l *domain.Loan) error {
	if err := r.v.store.fault(OpLoanCreate); err != nil {
		return err
	}
	return r.v.with(func(st *state) error {
		if _, ok := st.loans[l.LoanID]; ok {
			return fmt.Errorf("memstore: duplicate loan %s", l.LoanID)
		}
		st.loans[l.LoanID] = *l
		return nil
	})
}

func (r loanRepo) GetByLoanID(_ context.Context, loanID string) (*domain.Loan, error) {
	var out *domain.Loan
	err := r.v.with(func(st *state) error {
		l, ok := st.loans[loanID]
		if !ok {
			return repository.ErrNotFound
		}
		out = &l
		return nil
	})
	return out, err
}

// GetByLoanIDForUpdate does not lock; WithinLoanTx already holds the loan.
func (r loanRepo) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*domain.Loan, error) {
	return r.GetByLoanID(ctx, loanID)
}

func (r loanRepo) Update(_ context.Context, l *domain.Loan) error {
	if err := r.v.store.fault(OpLoanUpdate); err != nil {
		return err
	}
	return r.v.with(func(st *state) error {
		if _, ok := st.loans[l.LoanID]; !ok {
			return repository.ErrNotFound
		}
		st.loans[l.LoanID] = *l
		return nil
	})
}

func (r loanRepo) ListByStatus(_ context.Context, status domain.LoanStatus) ([]*domain.Loan, error) {
	out := []*domain.Loan{}
	err := r.v.with(func(st *state) error {
		for _, l := range st.loans {
			l := l
			if status == "" || l.Status == status {
				out = append(out, &l)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ApplicationDate.After(out[j].ApplicationDate) })
	return out, err
}

type ledgerRepo struct{ v *view }

func (r ledgerRepo) GetCurrent(_ context.Context, loanID string) (*domain.LoanDetail, error) {
	var out *domain.LoanDetail
	err := r.v.with(func(st *state) error {
		for _, d := range st.details {
			if d.LoanID == loanID && d.IsCurrent {
				out = &d
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r ledgerRepo) Deactivate(_ context.Context, loanDetailID string) error {
	if err := r.v.store.fault(OpLedgerDeactivate); err != nil {
		return err
	}
	return r.v.with(func(st *state) error {
		for i := range st.details {
			if st.details[i].LoanDetailID == loanDetailID && st.details[i].IsCurrent {
				st.details[i].IsCurrent = false
				return nil
			}
		}
		return repository.ErrStaleLedgerRow
	})
}

func (r ledgerRepo) Insert(_ context.Context, d *domain.LoanDetail) error {
	if err := r.v.store.fault(OpLedgerInsert); err != nil {
		return err
	}
	return r.v.with(func(st *state) error {
		if d.IsCurrent {
			for _, existing := range st.details {
				if existing.LoanID == d.LoanID && existing.IsCurrent {
					return ErrDuplicateCurrent
				}
			}
		}
		st.details = append(st.details, *d)
		return nil
	})
}

func (r ledgerRepo) History(_ context.Context, loanID string) ([]*domain.LoanDetail, error) {
	out := []*domain.LoanDetail{}
	err := r.v.with(func(st *state) error {
		for _, d := range st.details {
			d := d
			if d.LoanID == loanID {
				out = append(out, &d)
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			if a.PaymentsRemaining != b.PaymentsRemaining {
				return a.PaymentsRemaining > b.PaymentsRemaining
			}
			return a.Balance.GreaterThan(b.Balance)
		})
		return nil
	})
	return out, err
}

func (r ledgerRepo) ListDueBetween(_ context.Context, from, to time.Time) ([]*domain.DueLoan, error) {
	return r.due(func(next time.Time) bool {
		return !next.Before(from) && !next.After(to)
	})
}

func (r ledgerRepo) ListOverdue(_ context.Context, before time.Time) ([]*domain.DueLoan, error) {
	return r.due(func(next time.Time) bool {
		return next.Before(before)
	})
}

func (r ledgerRepo) due(match func(next time.Time) bool) ([]*domain.DueLoan, error) {
	out := []*domain.DueLoan{}
	err := r.v.with(func(st *state) error {
		for _, d := range st.details {
			if !d.IsCurrent || d.NextDue == nil || !match(*d.NextDue) {
				continue
			}
			l := st.loans[d.LoanID]
			if l.Status != domain.LoanStatusApproved {
				continue
			}
			a := st.applicants[l.ApplicantID]
			out = append(out, &domain.DueLoan{
				LoanID:        d.LoanID,
				ApplicantName: strings.TrimSpace(a.FullName()),
				Email:         a.Email,
				DueAmount:     d.DueAmount,
				Balance:       d.Balance,
				NextDue:       *d.NextDue,
			})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].NextDue.Before(out[j].NextDue) })
	return out, err
}

type paymentRepo struct{ v *view }

func (r paymentRepo) Create(_ context.Context, p *domain.Payment) error {
	if err := r.v.store.fault(OpPaymentCreate); err != nil {
		return err
	}
	return r.v.with(func(st *state) error {
		st.payments = append(st.payments, *p)
		return nil
	})
}

func (r paymentRepo) GetByLoanID(_ context.Context, loanID string) ([]*domain.Payment, error) {
	out := []*domain.Payment{}
	err := r.v.with(func(st *state) error {
		// newest first; appends are chronological
		for i := len(st.payments) - 1; i >= 0; i-- {
			if p := st.payments[i]; p.LoanID == loanID {
				out = append(out, &p)
			}
		}
		return nil
	})
	return out, err
}

func (r paymentRepo) GetTotalPaid(_ context.Context, loanID string) (decimal.Decimal, error) {
	total := decimal.Zero
	err := r.v.with(func(st *state) error {
		for _, p := range st.payments {
			if p.LoanID == loanID {
				total = total.Add(p.AmountPaid)
			}
		}
		return nil
	})
	return total, err
}

func (r paymentRepo) GetLatestPayment(_ context.Context, loanID string) (*domain.Payment, error) {
	var out *domain.Payment
	err := r.v.with(func(st *state) error {
		for i := len(st.payments) - 1; i >= 0; i-- {
			if p := st.payments[i]; p.LoanID == loanID {
				out = &p
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}
