package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carteira/internal/core"
	"carteira/internal/ledger"
)

type LoanInput struct {
	Name        string `json:"name"`
	Amount      string `json:"amount"`
	CreatedDate string `json:"createdDate"`
	PaymentDate string `json:"paymentDate"`
}

// LoanQuery narrows the loan list. Dates are inclusive and optional.
type LoanQuery struct {
	Status core.LoanStatus
	Search string
	From   string
	To     string
}

type LoanService struct {
	store       ledger.LoanStore
	invalidator Invalidator
	now         func() time.Time
}

func NewLoanService(store ledger.LoanStore, invalidator Invalidator) *LoanService {
	return &LoanService{store: store, invalidator: orNop(invalidator), now: time.Now}
}

func (s *LoanService) List(ctx context.Context, userID string, q LoanQuery) ([]core.Loan, error) {
	f := ledger.LoanFilter{UserID: userID, Status: q.Status, NameContains: strings.TrimSpace(q.Search)}
	fe := core.FieldErrors{}
	if f.Status != "" && !f.Status.Valid() {
		fe.Add("status", core.ErrInvalidStatus)
	}
	var err error
	if q.From != "" {
		if f.CreatedFrom, err = core.ParseDate(q.From); err != nil {
			fe.Add("from", err)
		}
	}
	if q.To != "" {
		if f.CreatedTo, err = core.ParseDate(q.To); err != nil {
			fe.Add("to", err)
		}
	}
	if err := fe.Err(); err != nil {
		return nil, err
	}
	return s.store.ListLoans(ctx, f)
}

// Create records a pending loan. The created date defaults to today.
func (s *LoanService) Create(ctx context.Context, userID string, in LoanInput) (core.Loan, error) {
	now := s.now()
	fe := core.FieldErrors{}
	l := core.Loan{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(in.Name),
		Status:    core.LoanPending,
		UpdatedAt: now.UTC(),
	}

	var err error
	if l.Amount, err = core.ParseAmount(in.Amount); err != nil {
		fe.Add("amount", err)
	}
	l.CreatedDate = core.DateOf(now)
	if strings.TrimSpace(in.CreatedDate) != "" {
		if l.CreatedDate, err = core.ParseDate(in.CreatedDate); err != nil {
			fe.Add("createdDate", err)
		}
	}
	if strings.TrimSpace(in.PaymentDate) != "" {
		if l.PaymentDate, err = core.ParseDate(in.PaymentDate); err != nil {
			fe.Add("paymentDate", err)
		}
	}
	if err := fe.Err(); err != nil {
		return core.Loan{}, err
	}
	if err := l.Validate(); err != nil {
		return core.Loan{}, err
	}

	if err := s.store.CreateLoan(ctx, l); err != nil {
		return core.Loan{}, fmt.Errorf("create loan: %w", err)
	}
	s.invalidator.Invalidate(userID)
	return l, nil
}

// SetStatus moves a loan between pending and paid in either direction and
// stamps the change time, which dates the payment in the dashboard.
func (s *LoanService) SetStatus(ctx context.Context, userID, id string, status core.LoanStatus) (core.Loan, error) {
	if !status.Valid() {
		fe := core.FieldErrors{}
		fe.Add("status", core.ErrInvalidStatus)
		return core.Loan{}, fe
	}
	at := s.now().UTC()
	if err := s.store.UpdateLoanStatus(ctx, userID, id, status, at); err != nil {
		return core.Loan{}, err
	}
	s.invalidator.Invalidate(userID)
	return s.store.Loan(ctx, userID, id)
}

func (s *LoanService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteLoan(ctx, userID, id); err != nil {
		return err
	}
	s.invalidator.Invalidate(userID)
	return nil
}

// PendingTotal sums the loans still owed.
func (s *LoanService) PendingTotal(ctx context.Context, userID string) (decimal.Decimal, error) {
	loans, err := s.store.ListLoans(ctx, ledger.LoanFilter{UserID: userID, Status: core.LoanPending})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, l := range loans {
		total = total.Add(l.Amount)
	}
	return total, nil
}
