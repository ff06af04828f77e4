package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"carteira/internal/core"
	"carteira/internal/ledger"
)

type billStore interface {
	ledger.CategoryStore
	ledger.ProfileStore
	ledger.RecurringBillStore
}

// BillInput is the recurring bill form. Either CategoryID or CategoryName
// must be set; a name that matches no expense category creates one. A zero
// ClosingDay falls back to the profile default.
type BillInput struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	TotalAmount      string `json:"totalAmount"`
	CategoryID       string `json:"categoryId"`
	CategoryName     string `json:"categoryName"`
	IsSubscription   bool   `json:"isSubscription"`
	StartDate        string `json:"startDate"`
	InstallmentCount int    `json:"installmentCount"`
	ClosingDay       int    `json:"closingDay"`
}

// BillQuery filters the bill list. Status is "active", "inactive" or empty.
type BillQuery struct {
	Status string
	Search string
}

type RecurringBillService struct {
	store       billStore
	categories  *CategoryService
	processor   *RecurringProcessor
	invalidator Invalidator
	now         func() time.Time
}

func NewRecurringBillService(store billStore, categories *CategoryService, processor *RecurringProcessor, invalidator Invalidator) *RecurringBillService {
	return &RecurringBillService{
		store:       store,
		categories:  categories,
		processor:   processor,
		invalidator: orNop(invalidator),
		now:         time.Now,
	}
}

func (s *RecurringBillService) List(ctx context.Context, userID string, q BillQuery) ([]core.RecurringBill, error) {
	switch q.Status {
	case "", "active", "inactive":
	default:
		fe := core.FieldErrors{}
		fe.Set("status", fmt.Sprintf("invalid status %q", q.Status))
		return nil, fe
	}

	bills, err := s.store.ListRecurringBills(ctx, ledger.BillFilter{UserID: userID, ActiveOnly: q.Status == "active"})
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := bills[:0]
	for _, b := range bills {
		if q.Status == "inactive" && b.Active {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(b.Name), search) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Create stores a bill and immediately generates the charges already due.
func (s *RecurringBillService) Create(ctx context.Context, userID string, in BillInput) (core.RecurringBill, error) {
	now := s.now()
	fe := core.FieldErrors{}
	b := core.RecurringBill{
		ID:             uuid.NewString(),
		UserID:         userID,
		Name:           strings.TrimSpace(in.Name),
		Description:    strings.TrimSpace(in.Description),
		IsSubscription: in.IsSubscription,
		ClosingDay:     in.ClosingDay,
		Active:         true,
		CreatedAt:      now.UTC(),
	}
	if !b.IsSubscription {
		b.InstallmentCount = in.InstallmentCount
	}

	var err error
	if b.TotalAmount, err = core.ParseAmount(in.TotalAmount); err != nil {
		fe.Add("totalAmount", err)
	}
	b.StartDate = core.DateOf(now)
	if strings.TrimSpace(in.StartDate) != "" {
		if b.StartDate, err = core.ParseDate(in.StartDate); err != nil {
			fe.Add("startDate", err)
		}
	}
	if b.ClosingDay == 0 {
		if b.ClosingDay, err = s.defaultClosingDay(ctx, userID); err != nil {
			return core.RecurringBill{}, err
		}
	}
	if err := fe.Err(); err != nil {
		return core.RecurringBill{}, err
	}

	cat, err := s.resolveCategory(ctx, userID, in)
	if err != nil {
		return core.RecurringBill{}, err
	}
	b.CategoryID = cat.ID

	if err := b.Validate(); err != nil {
		return core.RecurringBill{}, err
	}
	if err := s.store.CreateRecurringBill(ctx, b); err != nil {
		return core.RecurringBill{}, fmt.Errorf("create recurring bill: %w", err)
	}
	s.invalidator.Invalidate(userID)

	if s.processor != nil {
		if _, err := s.processor.ProcessUser(ctx, userID, now); err != nil {
			slog.ErrorContext(ctx, "Failed to process bills after create", "user_id", userID, "bill_id", b.ID, "error", err)
		}
	}
	return s.store.RecurringBill(ctx, userID, b.ID)
}

func (s *RecurringBillService) resolveCategory(ctx context.Context, userID string, in BillInput) (core.Category, error) {
	fe := core.FieldErrors{}
	switch {
	case strings.TrimSpace(in.CategoryID) != "":
		cat, err := s.store.Category(ctx, userID, strings.TrimSpace(in.CategoryID))
		if errors.Is(err, ledger.ErrNotFound) {
			fe.Add("categoryId", ErrCategoryNotFound)
			return core.Category{}, fe
		}
		if err != nil {
			return core.Category{}, fmt.Errorf("load category: %w", err)
		}
		if cat.Kind != core.KindExpense {
			fe.Add("categoryId", ErrCategoryKind)
			return core.Category{}, fe
		}
		return cat, nil
	case strings.TrimSpace(in.CategoryName) != "" && s.categories != nil:
		return s.categories.ExpenseCategory(ctx, userID, in.CategoryName)
	default:
		fe.Add("categoryId", core.ErrEmptyCategory)
		return core.Category{}, fe
	}
}

func (s *RecurringBillService) defaultClosingDay(ctx context.Context, userID string) (int, error) {
	p, err := s.store.ProfileByUser(ctx, userID)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return 1, nil
	case err != nil:
		return 0, fmt.Errorf("load profile: %w", err)
	case p.DefaultClosingDay < 1 || p.DefaultClosingDay > 31:
		return 1, nil
	}
	return p.DefaultClosingDay, nil
}

func (s *RecurringBillService) SetActive(ctx context.Context, userID, id string, active bool) (core.RecurringBill, error) {
	if err := s.store.SetRecurringBillActive(ctx, userID, id, active); err != nil {
		return core.RecurringBill{}, err
	}
	s.invalidator.Invalidate(userID)
	return s.store.RecurringBill(ctx, userID, id)
}

// Delete removes the bill and keeps the transactions it generated.
func (s *RecurringBillService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteRecurringBill(ctx, userID, id); err != nil {
		return err
	}
	s.invalidator.Invalidate(userID)
	return nil
}
