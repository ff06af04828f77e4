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

type CategoryInput struct {
	Name string            `json:"name"`
	Kind core.CategoryKind `json:"kind"`
}

type CategoryService struct {
	store       ledger.CategoryStore
	invalidator Invalidator
	now         func() time.Time
}

func NewCategoryService(store ledger.CategoryStore, invalidator Invalidator) *CategoryService {
	return &CategoryService{store: store, invalidator: orNop(invalidator), now: time.Now}
}

// List returns the user's categories by name. An empty kind lists both.
func (s *CategoryService) List(ctx context.Context, userID string, kind core.CategoryKind) ([]core.Category, error) {
	if kind != "" && !kind.Valid() {
		return nil, core.ErrInvalidKind
	}
	return s.store.ListCategories(ctx, userID, kind)
}

func (s *CategoryService) Create(ctx context.Context, userID string, in CategoryInput) (core.Category, error) {
	c := core.Category{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(in.Name),
		Kind:      in.Kind,
		CreatedAt: s.now().UTC(),
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (s *CategoryService) Rename(ctx context.Context, userID, id, name string) (core.Category, error) {
	c, err := s.store.Category(ctx, userID, id)
	if err != nil {
		return core.Category{}, err
	}
	c.Name = strings.TrimSpace(name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.store.RenameCategory(ctx, userID, id, c.Name); err != nil {
		return core.Category{}, fmt.Errorf("rename category: %w", err)
	}
	// Breakdowns are keyed by category name.
	s.invalidator.Invalidate(userID)
	return c, nil
}

// Delete removes a category. It fails with ErrCategoryInUse while any
// transaction or recurring bill still points at it.
func (s *CategoryService) Delete(ctx context.Context, userID, id string) error {
	err := s.store.DeleteCategory(ctx, userID, id)
	if errors.Is(err, ledger.ErrForeignKeyViolation) {
		slog.InfoContext(ctx, "Category deletion blocked by references", "user_id", userID, "category_id", id)
		return ErrCategoryInUse
	}
	return err
}

// ExpenseCategory resolves an expense category by name, ignoring case, and
// creates it when the user has none with that name.
func (s *CategoryService) ExpenseCategory(ctx context.Context, userID, name string) (core.Category, error) {
	name = strings.TrimSpace(name)
	cats, err := s.store.ListCategories(ctx, userID, core.KindExpense)
	if err != nil {
		return core.Category{}, fmt.Errorf("list expense categories: %w", err)
	}
	for _, c := range cats {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return s.Create(ctx, userID, CategoryInput{Name: name, Kind: core.KindExpense})
}
