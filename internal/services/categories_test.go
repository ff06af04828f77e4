package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"carteira/internal/core"
	"carteira/internal/ledger"
	"carteira/internal/storage"
)

func TestCategoryLifecycle(t *testing.T) {
	store := seedStore(t)
	inv := &fakeInvalidator{}
	svc := NewCategoryService(store, inv)
	ctx := context.Background()

	c, err := svc.Create(ctx, "u1", CategoryInput{Name: "  Lazer ", Kind: core.KindExpense})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Name != "Lazer" || c.ID == "" {
		t.Errorf("Create = %+v", c)
	}

	if _, err := svc.Create(ctx, "u1", CategoryInput{Name: "Bônus", Kind: "gift"}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("invalid kind: %v", err)
	}

	renamed, err := svc.Rename(ctx, "u1", c.ID, "Diversão")
	if err != nil || renamed.Name != "Diversão" {
		t.Fatalf("Rename = %+v, %v", renamed, err)
	}
	if inv.count("u1") != 1 {
		t.Error("rename should invalidate cached breakdowns")
	}

	expenses, _ := svc.List(ctx, "u1", core.KindExpense)
	if len(expenses) != 2 || expenses[0].Name != "Diversão" || expenses[1].Name != "Moradia" {
		t.Errorf("List(expense) = %+v", expenses)
	}
	all, _ := svc.List(ctx, "u1", "")
	if len(all) != 3 {
		t.Errorf("List(all) returned %d", len(all))
	}

	if err := svc.Delete(ctx, "u1", c.ID); err != nil {
		t.Errorf("Delete unused: %v", err)
	}
	if err := svc.Delete(ctx, "u1", c.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Delete twice: %v", err)
	}
}

func TestCategoryDeleteGuard(t *testing.T) {
	store := seedStore(t)
	addTx(t, store, "t1", "c-exp", "42", core.NewDate(2025, 3, 1))
	svc := NewCategoryService(store, nil)
	ctx := context.Background()

	if err := svc.Delete(ctx, "u1", "c-exp"); !errors.Is(err, ErrCategoryInUse) {
		t.Fatalf("expected ErrCategoryInUse, got %v", err)
	}
	if _, err := store.Category(ctx, "u1", "c-exp"); err != nil {
		t.Errorf("category removed: %v", err)
	}
	if tx, err := store.Transaction(ctx, "u1", "t1"); err != nil || tx.CategoryName != "Moradia" {
		t.Errorf("transaction changed: %+v, %v", tx, err)
	}
}

func TestCategoryDeleteGuardSQLite(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "carteira.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	ctx := context.Background()

	if err := repo.CreateUser(ctx, core.User{ID: "u1", FullName: "Maria Silva", Login: "maria", Email: "maria@example.com", Active: true, CreatedAt: testNow}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	for _, id := range []string{"c-tx", "c-bill"} {
		c := core.Category{ID: id, UserID: "u1", Name: id, Kind: core.KindExpense, CreatedAt: testNow}
		if err := repo.CreateCategory(ctx, c); err != nil {
			t.Fatalf("CreateCategory: %v", err)
		}
	}
	tx := core.Transaction{ID: "t1", UserID: "u1", CategoryID: "c-tx", Amount: dec("42"), Date: core.NewDate(2025, 3, 1), CreatedAt: testNow}
	if err := repo.InsertTransactions(ctx, tx); err != nil {
		t.Fatalf("InsertTransactions: %v", err)
	}
	bill := core.RecurringBill{
		ID: "b1", UserID: "u1", Name: "Academia", TotalAmount: dec("90"), CategoryID: "c-bill",
		IsSubscription: true, StartDate: core.NewDate(2025, 1, 1), ClosingDay: 5, Active: true, CreatedAt: testNow,
	}
	if err := repo.CreateRecurringBill(ctx, bill); err != nil {
		t.Fatalf("CreateRecurringBill: %v", err)
	}

	svc := NewCategoryService(repo, nil)
	for _, id := range []string{"c-tx", "c-bill"} {
		t.Run(id, func(t *testing.T) {
			if err := svc.Delete(ctx, "u1", id); !errors.Is(err, ErrCategoryInUse) {
				t.Fatalf("expected ErrCategoryInUse, got %v", err)
			}
			if _, err := repo.Category(ctx, "u1", id); err != nil {
				t.Errorf("category removed: %v", err)
			}
		})
	}
}

func TestExpenseCategoryLookup(t *testing.T) {
	store := seedStore(t)
	svc := NewCategoryService(store, nil)
	ctx := context.Background()

	found, err := svc.ExpenseCategory(ctx, "u1", "moradia")
	if err != nil || found.ID != "c-exp" {
		t.Fatalf("ExpenseCategory(moradia) = %+v, %v", found, err)
	}

	// an income category with the same name is not reused
	created, err := svc.ExpenseCategory(ctx, "u1", "Salário")
	if err != nil || created.ID == "c-inc" || created.Kind != core.KindExpense {
		t.Fatalf("ExpenseCategory(Salário) = %+v, %v", created, err)
	}
}
