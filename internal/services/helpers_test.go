package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"carteira/internal/amqp"
	"carteira/internal/core"
	"carteira/internal/ledger/memory"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.TransactionExportMessage
	err  error
}

func (p *fakePublisher) PublishTransactionExport(_ context.Context, msg *amqp.TransactionExportMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) published() []*amqp.TransactionExportMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*amqp.TransactionExportMessage(nil), p.msgs...)
}

type fakeInvalidator struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeInvalidator) Invalidate(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[userID]++
}

func (f *fakeInvalidator) count(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[userID]
}

// failingStore fails transaction inserts for one bill.
type failingStore struct {
	*memory.Store
	failBill string
}

var errDiskFull = errors.New("disk full")

func (s failingStore) InsertTransactions(ctx context.Context, txs ...core.Transaction) error {
	for _, tx := range txs {
		if tx.RecurringBillID == s.failBill {
			return errDiskFull
		}
	}
	return s.Store.InsertTransactions(ctx, txs...)
}

// seedStore returns a store holding user u1 with an expense category
// "Moradia" (c-exp) and an income category "Salário" (c-inc).
func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	if err := s.CreateUser(ctx, core.User{ID: "u1", FullName: "Maria Silva", Login: "maria", Email: "maria@example.com", Active: true}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	for _, c := range []core.Category{
		{ID: "c-exp", UserID: "u1", Name: "Moradia", Kind: core.KindExpense},
		{ID: "c-inc", UserID: "u1", Name: "Salário", Kind: core.KindIncome},
	} {
		if err := s.CreateCategory(ctx, c); err != nil {
			t.Fatalf("CreateCategory: %v", err)
		}
	}
	return s
}

func addBill(t *testing.T, s *memory.Store, b core.RecurringBill) core.RecurringBill {
	t.Helper()
	if b.UserID == "" {
		b.UserID = "u1"
	}
	if b.CategoryID == "" {
		b.CategoryID = "c-exp"
	}
	b.Active = true
	if err := s.CreateRecurringBill(context.Background(), b); err != nil {
		t.Fatalf("CreateRecurringBill: %v", err)
	}
	return b
}

func addTx(t *testing.T, s *memory.Store, id, category, amount string, date core.Date) {
	t.Helper()
	tx := core.Transaction{ID: id, UserID: "u1", CategoryID: category, Amount: dec(amount), Date: date, CreatedAt: testNow}
	if err := s.InsertTransactions(context.Background(), tx); err != nil {
		t.Fatalf("InsertTransactions: %v", err)
	}
}
