package services

import (
	"context"
	"errors"
	"testing"

	"carteira/internal/amqp"
	"carteira/internal/core"
	"carteira/internal/ledger"
)

func TestProcessUserIsIdempotent(t *testing.T) {
	store := seedStore(t)
	addBill(t, store, core.RecurringBill{
		ID: "b1", Name: "Geladeira", TotalAmount: dec("100"), StartDate: core.NewDate(2025, 1, 5),
		InstallmentCount: 3, ClosingDay: 10,
	})
	pub := &fakePublisher{}
	inv := &fakeInvalidator{}
	p := NewRecurringProcessor(store, pub, inv)
	ctx := context.Background()

	first, err := p.ProcessUser(ctx, "u1", testNow)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Generated != 3 || first.BillsScanned != 1 {
		t.Fatalf("first run = %+v, want 3 generated", first)
	}

	second, err := p.ProcessUser(ctx, "u1", testNow)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Generated != 0 {
		t.Errorf("second run generated %d", second.Generated)
	}

	txs, _ := store.ListTransactions(ctx, ledger.TransactionFilter{UserID: "u1", RecurringBillID: "b1"})
	if len(txs) != 3 {
		t.Fatalf("stored %d installments, want 3", len(txs))
	}
	for _, tx := range txs {
		if !tx.Amount.Equal(dec("33.33")) {
			t.Errorf("installment %d = %s", tx.InstallmentNumber, tx.Amount)
		}
		if tx.CategoryName != "Moradia" {
			t.Errorf("category not embedded: %+v", tx)
		}
	}

	bill, _ := store.RecurringBill(ctx, "u1", "b1")
	if bill.InstallmentsPaid != 3 {
		t.Errorf("InstallmentsPaid = %d, want 3", bill.InstallmentsPaid)
	}
	if inv.count("u1") != 1 {
		t.Errorf("invalidated %d times, want 1", inv.count("u1"))
	}

	msgs := pub.published()
	if len(msgs) != 1 || len(msgs[0].TransactionIDs) != 3 || msgs[0].Source != amqp.SourceRecurring {
		t.Errorf("published %+v", msgs)
	}
}

func TestProcessUserStopsAfterLastInstallment(t *testing.T) {
	store := seedStore(t)
	addBill(t, store, core.RecurringBill{
		ID: "b1", Name: "Curso", TotalAmount: dec("300"), StartDate: core.NewDate(2024, 1, 1),
		InstallmentCount: 3, ClosingDay: 5,
	})
	p := NewRecurringProcessor(store, nil, nil)
	ctx := context.Background()

	if _, err := p.ProcessUser(ctx, "u1", testNow); err != nil {
		t.Fatalf("ProcessUser: %v", err)
	}
	later := testNow.AddDate(1, 0, 0)
	res, err := p.ProcessUser(ctx, "u1", later)
	if err != nil {
		t.Fatalf("ProcessUser: %v", err)
	}
	if res.Generated != 0 {
		t.Errorf("generated %d after the plan ended", res.Generated)
	}

	txs, _ := store.ListTransactions(ctx, ledger.TransactionFilter{UserID: "u1", RecurringBillID: "b1"})
	if len(txs) != 3 {
		t.Errorf("stored %d installments, want 3", len(txs))
	}
}

func TestProcessUserSkipsInactiveBills(t *testing.T) {
	store := seedStore(t)
	addBill(t, store, core.RecurringBill{
		ID: "b1", Name: "Academia", TotalAmount: dec("99.90"), IsSubscription: true,
		StartDate: core.NewDate(2025, 1, 1), ClosingDay: 1,
	})
	ctx := context.Background()
	if err := store.SetRecurringBillActive(ctx, "u1", "b1", false); err != nil {
		t.Fatal(err)
	}

	res, err := NewRecurringProcessor(store, nil, nil).ProcessUser(ctx, "u1", testNow)
	if err != nil {
		t.Fatalf("ProcessUser: %v", err)
	}
	if res.BillsScanned != 0 || res.Generated != 0 {
		t.Errorf("inactive bill processed: %+v", res)
	}
}

func TestProcessUserContinuesAfterBillFailure(t *testing.T) {
	mem := seedStore(t)
	addBill(t, mem, core.RecurringBill{
		ID: "broken", Name: "Carro", TotalAmount: dec("1200"), StartDate: core.NewDate(2025, 1, 1),
		InstallmentCount: 12, ClosingDay: 10, CreatedAt: testNow,
	})
	addBill(t, mem, core.RecurringBill{
		ID: "ok", Name: "Streaming", TotalAmount: dec("39.90"), IsSubscription: true,
		StartDate: core.NewDate(2025, 1, 1), ClosingDay: 10, CreatedAt: testNow.Add(-1),
	})
	store := failingStore{Store: mem, failBill: "broken"}
	pub := &fakePublisher{}

	res, err := NewRecurringProcessor(store, pub, nil).ProcessUser(context.Background(), "u1", testNow)
	if err != nil {
		t.Fatalf("ProcessUser: %v", err)
	}
	if res.BillsScanned != 2 || res.Generated != 3 {
		t.Errorf("result = %+v, want 2 scanned and 3 generated", res)
	}
	if len(res.Failed) != 1 || res.Failed[0].BillID != "broken" || !errors.Is(res.Failed[0].Err, errDiskFull) {
		t.Errorf("failures = %+v", res.Failed)
	}

	bill, _ := mem.RecurringBill(context.Background(), "u1", "broken")
	if bill.InstallmentsPaid != 0 {
		t.Errorf("failed bill counter moved to %d", bill.InstallmentsPaid)
	}
}

func TestProcessUserPublishFailureKeepsTransactions(t *testing.T) {
	store := seedStore(t)
	addBill(t, store, core.RecurringBill{
		ID: "b1", Name: "Internet", TotalAmount: dec("120"), IsSubscription: true,
		StartDate: core.NewDate(2025, 3, 1), ClosingDay: 1,
	})
	pub := &fakePublisher{err: errors.New("circuit breaker is open")}

	res, err := NewRecurringProcessor(store, pub, nil).ProcessUser(context.Background(), "u1", testNow)
	if err != nil || res.Generated != 1 || len(res.Failed) != 0 {
		t.Fatalf("ProcessUser = %+v, %v", res, err)
	}
}

func TestProcessAll(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()
	if err := store.CreateUser(ctx, core.User{ID: "u2", Login: "joao", Email: "joao@example.com"}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateCategory(ctx, core.Category{ID: "c2", UserID: "u2", Name: "Lazer", Kind: core.KindExpense}); err != nil {
		t.Fatal(err)
	}
	addBill(t, store, core.RecurringBill{
		ID: "b1", Name: "Streaming", TotalAmount: dec("20"), IsSubscription: true,
		StartDate: core.NewDate(2025, 2, 1), ClosingDay: 1,
	})
	addBill(t, store, core.RecurringBill{
		ID: "b2", UserID: "u2", CategoryID: "c2", Name: "Clube", TotalAmount: dec("50"),
		IsSubscription: true, StartDate: core.NewDate(2025, 3, 1), ClosingDay: 1,
	})

	res, err := NewRecurringProcessor(store, nil, nil).ProcessAll(ctx, testNow)
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if res.BillsScanned != 2 || res.Generated != 3 {
		t.Errorf("ProcessAll = %+v, want 2 bills and 3 generated", res)
	}
}

func TestProcessorNotInitialized(t *testing.T) {
	p := NewRecurringProcessor(nil, nil, nil)
	if _, err := p.ProcessUser(context.Background(), "u1", testNow); err == nil {
		t.Error("expected error without a store")
	}
}
