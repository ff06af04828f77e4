package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"carteira/internal/amqp"
	"carteira/internal/core"
	"carteira/internal/ledger"
)

type recurringStore interface {
	ledger.TransactionStore
	ledger.RecurringBillStore
}

// BillFailure records a bill that could not be processed in a scan.
type BillFailure struct {
	BillID string
	Name   string
	Err    error
}

// ProcessResult summarizes one scan over a user's bills.
type ProcessResult struct {
	BillsScanned int
	Generated    int
	Failed       []BillFailure
}

// RecurringProcessor materializes the monthly transactions of recurring bills.
// It is safe to run on every page load: dates that already hold a generated
// transaction are never generated again.
type RecurringProcessor struct {
	store       recurringStore
	publisher   Publisher
	invalidator Invalidator
	newID       func() string
}

func NewRecurringProcessor(store recurringStore, publisher Publisher, invalidator Invalidator) *RecurringProcessor {
	return &RecurringProcessor{
		store:       store,
		publisher:   publisher,
		invalidator: orNop(invalidator),
		newID:       uuid.NewString,
	}
}

// ProcessUser scans every active bill of userID and stores the charges due up
// to now's calendar day. Bills are handled one at a time; a failing bill is
// logged, reported in the result and does not stop the scan.
func (p *RecurringProcessor) ProcessUser(ctx context.Context, userID string, now time.Time) (ProcessResult, error) {
	var result ProcessResult
	if p.store == nil {
		return result, fmt.Errorf("processor not properly initialized")
	}

	bills, err := p.store.ListRecurringBills(ctx, ledger.BillFilter{UserID: userID, ActiveOnly: true})
	if err != nil {
		return result, fmt.Errorf("list active bills: %w", err)
	}

	today := core.DateOf(now)
	for _, bill := range bills {
		result.BillsScanned++
		n, err := p.processBill(ctx, bill, today, now)
		result.Generated += n
		if err != nil {
			slog.ErrorContext(ctx, "Failed to process recurring bill",
				"user_id", userID,
				"bill_id", bill.ID,
				"name", bill.Name,
				"error", err)
			result.Failed = append(result.Failed, BillFailure{BillID: bill.ID, Name: bill.Name, Err: err})
		}
	}

	if result.Generated > 0 {
		p.invalidator.Invalidate(userID)
		slog.InfoContext(ctx, "Recurring bills processed",
			"user_id", userID,
			"bills", result.BillsScanned,
			"generated", result.Generated,
			"failed", len(result.Failed))
	}
	return result, nil
}

func (p *RecurringProcessor) processBill(ctx context.Context, bill core.RecurringBill, today core.Date, now time.Time) (int, error) {
	if bill.FullyPaid() {
		return 0, nil
	}

	existing, err := p.store.ListTransactions(ctx, ledger.TransactionFilter{
		UserID:          bill.UserID,
		RecurringBillID: bill.ID,
	})
	if err != nil {
		return 0, fmt.Errorf("list generated transactions: %w", err)
	}

	plan := core.PlanInstallments(bill, existing, today)
	if len(plan.Due) == 0 {
		return 0, nil
	}

	ids := make([]string, len(plan.Due))
	for i := range plan.Due {
		plan.Due[i].ID = p.newID()
		plan.Due[i].UserID = bill.UserID
		plan.Due[i].CreatedAt = now.UTC()
		ids[i] = plan.Due[i].ID
	}

	if err := p.store.InsertTransactions(ctx, plan.Due...); err != nil {
		return 0, fmt.Errorf("insert installments: %w", err)
	}
	if err := p.store.SetInstallmentsPaid(ctx, bill.UserID, bill.ID, plan.Processed); err != nil {
		// The next scan recounts from the stored transactions.
		return len(plan.Due), fmt.Errorf("update installments paid: %w", err)
	}

	publishExport(ctx, p.publisher, bill.UserID, amqp.SourceRecurring, ids)
	return len(plan.Due), nil
}

// ProcessAll runs ProcessUser for every user that owns an active bill.
func (p *RecurringProcessor) ProcessAll(ctx context.Context, now time.Time) (ProcessResult, error) {
	var total ProcessResult
	if p.store == nil {
		return total, fmt.Errorf("processor not properly initialized")
	}

	users, err := p.store.UsersWithActiveBills(ctx)
	if err != nil {
		return total, fmt.Errorf("list users with active bills: %w", err)
	}

	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		result, err := p.ProcessUser(ctx, userID, now)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to process user bills", "user_id", userID, "error", err)
			continue
		}
		total.BillsScanned += result.BillsScanned
		total.Generated += result.Generated
		total.Failed = append(total.Failed, result.Failed...)
	}

	slog.InfoContext(ctx, "Recurring bill processing complete",
		"users", len(users),
		"bills", total.BillsScanned,
		"generated", total.Generated,
		"failed", len(total.Failed))
	return total, nil
}

func publishExport(ctx context.Context, pub Publisher, userID, source string, ids []string) {
	if pub == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping export message")
		return
	}
	msg := amqp.NewTransactionExportMessage(userID, source, ids...)
	if err := pub.PublishTransactionExport(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish export message",
			"user_id", userID,
			"transactions", len(ids),
			"error", err)
	}
}
