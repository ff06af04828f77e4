package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"carteira/internal/amqp"
	"carteira/internal/core"
	"carteira/internal/ledger"
)

type transactionStore interface {
	ledger.CategoryStore
	ledger.TransactionStore
}

// TransactionInput is the raw transaction form. Amount accepts a comma or a
// dot as decimal separator.
type TransactionInput struct {
	CategoryID  string `json:"categoryId"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

// TransactionService stores manual transactions and hands them to the export
// queue. Publishing is best effort: a stored transaction is never rolled back
// because the broker is down.
type TransactionService struct {
	store       transactionStore
	publisher   Publisher
	invalidator Invalidator
	now         func() time.Time
}

func NewTransactionService(store transactionStore, publisher Publisher, invalidator Invalidator) *TransactionService {
	return &TransactionService{
		store:       store,
		publisher:   publisher,
		invalidator: orNop(invalidator),
		now:         time.Now,
	}
}

// List returns the user's transactions newest first. limit 0 lists all.
func (s *TransactionService) List(ctx context.Context, userID string, limit int) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, ledger.TransactionFilter{UserID: userID, Limit: limit})
}

func (s *TransactionService) Create(ctx context.Context, userID string, in TransactionInput) (core.Transaction, error) {
	fe := core.FieldErrors{}
	tx := core.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		CategoryID:  strings.TrimSpace(in.CategoryID),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   s.now().UTC(),
	}

	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		fe.Add("amount", err)
	}
	tx.Amount = amount

	if strings.TrimSpace(in.Date) == "" {
		tx.Date = core.DateOf(s.now())
	} else if tx.Date, err = core.ParseDate(in.Date); err != nil {
		fe.Add("date", err)
	}

	if err := tx.Validate(); err != nil {
		var more core.FieldErrors
		if errors.As(err, &more) {
			for field, msg := range more {
				if _, ok := fe[field]; !ok {
					fe.Set(field, msg)
				}
			}
		}
	}
	if err := fe.Err(); err != nil {
		return core.Transaction{}, err
	}

	cat, err := s.store.Category(ctx, userID, tx.CategoryID)
	if errors.Is(err, ledger.ErrNotFound) {
		fe.Add("categoryId", ErrCategoryNotFound)
		return core.Transaction{}, fe
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("load category: %w", err)
	}

	if err := s.store.InsertTransactions(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	tx.CategoryName, tx.CategoryKind = cat.Name, cat.Kind

	s.invalidator.Invalidate(userID)
	publishExport(ctx, s.publisher, userID, amqp.SourceManual, []string{tx.ID})
	return tx, nil
}

func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteTransaction(ctx, userID, id); err != nil {
		return err
	}
	s.invalidator.Invalidate(userID)
	return nil
}
