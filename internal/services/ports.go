package services

import (
	"context"
	"errors"

	"carteira/internal/amqp"
)

// Publisher sends export requests for freshly stored transactions.
type Publisher interface {
	PublishTransactionExport(ctx context.Context, msg *amqp.TransactionExportMessage) error
}

// Invalidator drops whatever is cached for a user after a write.
type Invalidator interface {
	Invalidate(userID string)
}

var (
	ErrCategoryInUse    = errors.New("category has linked transactions")
	ErrCategoryKind     = errors.New("category kind does not match")
	ErrCategoryNotFound = errors.New("category not found")
)

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(string) {}

func orNop(inv Invalidator) Invalidator {
	if inv == nil {
		return nopInvalidator{}
	}
	return inv
}
