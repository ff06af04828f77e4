// Package ledger defines the persistence ports of the finance ledger.
//
// Every collection is scoped by user: reads filter on the owning user id and
// writes addressed by id touch a row only when it belongs to that user.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carteira/internal/core"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrUniqueViolation     = errors.New("unique constraint violated")
	ErrForeignKeyViolation = errors.New("foreign key constraint violated")
)

// UniqueError reports which field collided on insert.
type UniqueError struct {
	Field string
}

func (e *UniqueError) Error() string {
	return fmt.Sprintf("unique constraint violated on %s", e.Field)
}

func (e *UniqueError) Unwrap() error { return ErrUniqueViolation }

type (
	// Credential is the identity provider's record for one account.
	Credential struct {
		UserID       string
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}

	TransactionFilter struct {
		UserID          string
		RecurringBillID string
		Limit           int // 0 for no limit
	}

	LoanFilter struct {
		UserID       string
		Status       core.LoanStatus // empty for any
		NameContains string          // case-insensitive
		CreatedFrom  core.Date
		CreatedTo    core.Date
	}

	BillFilter struct {
		UserID     string
		ActiveOnly bool
	}
)

// Ports for the ledger collections.
type (
	CredentialStore interface {
		CreateCredential(ctx context.Context, c Credential) error
		CredentialByEmail(ctx context.Context, email string) (Credential, error)
	}

	SessionStore interface {
		RevokeSession(ctx context.Context, id string, expiresAt time.Time) error
		SessionRevoked(ctx context.Context, id string) (bool, error)
		// PurgeRevokedSessions drops revocations whose token has expired before t.
		PurgeRevokedSessions(ctx context.Context, before time.Time) (int, error)
	}

	UserStore interface {
		CreateUser(ctx context.Context, u core.User) error
		User(ctx context.Context, id string) (core.User, error)
		UpdateUser(ctx context.Context, u core.User) error
	}

	ProfileStore interface {
		CreateProfile(ctx context.Context, p core.FinancialProfile) error
		ProfileByUser(ctx context.Context, userID string) (core.FinancialProfile, error)
		UpdateProfile(ctx context.Context, p core.FinancialProfile) error
	}

	CategoryStore interface {
		CreateCategory(ctx context.Context, c core.Category) error
		Category(ctx context.Context, userID, id string) (core.Category, error)
		// ListCategories returns the user's categories ordered by name; an empty
		// kind returns both kinds.
		ListCategories(ctx context.Context, userID string, kind core.CategoryKind) ([]core.Category, error)
		RenameCategory(ctx context.Context, userID, id, name string) error
		// DeleteCategory fails with ErrForeignKeyViolation while any
		// transaction or recurring bill references the category.
		DeleteCategory(ctx context.Context, userID, id string) error
	}

	TransactionStore interface {
		// InsertTransactions stores all transactions or none.
		InsertTransactions(ctx context.Context, txs ...core.Transaction) error
		Transaction(ctx context.Context, userID, id string) (core.Transaction, error)
		// ListTransactions returns matches newest date first, with the
		// category name and kind embedded.
		ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
		TransactionsByID(ctx context.Context, ids ...string) ([]core.Transaction, error)
		DeleteTransaction(ctx context.Context, userID, id string) error
	}

	LoanStore interface {
		CreateLoan(ctx context.Context, l core.Loan) error
		Loan(ctx context.Context, userID, id string) (core.Loan, error)
		// ListLoans returns matches newest created date first.
		ListLoans(ctx context.Context, f LoanFilter) ([]core.Loan, error)
		UpdateLoanStatus(ctx context.Context, userID, id string, status core.LoanStatus, at time.Time) error
		DeleteLoan(ctx context.Context, userID, id string) error
	}

	RecurringBillStore interface {
		CreateRecurringBill(ctx context.Context, b core.RecurringBill) error
		RecurringBill(ctx context.Context, userID, id string) (core.RecurringBill, error)
		// ListRecurringBills returns matches newest first with the category embedded.
		ListRecurringBills(ctx context.Context, f BillFilter) ([]core.RecurringBill, error)
		SetInstallmentsPaid(ctx context.Context, userID, id string, n int) error
		SetRecurringBillActive(ctx context.Context, userID, id string, active bool) error
		// DeleteRecurringBill keeps generated transactions and clears their
		// back-reference.
		DeleteRecurringBill(ctx context.Context, userID, id string) error
		UsersWithActiveBills(ctx context.Context) ([]string, error)
	}

	// Store aggregates every collection behind one backend.
	Store interface {
		CredentialStore
		SessionStore
		UserStore
		ProfileStore
		CategoryStore
		TransactionStore
		LoanStore
		RecurringBillStore

		Ping(ctx context.Context) error
		Close() error
	}
)
