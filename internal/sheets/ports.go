// Package sheets copies ledger transactions to a spreadsheet for users who
// keep their own reports there.
package sheets

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"carteira/internal/core"
)

// Row is one exported transaction line.
type Row struct {
	TransactionID string
	UserID        string
	Date          core.Date
	Description   string
	Category      string
	Kind          core.CategoryKind
	Amount        decimal.Decimal
	Installment   int
	ExportedAt    time.Time
}

// Ports for outbound adapters.
type (
	TransactionExporter interface {
		// AppendRows writes rows after the last used line and returns a
		// reference to the written range.
		AppendRows(ctx context.Context, rows []Row) (ref string, err error)
	}

	// ExportIndex tells which transactions a year's sheet already holds, so
	// a redelivered message does not duplicate lines.
	ExportIndex interface {
		ExportedIDs(ctx context.Context, year int) (map[string]struct{}, error)
	}

	Exporter interface {
		TransactionExporter
		ExportIndex
	}
)

// RowFromTransaction maps a stored transaction to its sheet line.
func RowFromTransaction(tx core.Transaction, exportedAt time.Time) Row {
	category := tx.CategoryName
	if category == "" {
		category = core.UncategorizedLabel
	}
	return Row{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Date:          tx.Date,
		Description:   tx.Description,
		Category:      category,
		Kind:          tx.CategoryKind,
		Amount:        tx.Amount,
		Installment:   tx.InstallmentNumber,
		ExportedAt:    exportedAt,
	}
}

// KindLabel is the column text for a category kind.
func KindLabel(k core.CategoryKind) string {
	switch k {
	case core.KindIncome:
		return "Receita"
	case core.KindExpense:
		return "Despesa"
	default:
		return ""
	}
}
