package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"carteira/internal/amqp"
	"carteira/internal/core"
	"carteira/internal/ledger"
	"carteira/internal/sheets"
)

const DefaultBatchSize = 50

// ExportWorker copies transactions named by export messages to the spreadsheet.
type ExportWorker struct {
	store     ledger.TransactionStore
	exporter  sheets.Exporter
	batchSize int
	now       func() time.Time
}

func NewExportWorker(store ledger.TransactionStore, exporter sheets.Exporter, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ExportWorker{
		store:     store,
		exporter:  exporter,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// HandleExportMessage processes a single export message from AMQP. Ids that
// no longer exist, belong to another user or are already in the sheet are
// skipped, so a redelivered message is harmless.
func (w *ExportWorker) HandleExportMessage(ctx context.Context, msg *amqp.TransactionExportMessage) error {
	if w.store == nil || w.exporter == nil {
		return errors.New("export worker not properly initialized")
	}

	slog.InfoContext(ctx, "Processing export message",
		"user_id", msg.UserID,
		"source", msg.Source,
		"count", len(msg.TransactionIDs))

	txs, err := w.store.TransactionsByID(ctx, msg.TransactionIDs...)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}

	owned := txs[:0]
	for _, tx := range txs {
		if tx.UserID != msg.UserID {
			slog.WarnContext(ctx, "Skipping transaction of another user",
				"user_id", msg.UserID, "transaction_id", tx.ID)
			continue
		}
		owned = append(owned, tx)
	}
	if missing := len(msg.TransactionIDs) - len(txs); missing > 0 {
		slog.WarnContext(ctx, "Transactions not found, probably deleted",
			"user_id", msg.UserID, "missing", missing)
	}

	rows, err := w.pendingRows(ctx, owned)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		slog.InfoContext(ctx, "Nothing to export", "user_id", msg.UserID)
		return nil
	}

	for start := 0; start < len(rows); start += w.batchSize {
		end := min(start+w.batchSize, len(rows))
		ref, err := w.exporter.AppendRows(ctx, rows[start:end])
		if err != nil {
			return fmt.Errorf("append to sheets: %w", err)
		}
		slog.InfoContext(ctx, "Successfully exported transactions",
			"user_id", msg.UserID,
			"rows", end-start,
			"sheets_ref", ref)
	}
	return nil
}

// pendingRows drops transactions whose id already appears in their year's sheet.
func (w *ExportWorker) pendingRows(ctx context.Context, txs []core.Transaction) ([]sheets.Row, error) {
	exported := map[int]map[string]struct{}{}
	exportedAt := w.now()

	rows := make([]sheets.Row, 0, len(txs))
	for _, tx := range txs {
		year := tx.Date.Year()
		ids, ok := exported[year]
		if !ok {
			var err error
			ids, err = w.exporter.ExportedIDs(ctx, year)
			if err != nil {
				return nil, fmt.Errorf("read exported ids for %d: %w", year, err)
			}
			exported[year] = ids
		}
		if _, done := ids[tx.ID]; done {
			slog.DebugContext(ctx, "Transaction already exported", "transaction_id", tx.ID)
			continue
		}
		ids[tx.ID] = struct{}{}
		rows = append(rows, sheets.RowFromTransaction(tx, exportedAt))
	}
	return rows, nil
}
