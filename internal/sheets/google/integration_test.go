//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carteira/internal/core"
	ports "carteira/internal/sheets"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_ExportRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx := context.Background()
	client, err := New(ctx, Options{
		SpreadsheetID:      spreadsheetID,
		SheetName:          "Integração",
		ServiceAccountJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		ServiceAccountFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	now := time.Now()
	row := ports.Row{
		TransactionID: uuid.NewString(),
		UserID:        "integration",
		Date:          core.DateOf(now),
		Description:   "Teste de integração",
		Category:      "Testes",
		Kind:          core.KindExpense,
		Amount:        decimal.RequireFromString("0.01"),
		ExportedAt:    now,
	}
	if _, err := client.AppendRows(ctx, []ports.Row{row}); err != nil {
		t.Fatalf("AppendRows: %v", err)
	}

	ids, err := client.ExportedIDs(ctx, now.Year())
	if err != nil {
		t.Fatalf("ExportedIDs: %v", err)
	}
	if _, ok := ids[row.TransactionID]; !ok {
		t.Errorf("exported id %s not found", row.TransactionID)
	}
}
