package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	ports "carteira/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultSheetName is the base tab name; each year gets its own "<year> <base>" tab.
const DefaultSheetName = "Movimentações"

// Columns written per row, A through I. The transaction id lives in G.
var header = []any{"Data", "Descrição", "Categoria", "Tipo", "Valor", "Parcela", "ID", "Usuário", "Exportado em"}

const idColumn = "G"

type Options struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string

	mu    sync.Mutex
	known map[string]bool // tabs confirmed to exist
}

// Ensure interface conformance
var _ ports.Exporter = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
// Credentials come from opts or, when both are empty, from the file named by
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, opts.ServiceAccountJSON, opts.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, opts.SpreadsheetID, opts.SheetName), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(spreadsheetID),
		sheetBase:     sheetName,
		known:         map[string]bool{},
	}
}

func newSheetsService(ctx context.Context, serviceAccountJSON, serviceAccountFile string) (*gsheet.Service, error) {
	serviceAccountJSON = strings.TrimSpace(serviceAccountJSON)
	serviceAccountFile = strings.TrimSpace(serviceAccountFile)

	// Also check the standard Google Cloud environment variable
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// AppendRows writes rows to the tab of their year, creating the tab with a
// header line when it does not exist yet.
func (c *Client) AppendRows(ctx context.Context, rows []ports.Row) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	byYear := map[int][][]any{}
	for _, r := range rows {
		if r.Date.IsZero() {
			return "", fmt.Errorf("row %s has no date", r.TransactionID)
		}
		byYear[r.Date.Year()] = append(byYear[r.Date.Year()], rowValues(r))
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	refs := make([]string, 0, len(years))
	for _, year := range years {
		sheet := yearPrefixedName(c.sheetBase, year)
		if err := c.ensureSheet(ctx, sheet); err != nil {
			return strings.Join(refs, ","), err
		}

		rng := fmt.Sprintf("%s!A:I", quoteSheet(sheet))
		resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: byYear[year]}).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return strings.Join(refs, ","), fmt.Errorf("append to sheet %s: %w", sheet, err)
		}
		if resp.Updates != nil {
			refs = append(refs, resp.Updates.UpdatedRange)
		}
	}
	return strings.Join(refs, ","), nil
}

// ExportedIDs reads the id column of a year's tab. A missing tab has no ids.
func (c *Client) ExportedIDs(ctx context.Context, year int) (map[string]struct{}, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(c.sheetBase, year)
	exists, err := c.sheetExists(ctx, sheet)
	if err != nil {
		return nil, err
	}
	if !exists {
		return map[string]struct{}{}, nil
	}

	rng := fmt.Sprintf("%s!%s:%s", quoteSheet(sheet), idColumn, idColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseIDs(resp.Values), nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	exists, err := c.sheetExists(ctx, title)
	if err != nil || exists {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("create sheet %s: %w", title, err)
	}

	rng := fmt.Sprintf("%s!A1:I1", quoteSheet(title))
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write header to %s: %w", title, err)
	}

	slog.InfoContext(ctx, "Created export sheet", "sheet", title)
	c.mu.Lock()
	c.known[title] = true
	c.mu.Unlock()
	return nil
}

func (c *Client) sheetExists(ctx context.Context, title string) (bool, error) {
	c.mu.Lock()
	known := c.known[title]
	c.mu.Unlock()
	if known {
		return true, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read spreadsheet: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.known[s.Properties.Title] = true
		}
	}
	return c.known[title], nil
}

func rowValues(r ports.Row) []any {
	installment := ""
	if r.Installment > 0 {
		installment = strconv.Itoa(r.Installment)
	}
	exported := ""
	if !r.ExportedAt.IsZero() {
		exported = r.ExportedAt.UTC().Format(time.RFC3339)
	}
	return []any{
		r.Date.String(),
		r.Description,
		r.Category,
		ports.KindLabel(r.Kind),
		r.Amount.InexactFloat64(),
		installment,
		r.TransactionID,
		r.UserID,
		exported,
	}
}

func parseIDs(values [][]any) map[string]struct{} {
	ids := map[string]struct{}{}
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		if v == "" || (i == 0 && v == header[6]) {
			continue
		}
		ids[v] = struct{}{}
	}
	return ids
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// quoteSheet quotes a tab name for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
