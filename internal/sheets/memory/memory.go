package memory

import (
	"context"
	"fmt"
	"sync"

	"carteira/internal/sheets"
)

// Store keeps exported rows in process. It stands in for the spreadsheet when
// no spreadsheet is configured.
type Store struct {
	mu   sync.Mutex
	rows []sheets.Row
}

var _ sheets.Exporter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendRows stores the rows and returns a synthetic range reference.
func (s *Store) AppendRows(_ context.Context, rows []sheets.Row) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	first := len(s.rows) + 1
	s.rows = append(s.rows, rows...)
	return fmt.Sprintf("mem:%d-%d", first, len(s.rows)), nil
}

func (s *Store) ExportedIDs(_ context.Context, year int) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := map[string]struct{}{}
	for _, r := range s.rows {
		if r.Date.Year() == year {
			ids[r.TransactionID] = struct{}{}
		}
	}
	return ids, nil
}

// Rows returns a copy of everything exported so far.
func (s *Store) Rows() []sheets.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.Row(nil), s.rows...)
}
