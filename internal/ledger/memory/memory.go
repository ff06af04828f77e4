// Package memory is an in-process ledger backend enforcing the same unique
// and foreign-key rules as the sqlite backend.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"carteira/internal/core"
	"carteira/internal/ledger"
)

type Store struct {
	mu          sync.RWMutex
	credentials map[string]ledger.Credential // by email
	revoked     map[string]time.Time
	users       map[string]core.User
	profiles    map[string]core.FinancialProfile // by user id
	categories  map[string]core.Category
	txs         map[string]core.Transaction
	loans       map[string]core.Loan
	bills       map[string]core.RecurringBill
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		credentials: map[string]ledger.Credential{},
		revoked:     map[string]time.Time{},
		users:       map[string]core.User{},
		profiles:    map[string]core.FinancialProfile{},
		categories:  map[string]core.Category{},
		txs:         map[string]core.Transaction{},
		loans:       map[string]core.Loan{},
		bills:       map[string]core.RecurringBill{},
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) CreateCredential(_ context.Context, c ledger.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[c.Email]; ok {
		return &ledger.UniqueError{Field: "email"}
	}
	s.credentials[c.Email] = c
	return nil
}

func (s *Store) CredentialByEmail(_ context.Context, email string) (ledger.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[email]
	if !ok {
		return ledger.Credential{}, ledger.ErrNotFound
	}
	return c, nil
}

func (s *Store) RevokeSession(_ context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[id] = expiresAt
	return nil
}

func (s *Store) SessionRevoked(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[id]
	return ok, nil
}

func (s *Store) PurgeRevokedSessions(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, exp := range s.revoked {
		if exp.Before(before) {
			delete(s.revoked, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.ID == u.ID {
			return &ledger.UniqueError{Field: "id"}
		}
		if strings.EqualFold(existing.Login, u.Login) {
			return &ledger.UniqueError{Field: "login"}
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return &ledger.UniqueError{Field: "email"}
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) User(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, ledger.ErrNotFound
	}
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return ledger.ErrNotFound
	}
	cur.FullName = u.FullName
	cur.Phone = u.Phone
	cur.BirthDate = u.BirthDate
	s.users[u.ID] = cur
	return nil
}

func (s *Store) CreateProfile(_ context.Context, p core.FinancialProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[p.UserID]; !ok {
		return ledger.ErrForeignKeyViolation
	}
	if _, ok := s.profiles[p.UserID]; ok {
		return &ledger.UniqueError{Field: "user_id"}
	}
	s.profiles[p.UserID] = p
	return nil
}

func (s *Store) ProfileByUser(_ context.Context, userID string) (core.FinancialProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return core.FinancialProfile{}, ledger.ErrNotFound
	}
	return p, nil
}

func (s *Store) UpdateProfile(_ context.Context, p core.FinancialProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.profiles[p.UserID]
	if !ok {
		return ledger.ErrNotFound
	}
	cur.MonthlyIncome = p.MonthlyIncome
	cur.InitialBalance = p.InitialBalance
	cur.DefaultClosingDay = p.DefaultClosingDay
	cur.UpdatedAt = p.UpdatedAt
	s.profiles[p.UserID] = cur
	return nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[c.UserID]; !ok {
		return ledger.ErrForeignKeyViolation
	}
	if _, ok := s.categories[c.ID]; ok {
		return &ledger.UniqueError{Field: "id"}
	}
	s.categories[c.ID] = c
	return nil
}

func (s *Store) Category(_ context.Context, userID, id string) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok || c.UserID != userID {
		return core.Category{}, ledger.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCategories(_ context.Context, userID string, kind core.CategoryKind) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Category
	for _, c := range s.categories {
		if c.UserID == userID && (kind == "" || c.Kind == kind) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) RenameCategory(_ context.Context, userID, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.UserID != userID {
		return ledger.ErrNotFound
	}
	c.Name = name
	s.categories[id] = c
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.UserID != userID {
		return ledger.ErrNotFound
	}
	for _, tx := range s.txs {
		if tx.CategoryID == id {
			return ledger.ErrForeignKeyViolation
		}
	}
	for _, b := range s.bills {
		if b.CategoryID == id {
			return ledger.ErrForeignKeyViolation
		}
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) InsertTransactions(_ context.Context, txs ...core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// validate the whole batch before writing anything
	seen := map[string]struct{}{}
	for _, tx := range txs {
		if _, ok := s.txs[tx.ID]; ok {
			return &ledger.UniqueError{Field: "id"}
		}
		if _, ok := seen[tx.ID]; ok {
			return &ledger.UniqueError{Field: "id"}
		}
		seen[tx.ID] = struct{}{}
		if _, ok := s.users[tx.UserID]; !ok {
			return ledger.ErrForeignKeyViolation
		}
		if _, ok := s.categories[tx.CategoryID]; !ok {
			return ledger.ErrForeignKeyViolation
		}
		if tx.RecurringBillID != "" {
			if _, ok := s.bills[tx.RecurringBillID]; !ok {
				return ledger.ErrForeignKeyViolation
			}
			key := tx.RecurringBillID + "|" + tx.Date.String()
			if _, ok := seen[key]; ok || s.billHasDate(tx.RecurringBillID, tx.Date) {
				return &ledger.UniqueError{Field: "date"}
			}
			seen[key] = struct{}{}
		}
	}
	for _, tx := range txs {
		tx.CategoryName, tx.CategoryKind = "", ""
		s.txs[tx.ID] = tx
	}
	return nil
}

func (s *Store) Transaction(_ context.Context, userID, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[id]
	if !ok || tx.UserID != userID {
		return core.Transaction{}, ledger.ErrNotFound
	}
	return s.embedCategory(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.UserID != f.UserID {
			continue
		}
		if f.RecurringBillID != "" && tx.RecurringBillID != f.RecurringBillID {
			continue
		}
		out = append(out, s.embedCategory(tx))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) TransactionsByID(_ context.Context, ids ...string) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Transaction, 0, len(ids))
	for _, id := range ids {
		if tx, ok := s.txs[id]; ok {
			out = append(out, s.embedCategory(tx))
		}
	}
	return out, nil
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok || tx.UserID != userID {
		return ledger.ErrNotFound
	}
	delete(s.txs, id)
	return nil
}

func (s *Store) billHasDate(billID string, d core.Date) bool {
	for _, tx := range s.txs {
		if tx.RecurringBillID == billID && tx.Date.Equal(d) {
			return true
		}
	}
	return false
}

func (s *Store) embedCategory(tx core.Transaction) core.Transaction {
	if c, ok := s.categories[tx.CategoryID]; ok {
		tx.CategoryName, tx.CategoryKind = c.Name, c.Kind
	}
	return tx
}

func (s *Store) CreateLoan(_ context.Context, l core.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[l.UserID]; !ok {
		return ledger.ErrForeignKeyViolation
	}
	if _, ok := s.loans[l.ID]; ok {
		return &ledger.UniqueError{Field: "id"}
	}
	s.loans[l.ID] = l
	return nil
}

func (s *Store) Loan(_ context.Context, userID, id string) (core.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.loans[id]
	if !ok || l.UserID != userID {
		return core.Loan{}, ledger.ErrNotFound
	}
	return l, nil
}

func (s *Store) ListLoans(_ context.Context, f ledger.LoanFilter) ([]core.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(f.NameContains))
	var out []core.Loan
	for _, l := range s.loans {
		switch {
		case l.UserID != f.UserID:
			continue
		case f.Status != "" && l.Status != f.Status:
			continue
		case needle != "" && !strings.Contains(strings.ToLower(l.Name), needle):
			continue
		case !f.CreatedFrom.IsZero() && l.CreatedDate.Before(f.CreatedFrom):
			continue
		case !f.CreatedTo.IsZero() && l.CreatedDate.After(f.CreatedTo):
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedDate.Equal(out[j].CreatedDate) {
			return out[i].CreatedDate.After(out[j].CreatedDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateLoanStatus(_ context.Context, userID, id string, status core.LoanStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok || l.UserID != userID {
		return ledger.ErrNotFound
	}
	l.Status = status
	l.UpdatedAt = at
	s.loans[id] = l
	return nil
}

func (s *Store) DeleteLoan(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok || l.UserID != userID {
		return ledger.ErrNotFound
	}
	delete(s.loans, id)
	return nil
}

func (s *Store) CreateRecurringBill(_ context.Context, b core.RecurringBill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[b.UserID]; !ok {
		return ledger.ErrForeignKeyViolation
	}
	if _, ok := s.categories[b.CategoryID]; !ok {
		return ledger.ErrForeignKeyViolation
	}
	if _, ok := s.bills[b.ID]; ok {
		return &ledger.UniqueError{Field: "id"}
	}
	b.CategoryName, b.CategoryKind = "", ""
	s.bills[b.ID] = b
	return nil
}

func (s *Store) RecurringBill(_ context.Context, userID, id string) (core.RecurringBill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bills[id]
	if !ok || b.UserID != userID {
		return core.RecurringBill{}, ledger.ErrNotFound
	}
	return s.embedBillCategory(b), nil
}

func (s *Store) ListRecurringBills(_ context.Context, f ledger.BillFilter) ([]core.RecurringBill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.RecurringBill
	for _, b := range s.bills {
		if b.UserID != f.UserID || (f.ActiveOnly && !b.Active) {
			continue
		}
		out = append(out, s.embedBillCategory(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) SetInstallmentsPaid(_ context.Context, userID, id string, n int) error {
	return s.updateBill(userID, id, func(b *core.RecurringBill) { b.InstallmentsPaid = n })
}

func (s *Store) SetRecurringBillActive(_ context.Context, userID, id string, active bool) error {
	return s.updateBill(userID, id, func(b *core.RecurringBill) { b.Active = active })
}

func (s *Store) updateBill(userID, id string, fn func(*core.RecurringBill)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bills[id]
	if !ok || b.UserID != userID {
		return ledger.ErrNotFound
	}
	fn(&b)
	s.bills[id] = b
	return nil
}

func (s *Store) DeleteRecurringBill(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bills[id]
	if !ok || b.UserID != userID {
		return ledger.ErrNotFound
	}
	for txID, tx := range s.txs {
		if tx.RecurringBillID == id {
			tx.RecurringBillID = ""
			s.txs[txID] = tx
		}
	}
	delete(s.bills, id)
	return nil
}

func (s *Store) UsersWithActiveBills(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := map[string]struct{}{}
	for _, b := range s.bills {
		if b.Active {
			set[b.UserID] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) embedBillCategory(b core.RecurringBill) core.RecurringBill {
	if c, ok := s.categories[b.CategoryID]; ok {
		b.CategoryName, b.CategoryKind = c.Name, c.Kind
	}
	return b
}
