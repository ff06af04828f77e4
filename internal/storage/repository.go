package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"carteira/internal/core"
	"carteira/internal/ledger"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository implements ledger.Store on a sqlite database file.
type SQLiteRepository struct {
	db *sql.DB
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the pooled connection so the schema is in place
	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("Ledger schema ready", "path", dbPath, "version", version)

	dsn := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Credentials and sessions

func (r *SQLiteRepository) CreateCredential(ctx context.Context, c ledger.Credential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (user_id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		c.UserID, c.Email, c.PasswordHash, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert credential: %w", mapError(err))
	}
	return nil
}

func (r *SQLiteRepository) CredentialByEmail(ctx context.Context, email string) (ledger.Credential, error) {
	var (
		c       ledger.Credential
		created string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, email, password_hash, created_at FROM credentials WHERE email = ?`, email,
	).Scan(&c.UserID, &c.Email, &c.PasswordHash, &created)
	if err != nil {
		return ledger.Credential{}, fmt.Errorf("get credential: %w", mapError(err))
	}
	c.CreatedAt, err = parseTime(created)
	return c, err
}

func (r *SQLiteRepository) RevokeSession(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO revoked_sessions (id, expires_at) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET expires_at = excluded.expires_at`,
		id, formatTime(expiresAt))
	if err != nil {
		return fmt.Errorf("revoke session: %w", mapError(err))
	}
	return nil
}

func (r *SQLiteRepository) SessionRevoked(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revoked_sessions WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) PurgeRevokedSessions(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM revoked_sessions WHERE expires_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Users and profiles

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, full_name, login, email, phone, birth_date, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.FullName, u.Login, u.Email, u.Phone, nullDate(u.BirthDate), u.Active, formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert user: %w", mapError(err))
	}
	slog.InfoContext(ctx, "User saved to SQLite", "user_id", u.ID, "login", u.Login)
	return nil
}

func (r *SQLiteRepository) User(ctx context.Context, id string) (core.User, error) {
	var (
		u       core.User
		birth   sql.NullString
		created string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, full_name, login, email, phone, birth_date, active, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.FullName, &u.Login, &u.Email, &u.Phone, &birth, &u.Active, &created)
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", mapError(err))
	}
	if u.BirthDate, err = scanDate(birth); err != nil {
		return core.User{}, err
	}
	u.CreatedAt, err = parseTime(created)
	return u, err
}

func (r *SQLiteRepository) UpdateUser(ctx context.Context, u core.User) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET full_name = ?, phone = ?, birth_date = ? WHERE id = ?`,
		u.FullName, u.Phone, nullDate(u.BirthDate), u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", mapError(err))
	}
	return expectRow(res, "update user")
}

func (r *SQLiteRepository) CreateProfile(ctx context.Context, p core.FinancialProfile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO financial_profiles (id, user_id, monthly_income, initial_balance, default_closing_day, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.MonthlyIncome, p.InitialBalance, p.DefaultClosingDay, formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert profile: %w", mapError(err))
	}
	return nil
}

func (r *SQLiteRepository) ProfileByUser(ctx context.Context, userID string) (core.FinancialProfile, error) {
	var (
		p       core.FinancialProfile
		updated string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, monthly_income, initial_balance, default_closing_day, updated_at
		 FROM financial_profiles WHERE user_id = ?`, userID,
	).Scan(&p.ID, &p.UserID, &p.MonthlyIncome, &p.InitialBalance, &p.DefaultClosingDay, &updated)
	if err != nil {
		return core.FinancialProfile{}, fmt.Errorf("get profile: %w", mapError(err))
	}
	p.UpdatedAt, err = parseTime(updated)
	return p, err
}

func (r *SQLiteRepository) UpdateProfile(ctx context.Context, p core.FinancialProfile) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE financial_profiles
		 SET monthly_income = ?, initial_balance = ?, default_closing_day = ?, updated_at = ?
		 WHERE user_id = ?`,
		p.MonthlyIncome, p.InitialBalance, p.DefaultClosingDay, formatTime(p.UpdatedAt), p.UserID)
	if err != nil {
		return fmt.Errorf("update profile: %w", mapError(err))
	}
	return expectRow(res, "update profile")
}

// Categories

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, user_id, name, kind, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, string(c.Kind), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert category: %w", mapError(err))
	}
	return nil
}

func (r *SQLiteRepository) Category(ctx context.Context, userID, id string) (core.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, kind, created_at FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	c, err := scanCategory(row)
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", mapError(err))
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string, kind core.CategoryKind) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, kind, created_at FROM categories
		 WHERE user_id = ? AND (? = '' OR kind = ?)
		 ORDER BY name`, userID, string(kind), string(kind))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) RenameCategory(ctx context.Context, userID, id, name string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ? WHERE id = ? AND user_id = ?`, name, id, userID)
	if err != nil {
		return fmt.Errorf("rename category: %w", mapError(err))
	}
	return expectRow(res, "rename category")
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete category: %w", mapError(err))
	}
	return expectRow(res, "delete category")
}

// Transactions

const transactionColumns = `t.id, t.user_id, t.category_id, t.amount, t.date, t.description,
	t.recurring_bill_id, t.installment_number, t.created_at, COALESCE(c.name, ''), COALESCE(c.kind, '')`

const transactionFrom = ` FROM transactions t LEFT JOIN categories c ON c.id = t.category_id`

func (r *SQLiteRepository) InsertTransactions(ctx context.Context, txs ...core.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx,
		`INSERT INTO transactions
		 (id, user_id, category_id, amount, date, description, recurring_bill_id, installment_number, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		_, err := stmt.ExecContext(ctx,
			tx.ID, tx.UserID, tx.CategoryID, tx.Amount, tx.Date.String(), tx.Description,
			nullString(tx.RecurringBillID), nullInt(tx.InstallmentNumber), formatTime(tx.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", tx.ID, mapError(err))
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.InfoContext(ctx, "Transactions saved to SQLite", "count", len(txs), "user_id", txs[0].UserID)
	return nil
}

func (r *SQLiteRepository) Transaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+transactionFrom+` WHERE t.id = ? AND t.user_id = ?`, id, userID)
	tx, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", mapError(err))
	}
	return tx, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	q := `SELECT ` + transactionColumns + transactionFrom + ` WHERE t.user_id = ?`
	args := []any{f.UserID}
	if f.RecurringBillID != "" {
		q += ` AND t.recurring_bill_id = ?`
		args = append(args, f.RecurringBillID)
	}
	q += ` ORDER BY t.date DESC, t.created_at DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return r.queryTransactions(ctx, q, args...)
}

func (r *SQLiteRepository) TransactionsByID(ctx context.Context, ids ...string) ([]core.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT ` + transactionColumns + transactionFrom + ` WHERE t.id IN (` + placeholders + `) ORDER BY t.date, t.created_at`
	return r.queryTransactions(ctx, q, args...)
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, q string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", mapError(err))
	}
	return expectRow(res, "delete transaction")
}

// Loans

const loanColumns = `id, user_id, name, amount, created_date, payment_date, status, updated_at`

func (r *SQLiteRepository) CreateLoan(ctx context.Context, l core.Loan) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.UserID, l.Name, l.Amount, l.CreatedDate.String(), nullDate(l.PaymentDate),
		string(l.Status), formatTime(l.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert loan: %w", mapError(err))
	}
	return nil
}

func (r *SQLiteRepository) Loan(ctx context.Context, userID, id string) (core.Loan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = ? AND user_id = ?`, id, userID)
	l, err := scanLoan(row)
	if err != nil {
		return core.Loan{}, fmt.Errorf("get loan: %w", mapError(err))
	}
	return l, nil
}

func (r *SQLiteRepository) ListLoans(ctx context.Context, f ledger.LoanFilter) ([]core.Loan, error) {
	q := `SELECT ` + loanColumns + ` FROM loans WHERE user_id = ?`
	args := []any{f.UserID}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if needle := strings.TrimSpace(f.NameContains); needle != "" {
		q += ` AND name LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(needle)+"%")
	}
	if !f.CreatedFrom.IsZero() {
		q += ` AND created_date >= ?`
		args = append(args, f.CreatedFrom.String())
	}
	if !f.CreatedTo.IsZero() {
		q += ` AND created_date <= ?`
		args = append(args, f.CreatedTo.String())
	}
	q += ` ORDER BY created_date DESC, id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var out []core.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateLoanStatus(ctx context.Context, userID, id string, status core.LoanStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE loans SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		string(status), formatTime(at), id, userID)
	if err != nil {
		return fmt.Errorf("update loan status: %w", mapError(err))
	}
	return expectRow(res, "update loan status")
}

func (r *SQLiteRepository) DeleteLoan(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM loans WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete loan: %w", mapError(err))
	}
	return expectRow(res, "delete loan")
}

// Recurring bills

const billColumns = `b.id, b.user_id, b.name, b.description, b.total_amount, b.category_id,
	b.is_subscription, b.start_date, b.installment_count, b.installments_paid, b.closing_day,
	b.active, b.created_at, COALESCE(c.name, ''), COALESCE(c.kind, '')`

const billFrom = ` FROM recurring_bills b LEFT JOIN categories c ON c.id = b.category_id`

func (r *SQLiteRepository) CreateRecurringBill(ctx context.Context, b core.RecurringBill) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_bills
		 (id, user_id, name, description, total_amount, category_id, is_subscription, start_date,
		  installment_count, installments_paid, closing_day, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Name, b.Description, b.TotalAmount, b.CategoryID, b.IsSubscription,
		b.StartDate.String(), nullInt(b.InstallmentCount), b.InstallmentsPaid, b.ClosingDay,
		b.Active, formatTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert recurring bill: %w", mapError(err))
	}
	return nil
}

func (r *SQLiteRepository) RecurringBill(ctx context.Context, userID, id string) (core.RecurringBill, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+billColumns+billFrom+` WHERE b.id = ? AND b.user_id = ?`, id, userID)
	b, err := scanBill(row)
	if err != nil {
		return core.RecurringBill{}, fmt.Errorf("get recurring bill: %w", mapError(err))
	}
	return b, nil
}

func (r *SQLiteRepository) ListRecurringBills(ctx context.Context, f ledger.BillFilter) ([]core.RecurringBill, error) {
	q := `SELECT ` + billColumns + billFrom + ` WHERE b.user_id = ?`
	if f.ActiveOnly {
		q += ` AND b.active = 1`
	}
	q += ` ORDER BY b.created_at DESC, b.id`

	rows, err := r.db.QueryContext(ctx, q, f.UserID)
	if err != nil {
		return nil, fmt.Errorf("list recurring bills: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringBill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring bill: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SetInstallmentsPaid(ctx context.Context, userID, id string, n int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_bills SET installments_paid = ? WHERE id = ? AND user_id = ?`, n, id, userID)
	if err != nil {
		return fmt.Errorf("update installments paid: %w", mapError(err))
	}
	return expectRow(res, "update installments paid")
}

func (r *SQLiteRepository) SetRecurringBillActive(ctx context.Context, userID, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_bills SET active = ? WHERE id = ? AND user_id = ?`, active, id, userID)
	if err != nil {
		return fmt.Errorf("update recurring bill: %w", mapError(err))
	}
	return expectRow(res, "update recurring bill")
}

func (r *SQLiteRepository) DeleteRecurringBill(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM recurring_bills WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recurring bill: %w", mapError(err))
	}
	return expectRow(res, "delete recurring bill")
}

func (r *SQLiteRepository) UsersWithActiveBills(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM recurring_bills WHERE active = 1 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users with bills: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Row mapping

type scanner interface {
	Scan(dest ...any) error
}

func scanCategory(s scanner) (core.Category, error) {
	var (
		c       core.Category
		kind    string
		created string
	)
	if err := s.Scan(&c.ID, &c.UserID, &c.Name, &kind, &created); err != nil {
		return core.Category{}, err
	}
	c.Kind = core.CategoryKind(kind)
	var err error
	c.CreatedAt, err = parseTime(created)
	return c, err
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		tx                  core.Transaction
		date, created, kind string
		billID              sql.NullString
		installment         sql.NullInt64
	)
	if err := s.Scan(&tx.ID, &tx.UserID, &tx.CategoryID, &tx.Amount, &date, &tx.Description,
		&billID, &installment, &created, &tx.CategoryName, &kind); err != nil {
		return core.Transaction{}, err
	}
	var err error
	if tx.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, err
	}
	if tx.CreatedAt, err = parseTime(created); err != nil {
		return core.Transaction{}, err
	}
	tx.RecurringBillID = billID.String
	tx.InstallmentNumber = int(installment.Int64)
	tx.CategoryKind = core.CategoryKind(kind)
	return tx, nil
}

func scanLoan(s scanner) (core.Loan, error) {
	var (
		l                    core.Loan
		created, status, upd string
		payment              sql.NullString
	)
	if err := s.Scan(&l.ID, &l.UserID, &l.Name, &l.Amount, &created, &payment, &status, &upd); err != nil {
		return core.Loan{}, err
	}
	var err error
	if l.CreatedDate, err = core.ParseDate(created); err != nil {
		return core.Loan{}, err
	}
	if l.PaymentDate, err = scanDate(payment); err != nil {
		return core.Loan{}, err
	}
	if l.UpdatedAt, err = parseTime(upd); err != nil {
		return core.Loan{}, err
	}
	l.Status = core.LoanStatus(status)
	return l, nil
}

func scanBill(s scanner) (core.RecurringBill, error) {
	var (
		b                    core.RecurringBill
		start, created, kind string
		count                sql.NullInt64
	)
	if err := s.Scan(&b.ID, &b.UserID, &b.Name, &b.Description, &b.TotalAmount, &b.CategoryID,
		&b.IsSubscription, &start, &count, &b.InstallmentsPaid, &b.ClosingDay,
		&b.Active, &created, &b.CategoryName, &kind); err != nil {
		return core.RecurringBill{}, err
	}
	var err error
	if b.StartDate, err = core.ParseDate(start); err != nil {
		return core.RecurringBill{}, err
	}
	if b.CreatedAt, err = parseTime(created); err != nil {
		return core.RecurringBill{}, err
	}
	b.InstallmentCount = int(count.Int64)
	b.CategoryKind = core.CategoryKind(kind)
	return b, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullDate(d core.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func scanDate(ns sql.NullString) (core.Date, error) {
	if !ns.Valid || ns.String == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(ns.String)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func expectRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ledger.ErrNotFound)
	}
	return nil
}

// mapError translates driver errors into the ledger error taxonomy.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrNotFound
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return &ledger.UniqueError{Field: uniqueField(se.Error())}
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: %s", ledger.ErrForeignKeyViolation, se.Error())
	case sqlite3.SQLITE_CONSTRAINT_TRIGGER:
		// ON DELETE RESTRICT is enforced through a trigger and reports this code.
		if strings.Contains(se.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("%w: %s", ledger.ErrForeignKeyViolation, se.Error())
		}
	}
	return err
}

// uniqueField extracts the last column from "UNIQUE constraint failed: users.login".
func uniqueField(msg string) string {
	i := strings.Index(msg, "failed: ")
	if i < 0 {
		return ""
	}
	cols := strings.Split(msg[i+len("failed: "):], ",")
	last := strings.TrimSpace(cols[len(cols)-1])
	if j := strings.LastIndex(last, "."); j >= 0 {
		last = last[j+1:]
	}
	if k := strings.IndexAny(last, " ("); k >= 0 {
		last = last[:k]
	}
	return last
}
