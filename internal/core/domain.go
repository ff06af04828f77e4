package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindIncome  CategoryKind = "income"
	KindExpense CategoryKind = "expense"

	LoanPending LoanStatus = "pending"
	LoanPaid    LoanStatus = "paid"
)

type (
	CategoryKind string
	LoanStatus   string

	User struct {
		ID        string    `json:"id"`
		FullName  string    `json:"fullName"`
		Login     string    `json:"login"`
		Email     string    `json:"email"`
		Phone     string    `json:"phone,omitempty"`
		BirthDate Date      `json:"birthDate"`
		Active    bool      `json:"active"`
		CreatedAt time.Time `json:"createdAt"`
	}

	FinancialProfile struct {
		ID                string              `json:"id"`
		UserID            string              `json:"userId"`
		MonthlyIncome     decimal.NullDecimal `json:"monthlyIncome"`
		InitialBalance    decimal.NullDecimal `json:"initialBalance"`
		DefaultClosingDay int                 `json:"defaultClosingDay"`
		UpdatedAt         time.Time           `json:"updatedAt"`
	}

	Category struct {
		ID        string       `json:"id"`
		UserID    string       `json:"userId"`
		Name      string       `json:"name"`
		Kind      CategoryKind `json:"kind"`
		CreatedAt time.Time    `json:"createdAt"`
	}

	Transaction struct {
		ID                string          `json:"id"`
		UserID            string          `json:"userId"`
		CategoryID        string          `json:"categoryId"`
		Amount            decimal.Decimal `json:"amount"`
		Date              Date            `json:"date"`
		Description       string          `json:"description,omitempty"`
		RecurringBillID   string          `json:"recurringBillId,omitempty"`
		InstallmentNumber int             `json:"installmentNumber,omitempty"`
		CreatedAt         time.Time       `json:"createdAt"`

		// Embedded from the referenced category on reads. Kind is empty when
		// the category no longer resolves.
		CategoryName string       `json:"categoryName,omitempty"`
		CategoryKind CategoryKind `json:"categoryKind,omitempty"`
	}

	Loan struct {
		ID          string          `json:"id"`
		UserID      string          `json:"userId"`
		Name        string          `json:"name"`
		Amount      decimal.Decimal `json:"amount"`
		CreatedDate Date            `json:"createdDate"`
		PaymentDate Date            `json:"paymentDate"`
		Status      LoanStatus      `json:"status"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}

	RecurringBill struct {
		ID               string          `json:"id"`
		UserID           string          `json:"userId"`
		Name             string          `json:"name"`
		Description      string          `json:"description,omitempty"`
		TotalAmount      decimal.Decimal `json:"totalAmount"`
		CategoryID       string          `json:"categoryId"`
		IsSubscription   bool            `json:"isSubscription"`
		StartDate        Date            `json:"startDate"`
		InstallmentCount int             `json:"installmentCount,omitempty"` // 0 for subscriptions
		InstallmentsPaid int             `json:"installmentsPaid"`
		ClosingDay       int             `json:"closingDay"`
		Active           bool            `json:"active"`
		CreatedAt        time.Time       `json:"createdAt"`

		CategoryName string       `json:"categoryName,omitempty"`
		CategoryKind CategoryKind `json:"categoryKind,omitempty"`
	}
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrNegativeAmount      = errors.New("amount cannot be negative")
	ErrEmptyName           = errors.New("empty name")
	ErrNameTooLong         = errors.New("name too long (max 100 characters)")
	ErrDescriptionTooLong  = errors.New("description too long (max 500 characters)")
	ErrInvalidKind         = errors.New("invalid category kind")
	ErrEmptyCategory       = errors.New("empty category")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidClosingDay   = errors.New("closing day must be between 1 and 31")
	ErrInvalidInstallments = errors.New("installment count must be at least 1")
	ErrInvalidStatus       = errors.New("invalid loan status")
)

func (k CategoryKind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

func (s LoanStatus) Valid() bool {
	return s == LoanPending || s == LoanPaid
}

// Balance returns the initial balance, zero when unset.
func (p *FinancialProfile) Balance() decimal.Decimal {
	if p == nil || !p.InitialBalance.Valid {
		return decimal.Zero
	}
	return p.InitialBalance.Decimal
}

func (p FinancialProfile) Validate() error {
	fe := FieldErrors{}
	if p.MonthlyIncome.Valid && p.MonthlyIncome.Decimal.IsNegative() {
		fe.Add("monthlyIncome", ErrNegativeAmount)
	}
	if p.DefaultClosingDay < 1 || p.DefaultClosingDay > 31 {
		fe.Add("defaultClosingDay", ErrInvalidClosingDay)
	}
	return fe.Err()
}

func (c Category) Validate() error {
	fe := FieldErrors{}
	validateName(fe, "name", c.Name)
	if !c.Kind.Valid() {
		fe.Add("kind", ErrInvalidKind)
	}
	return fe.Err()
}

func (t Transaction) Validate() error {
	fe := FieldErrors{}
	if strings.TrimSpace(t.CategoryID) == "" {
		fe.Add("categoryId", ErrEmptyCategory)
	}
	if !t.Amount.IsPositive() {
		fe.Add("amount", ErrInvalidAmount)
	}
	if err := t.Date.Validate(); err != nil {
		fe.Add("date", err)
	}
	if len(t.Description) > 500 {
		fe.Add("description", ErrDescriptionTooLong)
	}
	return fe.Err()
}

func (l Loan) Validate() error {
	fe := FieldErrors{}
	validateName(fe, "name", l.Name)
	if !l.Amount.IsPositive() {
		fe.Add("amount", ErrInvalidAmount)
	}
	if err := l.CreatedDate.Validate(); err != nil {
		fe.Add("createdDate", err)
	}
	if !l.Status.Valid() {
		fe.Add("status", ErrInvalidStatus)
	}
	return fe.Err()
}

func (b RecurringBill) Validate() error {
	fe := FieldErrors{}
	validateName(fe, "name", b.Name)
	if len(b.Description) > 500 {
		fe.Add("description", ErrDescriptionTooLong)
	}
	if !b.TotalAmount.IsPositive() {
		fe.Add("totalAmount", ErrInvalidAmount)
	}
	if strings.TrimSpace(b.CategoryID) == "" {
		fe.Add("categoryId", ErrEmptyCategory)
	}
	if err := b.StartDate.Validate(); err != nil {
		fe.Add("startDate", err)
	}
	if b.ClosingDay < 1 || b.ClosingDay > 31 {
		fe.Add("closingDay", ErrInvalidClosingDay)
	}
	if !b.IsSubscription && b.InstallmentCount < 1 {
		fe.Add("installmentCount", ErrInvalidInstallments)
	}
	return fe.Err()
}

// FullyPaid reports whether an installment plan has generated every installment.
// Subscriptions are never fully paid.
func (b RecurringBill) FullyPaid() bool {
	return !b.IsSubscription && b.InstallmentsPaid >= b.InstallmentCount
}

func validateName(fe FieldErrors, field, name string) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		fe.Add(field, ErrEmptyName)
	case len(name) > 100:
		fe.Add(field, ErrNameTooLong)
	}
}
