package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	LoansLabel         = "Empréstimos"
	PaidLoansLabel     = "Empréstimos (Pagos)"
	UncategorizedLabel = "Sem categoria"
)

// DashboardSummary is the headline figures of a user's dashboard.
type DashboardSummary struct {
	TotalBalance   decimal.Decimal `json:"totalBalance"`
	MonthIncome    decimal.Decimal `json:"monthIncome"`
	MonthExpense   decimal.Decimal `json:"monthExpense"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
	PendingLoans   decimal.Decimal `json:"pendingLoans"`
}

// MonthBalance is income minus expense for the current month.
func (s DashboardSummary) MonthBalance() decimal.Decimal {
	return s.MonthIncome.Sub(s.MonthExpense)
}

// Aggregate reduces a user's profile, transactions and loans into the
// dashboard figures. The current month is taken from now in now's location.
//
// Loans follow a double-entry policy: a pending loan counts as expense; a paid
// loan counts as expense (the money lent) and as income (the money returned),
// so it nets to zero on the balance while appearing in both month figures.
func Aggregate(profile *FinancialProfile, txs []Transaction, loans []Loan, now time.Time) DashboardSummary {
	year, month := now.Year(), now.Month()
	s := DashboardSummary{
		InitialBalance: profile.Balance(),
		MonthIncome:    decimal.Zero,
		MonthExpense:   decimal.Zero,
		PendingLoans:   decimal.Zero,
	}
	totalIncome, totalExpense := decimal.Zero, decimal.Zero

	for _, tx := range txs {
		thisMonth := tx.Date.InMonth(year, month)
		switch tx.CategoryKind {
		case KindIncome:
			totalIncome = totalIncome.Add(tx.Amount)
			if thisMonth {
				s.MonthIncome = s.MonthIncome.Add(tx.Amount)
			}
		case KindExpense:
			totalExpense = totalExpense.Add(tx.Amount)
			if thisMonth {
				s.MonthExpense = s.MonthExpense.Add(tx.Amount)
			}
		}
	}

	for _, l := range loans {
		createdThisMonth := l.CreatedDate.InMonth(year, month)
		switch l.Status {
		case LoanPending:
			s.PendingLoans = s.PendingLoans.Add(l.Amount)
			totalExpense = totalExpense.Add(l.Amount)
			if createdThisMonth {
				s.MonthExpense = s.MonthExpense.Add(l.Amount)
			}
		case LoanPaid:
			totalIncome = totalIncome.Add(l.Amount)
			totalExpense = totalExpense.Add(l.Amount)
			if !l.UpdatedAt.IsZero() {
				paid := l.UpdatedAt.In(now.Location())
				if paid.Year() == year && paid.Month() == month {
					s.MonthIncome = s.MonthIncome.Add(l.Amount)
				}
			}
			if createdThisMonth {
				s.MonthExpense = s.MonthExpense.Add(l.Amount)
			}
		}
	}

	s.TotalBalance = s.InitialBalance.Add(totalIncome).Sub(totalExpense)
	return s
}

// Period selects the window of a category breakdown.
type Period string

const (
	PeriodCurrentMonth Period = "current-month"
	PeriodLastMonth    Period = "last-month"
	PeriodLast3Months  Period = "last-3-months"
	PeriodLast6Months  Period = "last-6-months"
	PeriodYear         Period = "year"
	PeriodAll          Period = "all"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodCurrentMonth, PeriodLastMonth, PeriodLast3Months, PeriodLast6Months, PeriodYear, PeriodAll:
		return p, nil
	case "":
		return PeriodCurrentMonth, nil
	default:
		return "", fmt.Errorf("invalid period %q", s)
	}
}

// Contains reports whether the calendar day d falls in the period as seen at now.
// Rolling windows start on the first day of the oldest month and are open-ended.
func (p Period) Contains(d Date, now time.Time) bool {
	if d.IsZero() {
		return false
	}
	year, month := now.Year(), now.Month()
	switch p {
	case PeriodCurrentMonth:
		return d.InMonth(year, month)
	case PeriodLastMonth:
		prev := MonthDay(year, month-1, 1)
		return d.InMonth(prev.Year(), prev.Month())
	case PeriodLast3Months:
		return !d.Before(MonthDay(year, month-2, 1))
	case PeriodLast6Months:
		return !d.Before(MonthDay(year, month-5, 1))
	case PeriodYear:
		return d.Year() == year
	case PeriodAll:
		return true
	}
	return false
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// Breakdown groups transactions of the given kind (both kinds when kind is
// empty) by category name over a period, largest first. Pending loans created
// in the period are reported under LoansLabel with the expenses; paid loans
// whose payment falls in the period are reported under PaidLoansLabel with the
// income. Loans are left out of the PeriodAll breakdown.
func Breakdown(txs []Transaction, loans []Loan, kind CategoryKind, period Period, now time.Time) []CategoryAmount {
	grouped := map[string]decimal.Decimal{}
	add := func(name string, amount decimal.Decimal) {
		grouped[name] = grouped[name].Add(amount)
	}

	for _, tx := range txs {
		if !period.Contains(tx.Date, now) {
			continue
		}
		if kind != "" && tx.CategoryKind != kind {
			continue
		}
		name := tx.CategoryName
		if name == "" {
			name = UncategorizedLabel
		}
		add(name, tx.Amount)
	}

	if period == PeriodAll {
		loans = nil
	}
	for _, l := range loans {
		switch {
		case l.Status == LoanPending && kind != KindIncome:
			if period.Contains(l.CreatedDate, now) {
				add(LoansLabel, l.Amount)
			}
		case l.Status == LoanPaid && kind != KindExpense && !l.UpdatedAt.IsZero():
			if period.Contains(DateOf(l.UpdatedAt.In(now.Location())), now) {
				add(PaidLoansLabel, l.Amount)
			}
		}
	}

	out := make([]CategoryAmount, 0, len(grouped))
	for name, amount := range grouped {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}
