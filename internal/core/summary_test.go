package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var now = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAggregateBalanceScenario(t *testing.T) {
	profile := &FinancialProfile{InitialBalance: decimal.NewNullDecimal(dec("1000"))}
	txs := []Transaction{
		{Amount: dec("500"), Date: NewDate(2025, 3, 2), CategoryKind: KindIncome},
		{Amount: dec("200"), Date: NewDate(2025, 2, 20), CategoryKind: KindExpense},
	}

	got := Aggregate(profile, txs, nil, now)

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"TotalBalance", got.TotalBalance, "1300"},
		{"MonthIncome", got.MonthIncome, "500"},
		{"MonthExpense", got.MonthExpense, "0"},
		{"InitialBalance", got.InitialBalance, "1000"},
		{"PendingLoans", got.PendingLoans, "0"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.want)) {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
}

func TestAggregatePaidLoanDoubleAccounting(t *testing.T) {
	loans := []Loan{{
		Amount:      dec("300"),
		CreatedDate: NewDate(2025, 3, 3),
		Status:      LoanPaid,
		UpdatedAt:   time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC),
	}}

	got := Aggregate(nil, nil, loans, now)

	if !got.MonthExpense.Equal(dec("300")) {
		t.Errorf("MonthExpense = %s, want 300", got.MonthExpense)
	}
	if !got.MonthIncome.Equal(dec("300")) {
		t.Errorf("MonthIncome = %s, want 300", got.MonthIncome)
	}
	if !got.TotalBalance.IsZero() {
		t.Errorf("TotalBalance = %s, want 0", got.TotalBalance)
	}
	if !got.PendingLoans.IsZero() {
		t.Errorf("PendingLoans = %s, want 0", got.PendingLoans)
	}
}

func TestAggregateLoans(t *testing.T) {
	cases := []struct {
		name                             string
		loan                             Loan
		balance, monthIn, monthOut, pend string
	}{
		{
			name:    "pending this month",
			loan:    Loan{Amount: dec("100"), CreatedDate: NewDate(2025, 3, 1), Status: LoanPending},
			balance: "-100", monthIn: "0", monthOut: "100", pend: "100",
		},
		{
			name:    "pending older",
			loan:    Loan{Amount: dec("100"), CreatedDate: NewDate(2024, 12, 1), Status: LoanPending},
			balance: "-100", monthIn: "0", monthOut: "0", pend: "100",
		},
		{
			name: "paid this month, created earlier",
			loan: Loan{Amount: dec("100"), CreatedDate: NewDate(2025, 1, 5), Status: LoanPaid,
				UpdatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
			balance: "0", monthIn: "100", monthOut: "0", pend: "0",
		},
		{
			name: "paid earlier",
			loan: Loan{Amount: dec("100"), CreatedDate: NewDate(2025, 1, 5), Status: LoanPaid,
				UpdatedAt: time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)},
			balance: "0", monthIn: "0", monthOut: "0", pend: "0",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Aggregate(nil, nil, []Loan{tc.loan}, now)
			if !got.TotalBalance.Equal(dec(tc.balance)) {
				t.Errorf("TotalBalance = %s, want %s", got.TotalBalance, tc.balance)
			}
			if !got.MonthIncome.Equal(dec(tc.monthIn)) {
				t.Errorf("MonthIncome = %s, want %s", got.MonthIncome, tc.monthIn)
			}
			if !got.MonthExpense.Equal(dec(tc.monthOut)) {
				t.Errorf("MonthExpense = %s, want %s", got.MonthExpense, tc.monthOut)
			}
			if !got.PendingLoans.Equal(dec(tc.pend)) {
				t.Errorf("PendingLoans = %s, want %s", got.PendingLoans, tc.pend)
			}
		})
	}
}

func TestAggregateSkipsUncategorized(t *testing.T) {
	txs := []Transaction{{Amount: dec("50"), Date: NewDate(2025, 3, 1)}}
	got := Aggregate(nil, txs, nil, now)
	if !got.TotalBalance.IsZero() || !got.MonthIncome.IsZero() || !got.MonthExpense.IsZero() {
		t.Errorf("uncategorized transaction counted: %+v", got)
	}
}

func TestAggregatePaymentUsesCallerLocation(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*60*60)
	local := time.Date(2025, time.March, 31, 22, 0, 0, 0, saoPaulo)
	// 01:00 UTC on April 1st is still March 31st in São Paulo.
	loan := Loan{Amount: dec("80"), CreatedDate: NewDate(2025, 1, 1), Status: LoanPaid,
		UpdatedAt: time.Date(2025, time.April, 1, 1, 0, 0, 0, time.UTC)}

	got := Aggregate(nil, nil, []Loan{loan}, local)
	if !got.MonthIncome.Equal(dec("80")) {
		t.Errorf("MonthIncome = %s, want 80", got.MonthIncome)
	}
}

func TestBreakdown(t *testing.T) {
	txs := []Transaction{
		{Amount: dec("50"), Date: NewDate(2025, 3, 1), CategoryName: "Mercado", CategoryKind: KindExpense},
		{Amount: dec("70"), Date: NewDate(2025, 3, 9), CategoryName: "Mercado", CategoryKind: KindExpense},
		{Amount: dec("30"), Date: NewDate(2025, 3, 2), CategoryName: "Lazer", CategoryKind: KindExpense},
		{Amount: dec("900"), Date: NewDate(2025, 3, 5), CategoryName: "Salário", CategoryKind: KindIncome},
		{Amount: dec("15"), Date: NewDate(2025, 2, 28), CategoryName: "Lazer", CategoryKind: KindExpense},
	}
	loans := []Loan{
		{Amount: dec("40"), CreatedDate: NewDate(2025, 3, 4), Status: LoanPending},
		{Amount: dec("25"), CreatedDate: NewDate(2025, 1, 4), Status: LoanPaid,
			UpdatedAt: time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)},
	}

	t.Run("expenses this month", func(t *testing.T) {
		got := Breakdown(txs, loans, KindExpense, PeriodCurrentMonth, now)
		want := []CategoryAmount{
			{Name: "Mercado", Amount: dec("120")},
			{Name: LoansLabel, Amount: dec("40")},
			{Name: "Lazer", Amount: dec("30")},
		}
		assertBreakdown(t, got, want)
	})

	t.Run("income this month", func(t *testing.T) {
		got := Breakdown(txs, loans, KindIncome, PeriodCurrentMonth, now)
		want := []CategoryAmount{
			{Name: "Salário", Amount: dec("900")},
			{Name: PaidLoansLabel, Amount: dec("25")},
		}
		assertBreakdown(t, got, want)
	})

	t.Run("last month", func(t *testing.T) {
		got := Breakdown(txs, loans, KindExpense, PeriodLastMonth, now)
		assertBreakdown(t, got, []CategoryAmount{{Name: "Lazer", Amount: dec("15")}})
	})

	t.Run("all time leaves loans out", func(t *testing.T) {
		got := Breakdown(txs, loans, "", PeriodAll, now)
		want := []CategoryAmount{
			{Name: "Salário", Amount: dec("900")},
			{Name: "Mercado", Amount: dec("120")},
			{Name: "Lazer", Amount: dec("45")},
		}
		assertBreakdown(t, got, want)
	})
}

func assertBreakdown(t *testing.T, got, want []CategoryAmount) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Breakdown() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i].Name != want[i].Name || !got[i].Amount.Equal(want[i].Amount) {
			t.Errorf("Breakdown()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPeriodContains(t *testing.T) {
	cases := []struct {
		p    Period
		d    Date
		want bool
	}{
		{PeriodCurrentMonth, NewDate(2025, 3, 31), true},
		{PeriodCurrentMonth, NewDate(2024, 3, 1), false},
		{PeriodLastMonth, NewDate(2025, 2, 1), true},
		{PeriodLast3Months, NewDate(2025, 1, 1), true},
		{PeriodLast3Months, NewDate(2024, 12, 31), false},
		{PeriodLast6Months, NewDate(2024, 10, 1), true},
		{PeriodYear, NewDate(2025, 1, 1), true},
		{PeriodAll, NewDate(1999, 1, 1), true},
		{PeriodAll, Date{}, false},
	}
	for _, tc := range cases {
		if got := tc.p.Contains(tc.d, now); got != tc.want {
			t.Errorf("%s.Contains(%s) = %v, want %v", tc.p, tc.d, got, tc.want)
		}
	}

	jan := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)
	if !PeriodLastMonth.Contains(NewDate(2024, 12, 5), jan) {
		t.Errorf("last-month in January should cover December of the previous year")
	}
}
