package core

import (
	"fmt"
	"time"
)

// InstallmentPlan is the outcome of expanding a recurring bill up to a day.
type InstallmentPlan struct {
	// Due holds the transactions that should exist but do not yet. IDs,
	// user and timestamps are left for the caller to fill.
	Due []Transaction
	// Processed is the number of generated transactions once Due is stored.
	Processed int
}

// PlanInstallments expands bill into monthly charges dated on its closing
// day, from its start date through today, skipping dates that already have a
// generated transaction.
//
// The closing day is clamped to each month's last day and the cursor is
// recomputed from the start month on every step, so a bill closing on the
// 31st charges Jan 31, Feb 28 and Mar 31. The count of existing records, not
// the bill's stored counter, decides how many installments remain.
func PlanInstallments(bill RecurringBill, existing []Transaction, today Date) InstallmentPlan {
	plan := InstallmentPlan{Processed: len(existing)}
	if bill.FullyPaid() {
		return plan
	}

	seen := make(map[string]struct{}, len(existing))
	for _, tx := range existing {
		seen[tx.Date.String()] = struct{}{}
	}

	amount := InstallmentAmount(bill.TotalAmount, bill.InstallmentCount, bill.IsSubscription)
	year, month := bill.StartDate.Year(), bill.StartDate.Month()

	offset := 0
	if MonthDay(year, month, bill.ClosingDay).Before(bill.StartDate) {
		offset = 1
	}

	for k := offset; ; k++ {
		cursor := MonthDay(year, month+time.Month(k), bill.ClosingDay)
		if cursor.After(today) {
			break
		}
		if !bill.IsSubscription && plan.Processed >= bill.InstallmentCount {
			break
		}
		if _, ok := seen[cursor.String()]; ok {
			continue
		}

		n := plan.Processed + 1
		plan.Due = append(plan.Due, Transaction{
			CategoryID:        bill.CategoryID,
			Amount:            amount,
			Date:              cursor,
			Description:       installmentDescription(bill, n),
			RecurringBillID:   bill.ID,
			InstallmentNumber: n,
		})
		plan.Processed = n
	}
	return plan
}

func installmentDescription(bill RecurringBill, n int) string {
	if bill.IsSubscription {
		return bill.Name + " - Assinatura"
	}
	return fmt.Sprintf("%s - Parcela %d/%d", bill.Name, n, bill.InstallmentCount)
}
