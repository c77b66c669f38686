package installments

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/crediario/internal/shared"
)

// Balance returns how much was paid towards inst and how much remains.
//
// A paid installment always reports (amount, 0) even when no payment rows
// exist; older data marked installments paid without recording payments.
// Otherwise only completed payments count, and a remainder within one cent
// is treated as settled.
func Balance(inst Installment, payments []Payment) (decimal.Decimal, decimal.Decimal) {
	if inst.Status == StatusPaid {
		return inst.Amount, decimal.Zero
	}
	totalPaid := decimal.Zero
	for _, p := range payments {
		if p.Status == PaymentCompleted {
			totalPaid = totalPaid.Add(p.AmountPaid)
		}
	}
	remaining := inst.Amount.Sub(totalPaid)
	if remaining.LessThanOrEqual(shared.MoneyTolerance) {
		remaining = decimal.Zero
	}
	return totalPaid, remaining
}
