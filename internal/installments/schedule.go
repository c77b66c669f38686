package installments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/crediario/internal/shared"
)

// Installment count bounds.
const (
	MinCount = 1
	MaxCount = 60
)

// DaysBetweenInstallments spaces consecutive due dates.
const DaysBetweenInstallments = 30

// Generate splits total into count pending installments. Every installment
// but the last gets total/count rounded half-up to cents; the last absorbs the
// rounding residue so the amounts always add up to total exactly. A total
// too small to give every installment at least one cent is rejected.
//
// With firstDueDate the i-th installment is due firstDueDate + 30*(i-1) days.
// Without it the i-th installment is due today + 30*i days.
func Generate(total decimal.Decimal, count int, firstDueDate *time.Time, today time.Time) ([]Installment, error) {
	if count < MinCount || count > MaxCount {
		return nil, shared.WithDetails(ErrInvalidInstallmentCount, map[string]any{"installments_count": count})
	}
	if !total.IsPositive() {
		return nil, ErrInvalidTotal
	}
	total = shared.RoundMoney(total)
	base := shared.RoundMoney(total.Div(decimal.NewFromInt(int64(count))))
	last := total.Sub(base.Mul(decimal.NewFromInt(int64(count - 1))))
	if !base.IsPositive() || !last.IsPositive() {
		return nil, shared.WithDetails(ErrTotalTooSmall, map[string]any{
			"total":              total.StringFixed(shared.MoneyPlaces),
			"installments_count": count,
		})
	}

	out := make([]Installment, count)
	for i := range out {
		n := i + 1
		amount := base
		if n == count {
			amount = last
		}
		out[i] = Installment{
			InstallmentNumber: n,
			Amount:            amount,
			DueDate:           dueDate(n, firstDueDate, today),
			Status:            StatusPending,
		}
	}
	return out, nil
}

func dueDate(n int, firstDueDate *time.Time, today time.Time) time.Time {
	if firstDueDate != nil {
		return dateOnly(*firstDueDate).AddDate(0, 0, DaysBetweenInstallments*(n-1))
	}
	return dateOnly(today).AddDate(0, 0, DaysBetweenInstallments*n)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
