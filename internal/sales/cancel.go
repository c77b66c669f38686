package sales

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/crediario/internal/installments"
	"github.com/odyssey-erp/crediario/internal/inventory"
	"github.com/odyssey-erp/crediario/internal/shared"
)

// CancelSale reverts a completed sale: stock is restored once per product,
// unpaid installments are cancelled and the sale is stamped cancelled. A sale
// with any paid installment cannot be cancelled.
func (s *Service) CancelSale(ctx context.Context, companyID, saleID, userID int64) (*Sale, error) {
	now := s.now()

	var (
		sale      Sale
		cancelled int
	)
	err := s.repo.WithTx(ctx, companyID, func(ctx context.Context, tx TxRepository) error {
		var err error
		sale, err = tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		switch sale.Status {
		case StatusCancelled:
			return shared.WithDetails(ErrAlreadyCancelled, map[string]any{"sale_id": sale.ID})
		case StatusCompleted:
		default:
			return fmt.Errorf("sales: unknown status %q", sale.Status)
		}

		schedule, err := tx.Installments().ListBySaleForUpdate(ctx, sale.ID)
		if err != nil {
			return fmt.Errorf("sales: lock installments: %w", err)
		}
		paidCount, paidAmount := paidInstallments(schedule)
		if paidCount > 0 {
			return shared.WithDetails(ErrHasPaidInstallments, map[string]any{
				"sale_id":     sale.ID,
				"paid_count":  paidCount,
				"paid_amount": paidAmount.StringFixed(shared.MoneyPlaces),
			})
		}

		items, err := tx.ListItems(ctx, []int64{sale.ID})
		if err != nil {
			return fmt.Errorf("sales: list items: %w", err)
		}
		sale.Items = items[sale.ID]
		quantities, order := quantitiesByProduct(sale.Items)
		for _, productID := range order {
			if _, _, err := s.ledger.Restore(ctx, tx.Inventory(), inventory.MovementInput{
				ProductID:     productID,
				Quantity:      quantities[productID],
				ReferenceType: inventory.ReferenceSale,
				ReferenceID:   sale.ID,
				ActorID:       userID,
				Notes:         fmt.Sprintf("cancel sale #%d", sale.ID),
			}); err != nil {
				return err
			}
		}

		if cancelled, err = tx.Installments().CancelOpenBySale(ctx, sale.ID); err != nil {
			return fmt.Errorf("sales: cancel installments: %w", err)
		}
		if err := tx.MarkCancelled(ctx, sale.ID, now); err != nil {
			return fmt.Errorf("sales: mark cancelled: %w", err)
		}
		sale.Status = StatusCancelled
		sale.CancelledAt = &now
		for i := range schedule {
			if schedule[i].Status != installments.StatusPaid {
				schedule[i].Status = installments.StatusCancelled
			}
		}
		sale.Installments = schedule
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SaleCancelled()
	}
	s.logger.Info("sale cancelled",
		slog.Int64("company_id", companyID),
		slog.Int64("sale_id", sale.ID),
		slog.Int("installments_cancelled", cancelled))
	s.record(ctx, sale, userID, "sales:cancel", map[string]any{
		"installments_cancelled": cancelled,
		"items":                  len(sale.Items),
	})
	return &sale, nil
}

func paidInstallments(list []installments.Installment) (int, decimal.Decimal) {
	count := 0
	sum := decimal.Zero
	for _, inst := range list {
		switch inst.Status {
		case installments.StatusPaid:
			count++
			sum = sum.Add(inst.Amount)
		case installments.StatusPending, installments.StatusOverdue, installments.StatusCancelled:
		}
	}
	return count, sum
}

// quantitiesByProduct sums item quantities per product and returns the
// product ids in ascending order.
func quantitiesByProduct(items []Item) (map[int64]int, []int64) {
	quantities := make(map[int64]int, len(items))
	for _, item := range items {
		quantities[item.ProductID] += item.Quantity
	}
	order := make([]int64, 0, len(quantities))
	for id := range quantities {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return quantities, order
}
