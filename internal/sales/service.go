package sales

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/crediario/internal/installments"
	"github.com/odyssey-erp/crediario/internal/inventory"
	"github.com/odyssey-erp/crediario/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, companyID int64, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, companyID, saleID int64) (Sale, error)
	ListItems(ctx context.Context, companyID int64, saleIDs []int64) (map[int64][]Item, error)
	ListSales(ctx context.Context, companyID int64, filter ListFilter) ([]Sale, int, error)
}

// InstallmentReader loads the schedule of a sale outside the write path.
type InstallmentReader interface {
	ListBySale(ctx context.Context, companyID, saleID int64) ([]installments.Installment, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives sale counters.
type MetricsPort interface {
	SaleCreated(paymentType string)
	SaleCancelled()
}

// Service provides business logic for sales operations.
type Service struct {
	repo      RepositoryPort
	ledger    *inventory.Ledger
	schedules InstallmentReader
	audit     AuditPort
	metrics   MetricsPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a sales service. audit and metrics may be nil.
func NewService(repo RepositoryPort, ledger *inventory.Ledger, schedules InstallmentReader, audit AuditPort, metrics MetricsPort, logger *slog.Logger) *Service {
	if ledger == nil {
		ledger = inventory.NewLedger(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		ledger:    ledger,
		schedules: schedules,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ============================================================================
// CREATE
// ============================================================================

// CreateSale validates and persists a sale in a single transaction: it locks
// the customer and every product, writes the sale with its items, reserves
// stock and, for credit sales, writes the installment schedule. Any failure
// rolls the whole sale back.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (*Sale, error) {
	if !input.PaymentType.Valid() {
		return nil, shared.WithDetails(ErrInvalidPaymentType, map[string]any{"payment_type": input.PaymentType})
	}
	now := s.now()

	var sale Sale
	err := s.repo.WithTx(ctx, input.CompanyID, func(ctx context.Context, tx TxRepository) error {
		customer, err := tx.GetCustomerForUpdate(ctx, input.CustomerID)
		if err != nil {
			return err
		}
		if !customer.IsActive {
			return shared.WithDetails(ErrCustomerInactive, map[string]any{"customer_id": customer.ID})
		}
		if input.PaymentType == PaymentCredit {
			if missing := customer.MissingCreditFields(); len(missing) > 0 {
				return shared.WithDetails(ErrIncompleteCustomerForCredit, map[string]any{
					"customer_id": customer.ID,
					"missing":     missing,
				})
			}
		}

		if err := validateItems(input.Items); err != nil {
			return err
		}

		products, err := tx.Inventory().LockProducts(ctx, distinctProductIDs(input.Items))
		if err != nil {
			return fmt.Errorf("sales: lock products: %w", err)
		}
		items := make([]Item, 0, len(input.Items))
		subtotal := decimal.Zero
		for _, in := range input.Items {
			product, ok := products[in.ProductID]
			if !ok {
				return shared.WithDetails(inventory.ErrProductNotFound, map[string]any{"product_id": in.ProductID})
			}
			if !product.IsActive {
				return shared.WithDetails(inventory.ErrProductInactive, map[string]any{"product_id": in.ProductID})
			}
			lineTotal := shared.RoundMoney(in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity))))
			subtotal = subtotal.Add(lineTotal)
			items = append(items, Item{
				ProductID:     in.ProductID,
				Quantity:      in.Quantity,
				UnitPrice:     in.UnitPrice,
				TotalPrice:    lineTotal,
				UnitCostPrice: product.CostPrice,
			})
		}

		total, err := applyDiscount(subtotal, input.Discount)
		if err != nil {
			return err
		}

		count := 0
		if input.PaymentType == PaymentCredit {
			if input.InstallmentsCount == nil {
				return ErrInstallmentsRequired
			}
			count = *input.InstallmentsCount
			if count < installments.MinCount || count > installments.MaxCount {
				return shared.WithDetails(installments.ErrInvalidInstallmentCount, map[string]any{"installments_count": count})
			}
		}

		sale, err = tx.InsertSale(ctx, Sale{
			CompanyID:         input.CompanyID,
			CustomerID:        customer.ID,
			UserID:            input.UserID,
			Subtotal:          subtotal,
			DiscountAmount:    input.Discount,
			TotalAmount:       total,
			PaymentType:       input.PaymentType,
			Status:            StatusCompleted,
			InstallmentsCount: count,
			Notes:             input.Notes,
			CreatedAt:         now,
		})
		if err != nil {
			return fmt.Errorf("sales: insert sale: %w", err)
		}
		for i := range items {
			items[i].SaleID = sale.ID
		}
		if sale.Items, err = tx.InsertItems(ctx, items); err != nil {
			return fmt.Errorf("sales: insert items: %w", err)
		}

		for _, item := range sale.Items {
			if _, _, err := s.ledger.Reserve(ctx, tx.Inventory(), inventory.MovementInput{
				ProductID:     item.ProductID,
				Quantity:      item.Quantity,
				ReferenceType: inventory.ReferenceSale,
				ReferenceID:   sale.ID,
				ActorID:       input.UserID,
				Notes:         fmt.Sprintf("sale #%d", sale.ID),
			}); err != nil {
				return err
			}
		}

		if input.PaymentType == PaymentCredit {
			schedule, err := installments.Generate(total, count, input.FirstDueDate, now)
			if err != nil {
				return err
			}
			for i := range schedule {
				schedule[i].SaleID = sale.ID
				schedule[i].CustomerID = customer.ID
			}
			if sale.Installments, err = tx.Installments().InsertInstallments(ctx, schedule); err != nil {
				return fmt.Errorf("sales: insert installments: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SaleCreated(string(sale.PaymentType))
	}
	s.logger.Info("sale created",
		slog.Int64("company_id", sale.CompanyID),
		slog.Int64("sale_id", sale.ID),
		slog.String("payment_type", string(sale.PaymentType)),
		slog.String("total", sale.TotalAmount.StringFixed(shared.MoneyPlaces)),
		slog.Int("items", len(sale.Items)))
	s.record(ctx, sale, input.UserID, "sales:create", map[string]any{
		"customer_id":        sale.CustomerID,
		"total":              sale.TotalAmount.StringFixed(shared.MoneyPlaces),
		"payment_type":       sale.PaymentType,
		"installments_count": sale.InstallmentsCount,
	})
	return &sale, nil
}

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	for i, item := range items {
		if item.Quantity < MinItemQuantity || item.Quantity > MaxItemQuantity {
			return shared.WithDetails(ErrInvalidQuantity, map[string]any{"index": i, "product_id": item.ProductID, "quantity": item.Quantity})
		}
		if !item.UnitPrice.IsPositive() {
			return shared.WithDetails(ErrInvalidUnitPrice, map[string]any{"index": i, "product_id": item.ProductID})
		}
		if !item.UnitPrice.Equal(shared.RoundMoney(item.UnitPrice)) {
			return shared.Validationf(fmt.Sprintf("items[%d].unit_price", i), "unit price has more than %d decimal places", shared.MoneyPlaces)
		}
	}
	return nil
}

// applyDiscount returns subtotal - discount. The discount may be zero but
// never negative nor above the subtotal, and the result must stay positive.
func applyDiscount(subtotal, discount decimal.Decimal) (decimal.Decimal, error) {
	if !discount.Equal(shared.RoundMoney(discount)) {
		return decimal.Zero, shared.Validationf("discount_amount", "discount has more than %d decimal places", shared.MoneyPlaces)
	}
	if discount.IsNegative() || discount.GreaterThan(subtotal) {
		return decimal.Zero, shared.WithDetails(ErrInvalidDiscount, map[string]any{
			"discount_amount": discount.StringFixed(shared.MoneyPlaces),
			"subtotal":        subtotal.StringFixed(shared.MoneyPlaces),
		})
	}
	total := subtotal.Sub(discount)
	if !total.IsPositive() {
		return decimal.Zero, ErrNonPositiveTotal
	}
	return total, nil
}

func distinctProductIDs(items []ItemInput) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ============================================================================
// QUERIES
// ============================================================================

// GetSale returns a sale with its items and installments.
func (s *Service) GetSale(ctx context.Context, companyID, saleID int64) (*Sale, error) {
	sale, err := s.repo.GetSale(ctx, companyID, saleID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, companyID, []int64{sale.ID})
	if err != nil {
		return nil, fmt.Errorf("sales: list items: %w", err)
	}
	sale.Items = items[sale.ID]
	if s.schedules != nil && sale.PaymentType == PaymentCredit {
		if sale.Installments, err = s.schedules.ListBySale(ctx, companyID, sale.ID); err != nil {
			return nil, fmt.Errorf("sales: list installments: %w", err)
		}
	}
	return &sale, nil
}

// ListSales returns a page of sale headers, newest first.
func (s *Service) ListSales(ctx context.Context, companyID int64, filter ListFilter) ([]Sale, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, shared.Validationf("status", "unknown status %q", filter.Status)
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	sales, total, err := s.repo.ListSales(ctx, companyID, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if sales == nil {
		sales = []Sale{}
	}
	return sales, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) record(ctx context.Context, sale Sale, actorID int64, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: sale.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "sale",
		EntityID:  strconv.FormatInt(sale.ID, 10),
		Meta:      meta,
	})
}
