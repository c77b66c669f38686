package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/crediario/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, companyID int64, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, companyID, productID int64) (Product, error)
	ListMovements(ctx context.Context, companyID int64, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives ledger counters.
type MetricsPort interface {
	StockRejected()
	StockMoved(movementType string)
}

// Ledger applies stock changes inside a caller-owned transaction. It keeps no
// state of its own; the product row lock belongs to the enclosing transaction.
type Ledger struct {
	metrics MetricsPort
	now     func() time.Time
}

// NewLedger constructs a Ledger. metrics may be nil.
func NewLedger(metrics MetricsPort) *Ledger {
	return &Ledger{metrics: metrics, now: func() time.Time { return time.Now().UTC() }}
}

// Reserve debits quantity units of an active product and records a sale movement.
func (l *Ledger) Reserve(ctx context.Context, tx TxRepository, input MovementInput) (int, int, error) {
	if input.Quantity <= 0 {
		return 0, 0, ErrInvalidQuantity
	}
	product, err := tx.GetProductForUpdate(ctx, input.ProductID)
	if err != nil {
		return 0, 0, err
	}
	if !product.IsActive {
		return 0, 0, shared.WithDetails(ErrProductInactive, map[string]any{"product_id": product.ID})
	}
	if product.StockQuantity < input.Quantity {
		if l.metrics != nil {
			l.metrics.StockRejected()
		}
		return 0, 0, shared.WithDetails(ErrInsufficientStock, map[string]any{
			"product_id": product.ID,
			"requested":  input.Quantity,
			"available":  product.StockQuantity,
		})
	}
	mv, err := l.apply(ctx, tx, product, -input.Quantity, MovementSale, input)
	if err != nil {
		return 0, 0, err
	}
	return mv.PreviousStock, mv.NewStock, nil
}

// Restore credits quantity units back and records a cancel movement. Calls are
// not deduplicated; the caller restores each sale at most once.
func (l *Ledger) Restore(ctx context.Context, tx TxRepository, input MovementInput) (int, int, error) {
	if input.Quantity <= 0 {
		return 0, 0, ErrInvalidQuantity
	}
	product, err := tx.GetProductForUpdate(ctx, input.ProductID)
	if err != nil {
		return 0, 0, err
	}
	mv, err := l.apply(ctx, tx, product, input.Quantity, MovementCancel, input)
	if err != nil {
		return 0, 0, err
	}
	return mv.PreviousStock, mv.NewStock, nil
}

func (l *Ledger) apply(ctx context.Context, tx TxRepository, product Product, delta int, kind MovementType, input MovementInput) (Movement, error) {
	newStock := product.StockQuantity + delta
	if newStock < 0 {
		return Movement{}, ErrNegativeStock
	}
	if err := tx.UpdateStock(ctx, product.ID, newStock); err != nil {
		return Movement{}, fmt.Errorf("inventory: update stock: %w", err)
	}
	mv := Movement{
		ProductID:     product.ID,
		CompanyID:     product.CompanyID,
		Type:          kind,
		Quantity:      delta,
		PreviousStock: product.StockQuantity,
		NewStock:      newStock,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		Notes:         input.Notes,
		CreatedBy:     input.ActorID,
		CreatedAt:     l.now(),
	}
	id, err := tx.InsertMovement(ctx, mv)
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: insert movement: %w", err)
	}
	mv.ID = id
	if l.metrics != nil {
		l.metrics.StockMoved(string(kind))
	}
	return mv, nil
}

// Service exposes the ledger operations that run in their own transaction.
type Service struct {
	repo   RepositoryPort
	ledger *Ledger
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *Ledger, audit AuditPort, logger *slog.Logger) *Service {
	if ledger == nil {
		ledger = NewLedger(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, audit: audit, logger: logger}
}

// Adjust posts a manual signed stock change. Inactive products may be adjusted.
func (s *Service) Adjust(ctx context.Context, companyID int64, input AdjustmentInput) (Movement, error) {
	if input.ProductID <= 0 {
		return Movement{}, shared.Validationf("product_id", "product required")
	}
	if input.Quantity == 0 {
		return Movement{}, ErrInvalidQuantity
	}
	kind := input.Type
	if kind == "" {
		kind = MovementAdjustment
	}
	switch kind {
	case MovementAdjustment, MovementReturn:
	case MovementSale, MovementCancel:
		return Movement{}, shared.Validationf("movement_type", "%s movements are posted by sales only", kind)
	default:
		return Movement{}, shared.Validationf("movement_type", "unknown movement type %q", kind)
	}
	if kind == MovementReturn && input.Quantity < 0 {
		return Movement{}, shared.Validationf("quantity", "returns must be positive")
	}

	var mv Movement
	err := s.repo.WithTx(ctx, companyID, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		mv, err = s.ledger.apply(ctx, tx, product, input.Quantity, kind, MovementInput{
			ProductID:     input.ProductID,
			ReferenceType: ReferenceAdjustment,
			ActorID:       input.ActorID,
			Notes:         input.Notes,
		})
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.logger.Info("stock adjusted",
		slog.Int64("company_id", companyID),
		slog.Int64("product_id", mv.ProductID),
		slog.Int("quantity", mv.Quantity),
		slog.Int("new_stock", mv.NewStock))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: companyID,
			ActorID:   input.ActorID,
			Action:    fmt.Sprintf("inventory:%s", kind),
			Entity:    "stock_movement",
			EntityID:  fmt.Sprintf("%d", mv.ID),
			Meta: map[string]any{
				"product_id":     mv.ProductID,
				"quantity":       mv.Quantity,
				"previous_stock": mv.PreviousStock,
				"new_stock":      mv.NewStock,
				"notes":          input.Notes,
			},
		})
	}
	return mv, nil
}

// ListMovements returns the stock card of one product, newest first.
func (s *Service) ListMovements(ctx context.Context, companyID int64, filter MovementFilter) ([]Movement, error) {
	if filter.ProductID <= 0 {
		return nil, shared.Validationf("product_id", "product required")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.Validationf("to", "end date before start date")
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 200
	}
	if _, err := s.repo.GetProduct(ctx, companyID, filter.ProductID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, companyID, filter)
}
