package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/crediario/internal/shared"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementSale debits stock for a sale item.
	MovementSale MovementType = "sale"
	// MovementCancel restores stock when a sale is cancelled.
	MovementCancel MovementType = "cancel"
	// MovementAdjustment records a manual correction.
	MovementAdjustment MovementType = "adjustment"
	// MovementReturn records goods returned by a customer.
	MovementReturn MovementType = "return"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementSale, MovementCancel, MovementAdjustment, MovementReturn:
		return true
	default:
		return false
	}
}

// Reference types tagging movements with their originating document.
const (
	ReferenceSale       = "sale"
	ReferenceAdjustment = "adjustment"
)

// Product is the stock-bearing catalog row. Only the ledger mutates StockQuantity.
type Product struct {
	ID            int64           `json:"id"`
	CompanyID     int64           `json:"company_id"`
	Name          string          `json:"name"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	StockQuantity int             `json:"stock_quantity"`
	IsActive      bool            `json:"is_active"`
}

// Movement is an append-only audit record of one stock change.
type Movement struct {
	ID            int64        `json:"id"`
	ProductID     int64        `json:"product_id"`
	CompanyID     int64        `json:"company_id"`
	Type          MovementType `json:"movement_type"`
	Quantity      int          `json:"quantity"`
	PreviousStock int          `json:"previous_stock"`
	NewStock      int          `json:"new_stock"`
	ReferenceType string       `json:"reference_type,omitempty"`
	ReferenceID   int64        `json:"reference_id,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	CreatedBy     int64        `json:"created_by,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// MovementInput describes a reservation or restoration of stock. Quantity is
// always the positive number of units; the ledger applies the sign.
type MovementInput struct {
	ProductID     int64
	Quantity      int
	ReferenceType string
	ReferenceID   int64
	ActorID       int64
	Notes         string
}

// AdjustmentInput describes a manual signed stock change.
type AdjustmentInput struct {
	ProductID int64        `json:"product_id" validate:"required,gt=0"`
	Quantity  int          `json:"quantity" validate:"required,ne=0"`
	Type      MovementType `json:"movement_type" validate:"omitempty,oneof=adjustment return"`
	Notes     string       `json:"notes" validate:"max=500"`
	ActorID   int64        `json:"-"`
}

// MovementFilter narrows a stock card listing.
type MovementFilter struct {
	ProductID int64
	From      time.Time
	To        time.Time
	Limit     int
}

var (
	// ErrProductNotFound covers missing and cross-tenant products.
	ErrProductNotFound = fmt.Errorf("%w: product", shared.ErrNotFound)
	// ErrProductInactive indicates a deactivated product.
	ErrProductInactive = fmt.Errorf("%w: product is inactive", shared.ErrValidation)
	// ErrInsufficientStock indicates the product cannot cover the reservation.
	ErrInsufficientStock = fmt.Errorf("inventory: %w", shared.ErrInsufficientStock)
	// ErrNegativeStock is returned when an adjustment would drop stock below zero.
	ErrNegativeStock = fmt.Errorf("%w: negative stock not allowed", shared.ErrValidation)
	// ErrInvalidQuantity indicates a zero or negative movement magnitude.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
)
