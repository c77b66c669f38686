package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/crediario/internal/installments"
	"github.com/odyssey-erp/crediario/internal/shared"
)

// ============================================================================
// ENUMS
// ============================================================================

// PaymentType enumerates how a sale is settled.
type PaymentType string

const (
	PaymentCash   PaymentType = "cash"
	PaymentCredit PaymentType = "credit"
	PaymentPix    PaymentType = "pix"
)

// Valid reports whether t is a known payment type.
func (t PaymentType) Valid() bool {
	switch t {
	case PaymentCash, PaymentCredit, PaymentPix:
		return true
	default:
		return false
	}
}

// Status enumerates sale statuses.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known sale status.
func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Item quantity bounds.
const (
	MinItemQuantity = 1
	MaxItemQuantity = 10000
)

// ============================================================================
// ENTITIES
// ============================================================================

// Customer is the buyer of a sale. Credit sales need the document, phone and
// address on file.
type Customer struct {
	ID         int64  `json:"id"`
	CompanyID  int64  `json:"company_id"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
	DocumentID string `json:"document_id,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
}

// MissingCreditFields lists the attributes a credit sale requires but the
// customer lacks.
func (c Customer) MissingCreditFields() []string {
	var missing []string
	if c.DocumentID == "" {
		missing = append(missing, "document_id")
	}
	if c.Phone == "" {
		missing = append(missing, "phone")
	}
	if c.Address == "" {
		missing = append(missing, "address")
	}
	return missing
}

// Sale is the header of a completed or cancelled transaction.
type Sale struct {
	ID                int64                      `json:"id"`
	CompanyID         int64                      `json:"company_id"`
	CustomerID        int64                      `json:"customer_id"`
	UserID            int64                      `json:"user_id"`
	Subtotal          decimal.Decimal            `json:"subtotal"`
	DiscountAmount    decimal.Decimal            `json:"discount_amount"`
	TotalAmount       decimal.Decimal            `json:"total_amount"`
	PaymentType       PaymentType                `json:"payment_type"`
	Status            Status                     `json:"status"`
	InstallmentsCount int                        `json:"installments_count"`
	Notes             string                     `json:"notes,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
	CancelledAt       *time.Time                 `json:"cancelled_at,omitempty"`
	Items             []Item                     `json:"items,omitempty"`
	Installments      []installments.Installment `json:"installments,omitempty"`
}

// Item is an immutable line of a sale.
type Item struct {
	ID            int64           `json:"id"`
	SaleID        int64           `json:"sale_id"`
	ProductID     int64           `json:"product_id"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	UnitCostPrice decimal.Decimal `json:"unit_cost_price"`
}

// ============================================================================
// INPUTS
// ============================================================================

// ItemInput is one requested line.
type ItemInput struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CreateSaleInput describes a sale to create.
type CreateSaleInput struct {
	CompanyID         int64           `json:"-"`
	UserID            int64           `json:"-"`
	CustomerID        int64           `json:"customer_id" validate:"required,gt=0"`
	Items             []ItemInput     `json:"items"`
	PaymentType       PaymentType     `json:"payment_type"`
	Discount          decimal.Decimal `json:"discount_amount"`
	InstallmentsCount *int            `json:"installments_count"`
	FirstDueDate      *time.Time      `json:"first_due_date"`
	Notes             string          `json:"notes" validate:"max=1000"`
}

// ListFilter narrows a sale listing.
type ListFilter struct {
	Status     Status
	CustomerID int64
	From       time.Time
	To         time.Time
	Page       int
	PerPage    int
}

// ============================================================================
// ERRORS
// ============================================================================

var (
	// ErrSaleNotFound covers missing and cross-tenant sales.
	ErrSaleNotFound = fmt.Errorf("%w: sale", shared.ErrNotFound)
	// ErrCustomerNotFound covers missing and cross-tenant customers.
	ErrCustomerNotFound = fmt.Errorf("%w: customer", shared.ErrNotFound)
	// ErrCustomerInactive indicates a deactivated customer.
	ErrCustomerInactive = fmt.Errorf("%w: customer is inactive", shared.ErrValidation)
	// ErrIncompleteCustomerForCredit indicates missing customer data for a credit sale.
	ErrIncompleteCustomerForCredit = fmt.Errorf("sales: %w", shared.ErrIncompleteCustomer)
	// ErrNoItems indicates an empty sale.
	ErrNoItems = fmt.Errorf("%w: sale has no items", shared.ErrValidation)
	// ErrInvalidQuantity indicates an item quantity out of bounds.
	ErrInvalidQuantity = fmt.Errorf("%w: item quantity must be between %d and %d", shared.ErrValidation, MinItemQuantity, MaxItemQuantity)
	// ErrInvalidUnitPrice indicates a non-positive unit price.
	ErrInvalidUnitPrice = fmt.Errorf("%w: unit price must be positive", shared.ErrValidation)
	// ErrInvalidDiscount indicates a negative discount or one above the subtotal.
	ErrInvalidDiscount = fmt.Errorf("%w: discount must be between zero and the subtotal", shared.ErrValidation)
	// ErrNonPositiveTotal indicates a total of zero or less after discount.
	ErrNonPositiveTotal = fmt.Errorf("%w: total must be positive", shared.ErrValidation)
	// ErrInstallmentsRequired indicates a credit sale without an installments count.
	ErrInstallmentsRequired = fmt.Errorf("%w: installments count required for credit sales", shared.ErrValidation)
	// ErrInvalidPaymentType indicates an unknown payment type.
	ErrInvalidPaymentType = fmt.Errorf("%w: unknown payment type", shared.ErrValidation)
	// ErrAlreadyCancelled indicates a repeated cancellation.
	ErrAlreadyCancelled = fmt.Errorf("sales: %w", shared.ErrAlreadyCancelled)
	// ErrHasPaidInstallments blocks cancelling a sale with collected money.
	ErrHasPaidInstallments = fmt.Errorf("sales: %w", shared.ErrHasPaidInstallments)
)
