// Package installments schedules credit-sale installments and records the
// payments made against them.
package installments

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/crediario/internal/shared"
)

// Status enumerates installment statuses.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	default:
		return false
	}
}

// PaymentStatus enumerates payment statuses. Only completed payments count
// towards the balance.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed:
		return true
	default:
		return false
	}
}

// Installment is one scheduled portion of a credit sale.
type Installment struct {
	ID                int64           `json:"id"`
	SaleID            int64           `json:"sale_id"`
	CustomerID        int64           `json:"customer_id"`
	CompanyID         int64           `json:"company_id"`
	InstallmentNumber int             `json:"installment_number"`
	Amount            decimal.Decimal `json:"amount"`
	DueDate           time.Time       `json:"due_date"`
	Status            Status          `json:"status"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Payment is an append-only record of money received for an installment.
type Payment struct {
	ID            int64           `json:"id"`
	InstallmentID int64           `json:"installment_id"`
	CompanyID     int64           `json:"company_id"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Status        PaymentStatus   `json:"status"`
	PaidAt        time.Time       `json:"paid_at"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Reference     string          `json:"reference"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     int64           `json:"created_by,omitempty"`
}

// PaymentInput describes a payment registration.
type PaymentInput struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,max=40"`
	Notes         string          `json:"notes" validate:"max=500"`
	PaidAt        *time.Time      `json:"paid_at"`
	ActorID       int64           `json:"-"`
}

// View is the balance view of one installment.
type View struct {
	Installment
	Payments  []Payment       `json:"payments"`
	TotalPaid decimal.Decimal `json:"total_paid"`
	Remaining decimal.Decimal `json:"remaining"`
}

// PaymentResult carries the persisted payment and the installment after it.
type PaymentResult struct {
	Payment     Payment         `json:"payment"`
	Installment Installment     `json:"installment"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	Remaining   decimal.Decimal `json:"remaining"`
}

var (
	// ErrInstallmentNotFound covers missing and cross-tenant installments.
	ErrInstallmentNotFound = fmt.Errorf("%w: installment", shared.ErrNotFound)
	// ErrInvalidInstallmentCount indicates a count outside [MinCount, MaxCount].
	ErrInvalidInstallmentCount = fmt.Errorf("%w: installments count must be between %d and %d", shared.ErrValidation, MinCount, MaxCount)
	// ErrInvalidTotal indicates a non-positive amount to schedule.
	ErrInvalidTotal = fmt.Errorf("%w: total must be positive", shared.ErrValidation)
	// ErrTotalTooSmall indicates a total that cannot cover count positive installments.
	ErrTotalTooSmall = fmt.Errorf("%w: total too small for installments count", shared.ErrValidation)
	// ErrInvalidAmount indicates a non-positive payment.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	// ErrAlreadySettled indicates nothing is left to pay.
	ErrAlreadySettled = fmt.Errorf("installments: %w", shared.ErrAlreadySettled)
	// ErrAmountExceedsBalance indicates an overpayment attempt.
	ErrAmountExceedsBalance = fmt.Errorf("installments: %w", shared.ErrAmountExceedsBalance)
	// ErrInstallmentCancelled indicates the installment was cancelled with its sale.
	ErrInstallmentCancelled = fmt.Errorf("%w: installment is cancelled", shared.ErrValidation)
)
