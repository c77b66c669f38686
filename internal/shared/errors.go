package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Module errors wrap exactly one of these so the HTTP boundary
// can classify them with errors.Is.
var (
	// ErrNotFound covers missing and cross-tenant entities alike.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed quantities, prices, discounts or counts.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock indicates a product cannot cover a reservation.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrIncompleteCustomer indicates a customer lacks data required for credit.
	ErrIncompleteCustomer = errors.New("incomplete customer for credit")
	// ErrAlreadySettled indicates an installment has nothing left to pay.
	ErrAlreadySettled = errors.New("already settled")
	// ErrAlreadyCancelled indicates a sale was cancelled before.
	ErrAlreadyCancelled = errors.New("already cancelled")
	// ErrAmountExceedsBalance indicates an overpayment attempt.
	ErrAmountExceedsBalance = errors.New("amount exceeds balance")
	// ErrHasPaidInstallments blocks cancellation once money was collected.
	ErrHasPaidInstallments = errors.New("sale has paid installments")
	// ErrConflict indicates a duplicated request at the boundary.
	ErrConflict = errors.New("conflict")
)

// DetailError carries structured context next to a wrapped kind.
type DetailError struct {
	Err     error
	Details map[string]any
}

// WithDetails wraps err with details surfaced to the caller.
func WithDetails(err error, details map[string]any) error {
	if err == nil {
		return nil
	}
	return &DetailError{Err: err, Details: details}
}

func (e *DetailError) Error() string {
	return e.Err.Error()
}

func (e *DetailError) Unwrap() error {
	return e.Err
}

// Validationf builds a validation error for a single field.
func Validationf(field, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return WithDetails(fmt.Errorf("%w: %s", ErrValidation, msg), map[string]any{"field": field})
}

// DetailsOf returns the details attached anywhere in err's chain.
func DetailsOf(err error) map[string]any {
	var de *DetailError
	if errors.As(err, &de) {
		return de.Details
	}
	return nil
}

// IsClientError reports whether err belongs to a known kind that the caller
// can act upon, as opposed to an internal failure.
func IsClientError(err error) bool {
	for _, kind := range []error{
		ErrNotFound, ErrValidation, ErrInsufficientStock, ErrIncompleteCustomer,
		ErrAlreadySettled, ErrAlreadyCancelled, ErrAmountExceedsBalance,
		ErrHasPaidInstallments, ErrConflict,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
