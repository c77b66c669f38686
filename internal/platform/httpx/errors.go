// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/crediario/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrBadRequest   = errors.New("malformed request")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	details := shared.DetailsOf(err)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		ProblemWithDetails(w, http.StatusNotFound, "Not Found", err.Error(), details)
	case errors.Is(err, shared.ErrConflict):
		ProblemWithDetails(w, http.StatusConflict, "Conflict", err.Error(), details)
	case errors.Is(err, shared.ErrInsufficientStock):
		ProblemWithDetails(w, http.StatusConflict, "Insufficient Stock", err.Error(), details)
	case errors.Is(err, shared.ErrAlreadyCancelled):
		ProblemWithDetails(w, http.StatusConflict, "Already Cancelled", err.Error(), details)
	case errors.Is(err, shared.ErrAlreadySettled):
		ProblemWithDetails(w, http.StatusConflict, "Already Settled", err.Error(), details)
	case errors.Is(err, shared.ErrHasPaidInstallments):
		ProblemWithDetails(w, http.StatusConflict, "Sale Has Paid Installments", err.Error(), details)
	case errors.Is(err, shared.ErrAmountExceedsBalance):
		ProblemWithDetails(w, http.StatusUnprocessableEntity, "Amount Exceeds Balance", err.Error(), details)
	case errors.Is(err, shared.ErrIncompleteCustomer):
		ProblemWithDetails(w, http.StatusUnprocessableEntity, "Incomplete Customer", err.Error(), details)
	case errors.Is(err, shared.ErrValidation):
		ProblemWithDetails(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error(), details)
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
