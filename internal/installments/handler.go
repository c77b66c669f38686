package installments

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/crediario/internal/platform/httpx"
	"github.com/odyssey-erp/crediario/internal/shared"
)

// Handler wires HTTP endpoints for installments.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency *shared.IdempotencyStore
	validator   *validator.Validate
}

// NewHandler constructs the installments handler. idem may be nil.
func NewHandler(logger *slog.Logger, service *Service, idem *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idem, validator: httpx.NewValidator()}
}

// MountRoutes registers installment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}", h.handleGet)
	r.With(httpx.Idempotency(h.idempotency, "installments:payment", h.logger)).
		Post("/{id}/payments", h.handleRegisterPayment)
}

// ListBySale serves the schedule of one sale; it is mounted under /sales.
func (h *Handler) ListBySale(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	saleID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views, err := h.service.ListBySale(r.Context(), tenant.CompanyID, saleID)
	if err != nil {
		h.fail(w, "list installments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": views})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.GetInstallment(r.Context(), tenant.CompanyID, id)
	if err != nil {
		h.fail(w, "get installment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleRegisterPayment(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input PaymentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validator, input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.ActorID = tenant.UserID
	payment, err := h.service.RegisterPayment(r.Context(), tenant.CompanyID, id, input)
	if err != nil {
		h.fail(w, "register payment", err)
		return
	}
	result := PaymentResult{Payment: payment}
	view, err := h.service.GetInstallment(r.Context(), tenant.CompanyID, id)
	if err != nil {
		h.logger.Warn("reload installment after payment", slog.Int64("installment_id", id), slog.Any("error", err))
	} else {
		result.Installment = view.Installment
		result.TotalPaid = view.TotalPaid
		result.Remaining = view.Remaining
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
