package httpx

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/crediario/internal/shared"
)

// Idempotency guards a route with the optional Idempotency-Key header. A key
// is claimed before the handler runs and released again when the handler
// fails, so callers may retry rejected requests with the same key.
func Idempotency(store *shared.IdempotencyStore, module string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(shared.HeaderIdempotencyKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			tenant, _ := shared.TenantFromContext(r.Context())
			if err := store.CheckAndInsert(r.Context(), tenant.CompanyID, module, key); err != nil {
				if logger != nil && !shared.IsClientError(err) {
					logger.Error("idempotency claim failed", slog.Any("error", err))
				}
				RespondError(w, err)
				return
			}
			rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= http.StatusBadRequest {
				if err := store.Delete(r.Context(), tenant.CompanyID, module, key); err != nil && logger != nil {
					logger.Warn("idempotency release failed", slog.Any("error", err))
				}
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
