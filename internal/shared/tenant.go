package shared

import (
	"net/http"
	"strconv"
)

// Headers forwarded by the authenticating gateway.
const (
	HeaderCompanyID = "X-Company-ID"
	HeaderUserID    = "X-User-ID"
)

// TenantMiddleware loads the tenant forwarded by the gateway into the request
// context. Requests without a valid company are rejected.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		companyID, err := strconv.ParseInt(r.Header.Get(HeaderCompanyID), 10, 64)
		if err != nil || companyID <= 0 {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		var userID int64
		if raw := r.Header.Get(HeaderUserID); raw != "" {
			userID, err = strconv.ParseInt(raw, 10, 64)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
		}
		ctx := ContextWithTenant(r.Context(), Tenant{CompanyID: companyID, UserID: userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
