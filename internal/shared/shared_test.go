package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetailsSurviveWrapping(t *testing.T) {
	base := WithDetails(ErrIncompleteCustomer, map[string]any{"missing": []string{"phone"}})
	err := fmt.Errorf("customer 11: %w", base)

	require.ErrorIs(t, err, ErrIncompleteCustomer)
	assert.Equal(t, []string{"phone"}, DetailsOf(err)["missing"])
	assert.Nil(t, DetailsOf(errors.New("plain")))
	assert.NoError(t, WithDetails(nil, map[string]any{"x": 1}))
}

func TestValidationf(t *testing.T) {
	err := Validationf("discount", "must not exceed subtotal %s", "10.00")
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "validation failed: must not exceed subtotal 10.00", err.Error())
	assert.Equal(t, "discount", DetailsOf(err)["field"])
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(fmt.Errorf("x: %w", ErrNotFound)))
	assert.True(t, IsClientError(ErrIdempotencyConflict))
	assert.False(t, IsClientError(errors.New("deadlock detected")))
}

func TestRoundMoney(t *testing.T) {
	cases := map[string]string{
		"33.335":  "33.34",
		"33.334":  "33.33",
		"0.005":   "0.01",
		"100":     "100.00",
		"119.994": "119.99",
	}
	for in, want := range cases {
		assert.Equal(t, want, RoundMoney(decimal.RequireFromString(in)).StringFixed(MoneyPlaces), in)
	}
}

func TestPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	assert.Equal(t, Pagination{Page: 1, PerPage: 20, Total: 45, TotalPages: 3}, p)
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(3, 500, 1000)
	assert.Equal(t, 200, p.PerPage)
	assert.Equal(t, 400, p.Offset())
	assert.Equal(t, 0, NewPagination(1, 10, 0).TotalPages)
}

func TestTenantMiddleware(t *testing.T) {
	var seen Tenant
	h := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = TenantFromContext(r.Context())
	}))

	cases := []struct {
		company, user string
		code          int
	}{
		{"7", "3", http.StatusOK},
		{"7", "", http.StatusOK},
		{"", "3", http.StatusUnauthorized},
		{"0", "", http.StatusUnauthorized},
		{"abc", "", http.StatusUnauthorized},
		{"7", "x", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderCompanyID, tc.company)
		req.Header.Set(HeaderUserID, tc.user)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, tc.code, rr.Code, "%+v", tc)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderCompanyID, "7")
	req.Header.Set(HeaderUserID, "3")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, Tenant{CompanyID: 7, UserID: 3}, seen)
}

func TestIdempotencyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewIdempotencyStore(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, 1, "payments", "abc"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, 1, "payments", "abc"), ErrConflict)
	require.NoError(t, store.CheckAndInsert(ctx, 2, "payments", "abc"), "keys are per company")
	require.NoError(t, store.CheckAndInsert(ctx, 1, "sales:create", "abc"), "keys are per module")

	mr.FastForward(2 * time.Minute)
	require.NoError(t, store.CheckAndInsert(ctx, 1, "payments", "abc"), "keys expire")

	require.NoError(t, store.Delete(ctx, 1, "payments", "abc"))
	require.NoError(t, store.CheckAndInsert(ctx, 1, "payments", "abc"))

	require.Error(t, store.CheckAndInsert(ctx, 1, "payments", ""))
	var nilStore *IdempotencyStore
	require.Error(t, nilStore.CheckAndInsert(ctx, 1, "payments", "abc"))
}
