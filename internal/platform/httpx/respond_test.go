package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/crediario/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("sale 9: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrInsufficientStock, http.StatusConflict},
		{shared.ErrAlreadyCancelled, http.StatusConflict},
		{shared.ErrAlreadySettled, http.StatusConflict},
		{shared.ErrHasPaidInstallments, http.StatusConflict},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{shared.ErrAmountExceedsBalance, http.StatusUnprocessableEntity},
		{shared.ErrIncompleteCustomer, http.StatusUnprocessableEntity},
		{shared.Validationf("quantity", "must be positive"), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: eof", ErrBadRequest), http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.code, rr.Code, tc.err.Error())
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("pq: password authentication failed"))

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Empty(t, problem.Detail)
	assert.Equal(t, http.StatusInternalServerError, problem.Status)
}

func TestRespondErrorCarriesDetails(t *testing.T) {
	err := shared.WithDetails(fmt.Errorf("product 4: %w", shared.ErrInsufficientStock), map[string]any{"product_id": 4, "available": 1})
	rr := httptest.NewRecorder()
	RespondError(rr, err)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "Insufficient Stock", problem.Title)
	assert.EqualValues(t, 4, problem.Details["product_id"])
	assert.EqualValues(t, 1, problem.Details["available"])
}

type createRequest struct {
	CustomerID int64  `json:"customer_id" validate:"required,gt=0"`
	Payment    string `json:"payment_type" validate:"required,oneof=cash credit"`
}

func TestDecodeAndValidate(t *testing.T) {
	var req createRequest
	err := DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"customer_id":1,"extra":true}`)), &req)
	require.ErrorIs(t, err, ErrBadRequest)

	req = createRequest{CustomerID: 0, Payment: "barter"}
	err = Validate(NewValidator(), req)
	require.ErrorIs(t, err, shared.ErrValidation)
	fields, _ := shared.DetailsOf(err)["fields"].(map[string]any)
	assert.Equal(t, "required", fields["customer_id"])
	assert.Equal(t, "oneof", fields["payment_type"])

	assert.NoError(t, Validate(NewValidator(), createRequest{CustomerID: 1, Payment: "cash"}))
}

func newIdempotentHandler(t *testing.T, status int) (http.Handler, *int) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := new(int)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(status)
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guarded := Idempotency(shared.NewIdempotencyStore(client, 0), "test", logger)(inner)
	return shared.TenantMiddleware(guarded), calls
}

func idempotentRequest(key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(shared.HeaderCompanyID, "1")
	if key != "" {
		req.Header.Set(shared.HeaderIdempotencyKey, key)
	}
	return req
}

func TestIdempotencyRejectsReplay(t *testing.T) {
	h, calls := newIdempotentHandler(t, http.StatusCreated)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, idempotentRequest("k1"))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, idempotentRequest("k1"))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, 1, *calls)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, idempotentRequest(""))
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, 2, *calls)
}

func TestIdempotencyReleasesKeyOnFailure(t *testing.T) {
	h, calls := newIdempotentHandler(t, http.StatusUnprocessableEntity)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, idempotentRequest("k2"))
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	}
	assert.Equal(t, 2, *calls)
}
