package httputil_test

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/medflow/pharmacy-inventory/pkg/errors"
	"github.com/medflow/pharmacy-inventory/pkg/httputil"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveError runs err through the request ID and logger middleware and
// returns the response with everything that was logged
func serveError(t *testing.T, err error) (*httptest.ResponseRecorder, httputil.Response, string) {
	t.Helper()
	var buf bytes.Buffer
	h := httputil.RequestID(httputil.Logger(logger.NewWithWriter(&buf, "inventory-test"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httputil.Error(w, r, err)
		}),
	))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory/batches", nil)
	req.Header.Set("X-Request-ID", "req-7")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return rr, resp, buf.String()
}

func TestError_PlainErrorIsLogged(t *testing.T) {
	rr, resp, logged := serveError(t, stderrors.New("pq: connection reset by peer"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "connection reset")

	assert.Contains(t, logged, "unhandled error")
	assert.Contains(t, logged, "pq: connection reset by peer")
	assert.Contains(t, logged, `"request_id":"req-7"`)
}

func TestError_InternalAppErrorIsLogged(t *testing.T) {
	rr, resp, logged := serveError(t, errors.InvariantViolation("batch b-1 is over-allocated by 5"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "over-allocated")

	assert.Contains(t, logged, "request failed")
	assert.Contains(t, logged, "over-allocated by 5")
}

func TestError_ClientErrorIsNotLoggedAsFailure(t *testing.T) {
	rr, resp, logged := serveError(t, errors.NotFound("batch"))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.NotContains(t, logged, "request failed")
	assert.Contains(t, logged, `"status":404`)
}

func TestRegisterCustomValidation(t *testing.T) {
	require.NoError(t, httputil.RegisterCustomValidation("even_quantity", func(fl validator.FieldLevel) bool {
		return fl.Field().Int()%2 == 0
	}, "must be an even number"))

	type packRequest struct {
		Quantity int `json:"quantity" validate:"even_quantity"`
	}

	assert.NoError(t, httputil.Validate(packRequest{Quantity: 4}))

	err := httputil.Validate(packRequest{Quantity: 3})
	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, "must be an even number", appErr.Details["quantity"])
}
