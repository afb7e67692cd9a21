package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestErrorHandler_StatusFromKind(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/imports", nil)

	tests := []struct {
		err    error
		status int
		kind   ErrorType
	}{
		{NewMissingParameterError("need two"), http.StatusBadRequest, ErrorTypeMissingParameter},
		{fmt.Errorf("query handler failed: %w", NewNotFoundError("country Atlantis")), http.StatusNotFound, ErrorTypeNotFound},
		{NewDatabaseError("query", fmt.Errorf("connection reset")), http.StatusInternalServerError, ErrorTypeDatabase},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.Handle(rec, req, tt.err)

		assert.Equal(t, tt.status, rec.Code)
		body := decode(t, rec)
		assert.False(t, body.Success)
		assert.Equal(t, string(tt.kind), body.Type)
		assert.NotContains(t, body.Error, "connection reset")
	}
}

func TestErrorHandler_UnknownErrorsDoNotLeak(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("secret dsn"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "An internal error occurred", body.Error)
}

func TestErrorHandler_RecoversPanics(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	handler := h.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(ErrorTypeInternal), decode(t, rec).Type)
}
