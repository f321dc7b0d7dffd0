package apierrors

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{Unauthenticated("no tenant"), http.StatusUnauthorized},
		{Forbidden("nope"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{BadRequest("bad"), http.StatusBadRequest},
		{Conflict("racing"), http.StatusConflict},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain error"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, HTTPStatus(tt.err))
	}
}

func TestPublicMessageMasksInternal(t *testing.T) {
	assert.Equal(t, "gone", PublicMessage(NotFound("gone")))
	assert.Equal(t, "internal server error", PublicMessage(Internal(errors.New("pool exhausted"))))
	assert.Equal(t, "internal server error", PublicMessage(errors.New("pool exhausted")))
}

func TestCodeOfWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NotFound("gone"))
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
}

func TestInternalPreservesCause(t *testing.T) {
	cause := errors.New("pool exhausted")
	err := Internal(cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "pool exhausted")
}

func TestWriterWriteError(t *testing.T) {
	wr := NewWriter(zap.NewNop())

	t.Run("expected outcome keeps its message", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/settings/x", nil)
		rr := httptest.NewRecorder()

		wr.WriteError(rr, req, NotFound("setting not found"))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"error": "setting not found"}`, rr.Body.String())
	})

	t.Run("internal failure is masked", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/settings", nil)
		rr := httptest.NewRecorder()

		wr.WriteError(rr, req, Internal(errors.New("pg: connection refused")))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.JSONEq(t, `{"error": "internal server error"}`, rr.Body.String())
		assert.NotContains(t, rr.Body.String(), "connection refused")
	})
}
