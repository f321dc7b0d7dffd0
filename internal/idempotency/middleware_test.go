package idempotency

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMiddleware(t *testing.T) (*Middleware, *atomic.Int64) {
	t.Helper()
	cache := NewMemoryCache()
	t.Cleanup(func() { cache.Close() })

	calls := &atomic.Int64{}
	return NewMiddleware(cache, time.Minute, zap.NewNop()), calls
}

func countingHandler(calls *atomic.Int64, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"call": %d}`, n)
	})
}

func TestIdempotencyReplaysCachedResponse(t *testing.T) {
	mw, calls := newTestMiddleware(t)
	handler := mw.Handle(countingHandler(calls, http.StatusCreated))

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/settings", nil)
	req.Header.Set(HeaderName, "key-1")
	handler.ServeHTTP(first, req)

	second := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/settings", nil)
	req.Header.Set(HeaderName, "key-1")
	handler.ServeHTTP(second, req)

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotency-Replayed"))
	assert.Empty(t, first.Header().Get("Idempotency-Replayed"))
}

func TestIdempotencySkipsWithoutKey(t *testing.T) {
	mw, calls := newTestMiddleware(t)
	handler := mw.Handle(countingHandler(calls, http.StatusCreated))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/settings", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, int64(2), calls.Load())
}

func TestIdempotencySkipsNonPost(t *testing.T) {
	mw, calls := newTestMiddleware(t)
	handler := mw.Handle(countingHandler(calls, http.StatusOK))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/settings", nil)
		req.Header.Set(HeaderName, "key-1")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, int64(2), calls.Load())
}

func TestIdempotencyDoesNotCacheFailures(t *testing.T) {
	mw, calls := newTestMiddleware(t)
	handler := mw.Handle(countingHandler(calls, http.StatusBadRequest))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/settings", nil)
		req.Header.Set(HeaderName, "key-1")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	// Failed attempts may be retried with the same key.
	assert.Equal(t, int64(2), calls.Load())
}

func TestIdempotencyKeyScopedByCallerAndPath(t *testing.T) {
	mw, calls := newTestMiddleware(t)
	handler := mw.Handle(countingHandler(calls, http.StatusCreated))

	req := httptest.NewRequest(http.MethodPost, "/settings", nil)
	req.Header.Set(HeaderName, "key-1")
	req.Header.Set("Authorization", "Bearer token-a")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	// Same key, different path.
	req = httptest.NewRequest(http.MethodPost, "/bookmarks", nil)
	req.Header.Set(HeaderName, "key-1")
	req.Header.Set("Authorization", "Bearer token-a")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	// Same key and path, different caller.
	req = httptest.NewRequest(http.MethodPost, "/settings", nil)
	req.Header.Set(HeaderName, "key-1")
	req.Header.Set("Authorization", "Bearer token-b")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, int64(3), calls.Load())
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache()
	t.Cleanup(func() { cache.Close() })
	ctx := context.Background()

	resp := &CachedResponse{StatusCode: http.StatusCreated, Body: []byte("{}")}
	require.NoError(t, cache.Set(ctx, "k", resp, 10*time.Millisecond))

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, got.StatusCode)

	time.Sleep(20 * time.Millisecond)

	_, err = cache.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
