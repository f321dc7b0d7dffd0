package idempotency

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HeaderName is the caller-supplied deduplication key header.
const HeaderName = "Idempotency-Key"

// Middleware replays cached responses for POST requests that repeat an
// Idempotency-Key. Only successful (2xx) responses are cached; a failed
// attempt may be retried with the same key.
type Middleware struct {
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewMiddleware creates an idempotency middleware.
func NewMiddleware(cache Cache, ttl time.Duration, logger *zap.Logger) *Middleware {
	return &Middleware{
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Handle wraps a handler with idempotency replay.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderName)
		if r.Method != http.MethodPost || key == "" {
			next.ServeHTTP(w, r)
			return
		}

		cacheKey := m.cacheKey(r, key)

		if cached, err := m.cache.Get(r.Context(), cacheKey); err == nil {
			m.logger.Debug("replaying idempotent response",
				zap.String("path", r.URL.Path),
				zap.String("idempotency_key", key))

			w.Header().Set("Content-Type", cached.ContentType)
			w.Header().Set("Idempotency-Replayed", "true")
			w.WriteHeader(cached.StatusCode)
			w.Write(cached.Body)
			return
		}

		rec := &recordingWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.statusCode >= 200 && rec.statusCode < 300 {
			resp := &CachedResponse{
				StatusCode:  rec.statusCode,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}
			if err := m.cache.Set(r.Context(), cacheKey, resp, m.ttl); err != nil {
				m.logger.Warn("failed to cache idempotent response",
					zap.String("path", r.URL.Path),
					zap.Error(err))
			}
		}
	})
}

// cacheKey scopes the caller's key by tenant token and route so the same key
// on different endpoints cannot collide.
func (m *Middleware) cacheKey(r *http.Request, key string) string {
	return fmt.Sprintf("idempotency:%s:%s:%s", r.Header.Get("Authorization"), r.URL.Path, key)
}

// recordingWriter tees the response body so it can be cached.
type recordingWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}
