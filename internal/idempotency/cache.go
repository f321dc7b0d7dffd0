// Package idempotency caches POST responses keyed by the caller-supplied
// Idempotency-Key header, so duplicate submissions replay the first outcome
// instead of minting duplicate resources.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no response is cached under a key.
var ErrNotFound = errors.New("not found")

// CachedResponse is the replayable portion of an HTTP response.
type CachedResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Cache stores cached responses with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) (*CachedResponse, error)
	Set(ctx context.Context, key string, resp *CachedResponse, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
