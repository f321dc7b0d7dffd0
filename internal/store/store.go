// Package store provides the tenant-partitioned resource store backing every
// engine. Records live in per-entity tables keyed by (tenant, sort key); the
// sort key space of each table is owned by its engine.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no live record.
var ErrNotFound = errors.New("not found")

// ErrConditionFailed is returned by conditional writes when the stored record
// no longer satisfies the expected condition.
var ErrConditionFailed = errors.New("condition failed")

// TTLAttribute is the record attribute holding the expiry timestamp as unix
// seconds. Records whose expiry is in the past are invisible to all reads and
// queries even if not yet physically removed.
const TTLAttribute = "ttl"

// Store is the contract over one tenant-partitioned table.
type Store interface {
	// Put unconditionally upserts a record.
	Put(ctx context.Context, tenant, sortKey string, rec Record) error

	// PutExpectVersion upserts a record only if the stored record exists and
	// its "version" attribute equals expectedVersion. Returns
	// ErrConditionFailed otherwise. Used for optimistic concurrency on
	// versioned records.
	PutExpectVersion(ctx context.Context, tenant, sortKey string, rec Record, expectedVersion int64) error

	// Get returns the live record or ErrNotFound.
	Get(ctx context.Context, tenant, sortKey string) (Record, error)

	// Update merges the given fields into the stored record, preserving
	// unlisted attributes. A missing record is created from the fields alone.
	// If the table declares a touch field, Update stamps it with the current
	// unix time.
	Update(ctx context.Context, tenant, sortKey string, fields Record) error

	// Delete removes a record. Deleting a non-existent key is not an error.
	Delete(ctx context.Context, tenant, sortKey string) error

	// QueryPrefix returns all live records whose sort key starts with prefix.
	// No ordering is guaranteed to callers.
	QueryPrefix(ctx context.Context, tenant, prefix string) ([]Record, error)

	// QueryPrefixPage returns up to limit live records whose sort key starts
	// with prefix and sorts strictly after afterKey, together with the cursor
	// for the next page. An empty cursor means the result set is exhausted.
	QueryPrefixPage(ctx context.Context, tenant, prefix, afterKey string, limit int) ([]Record, string, error)

	// ScanFilter returns all live records across every tenant matching the
	// predicate. Expensive and unordered; reserved for cross-tenant lookups.
	ScanFilter(ctx context.Context, pred func(Record) bool) ([]Record, error)

	// Ping checks the backing storage.
	Ping(ctx context.Context) error
}
