package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore implements Store with a mutex-guarded in-process map. It is the
// default backend and the one the test suite runs against.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string]Record
	touchField string
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
	logger     *zap.Logger
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithTouchField declares the attribute Update stamps with the current unix
// time on every call.
func WithTouchField(field string) MemoryOption {
	return func(s *MemoryStore) {
		s.touchField = field
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a new in-memory store and starts its TTL sweeper.
func NewMemoryStore(logger *zap.Logger, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		partitions: make(map[string]map[string]Record),
		now:        time.Now,
		stop:       make(chan struct{}),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.sweep()

	return s
}

// Put unconditionally upserts a record.
func (s *MemoryStore) Put(ctx context.Context, tenant, sortKey string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.partition(tenant)[sortKey] = rec.Clone()
	return nil
}

// PutExpectVersion upserts a record only if the stored record's version
// attribute matches expectedVersion.
func (s *MemoryStore) PutExpectVersion(ctx context.Context, tenant, sortKey string, rec Record, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.partition(tenant)[sortKey]
	if !ok || s.expired(current) || current.Int64("version") != expectedVersion {
		return ErrConditionFailed
	}
	s.partition(tenant)[sortKey] = rec.Clone()
	return nil
}

// Get returns the live record or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, tenant, sortKey string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.partitions[tenant][sortKey]
	if !ok || s.expired(rec) {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Update merges fields into the stored record, creating it when absent.
func (s *MemoryStore) Update(ctx context.Context, tenant, sortKey string, fields Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.partition(tenant)[sortKey]
	if !ok {
		current = Record{}
	}
	merged := current.Clone()
	for k, v := range fields {
		merged[k] = v
	}
	if s.touchField != "" {
		merged[s.touchField] = s.now().Unix()
	}
	s.partition(tenant)[sortKey] = merged
	return nil
}

// Delete removes a record; missing keys are a no-op.
func (s *MemoryStore) Delete(ctx context.Context, tenant, sortKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.partition(tenant), sortKey)
	return nil
}

// QueryPrefix returns all live records with the given sort key prefix.
func (s *MemoryStore) QueryPrefix(ctx context.Context, tenant, prefix string) ([]Record, error) {
	recs, _, err := s.QueryPrefixPage(ctx, tenant, prefix, "", 0)
	return recs, err
}

// QueryPrefixPage returns one page of live records with the given prefix,
// ordered by sort key so the cursor is stable.
func (s *MemoryStore) QueryPrefixPage(ctx context.Context, tenant, prefix, afterKey string, limit int) ([]Record, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	partition := s.partitions[tenant]

	keys := make([]string, 0)
	for key, rec := range partition {
		if strings.HasPrefix(key, prefix) && key > afterKey && !s.expired(rec) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	next := ""
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
		next = keys[len(keys)-1]
	}

	recs := make([]Record, 0, len(keys))
	for _, key := range keys {
		recs = append(recs, partition[key].Clone())
	}
	return recs, next, nil
}

// ScanFilter returns all live records across tenants matching the predicate.
func (s *MemoryStore) ScanFilter(ctx context.Context, pred func(Record) bool) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []Record
	for _, partition := range s.partitions {
		for _, rec := range partition {
			if !s.expired(rec) && pred(rec) {
				recs = append(recs, rec.Clone())
			}
		}
	}
	return recs, nil
}

// Ping always succeeds for the in-memory backend.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close stops the TTL sweeper.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// partition returns the map for a tenant, creating it on first use. Only
// write paths may call it; callers must hold the write lock. Read paths index
// s.partitions directly so a lookup of an unseen tenant never mutates the map.
func (s *MemoryStore) partition(tenant string) map[string]Record {
	p, ok := s.partitions[tenant]
	if !ok {
		p = make(map[string]Record)
		s.partitions[tenant] = p
	}
	return p
}

// expired reports whether a record's TTL attribute is in the past.
func (s *MemoryStore) expired(rec Record) bool {
	expiry := rec.Int64(TTLAttribute)
	return expiry > 0 && expiry <= s.now().Unix()
}

// sweep periodically removes expired records.
func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			removed := 0
			for _, partition := range s.partitions {
				for key, rec := range partition {
					if s.expired(rec) {
						delete(partition, key)
						removed++
					}
				}
			}
			s.mu.Unlock()
			if removed > 0 {
				s.logger.Debug("swept expired records", zap.Int("removed", removed))
			}
		}
	}
}
