package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore implements Store over one relational table with a composite
// primary key (tenant_id, sort_key) and a jsonb attribute body. The TTL
// attribute is mirrored into an expires_at column so expiry is enforced in
// every query, not just by the sweeper.
type PostgresStore struct {
	pool       *pgxpool.Pool
	table      string
	touchField string
	logger     *zap.Logger
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresTouchField declares the attribute Update stamps with the current
// unix time on every call.
func WithPostgresTouchField(field string) PostgresOption {
	return func(s *PostgresStore) {
		s.touchField = field
	}
}

// NewPostgresPool opens a pgx connection pool and verifies connectivity.
func NewPostgresPool(ctx context.Context, connString string, maxConns int32, maxConnLifetime time.Duration) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	if maxConnLifetime > 0 {
		config.MaxConnLifetime = maxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// NewPostgresStore creates a store over the named table. The table name must
// come from the fixed table set; it is interpolated into SQL.
func NewPostgresStore(pool *pgxpool.Pool, table string, logger *zap.Logger, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		pool:   pool,
		table:  table,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the backing table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			tenant_id  text NOT NULL,
			sort_key   text NOT NULL,
			attrs      jsonb NOT NULL,
			expires_at timestamptz,
			PRIMARY KEY (tenant_id, sort_key)
		)
	`, s.table)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to migrate table %s: %w", s.table, err)
	}
	return nil
}

// Put unconditionally upserts a record.
func (s *PostgresStore) Put(ctx context.Context, tenant, sortKey string, rec Record) error {
	attrs, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (tenant_id, sort_key, attrs, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, sort_key)
		DO UPDATE SET attrs = EXCLUDED.attrs, expires_at = EXCLUDED.expires_at
	`, s.table)

	_, err = s.pool.Exec(ctx, query, tenant, sortKey, attrs, expiresAt(rec))
	return err
}

// PutExpectVersion overwrites a record only if the stored version attribute
// matches expectedVersion.
func (s *PostgresStore) PutExpectVersion(ctx context.Context, tenant, sortKey string, rec Record, expectedVersion int64) error {
	attrs, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET attrs = $3, expires_at = $4
		WHERE tenant_id = $1 AND sort_key = $2
		  AND (attrs->>'version')::bigint = $5
		  AND (expires_at IS NULL OR expires_at > now())
	`, s.table)

	result, err := s.pool.Exec(ctx, query, tenant, sortKey, attrs, expiresAt(rec), expectedVersion)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrConditionFailed
	}
	return nil
}

// Get returns the live record or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, tenant, sortKey string) (Record, error) {
	query := fmt.Sprintf(`
		SELECT attrs FROM %s
		WHERE tenant_id = $1 AND sort_key = $2
		  AND (expires_at IS NULL OR expires_at > now())
	`, s.table)

	var attrs []byte
	err := s.pool.QueryRow(ctx, query, tenant, sortKey).Scan(&attrs)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return decodeAttrs(attrs)
}

// Update merges fields into the stored record, creating it when absent.
func (s *PostgresStore) Update(ctx context.Context, tenant, sortKey string, fields Record) error {
	merged := fields.Clone()
	if s.touchField != "" {
		merged[s.touchField] = time.Now().Unix()
	}

	attrs, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (tenant_id, sort_key, attrs, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, sort_key)
		DO UPDATE SET attrs = %s.attrs || EXCLUDED.attrs,
		              expires_at = COALESCE(EXCLUDED.expires_at, %s.expires_at)
	`, s.table, s.table, s.table)

	_, err = s.pool.Exec(ctx, query, tenant, sortKey, attrs, expiresAt(merged))
	return err
}

// Delete removes a record; missing keys are a no-op.
func (s *PostgresStore) Delete(ctx context.Context, tenant, sortKey string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1 AND sort_key = $2`, s.table)
	_, err := s.pool.Exec(ctx, query, tenant, sortKey)
	return err
}

// QueryPrefix returns all live records with the given sort key prefix.
func (s *PostgresStore) QueryPrefix(ctx context.Context, tenant, prefix string) ([]Record, error) {
	recs, _, err := s.QueryPrefixPage(ctx, tenant, prefix, "", 0)
	return recs, err
}

// QueryPrefixPage returns one page of live records with the given prefix,
// ordered by sort key.
func (s *PostgresStore) QueryPrefixPage(ctx context.Context, tenant, prefix, afterKey string, limit int) ([]Record, string, error) {
	query := fmt.Sprintf(`
		SELECT sort_key, attrs FROM %s
		WHERE tenant_id = $1 AND sort_key LIKE $2 AND sort_key > $3
		  AND (expires_at IS NULL OR expires_at > now())
		ORDER BY sort_key
	`, s.table)

	args := []any{tenant, escapeLike(prefix) + "%", afterKey}
	if limit > 0 {
		// Fetch one extra row to detect whether a further page exists.
		query += " LIMIT $4"
		args = append(args, limit+1)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to query prefix: %w", err)
	}
	defer rows.Close()

	var recs []Record
	var keys []string
	for rows.Next() {
		var key string
		var attrs []byte
		if err := rows.Scan(&key, &attrs); err != nil {
			return nil, "", fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := decodeAttrs(attrs)
		if err != nil {
			return nil, "", err
		}
		recs = append(recs, rec)
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := ""
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
		next = keys[limit-1]
	}
	return recs, next, nil
}

// ScanFilter streams every live record across tenants through the predicate.
func (s *PostgresStore) ScanFilter(ctx context.Context, pred func(Record) bool) ([]Record, error) {
	query := fmt.Sprintf(`
		SELECT attrs FROM %s
		WHERE expires_at IS NULL OR expires_at > now()
	`, s.table)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to scan table: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var attrs []byte
		if err := rows.Scan(&attrs); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := decodeAttrs(attrs)
		if err != nil {
			return nil, err
		}
		if pred(rec) {
			recs = append(recs, rec)
		}
	}
	return recs, rows.Err()
}

// Ping checks the connection pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// expiresAt derives the expires_at column value from the TTL attribute.
func expiresAt(rec Record) *time.Time {
	expiry := rec.Int64(TTLAttribute)
	if expiry == 0 {
		return nil
	}
	t := time.Unix(expiry, 0).UTC()
	return &t
}

func decodeAttrs(attrs []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(attrs, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}

// escapeLike escapes LIKE metacharacters so a prefix matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
