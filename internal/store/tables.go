package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Table names for the five tenant-partitioned tables.
const (
	TableSettings     = "settings"
	TableBookmarks    = "bookmarks"
	TableGroups       = "groups"
	TableGroupMembers = "group_members"
	TableSessions     = "sessions"
)

// Tables bundles the per-entity stores handed to the engines.
type Tables struct {
	Settings     Store
	Bookmarks    Store
	Groups       Store
	GroupMembers Store
	Sessions     Store
}

// NewMemoryTables builds the in-memory table set. Settings, bookmarks and
// groups stamp updated_at on partial updates; membership and session tables
// own no updated-at field.
func NewMemoryTables(logger *zap.Logger) *Tables {
	return &Tables{
		Settings:     NewMemoryStore(logger, WithTouchField("updated_at")),
		Bookmarks:    NewMemoryStore(logger, WithTouchField("updated_at")),
		Groups:       NewMemoryStore(logger, WithTouchField("updated_at")),
		GroupMembers: NewMemoryStore(logger),
		Sessions:     NewMemoryStore(logger),
	}
}

// Close stops the sweepers of any in-memory tables.
func (t *Tables) Close() {
	for _, s := range []Store{t.Settings, t.Bookmarks, t.Groups, t.GroupMembers, t.Sessions} {
		if ms, ok := s.(*MemoryStore); ok {
			ms.Close()
		}
	}
}

// Ping checks every table's backing storage.
func (t *Tables) Ping(ctx context.Context) error {
	for _, s := range []Store{t.Settings, t.Bookmarks, t.Groups, t.GroupMembers, t.Sessions} {
		if err := s.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// NewPostgresTables builds the Postgres table set over a shared pool and runs
// migrations.
func NewPostgresTables(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) (*Tables, error) {
	t := &Tables{
		Settings:     NewPostgresStore(pool, TableSettings, logger, WithPostgresTouchField("updated_at")),
		Bookmarks:    NewPostgresStore(pool, TableBookmarks, logger, WithPostgresTouchField("updated_at")),
		Groups:       NewPostgresStore(pool, TableGroups, logger, WithPostgresTouchField("updated_at")),
		GroupMembers: NewPostgresStore(pool, TableGroupMembers, logger),
		Sessions:     NewPostgresStore(pool, TableSessions, logger),
	}

	for _, s := range []Store{t.Settings, t.Bookmarks, t.Groups, t.GroupMembers, t.Sessions} {
		if err := s.(*PostgresStore).Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return t, nil
}
