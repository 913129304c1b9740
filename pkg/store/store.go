// Package store implements the Store component (§4.1): a single-file
// embedded relational database per workspace-group, with full-text
// indexing over claims, an append-only audit log, and idempotent
// migrations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store wraps a sqlite-backed connection and exposes the graph,
// cycle-record, context-document, and audit operations of §4.1.
type Store struct {
	db  *sqlx.DB
	log *slog.Logger
}

// Open creates or opens the single-file database at path, applying
// migrations and enabling foreign keys, the way the teacher's
// pkg/database/client.go opens its Postgres connection and runs
// migrations on startup.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single-file, single-writer database; modernc.org/sqlite serializes
	// writers internally, but capping the pool avoids SQLITE_BUSY churn
	// under concurrent worker/cycle activity (§5 suspension points note
	// "a single persistent connection is used for in-memory stores, a new
	// connection per operation for on-disk stores" — here approximated by
	// a small shared pool rather than a connection-per-operation scheme,
	// since modernc.org/sqlite's driver-level locking makes that
	// unnecessary).
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if err := runMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:  sqlx.NewDb(sqlDB, "sqlite"),
		log: slog.With("component", "store"),
	}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureWorkspace inserts a workspace row if it doesn't already exist,
// so Create/Update's foreign key on workspace_id is always satisfiable.
func (s *Store) EnsureWorkspace(ctx context.Context, workspaceID, name string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, owner, tier, created_at, updated_at, settings_json)
		VALUES (?, ?, '', 'default', ?, ?, '{}')
		ON CONFLICT(id) DO NOTHING`,
		workspaceID, name, now, now)
	if err != nil {
		return fmt.Errorf("ensure workspace %q: %w", workspaceID, err)
	}
	return nil
}
