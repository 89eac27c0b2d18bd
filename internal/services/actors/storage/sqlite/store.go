// Package sqlite implements the actor Store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/actorspace/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/actorspace/internal/services/actors/storage"
	"github.com/louisbranch/actorspace/internal/services/actors/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed actor state persistence.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens an actor SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get returns the value stored under name for addr.
func (s *Store) Get(ctx context.Context, addr storage.Address, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if err := storage.ValidateRecord(addr, name); err != nil {
		return nil, err
	}

	var value []byte
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT value
FROM actor_state
WHERE actor_kind = ? AND actor_key = ? AND name = ?
`, addr.Kind, addr.Key, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get actor state %s/%s: %w", addr, name, err)
	}
	return value, nil
}

// Put upserts the value stored under name for addr.
func (s *Store) Put(ctx context.Context, addr storage.Address, name string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := storage.ValidateRecord(addr, name); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO actor_state (
	actor_kind,
	actor_key,
	name,
	value,
	updated_at
) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (actor_kind, actor_key, name) DO UPDATE SET
	value = excluded.value,
	updated_at = excluded.updated_at
`,
		addr.Kind,
		addr.Key,
		name,
		value,
		s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put actor state %s/%s: %w", addr, name, err)
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
