package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Backend stores snapshot documents in the kv_store table.
type Backend struct {
	pool *ConnectionPool
	now  func() time.Time
}

// Open connects to the database, applies migrations and returns a backend.
func Open(ctx context.Context, config Config, logger *slog.Logger) (*Backend, error) {
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return &Backend{pool: pool, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (b *Backend) Close() error {
	if b == nil || b.pool == nil {
		return nil
	}
	return b.pool.Close()
}

func (b *Backend) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := b.pool.DB().QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: read %s: %w", key, err)
	}
	return value, true, nil
}

func (b *Backend) Write(ctx context.Context, key string, data []byte) error {
	return b.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, data, b.now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("sqlite: write %s: %w", key, err)
		}
		return nil
	})
}
