// Package storage provides the PostgreSQL storage layer for the memory
// service.
//
// It manages connection pooling (pgxpool against a ParadeDB-enabled
// Postgres), the consolidated hybrid-search queries for the three memory
// buckets, insertion writers, and encrypted elderly-profile storage.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// PoolConfig bounds the shared connection pool. The service runs next to
// other tenants of the same database, so the pool stays small and recycles
// connections instead of pinning them.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DefaultPoolConfig keeps roughly five steady connections with headroom
// to burst to ten, recycled every ten minutes.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        10,
		MinConns:        5,
		MaxConnLifetime: 10 * time.Minute,
	}
}

// DB wraps a pgxpool.Pool plus the optional profile-field cipher.
type DB struct {
	pool   *pgxpool.Pool
	cipher *Cipher // nil means profiles are stored in plaintext
	logger *slog.Logger
}

// New creates a DB with a bounded connection pool. Connections verify
// liveness on acquire and register pgvector types on connect.
func New(ctx context.Context, dsn string, pc PoolConfig, cipher *Cipher, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}

	poolCfg.MaxConns = pc.MaxConns
	poolCfg.MinConns = pc.MinConns
	poolCfg.MaxConnLifetime = pc.MaxConnLifetime

	// Register pgvector types on each new connection. Best-effort: the
	// extension may not exist before migrations run; later connections
	// pick the types up once it does.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
			logger.Debug("storage: pgvector types not registered (extension may not exist yet)", "error", err)
		}
		return nil
	}

	// Pre-ping: stale connections from the shared database get dropped
	// instead of surfacing as query errors.
	poolCfg.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		return conn.Ping(ctx) == nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &DB{pool: pool, cipher: cipher, logger: logger}, nil
}

// Pool returns the underlying connection pool for use by other packages.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}
