package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/omnia-aid/platform/internal/shared/config"
)

// DB is the shared connection pool of the family, medication, resource,
// visit and audit repositories.
type DB struct {
	Pool *pgxpool.Pool
}

// New opens the pool and pings the server once.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	applyPoolLimits(poolConfig, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database %s on %s: %w", cfg.Database, cfg.Host, err)
	}

	return &DB{Pool: pool}, nil
}

func applyPoolLimits(pc *pgxpool.Config, cfg config.DatabaseConfig) {
	if cfg.MaxConns > 0 {
		pc.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		pc.MinConns = min(int32(cfg.MinConns), pc.MaxConns)
	}
	pc.MaxConnLifetime = time.Hour
	pc.MaxConnIdleTime = 30 * time.Minute
	pc.HealthCheckPeriod = time.Minute
}

// Close closes the pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Health pings the server.
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// OpenConns is the number of connections currently held by the pool.
func (db *DB) OpenConns() int {
	return int(db.Pool.Stat().TotalConns())
}
