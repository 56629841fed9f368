// Package postgres persists simulation snapshots in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/coredefense/internal/config"
)

// ApplicationName tags every session the pool opens.
const ApplicationName = "coredefense"

// connectTimeout bounds the reachability check in NewPool.
const connectTimeout = 5 * time.Second

// ErrSchemaMissing is returned by Ready when the snapshots table does not exist.
var ErrSchemaMissing = errors.New("postgres: snapshots table missing, run the migrations")

// Pool is the connection pool snapshot stores write through.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects to the database described by cfg.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a Pool whose database answered a ping, or a non-nil
// error with no connections left open.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	p := &Pool{pool: pool}
	if err := p.Health(ctx, connectTimeout); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return p, nil
}

// Health pings the database within timeout.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

// Ready reports whether the snapshots table has been migrated.
//
// Postcondition: Returns ErrSchemaMissing when the table does not exist.
func (p *Pool) Ready(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var present bool
	if err := p.pool.QueryRow(ctx, `SELECT to_regclass('snapshots') IS NOT NULL`).Scan(&present); err != nil {
		return fmt.Errorf("checking snapshot schema: %w", err)
	}
	if !present {
		return ErrSchemaMissing
	}
	return nil
}

// Store returns a SnapshotStore for slot backed by this pool.
func (p *Pool) Store(slot string) *SnapshotStore {
	return NewSnapshotStore(p.pool, slot)
}

// Close releases every connection. The pool is unusable afterwards.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
