// Package pg wires the pgx/v5 connection pool and goose migrations for
// the delivery engines' narrow data-access stores. It keeps a small API:
// Connect with retry, Migrate, Healthcheck, and error classifiers used
// to distinguish integrity violations from transient store failures.
package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool, retrying so engine processes survive a data
// store that comes up slightly later than they do. Each attempt waits
// one RetryInterval longer than the previous to avoid a thundering herd
// when several dispatch processes restart together.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrParseConfig, err)
	}
	poolCfg.MaxConns = cfg.MaxOpenConns
	poolCfg.MinConns = cfg.MaxIdleConns
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	for i := range attempts {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			// A ping catches auth and permission failures that pool
			// creation alone does not surface.
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrConnectionFailed, ctx.Err())
		case <-time.After(time.Duration(i+1) * cfg.RetryInterval):
		}
	}

	return nil, ErrConnectionFailed
}

// Healthcheck returns a probe suitable for readiness endpoints.
func Healthcheck(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
