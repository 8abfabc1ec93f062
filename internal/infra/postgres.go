package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool sizing reflects the traffic shape of an applicant-facing intake API:
// mostly short draft upserts and status reads, with the occasional submit
// transaction. Connections are recycled hourly so credential rotations and
// failovers propagate without a restart.
const (
	poolMaxConns        = 16
	poolMinConns        = 2
	poolConnLifetime    = time.Hour
	poolConnIdleTime    = 10 * time.Minute
	poolHealthCheckTick = time.Minute
)

// NewPostgresPool opens a pgx pool against the configured database and
// verifies the connection before returning it.
func NewPostgresPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	poolCfg.MaxConns = poolMaxConns
	poolCfg.MinConns = poolMinConns
	poolCfg.MaxConnLifetime = poolConnLifetime
	poolCfg.MaxConnIdleTime = poolConnIdleTime
	poolCfg.HealthCheckPeriod = poolHealthCheckTick
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "booster-apply"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// HealthCheck pings the database with a short deadline. The /health endpoint
// calls it on every probe.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return pool.Ping(ctx)
}
