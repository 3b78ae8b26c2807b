package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// NewPool connects to Postgres and verifies the connection with a ping.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns >= 0 && minConns <= cfg.MaxConns {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// OpenSessionDB connects and applies any pending portal migrations so the
// session table exists before the first request.
func OpenSessionDB(ctx context.Context, databaseURL string, maxConns, minConns int32, logger zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := NewPool(ctx, databaseURL, maxConns, minConns)
	if err != nil {
		return nil, err
	}

	n, err := NewMigrator(pool).Up(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate session schema: %w", err)
	}
	if n > 0 {
		logger.Info().Int("applied", n).Msg("session schema migrated")
	}
	return pool, nil
}
