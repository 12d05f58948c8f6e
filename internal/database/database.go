// Package database holds the Postgres connection, schema migrations and the
// repositories behind users, followed stocks, verification codes, analysis
// history and inference logs.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/quantinsight/quantinsight/internal/config"
)

const healthCheckTimeout = 5 * time.Second

// Config sizes the connection pool. The API server is mostly idle between
// bursts of quote and history requests, so the pool stays small.
type Config struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnectTimeout     time.Duration
}

// DefaultConfig returns the pool settings used by the API server.
func DefaultConfig() Config {
	return Config{
		MaxConnections:     25,
		MaxIdleConnections: 5,
		ConnMaxLifetime:    5 * time.Minute,
		ConnectTimeout:     10 * time.Second,
	}
}

// ConfigFrom applies DATABASE_URL and DB_MAX_CONNECTIONS over DefaultConfig.
func ConfigFrom(c config.DatabaseConfig) Config {
	cfg := DefaultConfig()
	cfg.URL = c.URL
	if c.MaxConnections > 0 {
		cfg.MaxConnections = c.MaxConnections
		cfg.MaxIdleConnections = min(cfg.MaxIdleConnections, c.MaxConnections)
	}
	return cfg
}

// Connect opens the pool and waits for Postgres to answer a ping. Errors name
// the target with its password redacted.
func Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}
	target := config.RedactDSN(cfg.URL)

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", target, err)
	}
	applyPool(db, cfg)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database %s: %w", target, err)
	}
	return db, nil
}

func applyPool(db *sql.DB, cfg Config) {
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
}

// HealthCheck backs /healthz: a round trip through the pool that must finish
// within five seconds.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	if one != 1 {
		return fmt.Errorf("database health check: unexpected result %d", one)
	}
	return nil
}

// Stats reports pool usage for /api/info.
func Stats(db *sql.DB) map[string]interface{} {
	s := db.Stats()
	return map[string]interface{}{
		"max_open_connections": s.MaxOpenConnections,
		"open_connections":     s.OpenConnections,
		"in_use":               s.InUse,
		"idle":                 s.Idle,
		"wait_count":           s.WaitCount,
		"wait_duration_ms":     s.WaitDuration.Milliseconds(),
	}
}
