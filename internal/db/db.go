// Package db provides PostgreSQL connection handling for the audit store.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Pool sizing for the audit workload: writes dominate, detector reads
// are short and bounded.
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is empty")
	}

	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(maxOpenConns)
	conn.SetMaxIdleConns(maxIdleConns)
	conn.SetConnMaxLifetime(connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return conn, nil
}

// Checker adapts *sql.DB to the readiness probe interface.
type Checker struct {
	conn *sql.DB
}

// NewChecker creates a health checker over an open connection.
func NewChecker(conn *sql.DB) *Checker {
	return &Checker{conn: conn}
}

// HealthCheck pings the database.
func (c *Checker) HealthCheck(ctx context.Context) error {
	return c.conn.PingContext(ctx)
}
