// internal/common/database/postgres.go
// PostgreSQL connection and configuration

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// NewPostgresDBFromURL creates a connection from a URL
func NewPostgresDBFromURL(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool with defaults
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// IsPostgres reports whether db talks to PostgreSQL.
func IsPostgres(db interface{ DriverName() string }) bool {
	return db.DriverName() == "postgres"
}

// ForUpdate returns a row-locking suffix on drivers that support it.
func ForUpdate(db interface{ DriverName() string }) string {
	if IsPostgres(db) {
		return " FOR UPDATE"
	}
	return ""
}
