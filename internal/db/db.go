package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// Config configures the Postgres connection pool
type Config struct {
	// DSN is the postgres connection string
	DSN string
	// MaxOpenConns bounds the pool size
	MaxOpenConns int
	// MaxIdleConns bounds idle connections kept around
	MaxIdleConns int
	// ConnMaxLifetime recycles connections older than this
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns default pool settings
func DefaultConfig() Config {
	return Config{
		DSN:             "postgres://localhost:5432/credgate?sslmode=disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// LoadConfigFromEnv reads DATABASE_URL over the defaults
func LoadConfigFromEnv() Config {
	config := DefaultConfig()
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		config.DSN = dsn
	}
	return config
}

// Open connects to Postgres and verifies the connection
func Open(config Config) (*sql.DB, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	conn.SetMaxOpenConns(config.MaxOpenConns)
	conn.SetMaxIdleConns(config.MaxIdleConns)
	conn.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return conn, nil
}
