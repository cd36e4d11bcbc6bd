// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
//
// Amounts are NUMERIC(78, 0): wide enough for any 256-bit integer, no
// floating point anywhere near accounting data. The outflow ledger is keyed
// by (slot_size_seconds, slot_index); rows written under an old slot size
// are orphaned by design when the limiter is reconfigured.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS vault_events (
			event_id UUID PRIMARY KEY,
			kind VARCHAR(50) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			slot INTEGER NOT NULL DEFAULT 0,
			adapter_id VARCHAR(255),
			amount NUMERIC(78, 0) NOT NULL DEFAULT 0,
			before_delta NUMERIC(78, 0) NOT NULL DEFAULT 0,
			after_delta NUMERIC(78, 0) NOT NULL DEFAULT 0,
			note TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_vault_events_created_at ON vault_events(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_vault_events_kind ON vault_events(kind);

		CREATE TABLE IF NOT EXISTS outflow_limit_config (
			id INTEGER PRIMARY KEY DEFAULT 1,
			slot_size_seconds BIGINT NOT NULL,
			limit_amount NUMERIC(78, 0) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		CREATE TABLE IF NOT EXISTS outflow_deltas (
			slot_size_seconds BIGINT NOT NULL,
			slot_index BIGINT NOT NULL,
			delta NUMERIC(78, 0) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (slot_size_seconds, slot_index)
		);

		CREATE TABLE IF NOT EXISTS vault_snapshots (
			snapshot_id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			total_assets NUMERIC(78, 0) NOT NULL,
			idle_assets NUMERIC(78, 0) NOT NULL,
			strategies JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_vault_snapshots_created_at ON vault_snapshots(created_at DESC);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
