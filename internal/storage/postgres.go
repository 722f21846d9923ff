package storage

import (
	"context"
	"database/sql"
	"fmt"

	"print-gateway/internal/config"
	"print-gateway/internal/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun/dialect/pgdialect"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS print_jobs (
		id VARCHAR(36) PRIMARY KEY,
		user_id TEXT NOT NULL,
		file_url TEXT NOT NULL,
		file_name TEXT NULL,
		total_pages INTEGER NOT NULL DEFAULT 1,
		color BOOLEAN NOT NULL DEFAULT FALSE,
		duplex BOOLEAN NOT NULL DEFAULT FALSE,
		copies INTEGER NOT NULL DEFAULT 1,
		printer_id TEXT NULL,
		status VARCHAR(20) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_print_jobs_user ON print_jobs (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_print_jobs_status ON print_jobs (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS qr_sessions (
		qr_id VARCHAR(64) PRIMARY KEY,
		job_id VARCHAR(36) NOT NULL REFERENCES print_jobs (id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		redeemed_at TIMESTAMPTZ NULL,
		redeem_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_qr_sessions_job ON qr_sessions (job_id)`,
	`CREATE INDEX IF NOT EXISTS idx_qr_sessions_expires ON qr_sessions (expires_at)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id VARCHAR(64) PRIMARY KEY,
		job_id VARCHAR(36) NOT NULL REFERENCES print_jobs (id) ON DELETE CASCADE,
		user_id TEXT NULL,
		method VARCHAR(64) NOT NULL,
		amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		status VARCHAR(64) NOT NULL,
		transaction_id TEXT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_job ON payments (job_id)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_transaction ON payments (transaction_id)`,
}

func PostgresSchema() []string { return postgresSchema }

// PostgresStore runs the gateway on Postgres through pgx's database/sql driver.
type PostgresStore struct {
	*sqlStore
}

func PostgresDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)
}

func NewPostgresStore(cfg config.DatabaseConfig, log *logger.Logger) (*PostgresStore, error) {
	log.LogDatabase("CONNECT", "postgres", fmt.Sprintf("Connecting to Postgres at %s:%s", cfg.Host, cfg.Port))

	db, err := sql.Open("pgx", PostgresDSN(cfg))
	if err != nil {
		log.Error("DATABASE", "Failed to open Postgres connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping Postgres: "+err.Error())
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{sqlStore: newSQLStore(db, dialect{
		name:     "postgres",
		schema:   postgresSchema,
		bun:      pgdialect.New(),
		lockRows: true,
	}, log)}

	if err := store.initTables(context.Background()); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "postgres", "Postgres connection established and tables initialized")
	return store, nil
}
