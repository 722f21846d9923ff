package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"print-gateway/internal/logger"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS print_jobs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		file_url TEXT NOT NULL,
		file_name TEXT NULL,
		total_pages INTEGER NOT NULL DEFAULT 1,
		color BOOLEAN NOT NULL DEFAULT 0,
		duplex BOOLEAN NOT NULL DEFAULT 0,
		copies INTEGER NOT NULL DEFAULT 1,
		printer_id TEXT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_print_jobs_user ON print_jobs (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_print_jobs_status ON print_jobs (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS qr_sessions (
		qr_id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES print_jobs (id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		redeemed_at DATETIME NULL,
		redeem_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_qr_sessions_job ON qr_sessions (job_id)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES print_jobs (id) ON DELETE CASCADE,
		user_id TEXT NULL,
		method TEXT NOT NULL,
		amount REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		transaction_id TEXT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_job ON payments (job_id)`,
}

func SQLiteSchema() []string { return sqliteSchema }

// SQLiteStore is the embedded single-file gateway for local runs.
type SQLiteStore struct {
	*sqlStore
}

func NewSQLiteStore(path string, log *logger.Logger) (*SQLiteStore, error) {
	log.LogDatabase("CONNECT", "sqlite", fmt.Sprintf("Opening SQLite database at %s", path))

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{sqlStore: newSQLStore(db, dialect{
		name:   "sqlite",
		schema: sqliteSchema,
		bun:    sqlitedialect.New(),
	}, log)}

	if err := store.initTables(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return store, nil
}
