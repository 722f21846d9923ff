package storage

import (
	"context"
	"database/sql"
	"fmt"

	"print-gateway/internal/config"
	"print-gateway/internal/logger"

	_ "github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun/dialect/mysqldialect"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS print_jobs (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(191) NOT NULL,
		file_url TEXT NOT NULL,
		file_name VARCHAR(512) NULL,
		total_pages INT NOT NULL DEFAULT 1,
		color BOOLEAN NOT NULL DEFAULT FALSE,
		duplex BOOLEAN NOT NULL DEFAULT FALSE,
		copies INT NOT NULL DEFAULT 1,
		printer_id VARCHAR(191) NULL,
		status VARCHAR(20) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_print_jobs_user (user_id),
		INDEX idx_print_jobs_status (status, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS qr_sessions (
		qr_id VARCHAR(64) PRIMARY KEY,
		job_id VARCHAR(36) NOT NULL,
		user_id VARCHAR(191) NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		redeemed_at DATETIME(6) NULL,
		redeem_count INT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_qr_sessions_job (job_id),
		INDEX idx_qr_sessions_expires (expires_at),
		CONSTRAINT fk_qr_sessions_job FOREIGN KEY (job_id) REFERENCES print_jobs (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS payments (
		id VARCHAR(64) PRIMARY KEY,
		job_id VARCHAR(36) NOT NULL,
		user_id VARCHAR(191) NULL,
		method VARCHAR(64) NOT NULL,
		amount DECIMAL(10,2) NOT NULL DEFAULT 0,
		status VARCHAR(64) NOT NULL,
		transaction_id VARCHAR(191) NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_payments_job (job_id),
		INDEX idx_payments_transaction (transaction_id),
		CONSTRAINT fk_payments_job FOREIGN KEY (job_id) REFERENCES print_jobs (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

// MySQLSchema exposes the DDL for the migrate command.
func MySQLSchema() []string { return mysqlSchema }

type MySQLStore struct {
	*sqlStore
}

func MySQLDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

func NewMySQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*MySQLStore, error) {
	log.LogDatabase("CONNECT", "mysql", fmt.Sprintf("Connecting to MySQL at %s:%s", cfg.Host, cfg.Port))

	db, err := sql.Open("mysql", MySQLDSN(cfg))
	if err != nil {
		log.Error("DATABASE", "Failed to open MySQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping MySQL: "+err.Error())
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &MySQLStore{sqlStore: newSQLStore(db, dialect{
		name:     "mysql",
		schema:   mysqlSchema,
		bun:      mysqldialect.New(),
		lockRows: true,
	}, log)}

	if err := store.initTables(context.Background()); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "mysql", "MySQL connection established and tables initialized")
	return store, nil
}
