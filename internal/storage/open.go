package storage

import (
	"fmt"

	"print-gateway/internal/config"
	"print-gateway/internal/logger"
)

// Open picks the gateway for cfg.Driver.
func Open(cfg config.DatabaseConfig, log *logger.Logger) (Store, error) {
	switch cfg.Driver {
	case "mysql":
		return NewMySQLStore(cfg, log)
	case "postgres":
		return NewPostgresStore(cfg, log)
	case "sqlite":
		return NewSQLiteStore(cfg.Path, log)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Schema returns the DDL Open would apply for driver.
func Schema(driver string) ([]string, error) {
	switch driver {
	case "mysql":
		return MySQLSchema(), nil
	case "postgres":
		return PostgresSchema(), nil
	case "sqlite":
		return SQLiteSchema(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}
