package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"todo-service/internal/config"
	"todo-service/pkg/logger"
)

// Open opens and pings a connection pool for the configured driver.
func Open(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	var driverName string
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		driverName = "postgres"
	case config.DriverSQLite:
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	db, err := sql.Open(driverName, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.DatabaseDriver == config.DriverSQLite {
		// sqlite serializes writers; one connection also keeps :memory: databases shared.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.DBPoolSize)
		db.SetMaxIdleConns(max(cfg.DBPoolSize/2, 1))
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info(ctx, "Database pool initialized", "driver", cfg.DatabaseDriver, "max_open", db.Stats().MaxOpenConnections)
	return db, nil
}

var schemas = map[string]string{
	config.DriverPostgres: `CREATE TABLE IF NOT EXISTS todos (
		id BIGSERIAL PRIMARY KEY,
		description TEXT NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'open'
			CHECK (status IN ('open', 'in progress', 'finished'))
	)`,
	config.DriverSQLite: `CREATE TABLE IF NOT EXISTS todos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		description TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open'
			CHECK (status IN ('open', 'in progress', 'finished'))
	)`,
}

// EnsureSchema creates the todos table when it does not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB, driver string) error {
	ddl, ok := schemas[driver]
	if !ok {
		return fmt.Errorf("no schema for driver %q", driver)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create todos table: %w", err)
	}
	return nil
}

var dollarParam = regexp.MustCompile(`\$\d+`)

// Rebind rewrites $N placeholders into the form the driver expects.
// Queries must use each placeholder once, in ascending order.
func Rebind(driver, query string) string {
	if driver == config.DriverSQLite {
		return dollarParam.ReplaceAllString(query, "?")
	}
	return query
}

// ErrorCode returns the SQLSTATE name of a Postgres error, or "" for other errors.
func ErrorCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name()
	}
	return ""
}
