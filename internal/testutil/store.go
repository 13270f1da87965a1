// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"testing"

	"todo-service/internal/config"
	"todo-service/internal/database"
	"todo-service/internal/repository"
)

// NewSQLiteDB opens an in-memory sqlite database with the todos table created.
func NewSQLiteDB(t testing.TB) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, &config.Config{
		DatabaseDriver: config.DriverSQLite,
		DatabaseURL:    ":memory:",
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.EnsureSchema(ctx, db, config.DriverSQLite); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return db
}

// NewRepository returns a repository backed by a fresh in-memory database.
func NewRepository(t testing.TB) *repository.Todos {
	t.Helper()
	return repository.New(NewSQLiteDB(t), config.DriverSQLite)
}
