package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-service/internal/config"
)

func TestOpen_SQLiteAndEnsureSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, &config.Config{DatabaseDriver: config.DriverSQLite, DatabaseURL: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, EnsureSchema(ctx, db, config.DriverSQLite))
	require.NoError(t, EnsureSchema(ctx, db, config.DriverSQLite))

	_, err = db.ExecContext(ctx, `INSERT INTO todos (description) VALUES ('x')`)
	require.NoError(t, err)
	var status string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT status FROM todos`).Scan(&status))
	assert.Equal(t, "open", status)

	_, err = db.ExecContext(ctx, `INSERT INTO todos (description, status) VALUES ('y', 'bogus')`)
	assert.Error(t, err, "check constraint must reject unknown statuses")
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, &config.Config{DatabaseDriver: config.DriverPostgres})
	assert.ErrorContains(t, err, "DATABASE_URL")

	_, err = Open(ctx, &config.Config{DatabaseDriver: "oracle", DatabaseURL: "x"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestEnsureSchema_UnknownDriver(t *testing.T) {
	assert.Error(t, EnsureSchema(context.Background(), nil, "oracle"))
}

func TestRebind(t *testing.T) {
	q := `UPDATE todos SET description = $1 WHERE id = $2`
	assert.Equal(t, q, Rebind(config.DriverPostgres, q))
	assert.Equal(t, `UPDATE todos SET description = ? WHERE id = ?`, Rebind(config.DriverSQLite, q))
}

func TestErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})
	assert.Equal(t, "unique_violation", ErrorCode(wrapped))
	assert.Empty(t, ErrorCode(errors.New("boom")))
}
