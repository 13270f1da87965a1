package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"todo-service/internal/database"
	"todo-service/internal/models"
)

var (
	// ErrNotFound is returned when no row matches the requested id.
	ErrNotFound = errors.New("todo not found")
	// ErrStoreUnavailable matches every *StoreError via errors.Is.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// StoreError wraps a connection or statement failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// Todos persists todos in a single relational table.
type Todos struct {
	db *sql.DB

	listSQL, getSQL, createSQL, advanceSQL, describeSQL, deleteSQL string
}

// New returns a repository over db. driver selects the placeholder style.
func New(db *sql.DB, driver string) *Todos {
	rb := func(q string) string { return database.Rebind(driver, q) }
	return &Todos{
		db:          db,
		listSQL:     `SELECT id, description, status FROM todos`,
		getSQL:      rb(`SELECT id, description, status FROM todos WHERE id = $1`),
		createSQL:   rb(`INSERT INTO todos (description) VALUES ($1) RETURNING id`),
		advanceSQL:  rb(AdvanceStatusSQL()),
		describeSQL: rb(`UPDATE todos SET description = $1 WHERE id = $2`),
		deleteSQL:   rb(`DELETE FROM todos WHERE id = $1`),
	}
}

// AdvanceStatusSQL renders models.Transitions as one conditional UPDATE so the
// next status is computed by the store from the current row value.
func AdvanceStatusSQL() string {
	var b strings.Builder
	b.WriteString("UPDATE todos SET status = CASE")
	for _, t := range models.Transitions {
		fmt.Fprintf(&b, " WHEN status = '%s' THEN '%s'", t.From, t.To)
	}
	b.WriteString(" ELSE status END WHERE id = $1 RETURNING status")
	return b.String()
}

// Ping checks the store connection.
func (r *Todos) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// List returns all todos in the store's natural order.
func (r *Todos) List(ctx context.Context) ([]models.Todo, error) {
	rows, err := r.db.QueryContext(ctx, r.listSQL)
	if err != nil {
		return nil, storeErr("list", err)
	}
	defer rows.Close()
	todos := []models.Todo{}
	for rows.Next() {
		var t models.Todo
		if err := rows.Scan(&t.ID, &t.Description, &t.Status); err != nil {
			return nil, storeErr("list scan", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list", err)
	}
	return todos, nil
}

// Get returns the todo with the given id.
func (r *Todos) Get(ctx context.Context, id int64) (models.Todo, error) {
	var t models.Todo
	err := r.db.QueryRowContext(ctx, r.getSQL, id).Scan(&t.ID, &t.Description, &t.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Todo{}, ErrNotFound
	}
	if err != nil {
		return models.Todo{}, storeErr("get", err)
	}
	return t, nil
}

// Create inserts a todo and returns the id the store assigned to it.
func (r *Todos) Create(ctx context.Context, description string) (int64, error) {
	var id int64
	if err := r.db.QueryRowContext(ctx, r.createSQL, description).Scan(&id); err != nil {
		return 0, storeErr("create", err)
	}
	return id, nil
}

// AdvanceStatus moves the todo one step along the status state machine and
// returns the resulting status.
func (r *Todos) AdvanceStatus(ctx context.Context, id int64) (models.Status, error) {
	var s models.Status
	err := r.db.QueryRowContext(ctx, r.advanceSQL, id).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", storeErr("advance status", err)
	}
	return s, nil
}

// UpdateDescription overwrites the description and leaves the status alone.
func (r *Todos) UpdateDescription(ctx context.Context, id int64, description string) error {
	return r.execOne(ctx, "update description", r.describeSQL, description, id)
}

// Delete removes the todo.
func (r *Todos) Delete(ctx context.Context, id int64) error {
	return r.execOne(ctx, "delete", r.deleteSQL, id)
}

func (r *Todos) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
