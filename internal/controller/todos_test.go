package controller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-service/internal/models"
	"todo-service/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubStore fails every call with err and counts calls.
type stubStore struct {
	err   error
	calls atomic.Int32
	todos []models.Todo
}

func (s *stubStore) fail() error {
	s.calls.Add(1)
	return s.err
}

func (s *stubStore) List(context.Context) ([]models.Todo, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return s.todos, nil
}

func (s *stubStore) Get(context.Context, int64) (models.Todo, error) { return models.Todo{}, s.fail() }

func (s *stubStore) Create(context.Context, string) (int64, error) { return 0, s.fail() }

func (s *stubStore) AdvanceStatus(context.Context, int64) (models.Status, error) {
	return "", s.fail()
}

func (s *stubStore) UpdateDescription(context.Context, int64, string) error { return s.fail() }

func (s *stubStore) Delete(context.Context, int64) error { return s.fail() }

func (s *stubStore) Ping(context.Context) error { return s.fail() }

type stubCache struct {
	todos   []models.Todo
	hit     bool
	pingErr error
	sets    int
}

func (c *stubCache) GetTodos(context.Context) ([]models.Todo, int64, bool) {
	return c.todos, 3, c.hit
}

func (c *stubCache) SetTodos(_ context.Context, version int64, todos []models.Todo) {
	c.sets++
	c.todos, c.hit = todos, true
}

func (c *stubCache) InvalidateTodos(context.Context) error { return nil }

func (c *stubCache) Ping(context.Context) error { return c.pingErr }

func newEngine(tc *TodoController) *gin.Engine {
	r := gin.New()
	r.GET("/todos", tc.GetTodos)
	r.GET("/todo/:id", tc.GetTodo)
	r.POST("/todo", tc.CreateTodo)
	r.PUT("/todo/:id", tc.AdvanceTodoStatus)
	r.PATCH("/todo/:id", tc.UpdateTodoDescription)
	r.DELETE("/todo/:id", tc.DeleteTodo)
	r.GET("/ready", tc.Ready)
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestStoreFailure_Returns500WithGenericDetail(t *testing.T) {
	storeErr := &repository.StoreError{Op: "test", Err: errors.New("connection refused")}
	r := newEngine(NewTodoController(&stubStore{err: storeErr}, nil, nil))

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/todos", ""},
		{http.MethodGet, "/todo/1", ""},
		{http.MethodPost, "/todo", `{"description":"x"}`},
		{http.MethodPut, "/todo/1", ""},
		{http.MethodPatch, "/todo/1", `{"description":"x"}`},
		{http.MethodDelete, "/todo/1", ""},
	} {
		w := serve(r, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusInternalServerError, w.Code, "%s %s", tc.method, tc.path)
		assert.Equal(t, `{"detail":"Internal Server Error"}`, w.Body.String())
		assert.NotContains(t, w.Body.String(), "connection refused")
	}
}

func TestNotFoundMapping(t *testing.T) {
	r := newEngine(NewTodoController(&stubStore{err: repository.ErrNotFound}, nil, nil))

	w := serve(r, http.MethodDelete, "/todo/7", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, `{"detail":"Todo not found"}`, w.Body.String())
}

func TestValidationFailure_SkipsStore(t *testing.T) {
	store := &stubStore{}
	r := newEngine(NewTodoController(store, nil, nil))

	w := serve(r, http.MethodPost, "/todo", `{"description":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"detail":[{"type":"string_type","loc":["body","description"],"msg":"Input should be a valid string"}]}`, w.Body.String())
	assert.Zero(t, store.calls.Load())
}

func TestGetTodos_CacheHitSkipsStore(t *testing.T) {
	store := &stubStore{}
	c := &stubCache{hit: true, todos: []models.Todo{{ID: 5, Description: "cached", Status: models.StatusOpen}}}
	r := newEngine(NewTodoController(store, c, nil))

	w := serve(r, http.MethodGet, "/todos", "")
	assert.Equal(t, `{"todos":[{"id":5,"description":"cached","status":"open"}]}`, w.Body.String())
	assert.Zero(t, store.calls.Load())
}

type fixedStatusStore struct {
	stubStore
	status models.Status
}

func (s *fixedStatusStore) AdvanceStatus(context.Context, int64) (models.Status, error) {
	return s.status, nil
}

func TestAdvanceTodoStatus_UnknownStatusStillSucceeds(t *testing.T) {
	r := newEngine(NewTodoController(&fixedStatusStore{status: "archived"}, nil, nil))

	w := serve(r, http.MethodPut, "/todo/1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"affected-rows":1}`, w.Body.String())
}

func TestGetTodos_CacheMissFillsCache(t *testing.T) {
	store := &stubStore{todos: []models.Todo{{ID: 1, Description: "a", Status: models.StatusFinished}}}
	c := &stubCache{}
	r := newEngine(NewTodoController(store, c, nil))

	w := serve(r, http.MethodGet, "/todos", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, c.sets)

	w = serve(r, http.MethodGet, "/todos", "")
	assert.Equal(t, `{"todos":[{"id":1,"description":"a","status":"finished"}]}`, w.Body.String())
	assert.Equal(t, int32(1), store.calls.Load())
}

func TestReady(t *testing.T) {
	w := serve(newEngine(NewTodoController(&stubStore{}, nil, nil)), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	down := &repository.StoreError{Op: "ping", Err: errors.New("down")}
	w = serve(newEngine(NewTodoController(&stubStore{err: down}, nil, nil)), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"database unavailable"}`, w.Body.String())

	c := &stubCache{pingErr: errors.New("redis down")}
	w = serve(newEngine(NewTodoController(&stubStore{}, c, nil)), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"redis unavailable"}`, w.Body.String())
}

func TestCancelledRequest_WritesNoErrorBody(t *testing.T) {
	store := &stubStore{err: &repository.StoreError{Op: "get", Err: context.Canceled}}
	r := newEngine(NewTodoController(store, nil, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/todo/1", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Empty(t, w.Body.String())
}
