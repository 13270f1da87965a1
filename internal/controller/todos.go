package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"todo-service/internal/database"
	"todo-service/internal/middleware"
	"todo-service/internal/models"
	"todo-service/internal/repository"
	"todo-service/pkg/logger"
)

const (
	msgNotFound      = "Todo not found"
	msgInternalError = "Internal Server Error"
	msgUpdated       = "Item successfully updated"
)

// TodoStore is the persistence the handlers need.
type TodoStore interface {
	List(ctx context.Context) ([]models.Todo, error)
	Get(ctx context.Context, id int64) (models.Todo, error)
	Create(ctx context.Context, description string) (int64, error)
	AdvanceStatus(ctx context.Context, id int64) (models.Status, error)
	UpdateDescription(ctx context.Context, id int64, description string) error
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

// ListCache caches the GET /todos result.
type ListCache interface {
	GetTodos(ctx context.Context) ([]models.Todo, int64, bool)
	SetTodos(ctx context.Context, version int64, todos []models.Todo)
	InvalidateTodos(ctx context.Context) error
	Ping(ctx context.Context) error
}

// EventPublisher receives a change event after every committed mutation.
type EventPublisher interface {
	Publish(ctx context.Context, ev *models.TodoEvent) error
}

type todoListResponse struct {
	Todos []models.Todo `json:"todos"`
}

type todoResponse struct {
	Todo models.Todo `json:"todo"`
}

type createResponse struct {
	ID int64 `json:"id"`
}

type advanceResponse struct {
	AffectedRows int64 `json:"affected-rows"`
}

type updateResponse struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

type deleteResponse struct {
	Action       string `json:"action"`
	AffectedRows int64  `json:"affected-rows"`
}

type errorResponse struct {
	Detail any `json:"detail"`
}

// descriptionBody is the request body of POST /todo and PATCH /todo/:id.
// The pointer distinguishes a missing field from an empty string.
type descriptionBody struct {
	Description *string `json:"description" binding:"required"`
}

// TodoController serves the todo HTTP API.
type TodoController struct {
	store  TodoStore
	cache  ListCache
	events EventPublisher
	now    func() time.Time

	listGroup singleflight.Group
}

// NewTodoController wires the handlers. cache and events may be nil.
func NewTodoController(store TodoStore, cache ListCache, events EventPublisher) *TodoController {
	return &TodoController{
		store:  store,
		cache:  cache,
		events: events,
		now:    time.Now,
	}
}

// GetTodos returns every todo, cache first. Concurrent misses for the same
// list version share one store read.
func (tc *TodoController) GetTodos(c *gin.Context) {
	ctx := c.Request.Context()
	version := int64(-1)
	if tc.cache != nil {
		todos, v, ok := tc.cache.GetTodos(ctx)
		if ok {
			respondJSON(c, http.StatusOK, todoListResponse{Todos: todos})
			return
		}
		version = v
	}

	var todos []models.Todo
	var err error
	if version < 0 {
		// No version to key on: a shared flight could predate a write this client already saw.
		todos, err = tc.store.List(ctx)
	} else {
		todos, err = tc.loadAndCache(ctx, version)
	}
	if err != nil {
		tc.respondError(c, "GetTodos", err)
		return
	}
	respondJSON(c, http.StatusOK, todoListResponse{Todos: todos})
}

func (tc *TodoController) loadAndCache(ctx context.Context, version int64) ([]models.Todo, error) {
	res, err, _ := tc.listGroup.Do("todos:v"+strconv.FormatInt(version, 10), func() (any, error) {
		// Detached so one caller going away does not fail the others.
		detached := context.WithoutCancel(ctx)
		todos, err := tc.store.List(detached)
		if err != nil {
			return nil, err
		}
		tc.cache.SetTodos(detached, version, todos)
		return todos, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]models.Todo), nil
}

// GetTodo returns a single todo.
func (tc *TodoController) GetTodo(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	todo, err := tc.store.Get(c.Request.Context(), id)
	if err != nil {
		tc.respondError(c, "GetTodo", err)
		return
	}
	respondJSON(c, http.StatusOK, todoResponse{Todo: todo})
}

// CreateTodo inserts a todo with status open and returns the store-assigned id.
func (tc *TodoController) CreateTodo(c *gin.Context) {
	var body descriptionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondValidation(c, bodyIssues(err))
		return
	}
	ctx := c.Request.Context()
	id, err := tc.store.Create(ctx, *body.Description)
	if err != nil {
		tc.respondError(c, "CreateTodo", err)
		return
	}
	tc.afterMutation(c, &models.TodoEvent{
		Action:      models.ActionCreated,
		ID:          id,
		Description: *body.Description,
		Status:      models.StatusOpen,
	})
	respondJSON(c, http.StatusOK, createResponse{ID: id})
}

// AdvanceTodoStatus moves the todo one step: open, in progress, finished.
func (tc *TodoController) AdvanceTodoStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	status, err := tc.store.AdvanceStatus(c.Request.Context(), id)
	if err != nil {
		tc.respondError(c, "AdvanceTodoStatus", err)
		return
	}
	if !status.Valid() {
		logger.Warn(c.Request.Context(), "Todo has unknown status; left unchanged", "id", id, "status", status)
	}
	tc.afterMutation(c, &models.TodoEvent{
		Action: models.ActionStatusAdvanced,
		ID:     id,
		Status: status,
	})
	respondJSON(c, http.StatusOK, advanceResponse{AffectedRows: 1})
}

// UpdateTodoDescription overwrites the description only.
func (tc *TodoController) UpdateTodoDescription(c *gin.Context) {
	var issues []issue
	id, idErr := strconv.ParseInt(c.Param("id"), 10, 64)
	if idErr != nil {
		issues = append(issues, pathIDIssue())
	}
	var body descriptionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		issues = append(issues, bodyIssues(err)...)
	}
	if len(issues) > 0 {
		respondValidation(c, issues)
		return
	}

	if err := tc.store.UpdateDescription(c.Request.Context(), id, *body.Description); err != nil {
		tc.respondError(c, "UpdateTodoDescription", err)
		return
	}
	tc.afterMutation(c, &models.TodoEvent{
		Action:      models.ActionDescriptionUpdated,
		ID:          id,
		Description: *body.Description,
	})
	respondJSON(c, http.StatusOK, updateResponse{ID: id, Message: msgUpdated})
}

// DeleteTodo removes the todo.
func (tc *TodoController) DeleteTodo(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := tc.store.Delete(c.Request.Context(), id); err != nil {
		tc.respondError(c, "DeleteTodo", err)
		return
	}
	tc.afterMutation(c, &models.TodoEvent{Action: models.ActionDeleted, ID: id})
	respondJSON(c, http.StatusOK, deleteResponse{Action: "delete", AffectedRows: 1})
}

// Health returns 200 if the process is alive. Used by load balancers.
func (tc *TodoController) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Ready returns 200 if the store (and cache, when enabled) is reachable.
func (tc *TodoController) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := tc.store.Ping(ctx); err != nil {
		logger.Warn(ctx, "Readiness: database ping failed", "error", err)
		respondJSON(c, http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
		return
	}
	if tc.cache != nil {
		if err := tc.cache.Ping(ctx); err != nil {
			logger.Warn(ctx, "Readiness: redis ping failed", "error", err)
			respondJSON(c, http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
	}
	c.String(http.StatusOK, "OK")
}

// afterMutation invalidates the list cache before the response is written and
// emits the change event. Neither failure undoes the committed write.
func (tc *TodoController) afterMutation(c *gin.Context, ev *models.TodoEvent) {
	ctx := c.Request.Context()
	if tc.cache != nil {
		if err := tc.cache.InvalidateTodos(ctx); err != nil {
			logger.Warn(ctx, "Cache invalidation failed", "error", err, "action", ev.Action, "id", ev.ID)
		}
	}
	if tc.events == nil {
		return
	}
	ev.RequestID = c.GetString(middleware.RequestIDHeader)
	ev.OccurredAt = tc.now().UTC()
	if err := tc.events.Publish(ctx, ev); err != nil {
		logger.Warn(ctx, "Publish todo event failed", "error", err, "action", ev.Action, "id", ev.ID)
	}
}

func (tc *TodoController) respondError(c *gin.Context, op string, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, repository.ErrNotFound):
		respondJSON(c, http.StatusNotFound, errorResponse{Detail: msgNotFound})
	case ctx.Err() != nil && isContextErr(err):
		// Client went away; nobody is left to read a response.
		logger.Debug(ctx, op+" cancelled", "error", err)
		c.Abort()
	default:
		logger.Error(ctx, op+" failed", "error", err, "sqlstate", database.ErrorCode(err))
		respondJSON(c, http.StatusInternalServerError, errorResponse{Detail: msgInternalError})
	}
}

// respondJSON writes obj without HTML escaping, so "<", ">" and "&" reach the
// client as written.
func respondJSON(c *gin.Context, code int, obj any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(obj); err != nil {
		logger.Error(c.Request.Context(), "Encode response failed", "error", err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(code, "application/json; charset=utf-8", bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
