package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"todo-service/internal/config"
	"todo-service/internal/models"
	"todo-service/pkg/logger"
)

// Invalidator drops cached todo lists.
type Invalidator interface {
	InvalidateTodos(ctx context.Context) error
}

// MessageReader is the subset of *kafka.Reader the worker needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Worker consumes todo change events and invalidates the list cache. The
// request path already invalidates synchronously; this retries any
// invalidation that failed there.
type Worker struct {
	reader    MessageReader
	cache     Invalidator
	processed atomic.Int64
}

// New returns a worker reading from r.
func New(r MessageReader, cache Invalidator) *Worker {
	return &Worker{reader: r, cache: cache}
}

// NewFromConfig joins the configured consumer group. It returns nil when
// Kafka is not configured.
func NewFromConfig(cfg *config.Config, cache Invalidator) *Worker {
	if len(cfg.KafkaBrokers) == 0 {
		return nil
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return New(reader, cache)
}

// Run consumes until ctx is cancelled. A nil worker returns immediately.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		logger.Info(ctx, "Worker disabled (no Kafka brokers)")
		return nil
	}
	defer w.reader.Close()

	logger.Info(ctx, "Kafka consumer started")
	defer func() {
		logger.Info(ctx, "Kafka consumer stopped", "processed", w.Processed())
	}()
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			logger.Error(ctx, "Worker fetch failed", "error", err)
			continue
		}
		if err := w.handleMessage(ctx, msg.Value); err != nil {
			logger.Error(ctx, "Worker handle failed", "error", err, "payload", string(msg.Value))
			// Commit anyway to avoid a poison pill blocking the partition.
		} else {
			w.processed.Add(1)
		}
		if err := w.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "Worker commit failed", "error", err)
		}
	}
}

// Processed returns how many events were handled successfully.
func (w *Worker) Processed() int64 {
	return w.processed.Load()
}

func (w *Worker) handleMessage(ctx context.Context, payload []byte) error {
	var ev models.TodoEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	switch ev.Action {
	case models.ActionCreated, models.ActionStatusAdvanced, models.ActionDescriptionUpdated, models.ActionDeleted:
	default:
		logger.Debug(ctx, "Worker ignoring unknown action", "action", ev.Action)
		return nil
	}
	if err := w.cache.InvalidateTodos(ctx); err != nil {
		return fmt.Errorf("invalidate cache after %s of todo %d: %w", ev.Action, ev.ID, err)
	}
	logger.Debug(ctx, "Cache invalidated from event", "action", ev.Action, "id", ev.ID)
	return nil
}
