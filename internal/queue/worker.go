package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// HandlerFunc executes one task. Returning an error wrapped with
// Permanent stops the retry policy for that task.
type HandlerFunc func(ctx context.Context, t *Task) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as not worth retrying (contract violations,
// missing records). Transient failures are returned bare.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Worker consumes tasks from the queue and runs registered handlers.
type Worker struct {
	queue       *Queue
	logger      *zap.Logger
	handlers    map[string]HandlerFunc
	concurrency int
	poll        time.Duration
	id          string
}

func NewWorker(q *Queue, logger *zap.Logger, concurrency int, poll time.Duration) *Worker {
	return &Worker{
		queue:       q,
		logger:      logger,
		handlers:    make(map[string]HandlerFunc),
		concurrency: concurrency,
		poll:        poll,
		id:          uuid.New().String()[:8],
	}
}

func (w *Worker) Register(name string, fn HandlerFunc) {
	w.handlers[name] = fn
}

// Run blocks until ctx is cancelled. Each consumer goroutine claims
// with a blocking move into its own processing list and acks by
// removing the entry after the handler returns. A sweeper goroutine
// requeues tasks stranded in dead consumers' processing lists.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.queue.reclaimStale(ctx); err != nil {
		w.logger.Sugar().Warnw("orphan sweep failed", "err", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.sweep(ctx)
	}()

	for i := 0; i < w.concurrency; i++ {
		consumerID := fmt.Sprintf("%s-%d", w.id, i)
		wg.Add(1)
		go func(consumerID string) {
			defer wg.Done()
			w.consume(ctx, consumerID)
		}(consumerID)
	}
	wg.Wait()
	return nil
}

func (w *Worker) sweep(ctx context.Context) {
	ticker := time.NewTicker(visibilityTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.reclaimStale(ctx); err != nil && ctx.Err() == nil {
				w.logger.Sugar().Warnw("orphan sweep failed", "err", err)
			}
		}
	}
}

func (w *Worker) consume(ctx context.Context, consumerID string) {
	processing := w.queue.processingKey(consumerID)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.queue.markAlive(ctx, consumerID); err != nil && ctx.Err() == nil {
			w.logger.Sugar().Warnw("liveness refresh failed", "consumer", consumerID, "err", err)
		}
		if err := w.queue.promoteDelayed(ctx); err != nil && ctx.Err() == nil {
			w.logger.Sugar().Warnw("promote delayed failed", "err", err)
		}

		raw, err := w.queue.rdb.BLMove(ctx, w.queue.pendingKey(), processing, "RIGHT", "LEFT", w.poll).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Sugar().Warnw("claim failed", "err", err)
			time.Sleep(w.poll)
			continue
		}

		w.handle(ctx, raw)

		if err := w.queue.rdb.LRem(ctx, processing, 1, raw).Err(); err != nil && ctx.Err() == nil {
			w.logger.Sugar().Warnw("ack failed", "err", err)
		}
	}
}

func (w *Worker) handle(ctx context.Context, raw string) {
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		w.logger.Sugar().Errorw("undecodable task dropped", "err", err)
		return
	}

	fn, ok := w.handlers[t.Name]
	if !ok {
		w.logger.Sugar().Errorw("unknown task type", "name", t.Name, "job_id", t.ID)
		_ = w.queue.setStatus(ctx, t.ID, &Status{
			State: StateFailure, Error: "unknown task type", Attempts: t.Attempts, UpdatedAt: time.Now().UTC(),
		})
		return
	}

	_ = w.queue.setStatus(ctx, t.ID, &Status{
		State: StateRunning, Attempts: t.Attempts, UpdatedAt: time.Now().UTC(),
	})

	err := fn(ctx, &t)
	if err == nil {
		_ = w.queue.setStatus(ctx, t.ID, &Status{
			State: StateSuccess, Result: "ok", Attempts: t.Attempts + 1, UpdatedAt: time.Now().UTC(),
		})
		return
	}

	attempts := t.Attempts + 1
	if IsPermanent(err) || attempts >= t.MaxAttempts {
		w.logger.Sugar().Errorw("task failed", "name", t.Name, "job_id", t.ID, "attempts", attempts, "err", err)
		_ = w.queue.setStatus(ctx, t.ID, &Status{
			State: StateFailure, Error: err.Error(), Attempts: attempts, UpdatedAt: time.Now().UTC(),
		})
		return
	}

	delay := Backoff(attempts)
	w.logger.Sugar().Warnw("task retry scheduled", "name", t.Name, "job_id", t.ID, "attempts", attempts, "delay", delay, "err", err)
	t.Attempts = attempts
	if rerr := w.queue.retryLater(ctx, &t, delay); rerr != nil {
		w.logger.Sugar().Errorw("retry scheduling failed", "job_id", t.ID, "err", rerr)
		_ = w.queue.setStatus(ctx, t.ID, &Status{
			State: StateFailure, Error: err.Error(), Attempts: attempts, UpdatedAt: time.Now().UTC(),
		})
		return
	}
	_ = w.queue.setStatus(ctx, t.ID, &Status{
		State: StatePending, Error: err.Error(), Attempts: attempts, UpdatedAt: time.Now().UTC(),
	})
}

// Backoff is the retry delay after the given number of attempts,
// exponential and capped at 10 minutes.
func Backoff(attempts int) time.Duration {
	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	return time.Duration(sec) * time.Second
}
