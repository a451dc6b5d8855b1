package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// State is the lifecycle of one submitted job.
type State string

const (
	StatePending State = "PENDING"
	StateRunning State = "RUNNING"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

var ErrJobNotFound = errors.New("job not found")

// statusTTL bounds how long a finished job's status stays queryable.
const statusTTL = 24 * time.Hour

// Task is the envelope carried through the broker.
type Task struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// FinalAttempt reports whether the current execution is the last one
// the retry policy allows.
func (t *Task) FinalAttempt() bool {
	return t.Attempts+1 >= t.MaxAttempts
}

// Status is what a caller sees when polling a job id.
type Status struct {
	State     State     `json:"state"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Queue is a small Redis-backed task queue: a pending list, per-worker
// processing lists, a delayed zset for retries and one status key per
// job. Delivery is at-least-once; handlers must be idempotent.
type Queue struct {
	rdb         *redis.Client
	prefix      string
	maxAttempts int
}

func New(rdb *redis.Client, maxAttempts int) *Queue {
	return &Queue{
		rdb:         rdb,
		prefix:      "algolog:queue",
		maxAttempts: maxAttempts,
	}
}

func (q *Queue) key(suffix string) string {
	return q.prefix + ":" + suffix
}

func (q *Queue) pendingKey() string   { return q.key("pending") }
func (q *Queue) delayedKey() string   { return q.key("delayed") }
func (q *Queue) statusKey(id string) string {
	return q.key("job:" + id)
}
func (q *Queue) processingKey(workerID string) string {
	return q.key("processing:" + workerID)
}

// Submit enqueues a task and returns immediately with its job id.
func (q *Queue) Submit(ctx context.Context, name string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	t := Task{
		ID:          uuid.New().String(),
		Name:        name,
		Payload:     raw,
		MaxAttempts: q.maxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}

	if err := q.setStatus(ctx, t.ID, &Status{State: StatePending, UpdatedAt: time.Now().UTC()}); err != nil {
		return "", err
	}
	if err := q.rdb.LPush(ctx, q.pendingKey(), b).Err(); err != nil {
		return "", fmt.Errorf("enqueue task: %w", err)
	}
	return t.ID, nil
}

// Status looks up the current state of a job by id.
func (q *Queue) Status(ctx context.Context, jobID string) (*Status, error) {
	raw, err := q.rdb.Get(ctx, q.statusKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}
	var s Status
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode job status: %w", err)
	}
	return &s, nil
}

func (q *Queue) setStatus(ctx context.Context, jobID string, s *Status) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal job status: %w", err)
	}
	if err := q.rdb.Set(ctx, q.statusKey(jobID), b, statusTTL).Err(); err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

// retryLater schedules a failed task for another attempt after the
// given delay.
func (q *Queue) retryLater(ctx context.Context, t *Task, delay time.Duration) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	score := float64(time.Now().Add(delay).Unix())
	if err := q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{Score: score, Member: b}).Err(); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

// promoteDelayed moves due delayed tasks back onto the pending list.
func (q *Queue) promoteDelayed(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().Unix())
	members, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 50,
	}).Result()
	if err != nil {
		return fmt.Errorf("scan delayed tasks: %w", err)
	}
	for _, m := range members {
		if removed, err := q.rdb.ZRem(ctx, q.delayedKey(), m).Result(); err != nil || removed == 0 {
			// someone else promoted it first
			continue
		}
		if err := q.rdb.LPush(ctx, q.pendingKey(), m).Err(); err != nil {
			return fmt.Errorf("promote delayed task: %w", err)
		}
	}
	return nil
}

// visibilityTimeout is how long a consumer may hold a claimed task
// before other workers treat it as dead and requeue the task. Must
// exceed the longest handler run, model call included.
const visibilityTimeout = 5 * time.Minute

func (q *Queue) aliveKey(consumerID string) string {
	return q.key("alive:" + consumerID)
}

// markAlive refreshes a consumer's liveness key. A processing list
// whose consumer has no liveness key is treated as orphaned.
func (q *Queue) markAlive(ctx context.Context, consumerID string) error {
	if err := q.rdb.Set(ctx, q.aliveKey(consumerID), "1", visibilityTimeout).Err(); err != nil {
		return fmt.Errorf("refresh consumer liveness: %w", err)
	}
	return nil
}

// reclaimStale scans every processing list and pushes entries held by
// dead consumers back onto the pending list. This is where the
// at-least-once redelivery comes from: a worker that crashes mid-task
// stops refreshing its liveness key, and once it expires any surviving
// worker requeues whatever the crashed one had claimed.
func (q *Queue) reclaimStale(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := q.rdb.Scan(ctx, cursor, q.key("processing:")+"*", 50).Result()
		if err != nil {
			return fmt.Errorf("scan processing lists: %w", err)
		}
		for _, k := range keys {
			consumerID := strings.TrimPrefix(k, q.key("processing:"))
			alive, err := q.rdb.Exists(ctx, q.aliveKey(consumerID)).Result()
			if err != nil {
				return fmt.Errorf("check consumer liveness: %w", err)
			}
			if alive > 0 {
				continue
			}
			for {
				if _, err := q.rdb.RPopLPush(ctx, k, q.pendingKey()).Result(); err != nil {
					if errors.Is(err, redis.Nil) {
						break
					}
					return fmt.Errorf("requeue orphaned task: %w", err)
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
