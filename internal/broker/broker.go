package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultQueue = "default"

	countersKey = "broker:counters"
	queuedState = "queued"
)

// Config holds the broker connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Broker wraps the shared Redis task queue consumed by batch jobs. The
// orchestrator only produces tasks and reads counters; the workers that
// drain the queues live in a separate deployment.
type Broker struct {
	client *redis.Client
}

// New creates a broker client from the given configuration
func New(config Config) *Broker {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &Broker{client: client}
}

// Ping verifies the connection to Redis
func (b *Broker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("broker ping: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (b *Broker) Close() error {
	return b.client.Close()
}

// EnqueueOptions tune a single enqueue call. The zero value is valid.
type EnqueueOptions struct {
	// Queue names the scored queue the task lands on. Empty selects
	// the job's own queue.
	Queue string
	// Priority orders tasks within a queue; higher is drained first.
	Priority int
}

// envelope is the task payload stored under the task hash
type envelope struct {
	ID         string      `json:"id"`
	Job        string      `json:"job"`
	Payload    interface{} `json:"payload"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// Enqueue publishes one task for jobName and returns its id. The payload
// is stored as a hash field and the id is added to a priority-scored
// queue, so workers pop the highest-scored member first.
func (b *Broker) Enqueue(ctx context.Context, jobName string, payload interface{}, opts EnqueueOptions) (string, error) {
	taskID := uuid.New().String()

	data, err := json.Marshal(envelope{
		ID:         taskID,
		Job:        jobName,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal task payload: %w", err)
	}

	queue := queueKey(jobName, opts)

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, taskKey(taskID), "payload", data)
	pipe.ZAdd(ctx, queue, redis.Z{
		Score:  float64(opts.Priority),
		Member: taskID,
	})
	pipe.HIncrBy(ctx, countersKey, queuedState, 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue task %s: %w", taskID, err)
	}

	slog.Debug("enqueued broker task",
		slog.String("task_id", taskID),
		slog.String("job", jobName),
		slog.String("queue", queue),
		slog.Int("priority", opts.Priority),
	)
	return taskID, nil
}

// CountersByState returns the broker's task counters keyed by state
// (queued, running, done, failed and whatever else the workers track).
// The snapshot is eventually consistent; workers update it concurrently.
func (b *Broker) CountersByState(ctx context.Context) (map[string]int64, error) {
	raw, err := b.client.HGetAll(ctx, countersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read broker counters: %w", err)
	}

	counters := make(map[string]int64, len(raw))
	for state, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		counters[state] = n
	}
	return counters, nil
}

// QueueDepths returns the number of pending tasks on every queue, keyed
// by queue name. Like the counters, the snapshot is eventually consistent.
func (b *Broker) QueueDepths(ctx context.Context) (map[string]int64, error) {
	depths := make(map[string]int64)

	iter := b.client.Scan(ctx, 0, "queue:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		depth, err := b.client.ZCard(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("queue depth for %s: %w", key, err)
		}
		depths[strings.TrimPrefix(key, "queue:")] = depth
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan queues: %w", err)
	}
	return depths, nil
}

func taskKey(taskID string) string {
	return "task:" + taskID
}

func queueKey(jobName string, opts EnqueueOptions) string {
	name := opts.Queue
	if name == "" {
		name = jobName
	}
	if name == "" {
		name = defaultQueue
	}
	return "queue:" + name
}
