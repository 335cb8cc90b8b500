/**
 * Redis Job Tracker for clark
 *
 * Mirrors job state into Redis sets and hashes and publishes every transition on
 * <queue>:events for live consumers (dashboards, `redis-cli subscribe`).
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/logging"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Tracker receives job lifecycle events.
type Tracker interface {
	Update(ctx context.Context, jobID string, status Status, data map[string]interface{})
	Stage(ctx context.Context, jobID, stage string)
}

// Event is the message published for every job transition.
type Event struct {
	Event     string                 `json:"event"`
	JobID     string                 `json:"jobId"`
	Stage     string                 `json:"stage,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// RedisTracker keeps job state in Redis.
type RedisTracker struct {
	client *redis.Client
	queue  string
	logger *logging.Logger
}

// NewRedisTracker connects to Redis and checks the connection.
func NewRedisTracker(ctx context.Context, cfg config.QueueConfig) (*RedisTracker, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisTracker{client: client, queue: cfg.Name, logger: logging.NewLogger("JobTracker")}, nil
}

func (t *RedisTracker) key(suffix string) string {
	return fmt.Sprintf("%s:%s", t.queue, suffix)
}

// EventsChannel is the pub/sub channel job events are published on.
func (t *RedisTracker) EventsChannel() string {
	return t.key("events")
}

// Update moves the job between status sets and publishes the transition.
func (t *RedisTracker) Update(ctx context.Context, jobID string, status Status, data map[string]interface{}) {
	pipe := t.client.TxPipeline()
	switch status {
	case StatusProcessing:
		pipe.SAdd(ctx, t.key("processing"), jobID)
	case StatusCompleted:
		pipe.SRem(ctx, t.key("processing"), jobID)
		pipe.SAdd(ctx, t.key("completed"), jobID)
		if data != nil {
			if b, err := json.Marshal(data); err == nil {
				pipe.HSet(ctx, t.key("results"), jobID, b)
			}
		}
	case StatusFailed:
		pipe.SRem(ctx, t.key("processing"), jobID)
		pipe.SAdd(ctx, t.key("failed"), jobID)
		if data != nil {
			if b, err := json.Marshal(data); err == nil {
				pipe.HSet(ctx, t.key("errors"), jobID, b)
			}
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("Failed to update job status", "job", jobID, "status", status, "error", err)
	}
	t.publish(ctx, Event{Event: "job:" + string(status), JobID: jobID, Data: data})
}

// Stage publishes a pipeline stage transition.
func (t *RedisTracker) Stage(ctx context.Context, jobID, stage string) {
	t.publish(ctx, Event{Event: "job:stage", JobID: jobID, Stage: stage})
}

func (t *RedisTracker) publish(ctx context.Context, ev Event) {
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := t.client.Publish(ctx, t.EventsChannel(), b).Err(); err != nil {
		t.logger.Debug("Failed to publish job event", "job", ev.JobID, "error", err)
	}
}

// Subscribe returns a channel of decoded job events until ctx is done.
func (t *RedisTracker) Subscribe(ctx context.Context) <-chan Event {
	sub := t.client.Subscribe(ctx, t.EventsChannel())
	out := make(chan Event)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// GetStats returns job counts from the tracker sets and the asynq queue.
func (t *RedisTracker) GetStats(ctx context.Context, inspector *asynq.Inspector) (map[string]int64, error) {
	processing, _ := t.client.SCard(ctx, t.key("processing")).Result()
	completed, _ := t.client.SCard(ctx, t.key("completed")).Result()
	failed, _ := t.client.SCard(ctx, t.key("failed")).Result()

	stats := map[string]int64{
		"processing": processing,
		"completed":  completed,
		"failed":     failed,
	}
	if inspector != nil {
		info, err := inspector.GetQueueInfo(t.queue)
		if err != nil {
			return stats, fmt.Errorf("failed to inspect queue %s: %w", t.queue, err)
		}
		stats["waiting"] = int64(info.Pending)
		stats["active"] = int64(info.Active)
		stats["retry"] = int64(info.Retry)
		stats["archived"] = int64(info.Archived)
	}
	return stats, nil
}

// Close closes the Redis client.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}

// NopTracker drops every event.
type NopTracker struct{}

func (NopTracker) Update(context.Context, string, Status, map[string]interface{}) {}
func (NopTracker) Stage(context.Context, string, string) {}
