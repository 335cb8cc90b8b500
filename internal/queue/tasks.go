package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/logging"
	"github.com/ArmanBehnam/clark/internal/processor"
)

// TypeProcessDocument is the task type of one document extraction.
const TypeProcessDocument = "document:process"

// ErrAlreadyQueued is returned when the same file is still pending in the queue.
var ErrAlreadyQueued = errors.New("document is already queued")

// TaskOptions are the serializable per-document switches.
type TaskOptions struct {
	DisableOCR         bool     `json:"disable_ocr,omitempty"`
	DisableTables      bool     `json:"disable_tables,omitempty"`
	DisablePatterns    bool     `json:"disable_patterns,omitempty"`
	DisableEnhancement bool     `json:"disable_enhancement,omitempty"`
	Keywords           []string `json:"keywords,omitempty"`
	Engines            []string `json:"engines,omitempty"`
}

// ProcessorOptions converts the task switches into pipeline options.
func (o TaskOptions) ProcessorOptions() processor.Options {
	return processor.Options{
		DisableOCR:         o.DisableOCR,
		DisableTables:      o.DisableTables,
		DisablePatterns:    o.DisablePatterns,
		DisableEnhancement: o.DisableEnhancement,
		Keywords:           o.Keywords,
		Engines:            o.Engines,
	}
}

// TaskPayload is the body of a document:process task. The file is referenced by
// path, so workers must share the producer's filesystem.
type TaskPayload struct {
	JobID       string      `json:"job_id"`
	Path        string      `json:"path"`
	Fingerprint string      `json:"fingerprint,omitempty"`
	OutputDir   string      `json:"output_dir,omitempty"`
	Format      string      `json:"format,omitempty"`
	Options     TaskOptions `json:"options"`
	EnqueuedAt  time.Time   `json:"enqueued_at"`
}

// Filename returns the base name of the queued file.
func (p TaskPayload) Filename() string {
	return filepath.Base(p.Path)
}

// NewProcessTask builds the asynq task for a payload. A job ID is assigned when
// missing.
func NewProcessTask(p *TaskPayload) (*asynq.Task, error) {
	if p.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if p.JobID == "" {
		p.JobID = uuid.NewString()
	}
	if p.EnqueuedAt.IsZero() {
		p.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeProcessDocument, data), nil
}

// ParsePayload decodes a document:process task body.
func ParsePayload(task *asynq.Task) (*TaskPayload, error) {
	if task.Type() != TypeProcessDocument {
		return nil, fmt.Errorf("unexpected task type %q", task.Type())
	}
	var p TaskPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	if p.Path == "" || p.JobID == "" {
		return nil, fmt.Errorf("task payload missing path or job ID")
	}
	return &p, nil
}

// Producer enqueues documents.
type Producer struct {
	client  *asynq.Client
	queue   string
	timeout time.Duration
	logger  *logging.Logger
}

// NewProducer connects an asynq client to the configured Redis.
func NewProducer(cfg config.QueueConfig) (*Producer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Producer{
		client:  asynq.NewClient(redisOpt),
		queue:   cfg.Name,
		timeout: processingTimeout(cfg),
		logger:  logging.NewLogger("Producer"),
	}, nil
}

// Enqueue submits one document. Files with a fingerprint get it as task ID, so
// the same content cannot be queued twice while still retained by asynq.
func (p *Producer) Enqueue(ctx context.Context, payload *TaskPayload) (*asynq.TaskInfo, error) {
	task, err := NewProcessTask(payload)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{
		asynq.Queue(p.queue),
		asynq.MaxRetry(3),
		// Leave room for the handler to record the timeout itself.
		asynq.Timeout(p.timeout + 30*time.Second),
		asynq.Retention(24 * time.Hour),
	}
	if payload.Fingerprint != "" {
		opts = append(opts, asynq.TaskID(payload.Fingerprint))
	}

	info, err := p.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, fmt.Errorf("%s: %w", payload.Path, ErrAlreadyQueued)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", payload.Path, err)
	}
	p.logger.Info("Document enqueued", "job", payload.JobID, "task", info.ID, "queue", info.Queue, "file", payload.Filename())
	return info, nil
}

// Close closes the client.
func (p *Producer) Close() error {
	return p.client.Close()
}

func processingTimeout(cfg config.QueueConfig) time.Duration {
	if cfg.ProcessingTimeout > 0 {
		return time.Duration(cfg.ProcessingTimeout) * time.Second
	}
	return 10 * time.Minute
}
