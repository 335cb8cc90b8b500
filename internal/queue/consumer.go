/**
 * Queue Consumer for clark
 *
 * Consumes document:process tasks with asynq, runs the extraction pipeline, writes
 * the result file, hands the result to the storage sinks and reports job status.
 */

package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/errors"
	"github.com/ArmanBehnam/clark/internal/export"
	"github.com/ArmanBehnam/clark/internal/logging"
	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/processor"
	"github.com/ArmanBehnam/clark/internal/storage"
)

// DocumentProcessor runs one document through the pipeline.
type DocumentProcessor interface {
	Process(ctx context.Context, path string, opts processor.Options) (*model.ExtractionResult, error)
}

// ResultSink persists results and job status.
type ResultSink interface {
	StoreResult(ctx context.Context, res *model.ExtractionResult, fingerprint string) error
	KnownDocument(ctx context.Context, fingerprint string) (string, error)
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// Handler processes document:process tasks.
type Handler struct {
	Processor DocumentProcessor
	Sink      ResultSink
	Tracker   Tracker
	OutputDir string
	Timeout   time.Duration
	logger    *logging.Logger
}

// NewHandler creates a handler. sink and tracker may be nil.
func NewHandler(proc DocumentProcessor, sink ResultSink, tracker Tracker, cfg config.QueueConfig) *Handler {
	if tracker == nil {
		tracker = NopTracker{}
	}
	return &Handler{
		Processor: proc,
		Sink:      sink,
		Tracker:   tracker,
		OutputDir: cfg.OutputDir,
		Timeout:   processingTimeout(cfg),
		logger:    logging.NewLogger("Consumer"),
	}
}

// ProcessTask handles one task. Malformed payloads and invalid documents are not
// retried.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	payload, err := ParsePayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log := h.logger.With("job", payload.JobID)
	log.Info("Processing document", "file", payload.Filename())

	h.Tracker.Update(ctx, payload.JobID, StatusProcessing, map[string]interface{}{"filename": payload.Filename()})
	h.updateJob(ctx, &storage.JobUpdate{
		JobID:    payload.JobID,
		Filename: payload.Filename(),
		Status:   string(StatusProcessing),
		Metadata: map[string]interface{}{"path": payload.Path, "fingerprint": payload.Fingerprint},
	})

	opts := payload.Options.ProcessorOptions()
	if h.Sink != nil && payload.Fingerprint != "" {
		// Reprocessing known content overwrites the stored document.
		if id, err := h.Sink.KnownDocument(ctx, payload.Fingerprint); err == nil && id != "" {
			opts.DocumentID = id
		}
	}
	opts.Progress = func(documentID string, stage processor.Stage) {
		h.Tracker.Stage(ctx, payload.JobID, string(stage))
		h.updateJob(ctx, &storage.JobUpdate{JobID: payload.JobID, Status: string(StatusProcessing), Stage: string(stage)})
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := h.Processor.Process(processCtx, payload.Path, opts)
	duration := time.Since(startTime)
	if err != nil {
		if stderrors.Is(processCtx.Err(), context.DeadlineExceeded) {
			log.Error("Processing timed out", "after", duration, "timeout", timeout)
			err = errors.NewProcessingTimeoutError(payload.JobID, timeout, err)
			h.fail(ctx, payload, err, duration)
			return err
		}
		log.Error("Processing failed", "after", duration, "error", err)
		h.fail(ctx, payload, err, duration)
		if errors.IsValidation(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	outPath := ""
	if h.OutputDir != "" {
		format, ferr := export.ParseFormat(payload.Format)
		if ferr != nil {
			format = export.FormatJSON
		}
		dir := h.OutputDir
		if payload.OutputDir != "" {
			dir = payload.OutputDir
		}
		if outPath, err = export.WriteFile(dir, res, format); err != nil {
			log.Error("Failed to write result file", "dir", dir, "error", err)
			h.fail(ctx, payload, err, duration)
			return err
		}
	}

	if h.Sink != nil {
		if err := h.Sink.StoreResult(ctx, res, payload.Fingerprint); err != nil {
			log.Error("Failed to store result", "document", res.DocumentID, "error", err)
			h.fail(ctx, payload, err, duration)
			return err
		}
	}

	log.Info("Processing completed",
		"document", res.DocumentID,
		"type", res.DocumentType,
		"confidence", fmt.Sprintf("%.2f", res.Confidence),
		"degraded", res.Metrics.Degraded,
		"duration", duration)

	summary := map[string]interface{}{
		"document_id":       res.DocumentID,
		"document_type":     string(res.DocumentType),
		"confidence":        res.Confidence,
		"processing_method": res.ProcessingMethod,
		"ocr_engine_used":   res.Metrics.OCREngineUsed,
		"tables":            len(res.Tables),
		"degraded":          res.Metrics.Degraded,
		"processing_time":   duration.Milliseconds(),
	}
	if outPath != "" {
		summary["output"] = outPath
	}
	h.Tracker.Update(ctx, payload.JobID, StatusCompleted, summary)
	h.updateJob(ctx, &storage.JobUpdate{
		JobID:            payload.JobID,
		Status:           string(StatusCompleted),
		Stage:            string(processor.StageDone),
		Confidence:       res.Confidence,
		ProcessingTimeMs: duration.Milliseconds(),
		DocumentID:       res.DocumentID,
		Metadata:         summary,
	})
	return nil
}

func (h *Handler) fail(ctx context.Context, payload *TaskPayload, err error, duration time.Duration) {
	data := map[string]interface{}{"error": err.Error(), "processing_time": duration.Milliseconds()}
	update := &storage.JobUpdate{
		JobID:            payload.JobID,
		Status:           string(StatusFailed),
		Stage:            string(processor.StageFailed),
		ProcessingTimeMs: duration.Milliseconds(),
		ErrorMessage:     err.Error(),
	}
	var pe *errors.ProcessingError
	if stderrors.As(err, &pe) {
		data = pe.ToMap()
		update.ErrorCode = string(pe.Code)
	} else if errors.IsValidation(err) {
		update.ErrorCode = string(errors.ErrorValidationFailed)
	}
	h.Tracker.Update(ctx, payload.JobID, StatusFailed, data)
	h.updateJob(ctx, update)
}

func (h *Handler) updateJob(ctx context.Context, update *storage.JobUpdate) {
	if h.Sink == nil {
		return
	}
	if err := h.Sink.UpdateJobStatus(ctx, update); err != nil {
		h.logger.Warn("Failed to update job status", "job", update.JobID, "status", update.Status, "error", err)
	}
}

// Consumer runs the asynq server.
type Consumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	cfg    config.QueueConfig
	logger *logging.Logger
}

// NewConsumer creates a consumer serving h on the configured queue.
func NewConsumer(cfg config.QueueConfig, h *Handler) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if h == nil || h.Processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("Consumer")
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: max(cfg.Concurrency, 1),
		Queues: map[string]int{
			cfg.Name:  10,
			"default": 1,
		},
		RetryDelayFunc: retryDelay,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			logger.Error("Task failed", "type", task.Type(), "retry", retried, "error", err)
		}),
		Logger:          asynqLogger{logging.NewLogger("asynq")},
		ShutdownTimeout: 30 * time.Second,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeProcessDocument, h.ProcessTask)

	return &Consumer{server: server, mux: mux, cfg: cfg, logger: logger}, nil
}

// retryDelay backs off 5s, 10s, 20s ... capped at one minute.
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	delay := time.Duration(5*(1<<uint(min(n, 6)))) * time.Second
	return min(delay, 60*time.Second)
}

// Start starts processing in the background.
func (c *Consumer) Start() error {
	c.logger.Info("Starting queue consumer", "concurrency", c.cfg.Concurrency, "queue", c.cfg.Name)
	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	return nil
}

// Run starts the consumer and blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	c.Stop()
	return nil
}

// Stop waits for in-flight tasks and stops the server.
func (c *Consumer) Stop() {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
}

// asynqLogger routes asynq's logs through the component logger.
type asynqLogger struct {
	l *logging.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
