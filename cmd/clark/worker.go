package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/logging"
	"github.com/ArmanBehnam/clark/internal/processor"
	"github.com/ArmanBehnam/clark/internal/queue"
	"github.com/ArmanBehnam/clark/internal/storage"
)

var workerConcurrency int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued documents",
	Long: `Start a queue worker. It processes document:process tasks from Redis,
writes result files to queue.output_dir, stores results in the configured sinks
and publishes job events on <queue.name>:events.

Stops gracefully on Ctrl+C or SIGTERM after in-flight documents finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := logging.NewLogger("Worker")
		if workerConcurrency > 0 {
			cfg.Queue.Concurrency = workerConcurrency
		}

		proc, reg, err := newProcessor(cfg)
		if err != nil {
			return err
		}

		sm, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		defer sm.Close()

		tracker, err := queue.NewRedisTracker(ctx, cfg.Queue)
		if err != nil {
			return err
		}
		defer tracker.Close()

		var sink queue.ResultSink
		if sm.Enabled() {
			sink = sm
		}
		handler := queue.NewHandler(proc, sink, tracker, cfg.Queue)
		consumer, err := queue.NewConsumer(cfg.Queue, handler)
		if err != nil {
			return err
		}

		cfgManager.OnChange(func(c *config.Config) {
			setupLogging(c)
			logger.Info("Logging settings reloaded", "level", c.Logging.Level)
		})
		cfgManager.WatchConfig()

		logger.Info("Worker ready",
			"queue", cfg.Queue.Name,
			"concurrency", cfg.Queue.Concurrency,
			"engines", reg.Names(),
			"storage", sm.Enabled(),
			"output_dir", cfg.Queue.OutputDir)

		if err := consumer.Run(ctx); err != nil {
			return err
		}
		snap := proc.Aggregator().Snapshot()
		logger.Info("Worker stopped", "documents", snap.Documents, "failed", snap.Failed, "degraded", snap.Degraded)
		return nil
	},
}

var (
	enqueueFlags  pipelineFlags
	enqueueOutDir string
	enqueueFormat string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <file|dir>...",
	Short: "Queue documents for the worker",
	Long: `Queue files (or every supported file in a directory) for processing by
'clark worker'. Paths are stored as absolute paths, so workers must see the same
filesystem. A file whose content is already waiting in the queue is skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var files []string
		for _, arg := range args {
			info, err := os.Stat(arg)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				files = append(files, arg)
				continue
			}
			found, err := processor.CollectFiles(arg, cfg.Security.AllowedFileExtensions)
			if err != nil {
				return err
			}
			files = append(files, found...)
		}

		producer, err := queue.NewProducer(cfg.Queue)
		if err != nil {
			return err
		}
		defer producer.Close()

		opts := enqueueFlags.options()
		queued, skipped := 0, 0
		for _, file := range files {
			abs, err := filepath.Abs(file)
			if err != nil {
				return err
			}
			fp, err := storage.Fingerprint(abs)
			if err != nil {
				return err
			}
			info, err := producer.Enqueue(ctx, &queue.TaskPayload{
				Path:        abs,
				Fingerprint: fp,
				OutputDir:   enqueueOutDir,
				Format:      enqueueFormat,
				Options: queue.TaskOptions{
					DisableOCR:         opts.DisableOCR,
					DisableTables:      opts.DisableTables,
					DisablePatterns:    opts.DisablePatterns,
					DisableEnhancement: opts.DisableEnhancement,
					Keywords:           opts.Keywords,
					Engines:            opts.Engines,
				},
			})
			if errors.Is(err, queue.ErrAlreadyQueued) {
				fmt.Fprintf(os.Stderr, "  skipped %s (already queued)\n", file)
				skipped++
				continue
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", info.ID, file)
			queued++
		}
		fmt.Fprintf(os.Stderr, "%d queued, %d skipped\n", queued, skipped)
		return nil
	},
}

var statusFollow bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue statistics",
	Long: `Print job counts for the configured queue. With --follow, stream job
events as JSON lines until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tracker, err := queue.NewRedisTracker(ctx, cfg.Queue)
		if err != nil {
			return err
		}
		defer tracker.Close()

		redisOpt, err := asynq.ParseRedisURI(cfg.Queue.RedisURL)
		if err != nil {
			return err
		}
		inspector := asynq.NewInspector(redisOpt)
		defer inspector.Close()

		stats, err := tracker.GetStats(ctx, inspector)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			return err
		}

		if !statusFollow {
			return nil
		}
		fmt.Fprintf(os.Stderr, "Following %s (Ctrl+C to stop)\n", tracker.EventsChannel())
		line := json.NewEncoder(os.Stdout)
		for ev := range tracker.Subscribe(ctx) {
			if err := line.Encode(ev); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	workerCmd.Flags().IntVarP(&workerConcurrency, "concurrency", "c", 0, "parallel documents (default: queue.concurrency)")

	enqueueFlags.register(enqueueCmd)
	enqueueCmd.Flags().StringVarP(&enqueueOutDir, "output-dir", "d", "", "result directory (default: queue.output_dir)")
	enqueueCmd.Flags().StringVarP(&enqueueFormat, "format", "f", "json", "output format: json, yaml or html")

	statusCmd.Flags().BoolVar(&statusFollow, "follow", false, "stream job events")

	rootCmd.AddCommand(workerCmd, enqueueCmd, statusCmd)
}
