package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ArmanBehnam/clark/internal/export"
	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/processor"
)

var (
	batchFlags   pipelineFlags
	batchOutDir  string
	batchFormat  string
	batchWorkers int
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Extract every supported document in a directory",
	Long: `Process every file under a directory whose extension is allowed by
security.allowed_file_extensions. A failing document is recorded in the batch
report and never stops the others.

Writes one result file per document plus batch_report.json.

Examples:
  clark batch ./drawings -d out
  clark batch ./drawings -d out --workers 8 --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		format, err := export.ParseFormat(batchFormat)
		if err != nil {
			return err
		}
		files, err := processor.CollectFiles(args[0], cfg.Security.AllowedFileExtensions)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no supported files found in %s", args[0])
		}
		proc, _, err := newProcessor(cfg)
		if err != nil {
			return err
		}

		var (
			mu         sync.Mutex
			writeFails []export.BatchError
		)
		batch := processor.NewBatch(proc, batchWorkers, batchFlags.options())
		batch.OnResult = func(file string, res *model.ExtractionResult) {
			out, err := export.WriteFile(batchOutDir, res, format)
			if err != nil {
				mu.Lock()
				writeFails = append(writeFails, export.BatchError{File: file, Error: err.Error()})
				mu.Unlock()
				return
			}
			fmt.Fprintf(os.Stderr, "  %-40s %-20s %.2f -> %s\n", res.Filename, res.DocumentType, res.Confidence, out)
		}

		fmt.Fprintf(os.Stderr, "Processing %d files...\n", len(files))
		rep, runErr := batch.Run(ctx, files)
		if rep == nil {
			return runErr
		}

		report := export.BatchReport{
			TotalFiles: rep.TotalFiles,
			Successful: rep.Successful,
			Failed:     rep.Failed,
		}
		for _, res := range rep.Results {
			report.Results = append(report.Results, export.FromResult(res))
		}
		for _, e := range rep.Errors {
			report.Errors = append(report.Errors, export.BatchError{File: e.File, Error: e.Error})
		}
		report.Errors = append(report.Errors, writeFails...)
		report.Successful -= len(writeFails)
		report.Failed += len(writeFails)

		path, err := export.WriteBatchReport(batchOutDir, report)
		if err != nil {
			return err
		}

		snap := proc.Aggregator().Snapshot()
		fmt.Fprintf(os.Stderr, "\n%d/%d succeeded, %d failed, %d degraded\n", report.Successful, report.TotalFiles, report.Failed, snap.Degraded)
		fmt.Fprintf(os.Stderr, "Average confidence %.2f, average time %.2fs, %d tables\n", snap.AvgConfidence, snap.AvgProcessingTime, snap.Tables)
		for _, e := range report.Errors {
			fmt.Fprintf(os.Stderr, "  failed: %s: %s\n", e.File, e.Error)
		}
		fmt.Fprintf(os.Stderr, "Report written to %s\n", path)
		return runErr
	},
}

func init() {
	batchFlags.register(batchCmd)
	batchCmd.Flags().StringVarP(&batchOutDir, "output-dir", "d", "output", "directory for result files and batch_report.json")
	batchCmd.Flags().StringVarP(&batchFormat, "format", "f", "json", "output format: json, yaml or html")
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 0, "parallel documents (default: processing.workers)")
	rootCmd.AddCommand(batchCmd)
}
