package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ArmanBehnam/clark/internal/export"
	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/storage"
)

var (
	processFlags  pipelineFlags
	processOutDir string
	processFormat string
	processStore  bool
)

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Extract one document",
	Long: `Run one PDF or page image through the extraction pipeline.

Without --output-dir the result is written to stdout.

Examples:
  clark process S-001.pdf                          # JSON to stdout
  clark process S-001.pdf -d out --format html     # out/S-001_report.html
  clark process S-001.pdf --keywords "FOUNDATION NOTES" --engines tesseract
  clark process S-001.pdf -d out --store           # also write to PostgreSQL/Qdrant`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		format, err := export.ParseFormat(processFormat)
		if err != nil {
			return err
		}
		proc, _, err := newProcessor(cfg)
		if err != nil {
			return err
		}

		path := args[0]
		opts := processFlags.options()

		var (
			sm          *storage.StorageManager
			fingerprint string
		)
		if processStore {
			if sm, err = storage.Open(ctx, cfg.Storage); err != nil {
				return err
			}
			defer sm.Close()
			if !sm.Enabled() {
				return fmt.Errorf("--store needs storage.database_url or storage.qdrant_url")
			}
			if fingerprint, err = storage.Fingerprint(path); err != nil {
				return err
			}
			if id, err := sm.KnownDocument(ctx, fingerprint); err == nil && id != "" {
				opts.DocumentID = id
			}
		}

		res, err := proc.Process(ctx, path, opts)
		if err != nil {
			return err
		}

		if processOutDir == "" {
			if err := export.Encode(os.Stdout, res, format); err != nil {
				return err
			}
		} else {
			out, err := export.WriteFile(processOutDir, res, format)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Result written to %s\n", out)
		}

		if sm != nil {
			if err := sm.StoreResult(ctx, res, fingerprint); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Result stored as document %s\n", res.DocumentID)
		}

		printSummary(os.Stderr, res)
		return nil
	},
}

func init() {
	processFlags.register(processCmd)
	processCmd.Flags().StringVarP(&processOutDir, "output-dir", "d", "", "directory for the result file (default: stdout)")
	processCmd.Flags().StringVarP(&processFormat, "format", "f", "json", "output format: json, yaml or html")
	processCmd.Flags().BoolVar(&processStore, "store", false, "store the result in the configured sinks")
	rootCmd.AddCommand(processCmd)
}

func printSummary(w io.Writer, res *model.ExtractionResult) {
	fmt.Fprintf(w, "\n%s\n", res.Filename)
	fmt.Fprintf(w, "  Document:   %s\n", res.DocumentID)
	fmt.Fprintf(w, "  Type:       %s (%.2f)\n", res.DocumentType, res.ClassificationConfidence)
	fmt.Fprintf(w, "  Confidence: %.2f\n", res.Confidence)
	fmt.Fprintf(w, "  Pages:      %d (%s, engine %s)\n", res.TotalPages, res.ProcessingMethod, res.Metrics.OCREngineUsed)
	fmt.Fprintf(w, "  Elements:   %d, tables %d\n", len(res.Elements), len(res.Tables))
	if res.KeywordFilter != nil {
		kf := res.KeywordFilter
		fmt.Fprintf(w, "  Keywords:   %d of %d pages", kf.TotalMatchingPages, kf.Summary.TotalPages)
		if kf.FallbackUsed {
			fmt.Fprint(w, " (full text fallback)")
		} else if len(kf.KeywordsFound) > 0 {
			fmt.Fprintf(w, " [%s]", strings.Join(kf.KeywordsFound, ", "))
		}
		fmt.Fprintln(w)
	}
	for _, category := range slices.Sorted(maps.Keys(res.StructuredData)) {
		matches := res.StructuredData[category]
		if len(matches) == 0 {
			continue
		}
		values := make([]string, 0, len(matches))
		for _, m := range matches {
			values = append(values, m.Value)
		}
		fmt.Fprintf(w, "  %-24s %s\n", category+":", strings.Join(values, "; "))
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	fmt.Fprintf(w, "  Time:       %.2fs\n", res.Metrics.ProcessingTime)
}
