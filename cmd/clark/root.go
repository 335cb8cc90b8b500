package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/engine"
	"github.com/ArmanBehnam/clark/internal/logging"
	"github.com/ArmanBehnam/clark/internal/processor"
)

// Set with -ldflags "-X main.version=..."
var version = "dev"

var (
	cfgFile   string
	envFile   string
	logLevel  string
	logFormat string

	cfgManager *config.Manager
)

var rootCmd = &cobra.Command{
	Use:   "clark",
	Short: "OCR extraction for engineering drawings and specifications",
	Long: `clark turns engineering PDFs and page images into structured data.

Each document runs through one pipeline:
  - PDF text layer, with OCR for pages that lack one
  - Multi-engine OCR (Tesseract, Azure Read, OpenAI vision) with retry and fallback
  - Table detection, engineering pattern extraction and keyword filtering
  - Document classification with an overall confidence score

Results are written as JSON (validated against the output contract), YAML or an
HTML report, and can be stored in PostgreSQL and Qdrant.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		logging.Setup(logLevel, logFormat, os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.clark/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (default from config)")
}

// loadConfig reads and validates the configuration and applies its logging
// settings unless overridden by flags.
func loadConfig() (*config.Config, error) {
	if cfgManager != nil {
		return cfgManager.Get(), nil
	}
	cm, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	cfgManager = cm
	cfg := cm.Get()
	setupLogging(cfg)
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	level, format := cfg.Logging.Level, cfg.Logging.Format
	if logLevel != "" {
		level = logLevel
	}
	if logFormat != "" {
		format = logFormat
	}
	logging.Setup(level, format, os.Stderr)
}

// newProcessor builds the engine registry and the pipeline.
func newProcessor(cfg *config.Config) (*processor.Processor, *engine.Registry, error) {
	reg, err := engine.BuildRegistry(cfg.OCR)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build engine registry: %w", err)
	}
	proc, err := processor.NewProcessor(cfg, reg)
	if err != nil {
		return nil, nil, err
	}
	return proc, reg, nil
}

// pipelineFlags are the per-document switches shared by process, batch and enqueue.
type pipelineFlags struct {
	noOCR      bool
	noTables   bool
	noPatterns bool
	noEnhance  bool
	keywords   []string
	engines    []string
}

func (f *pipelineFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noOCR, "no-ocr", false, "use the PDF text layer only")
	cmd.Flags().BoolVar(&f.noTables, "no-tables", false, "skip table detection")
	cmd.Flags().BoolVar(&f.noPatterns, "no-patterns", false, "skip engineering pattern extraction")
	cmd.Flags().BoolVar(&f.noEnhance, "no-enhance", false, "skip image enhancement before OCR")
	cmd.Flags().StringSliceVar(&f.keywords, "keywords", nil, "section keywords (replaces the configured list)")
	cmd.Flags().StringSliceVar(&f.engines, "engines", nil, "OCR engine order, e.g. tesseract,azure_read")
}

func (f *pipelineFlags) options() processor.Options {
	return processor.Options{
		DisableOCR:         f.noOCR,
		DisableTables:      f.noTables,
		DisablePatterns:    f.noPatterns,
		DisableEnhancement: f.noEnhance,
		Keywords:           trimAll(f.keywords),
		Engines:            trimAll(f.engines),
	}
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
