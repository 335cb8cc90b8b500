/**
 * Configuration for the clark extraction pipeline
 *
 * Every recognized key is enumerated here with its default. Files are loaded by
 * Manager (viper); credentials are referenced as ${ENV_VAR} and resolved only by
 * the engine or sink that consumes them.
 */

package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Config holds the full pipeline configuration
type Config struct {
	OCR        OCRConfig        `mapstructure:"ocr" yaml:"ocr"`
	Processing ProcessingConfig `mapstructure:"processing" yaml:"processing"`
	Patterns   PatternsConfig   `mapstructure:"patterns" yaml:"patterns"`
	Spatial    SpatialConfig    `mapstructure:"spatial" yaml:"spatial"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Security   SecurityConfig   `mapstructure:"security" yaml:"security"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Queue      QueueConfig      `mapstructure:"queue" yaml:"queue"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
}

// OCRConfig controls engine selection and the retry policy.
type OCRConfig struct {
	PreferredEngine     string                  `mapstructure:"preferred_engine" yaml:"preferred_engine"`
	FallbackEngines     []string                `mapstructure:"fallback_engines" yaml:"fallback_engines"`
	ConfidenceThreshold float64                 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	TimeoutSeconds      int                     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries          int                     `mapstructure:"max_retries" yaml:"max_retries"`
	BackoffBaseMS       int                     `mapstructure:"backoff_base_ms" yaml:"backoff_base_ms"`
	BackoffMultiplier   float64                 `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
	CostTieBreak        bool                    `mapstructure:"cost_tie_break" yaml:"cost_tie_break"`
	CostMargin          float64                 `mapstructure:"cost_margin" yaml:"cost_margin"`
	Language            string                  `mapstructure:"language" yaml:"language"`
	Force               bool                    `mapstructure:"force" yaml:"force"`
	Engines             map[string]EngineConfig `mapstructure:"engines" yaml:"engines"`
}

// EngineConfig is the per-binding section under ocr.engines.
type EngineConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Priority  int    `mapstructure:"priority" yaml:"priority"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Model     string `mapstructure:"model" yaml:"model,omitempty"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	RateLimit int    `mapstructure:"rate_limit" yaml:"rate_limit,omitempty"` // requests per minute
}

// ProcessingConfig controls preprocessing, table detection and batch concurrency.
type ProcessingConfig struct {
	UseImageEnhancement      bool    `mapstructure:"use_image_enhancement" yaml:"use_image_enhancement"`
	UseTableDetection        bool    `mapstructure:"use_table_detection" yaml:"use_table_detection"`
	ImageScaleFactor         float64 `mapstructure:"image_scale_factor" yaml:"image_scale_factor"`
	TableConfidenceThreshold float64 `mapstructure:"table_confidence_threshold" yaml:"table_confidence_threshold"`
	TableIoUThreshold        float64 `mapstructure:"table_iou_threshold" yaml:"table_iou_threshold"`
	RenderDPI                int     `mapstructure:"render_dpi" yaml:"render_dpi"`
	MaxCellReOCR             int     `mapstructure:"max_cell_reocr" yaml:"max_cell_reocr"`
	Workers                  int     `mapstructure:"workers" yaml:"workers"`
	TempDir                  string  `mapstructure:"temp_dir" yaml:"temp_dir"`
}

// CustomPattern is a user supplied rule added to the built-in catalog.
type CustomPattern struct {
	Category        string   `mapstructure:"category" yaml:"category"`
	Pattern         string   `mapstructure:"pattern" yaml:"pattern"`
	Weight          float64  `mapstructure:"weight" yaml:"weight"`
	ContextKeywords []string `mapstructure:"context_keywords" yaml:"context_keywords,omitempty"`
}

type PatternsConfig struct {
	ContextWindow int             `mapstructure:"context_window" yaml:"context_window"`
	Custom        []CustomPattern `mapstructure:"custom" yaml:"custom"`
}

type SpatialConfig struct {
	Keywords []string `mapstructure:"keywords" yaml:"keywords"`
	GapX     float64  `mapstructure:"gap_x" yaml:"gap_x"`
	GapY     float64  `mapstructure:"gap_y" yaml:"gap_y"`
}

type ClassifierConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
}

// SecurityConfig bounds what the validator accepts.
type SecurityConfig struct {
	MaxFileSizeMB         int      `mapstructure:"max_file_size_mb" yaml:"max_file_size_mb"`
	AllowedFileExtensions []string `mapstructure:"allowed_file_extensions" yaml:"allowed_file_extensions"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// QueueConfig configures the asynq worker and Redis job events.
type QueueConfig struct {
	RedisURL          string `mapstructure:"redis_url" yaml:"redis_url"`
	Name              string `mapstructure:"name" yaml:"name"`
	Concurrency       int    `mapstructure:"concurrency" yaml:"concurrency"`
	ProcessingTimeout int    `mapstructure:"processing_timeout_seconds" yaml:"processing_timeout_seconds"`
	OutputDir         string `mapstructure:"output_dir" yaml:"output_dir"`
}

// StorageConfig configures the optional result sinks. Empty values disable a sink.
type StorageConfig struct {
	DatabaseURL      string `mapstructure:"database_url" yaml:"database_url"`
	QdrantURL        string `mapstructure:"qdrant_url" yaml:"qdrant_url"`
	QdrantCollection string `mapstructure:"qdrant_collection" yaml:"qdrant_collection"`
	VoyageAPIKey     string `mapstructure:"voyage_api_key" yaml:"voyage_api_key"`
}

// Engine names known to the engine factory.
const (
	EngineTesseract    = "tesseract"
	EngineAzureRead    = "azure_read"
	EngineOpenAIVision = "openai_vision"
)

// DefaultKeywords are the section headings used by the keyword filter.
var DefaultKeywords = []string{
	"STRUCTURAL STEEL NOTES",
	"DESIGN CRITERIA",
	"GENERAL STRUCTURAL NOTES",
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		OCR: OCRConfig{
			PreferredEngine:     "",
			FallbackEngines:     []string{},
			ConfidenceThreshold: 0.7,
			TimeoutSeconds:      60,
			MaxRetries:          3,
			BackoffBaseMS:       1000,
			BackoffMultiplier:   2.0,
			CostTieBreak:        true,
			CostMargin:          0.05,
			Language:            "eng",
			Engines: map[string]EngineConfig{
				EngineTesseract: {
					Enabled:  true,
					Priority: 10,
				},
				EngineAzureRead: {
					Enabled:   false,
					Priority:  20,
					APIKey:    "${AZURE_VISION_KEY}",
					Endpoint:  "${AZURE_VISION_ENDPOINT}",
					RateLimit: 20,
				},
				EngineOpenAIVision: {
					Enabled:   false,
					Priority:  30,
					APIKey:    "${OPENAI_API_KEY}",
					Model:     "gpt-4o-mini",
					RateLimit: 60,
				},
			},
		},
		Processing: ProcessingConfig{
			UseImageEnhancement:      true,
			UseTableDetection:        true,
			ImageScaleFactor:         1.5,
			TableConfidenceThreshold: 0.5,
			TableIoUThreshold:        0.5,
			RenderDPI:                200,
			MaxCellReOCR:             64,
			Workers:                  4,
			TempDir:                  os.TempDir(),
		},
		Patterns: PatternsConfig{
			ContextWindow: 100,
			Custom:        []CustomPattern{},
		},
		Spatial: SpatialConfig{
			Keywords: []string{},
			GapX:     0.02,
			GapY:     0.015,
		},
		Classifier: ClassifierConfig{
			MinConfidence: 0.3,
		},
		Security: SecurityConfig{
			MaxFileSizeMB:         100,
			AllowedFileExtensions: []string{".pdf", ".png", ".jpg", ".jpeg", ".tif", ".tiff"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Queue: QueueConfig{
			RedisURL:          "redis://localhost:6379/0",
			Name:              "clark",
			Concurrency:       4,
			ProcessingTimeout: 600,
			OutputDir:         "./output",
		},
		Storage: StorageConfig{
			DatabaseURL:      "${DATABASE_URL}",
			QdrantURL:        "${QDRANT_URL}",
			QdrantCollection: "clark_documents",
			VoyageAPIKey:     "${VOYAGE_API_KEY}",
		},
	}
}

// Validate checks value ranges. It does not check credentials, which are only
// required by the engines and sinks that are enabled.
func (c *Config) Validate() error {
	if c.OCR.ConfidenceThreshold < 0 || c.OCR.ConfidenceThreshold > 1 {
		return fmt.Errorf("ocr.confidence_threshold must be between 0 and 1, got %v", c.OCR.ConfidenceThreshold)
	}
	if c.OCR.TimeoutSeconds < 1 || c.OCR.TimeoutSeconds > 3600 {
		return fmt.Errorf("ocr.timeout_seconds must be between 1 and 3600, got %d", c.OCR.TimeoutSeconds)
	}
	if c.OCR.MaxRetries < 0 || c.OCR.MaxRetries > 10 {
		return fmt.Errorf("ocr.max_retries must be between 0 and 10, got %d", c.OCR.MaxRetries)
	}
	if c.OCR.BackoffBaseMS < 0 {
		return fmt.Errorf("ocr.backoff_base_ms must not be negative, got %d", c.OCR.BackoffBaseMS)
	}
	if c.OCR.BackoffMultiplier < 1 {
		return fmt.Errorf("ocr.backoff_multiplier must be at least 1, got %v", c.OCR.BackoffMultiplier)
	}
	if c.OCR.CostMargin < 0 || c.OCR.CostMargin > 1 {
		return fmt.Errorf("ocr.cost_margin must be between 0 and 1, got %v", c.OCR.CostMargin)
	}
	if c.OCR.PreferredEngine != "" {
		if _, ok := c.OCR.Engines[c.OCR.PreferredEngine]; !ok {
			return fmt.Errorf("ocr.preferred_engine %q is not configured under ocr.engines", c.OCR.PreferredEngine)
		}
	}
	for _, name := range c.OCR.FallbackEngines {
		if _, ok := c.OCR.Engines[name]; !ok {
			return fmt.Errorf("ocr.fallback_engines entry %q is not configured under ocr.engines", name)
		}
	}

	if c.Processing.ImageScaleFactor <= 0 || c.Processing.ImageScaleFactor > 4 {
		return fmt.Errorf("processing.image_scale_factor must be in (0, 4], got %v", c.Processing.ImageScaleFactor)
	}
	if c.Processing.TableConfidenceThreshold < 0 || c.Processing.TableConfidenceThreshold > 1 {
		return fmt.Errorf("processing.table_confidence_threshold must be between 0 and 1, got %v", c.Processing.TableConfidenceThreshold)
	}
	if c.Processing.TableIoUThreshold <= 0 || c.Processing.TableIoUThreshold > 1 {
		return fmt.Errorf("processing.table_iou_threshold must be in (0, 1], got %v", c.Processing.TableIoUThreshold)
	}
	if c.Processing.RenderDPI < 50 || c.Processing.RenderDPI > 600 {
		return fmt.Errorf("processing.render_dpi must be between 50 and 600, got %d", c.Processing.RenderDPI)
	}
	if c.Processing.Workers < 1 || c.Processing.Workers > 64 {
		return fmt.Errorf("processing.workers must be between 1 and 64, got %d", c.Processing.Workers)
	}

	if c.Patterns.ContextWindow < 0 {
		return fmt.Errorf("patterns.context_window must not be negative, got %d", c.Patterns.ContextWindow)
	}
	for i, p := range c.Patterns.Custom {
		if p.Category == "" || p.Pattern == "" {
			return fmt.Errorf("patterns.custom[%d] requires category and pattern", i)
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return fmt.Errorf("patterns.custom[%d] has an invalid pattern: %w", i, err)
		}
		if p.Weight < 0 || p.Weight > 1 {
			return fmt.Errorf("patterns.custom[%d].weight must be between 0 and 1, got %v", i, p.Weight)
		}
	}

	if c.Spatial.GapX < 0 || c.Spatial.GapY < 0 {
		return fmt.Errorf("spatial gaps must not be negative")
	}
	if c.Classifier.MinConfidence < 0 || c.Classifier.MinConfidence > 1 {
		return fmt.Errorf("classifier.min_confidence must be between 0 and 1, got %v", c.Classifier.MinConfidence)
	}

	if c.Security.MaxFileSizeMB < 1 || c.Security.MaxFileSizeMB > 10240 {
		return fmt.Errorf("security.max_file_size_mb must be between 1 and 10240, got %d", c.Security.MaxFileSizeMB)
	}
	if len(c.Security.AllowedFileExtensions) == 0 {
		return fmt.Errorf("security.allowed_file_extensions must not be empty")
	}
	for _, ext := range c.Security.AllowedFileExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("security.allowed_file_extensions entry %q must start with a dot", ext)
		}
	}

	if c.Queue.Concurrency < 1 || c.Queue.Concurrency > 100 {
		return fmt.Errorf("queue.concurrency must be between 1 and 100, got %d", c.Queue.Concurrency)
	}

	return nil
}

// Keywords returns the default section keywords followed by configured extras, deduplicated.
func (c *Config) Keywords() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(DefaultKeywords)+len(c.Spatial.Keywords))
	for _, kw := range append(append([]string{}, DefaultKeywords...), c.Spatial.Keywords...) {
		key := strings.ToUpper(strings.TrimSpace(kw))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
	}
	return out
}

// MaxFileSizeBytes converts the configured limit to bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.Security.MaxFileSizeMB) * 1024 * 1024
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolved returns a copy of the engine config with ${ENV_VAR} references expanded.
func (e EngineConfig) Resolved() EngineConfig {
	e.APIKey = ResolveEnvVars(e.APIKey)
	e.Endpoint = ResolveEnvVars(e.Endpoint)
	e.BaseURL = ResolveEnvVars(e.BaseURL)
	return e
}

// Resolved returns a copy of the storage config with ${ENV_VAR} references expanded.
func (s StorageConfig) Resolved() StorageConfig {
	s.DatabaseURL = ResolveEnvVars(s.DatabaseURL)
	s.QdrantURL = ResolveEnvVars(s.QdrantURL)
	s.VoyageAPIKey = ResolveEnvVars(s.VoyageAPIKey)
	return s
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
