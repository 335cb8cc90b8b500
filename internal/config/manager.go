package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/ArmanBehnam/clark/internal/logging"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
	logger    *logging.Logger
}

// NewManager creates a new config manager and loads initial config.
// An empty cfgFile searches ./config.yaml and $HOME/.clark/config.yaml.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    logging.NewLogger("config"),
	}

	if cfgFile == "" {
		cfgFile = getEnvOrDefault("CLARK_CONFIG", "")
	}
	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// LoadDotEnv loads .env files into the process environment. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	setDefaults(cm.v, DefaultConfig())

	// Environment variables with CLARK_ prefix, e.g. CLARK_OCR_MAX_RETRIES
	cm.v.SetEnvPrefix("CLARK")
	cm.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cm.v.AutomaticEnv()

	if cfgFile != "" {
		cm.v.SetConfigFile(cfgFile)
	} else {
		cm.v.SetConfigName("config")
		cm.v.SetConfigType("yaml")
		cm.v.AddConfigPath(".")
		cm.v.AddConfigPath("$HOME/.clark")
	}

	// Try to read config file (not required)
	if err := cm.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if unknown := cm.unknownKeys(); len(unknown) > 0 {
		cm.logger.Warn("Ignoring unknown configuration keys", "keys", strings.Join(unknown, ","))
	}

	return nil
}

// load parses the current viper state into a validated Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFileUsed returns the path of the loaded file, or "" when running on defaults.
func (cm *Manager) ConfigFileUsed() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. Invalid edits are logged
// and the previous configuration stays active.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			cm.logger.Warn("Rejected configuration reload", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		cm.logger.Info("Configuration reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// unknownKeys lists keys present in the loaded file that no option recognizes.
func (cm *Manager) unknownKeys() []string {
	known := viper.New()
	setDefaults(known, DefaultConfig())
	knownSet := make(map[string]bool)
	for _, k := range known.AllKeys() {
		knownSet[k] = true
	}

	var unknown []string
	for _, k := range cm.v.AllKeys() {
		if knownSet[k] || strings.HasPrefix(k, "ocr.engines.") || strings.HasPrefix(k, "patterns.custom") {
			continue
		}
		unknown = append(unknown, k)
	}
	sort.Strings(unknown)
	return unknown
}

// setDefaults registers every leaf key so env overrides and unknown key detection work.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("ocr.preferred_engine", d.OCR.PreferredEngine)
	v.SetDefault("ocr.fallback_engines", d.OCR.FallbackEngines)
	v.SetDefault("ocr.confidence_threshold", d.OCR.ConfidenceThreshold)
	v.SetDefault("ocr.timeout_seconds", d.OCR.TimeoutSeconds)
	v.SetDefault("ocr.max_retries", d.OCR.MaxRetries)
	v.SetDefault("ocr.backoff_base_ms", d.OCR.BackoffBaseMS)
	v.SetDefault("ocr.backoff_multiplier", d.OCR.BackoffMultiplier)
	v.SetDefault("ocr.cost_tie_break", d.OCR.CostTieBreak)
	v.SetDefault("ocr.cost_margin", d.OCR.CostMargin)
	v.SetDefault("ocr.language", d.OCR.Language)
	v.SetDefault("ocr.force", d.OCR.Force)
	for name, e := range d.OCR.Engines {
		prefix := "ocr.engines." + name + "."
		v.SetDefault(prefix+"enabled", e.Enabled)
		v.SetDefault(prefix+"priority", e.Priority)
		v.SetDefault(prefix+"api_key", e.APIKey)
		v.SetDefault(prefix+"endpoint", e.Endpoint)
		v.SetDefault(prefix+"model", e.Model)
		v.SetDefault(prefix+"base_url", e.BaseURL)
		v.SetDefault(prefix+"rate_limit", e.RateLimit)
	}

	v.SetDefault("processing.use_image_enhancement", d.Processing.UseImageEnhancement)
	v.SetDefault("processing.use_table_detection", d.Processing.UseTableDetection)
	v.SetDefault("processing.image_scale_factor", d.Processing.ImageScaleFactor)
	v.SetDefault("processing.table_confidence_threshold", d.Processing.TableConfidenceThreshold)
	v.SetDefault("processing.table_iou_threshold", d.Processing.TableIoUThreshold)
	v.SetDefault("processing.render_dpi", d.Processing.RenderDPI)
	v.SetDefault("processing.max_cell_reocr", d.Processing.MaxCellReOCR)
	v.SetDefault("processing.workers", d.Processing.Workers)
	v.SetDefault("processing.temp_dir", d.Processing.TempDir)

	v.SetDefault("patterns.context_window", d.Patterns.ContextWindow)
	v.SetDefault("patterns.custom", []map[string]interface{}{})

	v.SetDefault("spatial.keywords", d.Spatial.Keywords)
	v.SetDefault("spatial.gap_x", d.Spatial.GapX)
	v.SetDefault("spatial.gap_y", d.Spatial.GapY)

	v.SetDefault("classifier.min_confidence", d.Classifier.MinConfidence)

	v.SetDefault("security.max_file_size_mb", d.Security.MaxFileSizeMB)
	v.SetDefault("security.allowed_file_extensions", d.Security.AllowedFileExtensions)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("queue.redis_url", d.Queue.RedisURL)
	v.SetDefault("queue.name", d.Queue.Name)
	v.SetDefault("queue.concurrency", d.Queue.Concurrency)
	v.SetDefault("queue.processing_timeout_seconds", d.Queue.ProcessingTimeout)
	v.SetDefault("queue.output_dir", d.Queue.OutputDir)

	v.SetDefault("storage.database_url", d.Storage.DatabaseURL)
	v.SetDefault("storage.qdrant_url", d.Storage.QdrantURL)
	v.SetDefault("storage.qdrant_collection", d.Storage.QdrantCollection)
	v.SetDefault("storage.voyage_api_key", d.Storage.VoyageAPIKey)
}

// applyEnvOverrides honors the conventional unprefixed variables used by the worker deployment.
func applyEnvOverrides(cfg *Config) {
	cfg.Queue.RedisURL = getEnvOrDefault("REDIS_URL", cfg.Queue.RedisURL)
	cfg.Queue.Concurrency = getEnvAsIntOrDefault("WORKER_CONCURRENCY", cfg.Queue.Concurrency)
	cfg.Processing.TempDir = getEnvOrDefault("TEMP_DIR", cfg.Processing.TempDir)
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	cfg.Processing.TempDir = ""
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# clark configuration
# Credentials use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell or in .env: AZURE_VISION_KEY, AZURE_VISION_ENDPOINT, OPENAI_API_KEY

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
