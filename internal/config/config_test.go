package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.OCR.ConfidenceThreshold != 0.7 {
		t.Errorf("confidence_threshold = %v", cfg.OCR.ConfidenceThreshold)
	}
	if cfg.Processing.TableIoUThreshold != 0.5 {
		t.Errorf("table_iou_threshold = %v", cfg.Processing.TableIoUThreshold)
	}
	if cfg.Security.MaxFileSizeMB != 100 {
		t.Errorf("max_file_size_mb = %v", cfg.Security.MaxFileSizeMB)
	}
	if cfg.OCR.Engines[EngineAzureRead].APIKey != "${AZURE_VISION_KEY}" {
		t.Error("expected azure key placeholder")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"threshold above one", func(c *Config) { c.OCR.ConfidenceThreshold = 1.5 }, "confidence_threshold"},
		{"negative retries", func(c *Config) { c.OCR.MaxRetries = -1 }, "max_retries"},
		{"unknown preferred engine", func(c *Config) { c.OCR.PreferredEngine = "nope" }, "preferred_engine"},
		{"unknown fallback engine", func(c *Config) { c.OCR.FallbackEngines = []string{"tesseract", "nope"} }, "fallback_engines"},
		{"zero scale", func(c *Config) { c.Processing.ImageScaleFactor = 0 }, "image_scale_factor"},
		{"iou zero", func(c *Config) { c.Processing.TableIoUThreshold = 0 }, "table_iou_threshold"},
		{"bad extension", func(c *Config) { c.Security.AllowedFileExtensions = []string{"pdf"} }, "allowed_file_extensions"},
		{"bad custom pattern", func(c *Config) {
			c.Patterns.Custom = []CustomPattern{{Category: "x", Pattern: "([", Weight: 0.5}}
		}, "invalid pattern"},
		{"valid custom pattern", func(c *Config) {
			c.Patterns.Custom = []CustomPattern{{Category: "x", Pattern: `ACI\s?318`, Weight: 0.5}}
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestKeywords(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Spatial.Keywords = []string{"design criteria", "FOUNDATION NOTES"}

	got := cfg.Keywords()
	if len(got) != 4 {
		t.Fatalf("expected 4 deduplicated keywords, got %v", got)
	}
	if got[3] != "FOUNDATION NOTES" {
		t.Errorf("expected configured keyword last, got %v", got)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		os.Setenv("CLARK_TEST_KEY", "secret123")
		defer os.Unsetenv("CLARK_TEST_KEY")

		if got := ResolveEnvVars("${CLARK_TEST_KEY}"); got != "secret123" {
			t.Errorf("expected secret123, got %s", got)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		if got := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}"); got != "" {
			t.Errorf("expected empty string, got %s", got)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		if got := ResolveEnvVars("literal-value"); got != "literal-value" {
			t.Errorf("expected literal-value, got %s", got)
		}
	})
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")

		content := `
ocr:
  preferred_engine: azure_read
  fallback_engines: [tesseract]
  confidence_threshold: 0.8
  engines:
    azure_read:
      enabled: true
processing:
  use_table_detection: false
security:
  max_file_size_mb: 20
mystery_key: 1
`
		if err := os.WriteFile(configFile, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("NewManager failed: %v", err)
		}
		cfg := mgr.Get()

		if cfg.OCR.PreferredEngine != EngineAzureRead {
			t.Errorf("preferred_engine = %q", cfg.OCR.PreferredEngine)
		}
		if cfg.OCR.ConfidenceThreshold != 0.8 {
			t.Errorf("confidence_threshold = %v", cfg.OCR.ConfidenceThreshold)
		}
		if !cfg.OCR.Engines[EngineAzureRead].Enabled {
			t.Error("expected azure_read enabled")
		}
		if cfg.OCR.Engines[EngineAzureRead].Priority != 20 {
			t.Errorf("expected default priority to survive partial override, got %d", cfg.OCR.Engines[EngineAzureRead].Priority)
		}
		if cfg.Processing.UseTableDetection {
			t.Error("expected table detection disabled")
		}
		if cfg.Processing.ImageScaleFactor != 1.5 {
			t.Errorf("missing key should take default, got %v", cfg.Processing.ImageScaleFactor)
		}
		if cfg.MaxFileSizeBytes() != 20*1024*1024 {
			t.Errorf("MaxFileSizeBytes = %d", cfg.MaxFileSizeBytes())
		}
		if unknown := mgr.unknownKeys(); len(unknown) != 1 || unknown[0] != "mystery_key" {
			t.Errorf("unknownKeys = %v", unknown)
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		configFile := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configFile, []byte("ocr:\n  confidence_threshold: 2\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewManager(configFile); err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("env prefix overrides", func(t *testing.T) {
		configFile := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configFile, []byte("ocr:\n  max_retries: 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		os.Setenv("CLARK_OCR_MAX_RETRIES", "5")
		defer os.Unsetenv("CLARK_OCR_MAX_RETRIES")

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatal(err)
		}
		if mgr.Get().OCR.MaxRetries != 5 {
			t.Errorf("max_retries = %d, want 5", mgr.Get().OCR.MaxRetries)
		}
	})
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("written default does not load: %v", err)
	}
	if mgr.ConfigFileUsed() != path {
		t.Errorf("ConfigFileUsed = %q", mgr.ConfigFileUsed())
	}
	if mgr.Get().OCR.Engines[EngineTesseract].Priority != 10 {
		t.Error("expected tesseract priority 10")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("CLARK_DOTENV_TEST=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	defer os.Unsetenv("CLARK_DOTENV_TEST")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), envFile); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if os.Getenv("CLARK_DOTENV_TEST") != "from-dotenv" {
		t.Error("expected variable from .env")
	}
}
