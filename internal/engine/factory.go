package engine

import (
	"fmt"
	"sort"

	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/logging"
)

// BuildRegistry registers every enabled engine from configuration, in ascending
// configured priority, and seals the registry. Engines that cannot be constructed
// (missing credentials) are skipped with a warning.
func BuildRegistry(cfg config.OCRConfig) (*Registry, error) {
	logger := logging.NewLogger("engines")
	reg := NewRegistry()

	names := make([]string, 0, len(cfg.Engines))
	for name, ec := range cfg.Engines {
		if ec.Enabled {
			names = append(names, name)
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		pi, pj := cfg.Engines[names[i]].Priority, cfg.Engines[names[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		ec := cfg.Engines[name].Resolved()
		e, err := newEngine(name, ec, cfg.Language)
		if err != nil {
			logger.Warn("Skipping engine", "engine", name, "error", err)
			continue
		}
		if err := reg.Register(e); err != nil {
			return nil, err
		}
		logger.Info("Registered engine",
			"engine", name,
			"priority", e.Descriptor().Priority,
			"cost", e.Descriptor().Cost.String())
	}

	reg.Seal()
	return reg, nil
}

func newEngine(name string, ec config.EngineConfig, language string) (Engine, error) {
	switch name {
	case config.EngineTesseract:
		return NewTesseractEngine(TesseractConfig{Priority: ec.Priority, Language: language}), nil
	case config.EngineAzureRead:
		return NewAzureReadEngine(AzureReadConfig{
			Endpoint:  ec.Endpoint,
			APIKey:    ec.APIKey,
			Priority:  ec.Priority,
			RateLimit: ec.RateLimit,
		})
	case config.EngineOpenAIVision:
		return NewOpenAIVisionEngine(OpenAIVisionConfig{
			APIKey:    ec.APIKey,
			BaseURL:   ec.BaseURL,
			Model:     ec.Model,
			Priority:  ec.Priority,
			RateLimit: ec.RateLimit,
		})
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}
