//go:build !cgo

package engine

import (
	"context"

	"github.com/ArmanBehnam/clark/internal/errors"
)

// TesseractEngine is unavailable without cgo; it rejects every input so the
// orchestrator skips it.
type TesseractEngine struct {
	desc Descriptor
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Priority int
	Language string
}

// NewTesseractEngine creates a placeholder engine for builds without cgo.
func NewTesseractEngine(cfg TesseractConfig) *TesseractEngine {
	return &TesseractEngine{desc: Descriptor{Name: "tesseract", Priority: cfg.Priority, Cost: CostLocal}}
}

func (t *TesseractEngine) Descriptor() Descriptor { return t.desc }

func (t *TesseractEngine) Supports(InputDescriptor) bool { return false }

func (t *TesseractEngine) Recognize(context.Context, Input, Options) (*Recognition, error) {
	return nil, errors.NewEngineError(t.desc.Name, errors.KindUnsupportedInput, "built without cgo", nil)
}
