//go:build cgo

/**
 * Tesseract engine - local, offline OCR through gosseract
 *
 * Lines are read at RIL_TEXTLINE so section headings stay intact for the
 * keyword filter. Tesseract is not context aware; a cancelled call returns
 * TIMEOUT immediately and the native call finishes in the background.
 */

package engine

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/ArmanBehnam/clark/internal/errors"
	"github.com/ArmanBehnam/clark/internal/model"
)

// TesseractEngine runs Tesseract in-process.
type TesseractEngine struct {
	desc     Descriptor
	language string
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Priority int
	Language string
}

// NewTesseractEngine creates a new Tesseract engine
func NewTesseractEngine(cfg TesseractConfig) *TesseractEngine {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &TesseractEngine{
		desc: Descriptor{
			Name:     "tesseract",
			Priority: cfg.Priority,
			Capabilities: Capabilities{
				SupportsTables: false,
				MaxDimension:   32767,
			},
			Cost: CostLocal,
		},
		language: cfg.Language,
	}
}

func (t *TesseractEngine) Descriptor() Descriptor { return t.desc }

func (t *TesseractEngine) Supports(in InputDescriptor) bool {
	return SupportsInput(t.desc.Capabilities, in)
}

type tesseractOutcome struct {
	rec *Recognition
	err error
}

// Recognize performs OCR using Tesseract
func (t *TesseractEngine) Recognize(ctx context.Context, in Input, opts Options) (*Recognition, error) {
	lang := opts.Language
	if lang == "" {
		lang = t.language
	}

	done := make(chan tesseractOutcome, 1)
	go func() {
		rec, err := t.recognize(in, lang)
		done <- tesseractOutcome{rec: rec, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, errors.NewEngineError(t.desc.Name, errors.KindTimeout, "recognition cancelled", ctx.Err())
	case out := <-done:
		return out.rec, out.err
	}
}

func (t *TesseractEngine) recognize(in Input, lang string) (*Recognition, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Split(lang, "+")...); err != nil {
		return nil, errors.NewEngineError(t.desc.Name, errors.KindUnsupportedInput, "language not available", err)
	}
	if err := client.SetImageFromBytes(in.Image); err != nil {
		return nil, errors.NewEngineError(t.desc.Name, errors.KindUnsupportedInput, "failed to set image", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, errors.NewEngineError(t.desc.Name, errors.KindUnknown, "tesseract OCR failed", err)
	}

	elements := make([]model.ExtractedElement, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		elements = append(elements, model.ExtractedElement{
			Text:        text,
			ElementType: model.ElementText,
			PageNumber:  in.PageNumber,
			Confidence:  model.ClampConfidence(box.Confidence / 100.0),
			BBox:        model.BoxFromPixels(box.Box, in.Width, in.Height),
			Metadata: map[string]interface{}{
				"engine": t.desc.Name,
				"block":  box.BlockNum,
				"line":   box.LineNum,
			},
		})
	}

	return &Recognition{
		Elements:   elements,
		Confidence: averageConfidence(elements),
		RawMetadata: map[string]interface{}{
			"language": lang,
			"lines":    len(elements),
		},
	}, nil
}
