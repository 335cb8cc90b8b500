/**
 * Engine - uniform capability contract for OCR backends
 *
 * Every backend (local Tesseract, cloud OCR, vision LLM) implements Engine and is
 * dispatched through the Registry. Selection, retry and fallback live in the ocr
 * package; engines only recognize one image and classify their own failures.
 */

package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ArmanBehnam/clark/internal/model"
)

// CostClass orders engines by cost. Lower is cheaper.
type CostClass int

const (
	CostFree CostClass = iota
	CostLocal
	CostPaid
)

func (c CostClass) String() string {
	switch c {
	case CostFree:
		return "free"
	case CostLocal:
		return "local"
	case CostPaid:
		return "paid"
	default:
		return fmt.Sprintf("cost(%d)", int(c))
	}
}

// Capabilities are the static input constraints of an engine.
type Capabilities struct {
	SupportsTables  bool
	MaxInputBytes   int64 // 0 means unlimited
	MaxDimension    int   // longest image side in pixels, 0 means unlimited
	RequiresNetwork bool
}

// Descriptor is the immutable identity of an engine.
type Descriptor struct {
	Name         string
	Priority     int
	Capabilities Capabilities
	Cost         CostClass
}

// InputDescriptor summarizes an input image for capability filtering.
type InputDescriptor struct {
	SizeBytes int64
	Width     int
	Height    int
	Format    string
}

// Input is one encoded page (or cell crop) image.
type Input struct {
	Image      []byte // PNG encoded
	Width      int
	Height     int
	PageNumber int
	Format     string
}

// Describe returns the capability-relevant summary of the input.
func (in Input) Describe() InputDescriptor {
	return InputDescriptor{
		SizeBytes: int64(len(in.Image)),
		Width:     in.Width,
		Height:    in.Height,
		Format:    in.Format,
	}
}

// Options carries per-call recognition settings.
type Options struct {
	Language string
	Timeout  time.Duration
}

// Recognition is the output of one successful engine call. Element boxes are
// normalized to the input image.
type Recognition struct {
	Elements    []model.ExtractedElement
	Confidence  float64
	RawMetadata map[string]interface{}
}

// Text joins element text in the order the engine produced it.
func (r *Recognition) Text() string {
	if r == nil {
		return ""
	}
	lines := make([]string, 0, len(r.Elements))
	for _, el := range r.Elements {
		lines = append(lines, el.Text)
	}
	return strings.Join(lines, "\n")
}

// Engine is an OCR backend.
type Engine interface {
	Descriptor() Descriptor
	Supports(in InputDescriptor) bool
	Recognize(ctx context.Context, in Input, opts Options) (*Recognition, error)
}

// SupportsInput applies the generic capability checks shared by all bindings.
func SupportsInput(caps Capabilities, in InputDescriptor) bool {
	if caps.MaxInputBytes > 0 && in.SizeBytes > caps.MaxInputBytes {
		return false
	}
	if caps.MaxDimension > 0 && (in.Width > caps.MaxDimension || in.Height > caps.MaxDimension) {
		return false
	}
	return in.SizeBytes > 0
}

// averageConfidence weights element confidences by text length.
func averageConfidence(elements []model.ExtractedElement) float64 {
	var sum, weight float64
	for _, el := range elements {
		w := float64(len([]rune(el.Text)))
		if w == 0 {
			continue
		}
		sum += el.Confidence * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return model.ClampConfidence(sum / weight)
}
