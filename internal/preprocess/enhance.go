/**
 * Image preprocessing for OCR
 *
 * Enhance is pure and deterministic: the same image and Config always produce the
 * same pixels. The strength of each step follows the assessed quality level.
 */

package preprocess

import (
	"bytes"
	"image"
	"math"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// Config toggles the individual enhancement steps.
type Config struct {
	Contrast    bool
	Denoise     bool
	Sharpen     bool
	ScaleFactor float64
}

// DefaultConfig enables every step with the given rescale factor.
func DefaultConfig(scale float64) Config {
	return Config{Contrast: true, Denoise: true, Sharpen: true, ScaleFactor: scale}
}

// Params are the step strengths for one level.
type Params struct {
	ClipLimit    float64
	MedianRadius float64
	SharpenSigma float64
}

// ParamsFor returns the step strengths for a level. Strength rises monotonically
// from skip to intensify.
func ParamsFor(level Level) Params {
	switch level {
	case LevelSkip:
		return Params{}
	case LevelIntensify:
		return Params{ClipLimit: 3.0, MedianRadius: 2, SharpenSigma: 1.5}
	default:
		return Params{ClipLimit: 2.0, MedianRadius: 1, SharpenSigma: 0.8}
	}
}

// Result is the enhanced image plus the assessment that drove it.
type Result struct {
	Image   image.Image
	Quality Quality
	Scale   float64
}

// Enhance assesses img and applies contrast normalization, denoising, sharpening
// and rescaling.
func Enhance(img image.Image, cfg Config) Result {
	q := Assess(img)
	p := ParamsFor(q.Level)

	var out image.Image = img
	if cfg.Contrast && p.ClipLimit > 0 {
		out = CLAHE(out, p.ClipLimit, 8)
	}
	if cfg.Denoise && p.MedianRadius > 0 {
		out = effect.Median(out, p.MedianRadius)
	}
	if cfg.Sharpen && p.SharpenSigma > 0 {
		out = imaging.Sharpen(out, p.SharpenSigma)
	}

	scale := cfg.ScaleFactor
	if scale <= 0 {
		scale = 1
	}
	if scale != 1 {
		b := out.Bounds()
		w := int(math.Round(float64(b.Dx()) * scale))
		h := int(math.Round(float64(b.Dy()) * scale))
		if w > 0 && h > 0 {
			out = imaging.Resize(out, w, h, imaging.Lanczos)
		}
	} else if out == img {
		out = imaging.Clone(img)
	}

	return Result{Image: out, Quality: q, Scale: scale}
}

// EncodePNG encodes an image for engine input.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
