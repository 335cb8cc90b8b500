package ocr

import (
	"image"
	"math"
	"sort"

	"github.com/ArmanBehnam/clark/internal/engine"
	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/vision"
)

// FallbackEngineName attributes elements produced by the text region detector.
const FallbackEngineName = "cv_fallback"

// fallbackConfidenceScale keeps placeholder confidences well below any real engine.
const fallbackConfidenceScale = 0.3

// TextRegionDetector finds likely text lines from edge density when no OCR engine
// produced output. It locates text but cannot read it; elements carry empty text.
type TextRegionDetector struct {
	MinConfidence float64
	EdgeLevel     uint8
}

// NewTextRegionDetector returns a detector with the default thresholds.
func NewTextRegionDetector() *TextRegionDetector {
	return &TextRegionDetector{MinConfidence: 0.2, EdgeLevel: 64}
}

var textWindows = []struct{ w, h int }{
	{100, 30},
	{150, 40},
	{200, 50},
	{80, 25},
}

// Detect returns one low-confidence TEXT placeholder per detected text band.
func (d *TextRegionDetector) Detect(img image.Image, pageNumber int) *engine.Recognition {
	edges := vision.SobelEdges(img, d.EdgeLevel)
	w, h := edges.W, edges.H

	var candidates []scoredRegion
	for _, ws := range textWindows {
		if ws.w > w || ws.h > h {
			continue
		}
		stepX, stepY := ws.w/2, ws.h/2
		for y := 0; y <= h-ws.h; y += stepY {
			for x := 0; x <= w-ws.w; x += stepX {
				r := image.Rect(x, y, x+ws.w, y+ws.h)
				density := float64(edges.Count(r)) / float64(ws.w*ws.h)
				// text has medium edge density
				if density < 0.05 || density > 0.4 {
					continue
				}
				conf := horizontalScore(edges, r) * (1 - math.Abs(density-0.2)/0.2)
				if conf >= d.MinConfidence {
					candidates = append(candidates, scoredRegion{rect: r, conf: conf})
				}
			}
		}
	}

	regions := mergeBands(candidates)
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].rect.Min.Y != regions[j].rect.Min.Y {
			return regions[i].rect.Min.Y < regions[j].rect.Min.Y
		}
		return regions[i].rect.Min.X < regions[j].rect.Min.X
	})

	rec := &engine.Recognition{RawMetadata: map[string]interface{}{"regions": len(regions)}}
	var sum float64
	for _, r := range regions {
		conf := model.Round(r.conf*fallbackConfidenceScale, 3)
		sum += conf
		rec.Elements = append(rec.Elements, model.ExtractedElement{
			ElementType: model.ElementText,
			PageNumber:  pageNumber,
			Confidence:  conf,
			BBox:        model.BoxFromPixels(r.rect, w, h),
			Metadata: map[string]interface{}{
				"engine":      FallbackEngineName,
				"placeholder": true,
			},
		})
	}
	if len(regions) > 0 {
		rec.Confidence = sum / float64(len(regions))
	}
	return rec
}

type scoredRegion struct {
	rect image.Rectangle
	conf float64
}

// horizontalScore is the share of horizontal edge runs among all runs; glyph strokes
// produce many short horizontal crossings.
func horizontalScore(edges *vision.Bitmap, r image.Rectangle) float64 {
	hRuns, vRuns := 0, 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		in := false
		for x := r.Min.X; x < r.Max.X; x++ {
			on := edges.At(x, y)
			if on && !in {
				hRuns++
			}
			in = on
		}
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		in := false
		for y := r.Min.Y; y < r.Max.Y; y++ {
			on := edges.At(x, y)
			if on && !in {
				vRuns++
			}
			in = on
		}
	}
	if hRuns+vRuns == 0 {
		return 0
	}
	return float64(hRuns) / float64(hRuns+vRuns)
}

// mergeBands merges overlapping windows that share most of their vertical extent,
// so separate text lines stay separate.
func mergeBands(regions []scoredRegion) []scoredRegion {
	var merged []scoredRegion
	for _, r := range regions {
		found := false
		for i := range merged {
			if sameBand(r.rect, merged[i].rect) {
				merged[i].rect = merged[i].rect.Union(r.rect)
				merged[i].conf = math.Max(merged[i].conf, r.conf)
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, r)
		}
	}
	return merged
}

func sameBand(a, b image.Rectangle) bool {
	inter := a.Intersect(b)
	if inter.Empty() {
		return false
	}
	return inter.Dy()*2 >= min(a.Dy(), b.Dy())
}
