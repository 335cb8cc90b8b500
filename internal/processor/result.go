package processor

import (
	"runtime"
	"sort"
	"time"

	"github.com/ArmanBehnam/clark/internal/document"
	"github.com/ArmanBehnam/clark/internal/model"
)

// Overall confidence weights.
const (
	weightElements   = 0.4
	weightCategories = 0.3
	weightTables     = 0.2
	weightText       = 0.1

	tableSaturation    = 5
	textSaturation     = 5000
	categoryShare      = 0.2
	degradationPenalty = 0.05
)

// ConfidenceInputs are the measurements the overall confidence is computed from.
type ConfidenceInputs struct {
	AvgElementConfidence float64
	Categories           int
	TotalCategories      int
	Tables               int
	TextLength           int
	DegradedStages       int
}

// OverallConfidence blends element confidence, pattern coverage, table count and
// text volume, less a fixed penalty per degraded stage.
func OverallConfidence(in ConfidenceInputs) float64 {
	catDenom := max(float64(in.TotalCategories)*categoryShare, 1)
	score := in.AvgElementConfidence*weightElements +
		min(float64(in.Categories)/catDenom, 1)*weightCategories +
		min(float64(in.Tables)/tableSaturation, 1)*weightTables +
		min(float64(in.TextLength)/textSaturation, 1)*weightText
	score -= degradationPenalty * float64(in.DegradedStages)
	return model.Round(model.ClampConfidence(score), 3)
}

// finish assembles elements and metrics. The result is not modified afterwards.
func (r *run) finish() *model.ExtractionResult {
	res := r.result

	for _, ps := range r.pages {
		res.Elements = append(res.Elements, ps.elements...)
		for _, t := range ps.tables {
			res.Elements = append(res.Elements, model.ExtractedElement{
				Text:        t.Text(),
				ElementType: model.ElementTable,
				PageNumber:  t.PageNumber,
				Confidence:  t.Confidence,
				BBox:        t.BBox,
				Metadata: map[string]interface{}{
					"detection_method": string(t.DetectionMethod),
					"rows":             t.RowCount(),
					"cols":             t.ColCount(),
				},
			})
		}
	}

	m := &res.Metrics
	m.TotalElements = len(res.Elements)
	var sum float64
	for _, el := range res.Elements {
		sum += el.Confidence
		if el.Confidence >= model.HighConfidenceCutoff {
			m.HighConfidenceElements++
		}
	}
	if len(res.Elements) > 0 {
		m.AvgConfidence = model.Round(sum/float64(len(res.Elements)), 3)
	}

	layerPages := 0
	for _, ps := range r.pages {
		if ps.fromLayer {
			layerPages++
		}
	}
	m.OCREngineUsed = r.primaryEngine(layerPages)
	m.EnginesUsed = r.engines
	m.EngineAttempts = r.attempts
	if m.EngineAttempts == nil {
		m.EngineAttempts = []model.EngineAttempt{}
	}
	m.DegradedStages = r.degraded
	if m.DegradedStages == nil {
		m.DegradedStages = []model.StageWarning{}
	}
	m.Degraded = len(r.degraded) > 0
	m.StageTimings = r.timings
	m.Coverage = r.coverage
	m.PagesOCR = r.pagesOCR
	m.TablesDetected = len(res.Tables)
	m.CategoryConfidence = r.catConf

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.MemoryUsage = mem.HeapAlloc

	res.ProcessingMethod = processingMethod(layerPages, r.pagesOCR)
	res.Confidence = OverallConfidence(ConfidenceInputs{
		AvgElementConfidence: m.AvgConfidence,
		Categories:           len(res.StructuredData),
		TotalCategories:      len(r.p.rules.Categories()),
		Tables:               len(res.Tables),
		TextLength:           len(res.ExtractedText),
		DegradedStages:       distinctStages(r.degraded),
	})

	res.ProcessedAt = time.Now().UTC()
	m.ProcessingTime = model.Round(time.Since(r.start).Seconds(), 3)
	return res
}

// primaryEngine is the engine that recognized the most pages, ties broken by name.
func (r *run) primaryEngine(layerPages int) string {
	names := make([]string, 0, len(r.engines))
	for n := range r.engines {
		names = append(names, n)
	}
	sort.Strings(names)
	best := ""
	for _, n := range names {
		if best == "" || r.engines[n] > r.engines[best] {
			best = n
		}
	}
	if best == "" && layerPages > 0 {
		return document.TextLayerEngine
	}
	return best
}

func processingMethod(layerPages, ocrPages int) string {
	switch {
	case layerPages > 0 && ocrPages > 0:
		return MethodHybrid
	case layerPages > 0:
		return MethodTextLayer
	case ocrPages > 0:
		return MethodOCR
	default:
		return MethodNone
	}
}

func distinctStages(ws []model.StageWarning) int {
	seen := map[string]bool{}
	for _, w := range ws {
		seen[w.Stage] = true
	}
	return len(seen)
}
