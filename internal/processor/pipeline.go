package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/ArmanBehnam/clark/internal/document"
	"github.com/ArmanBehnam/clark/internal/engine"
	"github.com/ArmanBehnam/clark/internal/errors"
	"github.com/ArmanBehnam/clark/internal/logging"
	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/ocr"
	"github.com/ArmanBehnam/clark/internal/patterns"
	"github.com/ArmanBehnam/clark/internal/preprocess"
	"github.com/ArmanBehnam/clark/internal/spatial"
	"github.com/ArmanBehnam/clark/internal/tables"
)

const (
	minElementConfidence = 0.3
	minTextLength        = 2
)

type pageState struct {
	number     int
	layer      *document.PageText
	fromLayer  bool
	ocrRan     bool
	text       string
	elements   []model.ExtractedElement
	tables     []model.SpatialTable
	structured map[string][]model.PatternMatch
	// page image kept until table cells are filled
	image image.Image
}

// run is the in-flight state of one document. Only the goroutine executing
// Process mutates it.
type run struct {
	p      *Processor
	opts   Options
	docID  string
	ocr    *ocr.Orchestrator
	logger *logging.Logger
	start  time.Time
	stage  Stage

	src      *document.Source
	pages    []pageState
	result   *model.ExtractionResult
	timings  map[string]float64
	engines  map[string]int
	attempts []model.EngineAttempt
	degraded []model.StageWarning
	catConf  map[string]float64
	coverage float64
	pagesOCR int
}

func (r *run) enter(s Stage) {
	r.stage = s
	r.logger.Debug("Entering stage", "stage", s)
	if r.opts.Progress != nil {
		r.opts.Progress(r.docID, s)
	}
}

// degrade records a stage that produced partial or no output.
func (r *run) degrade(stage Stage, reason string, cause error) {
	w := &errors.StageDegradedWarning{Stage: string(stage), Reason: reason, Cause: cause}
	r.degraded = append(r.degraded, model.StageWarning{Stage: w.Stage, Reason: w.Reason})
	r.result.Warnings = append(r.result.Warnings, w.Error())
	r.logger.Warn("Stage degraded", "stage", stage, "reason", reason, "error", cause)
}

func (r *run) tablesEnabled() bool {
	return r.p.cfg.Processing.UseTableDetection && !r.opts.DisableTables
}

func (r *run) validate(path string) error {
	r.enter(StageValidating)
	info, err := r.p.validator.Validate(path)
	if err != nil {
		return err
	}
	r.src = document.NewSource(info, r.p.cfg.Processing.RenderDPI, r.p.cfg.Processing.TempDir)
	r.result.Filename = info.Filename
	r.result.TotalPages = info.Pages
	r.pages = make([]pageState, info.Pages)
	for i := range r.pages {
		r.pages[i].number = i + 1
	}
	r.logger.Info("File validated", "kind", info.Kind, "format", info.Format, "pages", info.Pages, "bytes", info.SizeBytes)
	return nil
}

func (r *run) extractText(ctx context.Context) error {
	layer, err := r.src.TextLayer(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.degrade(StageExtractingText, "text layer unavailable", err)
		return nil
	}
	usable := 0
	for i := range layer {
		if i >= len(r.pages) {
			break
		}
		ps := &r.pages[i]
		ps.layer = &layer[i]
		if !ps.layer.Sufficient() {
			continue
		}
		ps.fromLayer = true
		ps.elements = ps.layer.Elements()
		ps.text = ps.layer.Text()
		usable++
	}
	if r.src.Info.Kind == document.KindPDF {
		r.logger.Info("Text layer extracted", "pages", len(layer), "usable", usable)
	}
	return nil
}

func (r *run) recognizePages(ctx context.Context) error {
	cfg := r.p.cfg
	for i := range r.pages {
		ps := &r.pages[i]
		needOCR := !r.opts.DisableOCR && (!ps.fromLayer || cfg.OCR.Force)
		needTables := r.tablesEnabled()
		if !needOCR && !needTables {
			continue
		}

		img, err := r.src.PageImage(ctx, ps.number)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.degrade(StageOCREnhancing, fmt.Sprintf("page %d could not be rendered", ps.number), err)
			continue
		}
		if cfg.Processing.UseImageEnhancement && !r.opts.DisableEnhancement {
			enhanced := preprocess.Enhance(img, preprocess.DefaultConfig(cfg.Processing.ImageScaleFactor))
			r.logger.Debug("Page enhanced", "page", ps.number, "level", enhanced.Quality.Level, "scale", enhanced.Scale)
			img = enhanced.Image
		}

		// OCR and table geometry are independent consumers of the same image
		var (
			wg       sync.WaitGroup
			outcome  *ocr.Outcome
			ocrErr   error
			found    []model.SpatialTable
			tableErr error
		)
		if needOCR {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcome, ocrErr = r.recognize(ctx, img, ps.number)
			}()
		}
		if needTables {
			wg.Add(1)
			go func() {
				defer wg.Done()
				found, tableErr = r.p.detector.Find(ctx, img, ps.number)
			}()
		}
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}

		if needOCR {
			r.applyOCR(ps, outcome, ocrErr)
		}
		if needTables {
			if tableErr != nil {
				r.degrade(StageDetectingTables, fmt.Sprintf("table detection failed on page %d", ps.number), tableErr)
			} else if len(found) > 0 {
				ps.tables = found
				ps.image = img
			}
		}
	}

	if len(r.textElements()) == 0 {
		r.degrade(StageOCREnhancing, "no text elements extracted", nil)
	}
	return nil
}

func (r *run) recognize(ctx context.Context, img image.Image, page int) (*ocr.Outcome, error) {
	data, err := preprocess.EncodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("encode page %d: %w", page, err)
	}
	b := img.Bounds()
	return r.ocr.Recognize(ctx, engine.Input{
		Image:      data,
		Width:      b.Dx(),
		Height:     b.Dy(),
		PageNumber: page,
		Format:     "png",
	})
}

func (r *run) applyOCR(ps *pageState, out *ocr.Outcome, err error) {
	if err != nil {
		var ee *errors.EngineError
		if stderrors.As(err, &ee) {
			r.attempts = append(r.attempts, model.EngineAttempt{
				Engine:     ee.Engine,
				Kind:       string(ee.Kind),
				Attempts:   ee.Attempts,
				PageNumber: ps.number,
				Error:      ee.Error(),
			})
		}
		r.degrade(StageOCREnhancing, fmt.Sprintf("OCR failed on page %d", ps.number), errors.NewOCRFailedError(r.docID, ps.number, err))
		return
	}

	r.attempts = append(r.attempts, out.Attempts...)
	if out.Degraded {
		r.degrade(StageOCREnhancing, fmt.Sprintf("page %d: %s", ps.number, out.Reason), nil)
		if ps.fromLayer {
			// forced OCR did worse than the embedded text
			return
		}
	}

	r.pagesOCR++
	r.engines[out.Engine]++
	els := cleanElements(out.Recognition.Elements)
	ps.elements = els
	ps.text = joinText(els)
	ps.fromLayer = false
	ps.ocrRan = true
	r.logger.Info("Page recognized",
		"page", ps.number,
		"engine", out.Engine,
		"elements", len(els),
		"confidence", out.Recognition.Confidence,
		"degraded", out.Degraded)
}

// cleanElements drops low quality recognized text. Fallback placeholders carry no
// text and are kept as located regions.
func cleanElements(els []model.ExtractedElement) []model.ExtractedElement {
	var real, placeholders []model.ExtractedElement
	for _, el := range els {
		if p, _ := el.Metadata["placeholder"].(bool); p {
			placeholders = append(placeholders, el)
			continue
		}
		real = append(real, el)
	}
	return append(patterns.FilterLowQuality(real, minElementConfidence, minTextLength), placeholders...)
}

func joinText(els []model.ExtractedElement) string {
	parts := make([]string, 0, len(els))
	for _, el := range els {
		if el.ElementType != model.ElementText {
			continue
		}
		if t := strings.TrimSpace(el.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

func (r *run) fillTables(ctx context.Context) error {
	if !r.tablesEnabled() {
		return nil
	}
	idx := spatial.NewIndex(r.textElements())
	budget := r.p.cfg.Processing.MaxCellReOCR
	var rec tables.CellRecognizer
	if !r.opts.DisableOCR {
		rec = r.ocr
	}

	for i := range r.pages {
		ps := &r.pages[i]
		if len(ps.tables) == 0 {
			continue
		}
		filled, used := tables.FillCells(ctx, ps.tables, idx, ps.image, rec, budget)
		budget -= used
		ps.image = nil
		if err := ctx.Err(); err != nil {
			return err
		}
		ps.tables = filled
		r.result.Tables = append(r.result.Tables, filled...)
	}
	r.logger.Info("Tables detected", "count", len(r.result.Tables), "cell_reocr", r.p.cfg.Processing.MaxCellReOCR-budget)
	return nil
}

func (r *run) matchPatterns(ctx context.Context) error {
	r.result.ExtractedText = r.documentText()
	if r.opts.DisablePatterns {
		return nil
	}
	res := patterns.Extract(r.result.ExtractedText, r.p.rules)
	r.result.StructuredData = res.Matches
	r.catConf = res.CategoryConfidence
	for i := range r.pages {
		ps := &r.pages[i]
		if ps.text != "" {
			ps.structured = patterns.Extract(ps.text, r.p.rules).Matches
		}
	}
	if res.Total() == 0 {
		r.degrade(StageMatchingPatterns, "no pattern matches", nil)
	}
	r.logger.Info("Patterns matched", "matches", res.Total(), "categories", len(res.Matches))
	return nil
}

func (r *run) documentText() string {
	parts := make([]string, 0, len(r.pages))
	for _, ps := range r.pages {
		if strings.TrimSpace(ps.text) != "" {
			parts = append(parts, ps.text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (r *run) analyzeSpatial(ctx context.Context) error {
	cfg := r.p.cfg
	analysis := spatial.Analyze(r.textElements(), len(r.pages), spatial.ConfigFrom(cfg.Spatial))
	r.coverage = analysis.Coverage

	pages := r.pageResults(analysis)
	keywords := r.opts.Keywords
	if len(keywords) == 0 {
		keywords = cfg.Keywords()
	}
	kf := spatial.FilterKeywords(analysis, pages, keywords)

	matched := map[int][]string{}
	for _, mp := range kf.MatchingPages {
		matched[mp.PageNumber] = mp.MatchedKeywords
	}
	for i := range pages {
		if kw, ok := matched[pages[i].PageNumber]; ok {
			pages[i].MatchedKeywords = kw
			pages[i].FallbackExtraction = kf.FallbackUsed
		}
	}
	r.result.Pages = pages
	r.result.KeywordFilter = &kf

	if len(analysis.Regions) == 0 {
		r.degrade(StageAnalyzingSpatial, "no text regions", nil)
	}
	r.logger.Info("Spatial analysis complete",
		"regions", len(analysis.Regions),
		"coverage", analysis.Coverage,
		"keyword_pages", kf.Summary.PagesWithKeywords,
		"fallback", kf.FallbackUsed)
	return nil
}

func (r *run) pageResults(a spatial.Analysis) []model.PageResult {
	out := make([]model.PageResult, 0, len(r.pages))
	for _, ps := range r.pages {
		pr := model.PageResult{
			PageNumber:      ps.number,
			ExtractedText:   ps.text,
			ElementCount:    len(ps.elements) + len(ps.tables),
			TableElements:   len(ps.tables),
			MatchedKeywords: []string{},
			Coverage:        a.PageCoverage[ps.number],
			StructuredData:  ps.structured,
		}
		var sum float64
		for _, el := range ps.elements {
			if el.ElementType == model.ElementText {
				pr.TextElements++
			}
			sum += el.Confidence
		}
		if len(ps.elements) > 0 {
			pr.ConfidenceAvg = model.Round(sum/float64(len(ps.elements)), 3)
		}
		out = append(out, pr)
	}
	return out
}

func (r *run) classify(ctx context.Context) error {
	c := r.p.classifier.Classify(r.result.ExtractedText, r.result.StructuredData)
	r.result.DocumentType = c.Type
	r.result.ClassificationConfidence = c.Confidence
	if c.Uncertain != nil {
		r.result.Warnings = append(r.result.Warnings, c.Uncertain.Error())
		r.logger.Warn("Classification uncertain", "score", c.Uncertain.Score, "threshold", c.Uncertain.Threshold)
		return nil
	}
	r.logger.Info("Document classified", "type", c.Type, "confidence", c.Confidence)
	return nil
}

// textElements returns every TEXT element in page order.
func (r *run) textElements() []model.ExtractedElement {
	var out []model.ExtractedElement
	for _, ps := range r.pages {
		for _, el := range ps.elements {
			if el.ElementType == model.ElementText {
				out = append(out, el)
			}
		}
	}
	return out
}
