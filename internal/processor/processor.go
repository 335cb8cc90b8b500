/**
 * Document Processor for clark
 *
 * Runs one document through the extraction pipeline:
 * VALIDATING → EXTRACTING_TEXT → OCR_ENHANCING → DETECTING_TABLES →
 * MATCHING_PATTERNS → ANALYZING_SPATIAL → CLASSIFYING → DONE
 *
 * Only validation can fail a document. Every later stage degrades: it records a
 * StageDegradedWarning, lowers the overall confidence and lets the pipeline go on.
 */

package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ArmanBehnam/clark/internal/classifier"
	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/document"
	"github.com/ArmanBehnam/clark/internal/engine"
	"github.com/ArmanBehnam/clark/internal/errors"
	"github.com/ArmanBehnam/clark/internal/logging"
	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/ocr"
	"github.com/ArmanBehnam/clark/internal/patterns"
	"github.com/ArmanBehnam/clark/internal/tables"
)

// Stage is a pipeline state.
type Stage string

const (
	StageValidating       Stage = "VALIDATING"
	StageExtractingText   Stage = "EXTRACTING_TEXT"
	StageOCREnhancing     Stage = "OCR_ENHANCING"
	StageDetectingTables  Stage = "DETECTING_TABLES"
	StageMatchingPatterns Stage = "MATCHING_PATTERNS"
	StageAnalyzingSpatial Stage = "ANALYZING_SPATIAL"
	StageClassifying      Stage = "CLASSIFYING"
	StageDone             Stage = "DONE"
	StageFailed           Stage = "FAILED"
)

// Processing methods reported on the result.
const (
	MethodTextLayer = "text_layer"
	MethodOCR       = "ocr"
	MethodHybrid    = "hybrid"
	MethodNone      = "none"
)

// Options are per-document switches.
type Options struct {
	DocumentID         string
	DisableOCR         bool
	DisableTables      bool
	DisablePatterns    bool
	DisableEnhancement bool
	// Keywords replaces the configured keyword list when non-empty.
	Keywords []string
	// Engines replaces the configured engine order when non-empty.
	Engines []string
	// Progress is called on every stage transition.
	Progress func(documentID string, stage Stage)
}

// Processor runs documents through the pipeline. It is safe for concurrent use;
// each Process call owns its own result.
type Processor struct {
	cfg        *config.Config
	registry   *engine.Registry
	validator  *document.Validator
	detector   *tables.Detector
	rules      *patterns.RuleSet
	classifier *classifier.Classifier
	aggregator *Aggregator
	logger     *logging.Logger
}

// Option customizes a Processor.
type Option func(*Processor)

// WithAggregator records every finished document into agg.
func WithAggregator(agg *Aggregator) Option {
	return func(p *Processor) { p.aggregator = agg }
}

// WithRuleSet replaces the pattern rules built from configuration.
func WithRuleSet(rs *patterns.RuleSet) Option {
	return func(p *Processor) { p.rules = rs }
}

// NewProcessor creates a processor over a sealed engine registry.
func NewProcessor(cfg *config.Config, reg *engine.Registry, opts ...Option) (*Processor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("engine registry is required")
	}
	rules, err := patterns.FromConfig(cfg.Patterns)
	if err != nil {
		return nil, fmt.Errorf("failed to build pattern rules: %w", err)
	}

	p := &Processor{
		cfg:        cfg,
		registry:   reg,
		validator:  document.NewValidator(cfg.Security),
		detector:   tables.NewDetector(tables.ConfigFrom(cfg.Processing)),
		rules:      rules,
		classifier: classifier.FromConfig(cfg.Classifier),
		aggregator: NewAggregator(),
		logger:     logging.NewLogger("Processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Aggregator returns the process-wide metrics accumulator.
func (p *Processor) Aggregator() *Aggregator { return p.aggregator }

// orchestrator builds the OCR orchestrator for one document's engine order.
func (p *Processor) orchestrator(opts Options) *ocr.Orchestrator {
	order := opts.Engines
	if len(order) == 0 {
		order = engine.SelectionOrder(p.cfg.OCR.PreferredEngine, p.cfg.OCR.FallbackEngines)
	}
	return ocr.NewOrchestrator(p.registry, ocr.PolicyFromConfig(p.cfg.OCR), ocr.WithOrder(order))
}

// Process extracts one document. The only errors returned are validation failures
// and cancellation; every other problem is recorded on the result.
func (p *Processor) Process(ctx context.Context, path string, opts Options) (*model.ExtractionResult, error) {
	docID := opts.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}
	r := &run{
		p:       p,
		opts:    opts,
		docID:   docID,
		ocr:     p.orchestrator(opts),
		logger:  p.logger.With("doc", docID),
		start:   time.Now(),
		timings: map[string]float64{},
		engines: map[string]int{},
	}
	r.result = &model.ExtractionResult{
		DocumentID:     docID,
		StructuredData: map[string][]model.PatternMatch{},
		Tables:         []model.SpatialTable{},
		Elements:       []model.ExtractedElement{},
		DocumentType:   model.DocUnknown,
		Warnings:       []string{},
	}

	r.logger.Info("Starting document processing pipeline", "path", path)

	if err := r.validate(path); err != nil {
		r.enter(StageFailed)
		p.aggregator.RecordFailure()
		r.logger.Error("Validation failed", "error", err)
		return nil, err
	}

	steps := []struct {
		stage Stage
		fn    func(context.Context) error
	}{
		{StageExtractingText, r.extractText},
		{StageOCREnhancing, r.recognizePages},
		{StageDetectingTables, r.fillTables},
		{StageMatchingPatterns, r.matchPatterns},
		{StageAnalyzingSpatial, r.analyzeSpatial},
		{StageClassifying, r.classify},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelledError(docID, string(step.stage), err)
		}
		r.enter(step.stage)
		began := time.Now()
		err := step.fn(ctx)
		r.timings[string(step.stage)] = time.Since(began).Seconds()
		if err != nil {
			return nil, errors.NewCancelledError(docID, string(step.stage), err)
		}
	}

	r.enter(StageDone)
	res := r.finish()
	p.aggregator.Record(res)
	r.logger.Info("Processing pipeline complete",
		"type", res.DocumentType,
		"confidence", res.Confidence,
		"elements", len(res.Elements),
		"tables", len(res.Tables),
		"degraded", res.Metrics.Degraded,
		"seconds", res.Metrics.ProcessingTime)
	return res, nil
}
