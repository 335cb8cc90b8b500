/**
 * OCR Orchestrator - engine selection, retry and fallback
 *
 * Candidates are tried in ascending priority. Transient failures are retried with
 * exponential backoff; the first result at or above the confidence threshold wins
 * unless a strictly cheaper engine later matches it within the cost margin. When
 * every engine fails, the edge-density text detector keeps the page alive.
 */

package ocr

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"image"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/disintegration/imaging"

	"github.com/ArmanBehnam/clark/internal/engine"
	"github.com/ArmanBehnam/clark/internal/errors"
	"github.com/ArmanBehnam/clark/internal/logging"
	"github.com/ArmanBehnam/clark/internal/model"
)

// Outcome is the orchestrator's answer for one input.
type Outcome struct {
	Recognition *engine.Recognition
	Engine      string
	Cost        engine.CostClass
	Degraded    bool
	Reason      string
	Attempts    []model.EngineAttempt
}

// Orchestrator dispatches inputs across the registered engines.
type Orchestrator struct {
	registry *engine.Registry
	order    []string
	policy   Policy
	fallback *TextRegionDetector
	logger   *logging.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithOrder overrides registry priority with an explicit engine order.
func WithOrder(order []string) Option {
	return func(o *Orchestrator) { o.order = order }
}

// WithFallback replaces the text region detector used when every engine fails.
// A nil detector disables the fallback.
func WithFallback(d *TextRegionDetector) Option {
	return func(o *Orchestrator) { o.fallback = d }
}

// NewOrchestrator creates an orchestrator over a sealed registry.
func NewOrchestrator(reg *engine.Registry, policy Policy, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: reg,
		policy:   policy,
		fallback: NewTextRegionDetector(),
		logger:   logging.NewLogger("ocr"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Policy returns the active policy.
func (o *Orchestrator) Policy() Policy { return o.policy }

type scored struct {
	rec  *engine.Recognition
	name string
	cost engine.CostClass
}

// Recognize runs the selection policy for one input. An error is returned only when
// the parent context ends or when no engine and no fallback produced output.
func (o *Orchestrator) Recognize(ctx context.Context, in engine.Input) (*Outcome, error) {
	out := &Outcome{}
	desc := in.Describe()

	var best *scored
	var qualified []scored
	var failures []error

	for _, cand := range o.registry.Candidates(o.order) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := cand.Engine.Descriptor()
		if !cand.Engine.Supports(desc) {
			o.logger.Debug("Engine does not support input", "engine", d.Name, "page", in.PageNumber)
			continue
		}
		if len(qualified) > 0 {
			if !o.policy.CostTieBreak {
				break
			}
			if d.Cost >= minCost(qualified) {
				continue
			}
		}

		rec, attempts, lastErr := o.call(ctx, cand.Engine, in)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if lastErr != nil {
			out.Attempts = append(out.Attempts, model.EngineAttempt{
				Engine:     d.Name,
				Kind:       string(errors.KindOf(lastErr)),
				Attempts:   attempts,
				PageNumber: in.PageNumber,
				Error:      lastErr.Error(),
			})
		}
		if rec == nil {
			failures = append(failures, lastErr)
			o.logger.Warn("Engine failed", "engine", d.Name, "page", in.PageNumber, "attempts", attempts, "error", lastErr)
			continue
		}

		s := scored{rec: rec, name: d.Name, cost: d.Cost}
		if best == nil || rec.Confidence > best.rec.Confidence {
			best = &s
		}
		if rec.Confidence >= o.policy.ConfidenceThreshold {
			qualified = append(qualified, s)
		} else {
			o.logger.Info("Engine below confidence threshold",
				"engine", d.Name,
				"page", in.PageNumber,
				"confidence", rec.Confidence,
				"threshold", o.policy.ConfidenceThreshold)
		}
	}

	switch {
	case len(qualified) > 0:
		o.accept(out, o.choose(qualified), in.PageNumber)
	case best != nil:
		o.accept(out, *best, in.PageNumber)
		out.Degraded = true
		out.Reason = fmt.Sprintf("best confidence %.3f below threshold %.2f", best.rec.Confidence, o.policy.ConfidenceThreshold)
	default:
		if err := o.runFallback(out, in, failures); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RecognizeText is the cell-level entry point: engines only, no placeholder fallback.
func (o *Orchestrator) RecognizeText(ctx context.Context, in engine.Input) (string, float64, error) {
	for _, cand := range o.registry.Candidates(o.order) {
		if !cand.Engine.Supports(in.Describe()) {
			continue
		}
		rec, _, err := o.call(ctx, cand.Engine, in)
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		if rec != nil && strings.TrimSpace(rec.Text()) != "" {
			return strings.TrimSpace(rec.Text()), rec.Confidence, nil
		}
		if err != nil {
			o.logger.Debug("Cell recognition failed", "engine", cand.Name(), "error", err)
		}
	}
	return "", 0, fmt.Errorf("no engine recognized text on page %d", in.PageNumber)
}

// call invokes one engine under the retry policy. It returns the recognition (nil on
// failure), the number of attempts and the last error seen, which is non-nil whenever
// any attempt failed.
func (o *Orchestrator) call(ctx context.Context, e engine.Engine, in engine.Input) (*engine.Recognition, int, error) {
	name := e.Descriptor().Name
	opts := engine.Options{Language: o.policy.Language, Timeout: o.policy.Timeout}

	var rec *engine.Recognition
	var lastErr error
	attempts := 0

	_ = retry.Do(
		func() error {
			attempts++
			actx, cancel := o.attemptContext(ctx)
			defer cancel()

			r, err := e.Recognize(actx, in, opts)
			if err != nil {
				if ctx.Err() != nil {
					return retry.Unrecoverable(ctx.Err())
				}
				lastErr = asEngineError(name, err, attempts)
				return lastErr
			}
			rec = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(o.policy.MaxRetries)+1),
		retry.Delay(o.policy.BackoffBase),
		retry.DelayType(o.policy.delay),
		retry.RetryIf(retryIf()),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			o.logger.Debug("Retrying engine", "engine", name, "retry", n+1, "kind", string(errors.KindOf(err)))
		}),
	)
	return rec, attempts, lastErr
}

func (o *Orchestrator) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.policy.Timeout > 0 {
		return context.WithTimeout(ctx, o.policy.Timeout)
	}
	return context.WithCancel(ctx)
}

// choose picks among qualified results: the lowest cost class within the margin of
// the best confidence, then priority order.
func (o *Orchestrator) choose(qualified []scored) scored {
	if !o.policy.CostTieBreak || len(qualified) == 1 {
		return qualified[0]
	}
	top := 0.0
	for _, q := range qualified {
		if q.rec.Confidence > top {
			top = q.rec.Confidence
		}
	}
	var pick *scored
	for i := range qualified {
		q := qualified[i]
		if q.rec.Confidence < top-o.policy.CostMargin {
			continue
		}
		if pick == nil || q.cost < pick.cost {
			pick = &qualified[i]
		}
	}
	return *pick
}

func (o *Orchestrator) accept(out *Outcome, s scored, page int) {
	for i := range s.rec.Elements {
		el := &s.rec.Elements[i]
		el.PageNumber = page
		el.BBox = el.BBox.Clamp()
		el.Confidence = model.ClampConfidence(el.Confidence)
		if el.Metadata == nil {
			el.Metadata = map[string]interface{}{}
		}
		if _, ok := el.Metadata["engine"]; !ok {
			el.Metadata["engine"] = s.name
		}
	}
	out.Recognition = s.rec
	out.Engine = s.name
	out.Cost = s.cost
}

func (o *Orchestrator) runFallback(out *Outcome, in engine.Input, failures []error) error {
	aggregate := func(cause error) error {
		ee := errors.NewEngineError("ocr", commonKind(failures), "all engines failed", stderrors.Join(append(failures, cause)...))
		for _, a := range out.Attempts {
			ee.Attempts += a.Attempts
		}
		return ee
	}
	if o.fallback == nil {
		return aggregate(nil)
	}
	img, err := DecodeInput(in)
	if err != nil {
		return aggregate(fmt.Errorf("fallback detector: %w", err))
	}
	rec := o.fallback.Detect(img, in.PageNumber)
	out.Recognition = rec
	out.Engine = FallbackEngineName
	out.Cost = engine.CostFree
	out.Degraded = true
	out.Reason = "no OCR engine produced output"
	o.logger.Warn("Using text region fallback", "page", in.PageNumber, "regions", len(rec.Elements), "failed_engines", len(failures))
	return nil
}

func minCost(qualified []scored) engine.CostClass {
	c := qualified[0].cost
	for _, q := range qualified[1:] {
		if q.cost < c {
			c = q.cost
		}
	}
	return c
}

// commonKind returns the shared kind of all failures, or UNKNOWN when they differ.
func commonKind(failures []error) errors.EngineErrorKind {
	if len(failures) == 0 {
		return errors.KindUnsupportedInput
	}
	kind := errors.KindOf(failures[0])
	for _, f := range failures[1:] {
		if errors.KindOf(f) != kind {
			return errors.KindUnknown
		}
	}
	return kind
}

func asEngineError(name string, err error, attempts int) error {
	var ee *errors.EngineError
	if stderrors.As(err, &ee) {
		ee.Attempts = attempts
		return ee
	}
	ee = errors.NewEngineError(name, errors.KindOf(err), "", err)
	ee.Attempts = attempts
	return ee
}

// DecodeInput decodes an engine input back to an image.
func DecodeInput(in engine.Input) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(in.Image))
}
