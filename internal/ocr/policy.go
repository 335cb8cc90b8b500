package ocr

import (
	stderrors "errors"
	"math"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/errors"
)

// Policy is the retry and selection policy of the orchestrator. It is plain data so
// it can be tested and logged without any engine.
type Policy struct {
	ConfidenceThreshold float64
	MaxRetries          int
	BackoffBase         time.Duration
	BackoffMultiplier   float64
	Timeout             time.Duration
	CostTieBreak        bool
	CostMargin          float64
	Language            string
}

// PolicyFromConfig builds the policy from the ocr configuration section.
func PolicyFromConfig(cfg config.OCRConfig) Policy {
	return Policy{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MaxRetries:          cfg.MaxRetries,
		BackoffBase:         time.Duration(cfg.BackoffBaseMS) * time.Millisecond,
		BackoffMultiplier:   cfg.BackoffMultiplier,
		Timeout:             time.Duration(cfg.TimeoutSeconds) * time.Second,
		CostTieBreak:        cfg.CostTieBreak,
		CostMargin:          cfg.CostMargin,
		Language:            cfg.Language,
	}
}

// Backoff returns the wait before retry n (0-based): base x multiplier^n.
func (p Policy) Backoff(n uint) time.Duration {
	mult := p.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	return time.Duration(float64(p.BackoffBase) * math.Pow(mult, float64(n)))
}

// delay is the retry-go DelayType. A Retry-After hint longer than the computed
// backoff wins.
func (p Policy) delay(n uint, err error, _ *retry.Config) time.Duration {
	d := p.Backoff(n)
	var ee *errors.EngineError
	if stderrors.As(err, &ee) && ee.RetryAfter > d {
		d = ee.RetryAfter
	}
	return d
}

// retryIf returns a retry-go predicate. RATE_LIMIT and TIMEOUT are retried up to the
// attempt limit; UNKNOWN is retried once; AUTH and UNSUPPORTED_INPUT never.
func retryIf() func(error) bool {
	unknown := 0
	return func(err error) bool {
		kind := errors.KindOf(err)
		if kind == errors.KindUnknown {
			unknown++
			return unknown <= 1
		}
		return kind.Retryable()
	}
}
