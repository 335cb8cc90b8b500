package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-minute token bucket for network engines.
type RateLimiter struct {
	limiter           *rate.Limiter
	requestsPerMinute int

	mu            sync.Mutex
	totalConsumed int64
	totalWaited   time.Duration
	last429Time   time.Time
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	TokensAvailable int           `json:"tokens_available"`
	TokensLimit     int           `json:"tokens_limit"`
	Utilization     float64       `json:"utilization"`
	TotalConsumed   int64         `json:"total_consumed"`
	TotalWaited     time.Duration `json:"total_waited"`
	Last429Time     time.Time     `json:"last_429_time,omitempty"`
}

// NewRateLimiter creates a limiter that starts full and refills requestsPerMinute
// tokens per minute.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &RateLimiter{
		limiter:           rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), requestsPerMinute),
		requestsPerMinute: requestsPerMinute,
	}
}

// Wait blocks until a token is available or ctx is done. It fails early when ctx
// expires before the next token would arrive.
func (r *RateLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalConsumed++
	r.totalWaited += time.Since(start)
	return nil
}

// TryConsume attempts to consume a token without blocking.
func (r *RateLimiter) TryConsume() bool {
	if !r.limiter.Allow() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalConsumed++
	return true
}

// Record429 drains the bucket after the backend reported throttling.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	r.last429Time = time.Now()
	r.mu.Unlock()

	if retryAfter <= 0 {
		return
	}
	now := time.Now()
	if n := int(r.limiter.TokensAt(now)); n > 0 {
		r.limiter.ReserveN(now, n)
	}
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	tokens := max(0, r.limiter.Tokens())

	r.mu.Lock()
	defer r.mu.Unlock()
	return RateLimiterStatus{
		TokensAvailable: int(tokens),
		TokensLimit:     r.requestsPerMinute,
		Utilization:     max(0, 1-tokens/float64(r.requestsPerMinute)),
		TotalConsumed:   r.totalConsumed,
		TotalWaited:     r.totalWaited,
		Last429Time:     r.last429Time,
	}
}
