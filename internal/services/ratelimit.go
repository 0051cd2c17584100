package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/docsense/docsense-backend/internal/pkg/apperr"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

// RateLimiter enforces per-tenant LLM token budgets with a token bucket.
// Requests that would exceed the bucket wait up to the configured grace
// period, then fail with RateLimited.
type RateLimiter struct {
	log *logger.Logger

	tokensPerMin int
	burst        int
	maxWait      time.Duration

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewRateLimiter(log *logger.Logger, tokensPerMin int, maxWait time.Duration) *RateLimiter {
	if tokensPerMin <= 0 {
		tokensPerMin = 90_000
	}
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	return &RateLimiter{
		log:          log.With("service", "RateLimiter"),
		tokensPerMin: tokensPerMin,
		burst:        tokensPerMin,
		maxWait:      maxWait,
		buckets:      map[string]*rate.Limiter{},
	}
}

func (r *RateLimiter) bucket(tenant string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[tenant]
	if !ok {
		b = rate.NewLimiter(rate.Limit(float64(r.tokensPerMin)/60.0), r.burst)
		r.buckets[tenant] = b
	}
	return b
}

// Acquire reserves the estimated token cost for one LLM call. It blocks up
// to the grace period and returns RateLimited if the budget cannot be met.
func (r *RateLimiter) Acquire(ctx context.Context, tenant string, tokens int) error {
	if tokens <= 0 {
		return nil
	}
	b := r.bucket(tenant)
	if tokens > r.burst {
		tokens = r.burst
	}
	waitCtx, cancel := context.WithTimeout(ctx, r.maxWait)
	defer cancel()
	if err := b.WaitN(waitCtx, tokens); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.Warn("Token budget exhausted", "tenant", tenant, "tokens", tokens)
		return apperr.Wrap(apperr.CodeRateLimited, "token budget exhausted", err)
	}
	return nil
}
