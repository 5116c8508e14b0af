package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Dekunlebells/okaygoal/internal/domain"
	"github.com/Dekunlebells/okaygoal/internal/metrics"
)

const storeTimeout = 2 * time.Second

// FrameLimiter implements the fixed-window control-frame limit on Redis.
// Window boundary = floor(now / window) * window; the counter for a window is
// INCRed on every check and given a TTL of one window on first increment, so
// stale windows self-evict.
//
// The limiter fails open: if Redis is unreachable the frame is allowed and the
// failure is logged, never returned to the caller. A circuit breaker
// short-circuits to fail-open while the store is known to be down, so a Redis
// outage does not add a dial timeout to every inbound frame.
type FrameLimiter struct {
	rdb     *goredis.Client
	clock   clockwork.Clock
	limit   int
	window  time.Duration
	breaker circuitbreaker.CircuitBreaker[any]
}

var _ domain.FrameRateLimiter = (*FrameLimiter)(nil)

// NewFrameLimiter creates a limiter allowing limit frames per window per key.
func NewFrameLimiter(rdb *goredis.Client, clock clockwork.Clock, limit int, window time.Duration) *FrameLimiter {
	breaker := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Rate limit store circuit breaker state changed",
				"component", "rate_limiter",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			metrics.CircuitBreakerStateChanges.WithLabelValues("rate_limiter", e.NewState.String()).Inc()
		}).
		Build()

	return &FrameLimiter{
		rdb:     rdb,
		clock:   clock,
		limit:   limit,
		window:  window,
		breaker: breaker,
	}
}

// CheckAndIncrement counts one control frame against the key's current window
// and reports whether it is allowed and how much quota remains.
func (l *FrameLimiter) CheckAndIncrement(ctx context.Context, key string) domain.RateLimitDecision {
	if !l.breaker.TryAcquirePermit() {
		metrics.RateLimitFailOpens.Inc()
		slog.Debug("Rate limit circuit open, failing open", "key", key)
		return domain.RateLimitDecision{Allowed: true, Remaining: l.limit}
	}

	windowStart := l.clock.Now().Truncate(l.window)
	redisKey := fmt.Sprintf("rate_limit:frames:%s:%d", key, windowStart.Unix())

	opCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	start := l.clock.Now()
	count, err := l.rdb.Incr(opCtx, redisKey).Result()
	metrics.RateLimitStoreDuration.Observe(l.clock.Since(start).Seconds())

	if err != nil {
		l.breaker.RecordError(err)
		metrics.RateLimitFailOpens.Inc()
		slog.Warn("Rate limit store unreachable, failing open", "key", key, "error", err)
		return domain.RateLimitDecision{Allowed: true, Remaining: l.limit}
	}
	l.breaker.RecordSuccess()

	// First increment in this window sets the expiry so the window self-evicts.
	if count == 1 {
		if err := l.rdb.Expire(opCtx, redisKey, l.window).Err(); err != nil {
			slog.Warn("Failed to set rate limit window expiry", "key", redisKey, "error", err)
		}
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	allowed := int(count) <= l.limit
	if !allowed {
		metrics.RateLimitRejections.Inc()
	}

	return domain.RateLimitDecision{Allowed: allowed, Remaining: remaining}
}
