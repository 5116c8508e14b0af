package domain

import "context"

// RateLimitDecision is the outcome of a frame rate-limit check.
type RateLimitDecision struct {
	Allowed   bool
	Remaining int
}

// FrameRateLimiter enforces the fixed-window inbound control-frame limit,
// keyed by authenticated identity or remote address. Implementations must
// fail open: a store outage yields Allowed=true and is logged, never surfaced.
type FrameRateLimiter interface {
	CheckAndIncrement(ctx context.Context, key string) RateLimitDecision
}

// TokenVerifier validates a connect-time bearer credential and returns the
// authenticated identity. Token issuance lives outside this service.
type TokenVerifier interface {
	Verify(token string) (string, error)
}
