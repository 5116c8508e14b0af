package redis

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// TestFrameLimiter_FailsOpenWhenStoreUnreachable verifies that a dead counter
// store never blocks inbound frames: every check is allowed.
func TestFrameLimiter_FailsOpenWhenStoreUnreachable(t *testing.T) {
	// Port 1 is never a Redis server; the dial fails fast.
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewFrameLimiter(client, clockwork.NewRealClock(), 100, time.Minute)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		decision := limiter.CheckAndIncrement(ctx, "user-1")
		assert.True(t, decision.Allowed, "check %d should fail open", i)
	}
}

// TestFrameLimiter_WindowBoundary verifies window keys are derived by
// truncation, so two checks in the same window share a boundary and checks in
// different windows do not.
func TestFrameLimiter_WindowBoundary(t *testing.T) {
	window := 60 * time.Second
	base := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	inWindow := base.Truncate(window)
	lateSameWindow := base.Add(20 * time.Second).Truncate(window)
	nextWindow := base.Add(60 * time.Second).Truncate(window)

	assert.Equal(t, inWindow, lateSameWindow)
	assert.NotEqual(t, inWindow, nextWindow)
	assert.Equal(t, inWindow.Add(window), nextWindow)
}
