package redis

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFrameLimiter_Integration_FixedWindow exercises the quota: limit frames
// allowed, the next rejected with remaining=0, and a fresh window after the
// boundary rolls over.
func TestFrameLimiter_Integration_FixedWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := setupTestClient(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 22, 16, 0, 5, 0, time.UTC))
	limiter := NewFrameLimiter(client, clock, 5, 60*time.Second)

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		decision := limiter.CheckAndIncrement(ctx, "user-42")
		require.True(t, decision.Allowed, "frame %d should be allowed", i+1)
		assert.Equal(t, 4-i, decision.Remaining)
	}

	// 6th frame in the same window: rejected, quota exhausted.
	decision := limiter.CheckAndIncrement(ctx, "user-42")
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)

	// 5 seconds later, still inside the window: still rejected.
	clock.Advance(5 * time.Second)
	decision = limiter.CheckAndIncrement(ctx, "user-42")
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)

	// Past the window boundary: the counter starts over.
	clock.Advance(60 * time.Second)
	decision = limiter.CheckAndIncrement(ctx, "user-42")
	assert.True(t, decision.Allowed)
	assert.Equal(t, 4, decision.Remaining)
}

// TestFrameLimiter_Integration_KeysAreIndependent verifies one identity's
// exhausted quota does not affect another's.
func TestFrameLimiter_Integration_KeysAreIndependent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := setupTestClient(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 22, 16, 0, 5, 0, time.UTC))
	limiter := NewFrameLimiter(client, clock, 2, 60*time.Second)

	ctx := context.Background()

	limiter.CheckAndIncrement(ctx, "user-a")
	limiter.CheckAndIncrement(ctx, "user-a")
	assert.False(t, limiter.CheckAndIncrement(ctx, "user-a").Allowed)

	assert.True(t, limiter.CheckAndIncrement(ctx, "user-b").Allowed)
}

// TestFrameLimiter_Integration_WindowExpiry verifies the counter key carries a
// TTL so stale windows self-evict from the store.
func TestFrameLimiter_Integration_WindowExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := setupTestClient(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 22, 16, 0, 5, 0, time.UTC))
	window := 60 * time.Second
	limiter := NewFrameLimiter(client, clock, 5, window)

	ctx := context.Background()
	limiter.CheckAndIncrement(ctx, "user-ttl")

	keys, err := client.Keys(ctx, "rate_limit:frames:user-ttl:*").Result()
	require.NoError(t, err)
	require.Len(t, keys, 1)

	ttl, err := client.TTL(ctx, keys[0]).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, window)
}
