package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstCallIsImmediate(t *testing.T) {
	limiter := NewFixedRateLimiter(time.Second)

	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSubsequentCallsWait(t *testing.T) {
	delay := 60 * time.Millisecond
	limiter := NewFixedRateLimiter(delay)

	require.NoError(t, limiter.Wait(context.Background()))

	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), delay-5*time.Millisecond)
}

func TestWaitHonorsCancellation(t *testing.T) {
	limiter := NewFixedRateLimiter(10 * time.Second)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestZeroDelayNeverBlocks(t *testing.T) {
	limiter := NewFixedRateLimiter(0)

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSetDelay(t *testing.T) {
	limiter := NewSimpleRateLimiter(10*time.Second, 10*time.Second)
	require.NoError(t, limiter.Wait(context.Background()))

	limiter.SetDelay(0, 0)

	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestJitteredDelayStaysInRange(t *testing.T) {
	limiter := NewSimpleRateLimiter(10*time.Millisecond, 30*time.Millisecond)

	for i := 0; i < 20; i++ {
		d := limiter.calculateDelay()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 30*time.Millisecond)
	}
}
