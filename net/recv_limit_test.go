package net

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Tests the token bucket: the burst is admitted, the excess dropped.
func TestTokenRecvLimiter_BurstThenDrop(t *testing.T) {
	limiter := NewTokenRecvLimiter(1, 2)

	allowed := 0
	for i := 0; i < 10; i++ {
		if limiter.Allow() {
			allowed++
		}
	}
	assert.GreaterOrEqual(t, allowed, 1)
	assert.LessOrEqual(t, allowed, 2)
}

// Tests runtime reconfiguration of the token bucket.
func TestTokenRecvLimiter_Reload(t *testing.T) {
	limiter := NewTokenRecvLimiter(1, 1)
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())

	limiter.Reload(1000, 100)
	allowed := 0
	for i := 0; i < 50; i++ {
		if limiter.Allow() {
			allowed++
		}
	}
	assert.Equal(t, 50, allowed)
}

// Tests the leaky bucket paces without dropping.
func TestFunnelRecvLimiter_Take(t *testing.T) {
	limiter := NewFunnelRecvLimiter(1000)
	for i := 0; i < 5; i++ {
		limiter.Take()
	}
	limiter.Reload(2000)
	limiter.Take()
}
