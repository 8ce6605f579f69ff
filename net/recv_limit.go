package net

import (
	"sync/atomic"

	"go.uber.org/ratelimit"
	"golang.org/x/time/rate"
)

// TokenRecvLimiter implements a token bucket rate limiting algorithm for
// controlling the rate at which inbound client messages are accepted. It
// protects the dispatch path from a single flooding client without tearing
// the connection down.
//
// The implementation uses atomic operations to safely update the limiter
// configuration at runtime without causing race conditions.
type TokenRecvLimiter struct {
	// limiter holds a pointer to a rate.Limiter from golang.org/x/time/rate
	// which implements the token bucket algorithm
	limiter atomic.Pointer[rate.Limiter]
}

// NewTokenRecvLimiter creates a new token bucket-based rate limiter.
//
// Parameters:
// - limit: The maximum number of messages allowed per second
// - burst: The maximum burst size of messages that can be accepted at once
//
// Returns:
// A pointer to a new TokenRecvLimiter instance, or nil if creation failed
func NewTokenRecvLimiter(limit int, burst int) *TokenRecvLimiter {
	limiter := rate.NewLimiter(rate.Limit(limit), burst)
	if limiter == nil {
		return nil
	}
	self := &TokenRecvLimiter{}
	self.limiter.Store(limiter)
	return self
}

// Allow reports whether another inbound message may be accepted now. The
// receive path must never block a transport goroutine, so the limiter is
// consulted without waiting; a false return drops the message.
func (l *TokenRecvLimiter) Allow() bool {
	return l.limiter.Load().Allow()
}

// Reload updates the rate limiter configuration at runtime.
// This allows for dynamic adjustment of rate limits without reconnecting
// clients.
//
// Parameters:
// - limit: The new maximum number of messages allowed per second
// - burst: The new maximum burst size of messages
func (l *TokenRecvLimiter) Reload(limit int, burst int) {
	limiter := rate.NewLimiter(rate.Limit(limit), burst)
	if limiter == nil {
		return
	}
	l.limiter.Store(limiter)
}

// FunnelRecvLimiter implements a leaky bucket rate limiting algorithm using
// Uber's ratelimit package. This alternative strategy paces deliveries
// evenly rather than admitting bursts, which suits the canonical-worker
// dispatch path where smooth inflow matters more than latency.
//
// Similar to TokenRecvLimiter, it uses atomic operations for thread-safety.
type FunnelRecvLimiter struct {
	// limiter holds a pointer to a ratelimit.Limiter from go.uber.org/ratelimit
	// which implements the leaky bucket algorithm
	limiter atomic.Pointer[ratelimit.Limiter]
}

// NewFunnelRecvLimiter creates a new leaky bucket-based rate limiter.
//
// Parameters:
// - limit: The maximum number of messages allowed per second
//
// Returns:
// A pointer to a new FunnelRecvLimiter instance, or nil if creation failed
func NewFunnelRecvLimiter(limit int) *FunnelRecvLimiter {
	limiter := ratelimit.New(limit)
	if limiter == nil {
		return nil
	}
	self := &FunnelRecvLimiter{}
	self.limiter.Store(&limiter)
	return self
}

// Take blocks until the rate limit allows the next message to be processed.
func (l *FunnelRecvLimiter) Take() {
	_ = (*l.limiter.Load()).Take()
}

// Reload updates the leaky bucket rate limiter configuration at runtime.
//
// Parameters:
// - limit: The new maximum number of messages allowed per second
func (l *FunnelRecvLimiter) Reload(limit int) {
	limiter := ratelimit.New(limit)
	if limiter == nil {
		return
	}
	l.limiter.Store(&limiter)
}
