package net

import (
	"sync"
	"time"
)

// RoundTripTime tracks outbound pings by correlation code and computes
// latency samples when the matching acknowledgement arrives. Smoothing uses
// an exponentially weighted moving average so a single delayed ack does not
// distort the estimate.
type RoundTripTime struct {
	mu       sync.Mutex
	outbound map[byte]time.Time
	latest   time.Duration
	smoothed time.Duration
	samples  int
}

// NewRoundTripTime creates an empty round-trip tracker.
func NewRoundTripTime() *RoundTripTime {
	return &RoundTripTime{outbound: make(map[byte]time.Time)}
}

// RecordOutboundPing notes the departure time of a ping with the given code.
// A re-used code overwrites the previous pending entry.
func (r *RoundTripTime) RecordOutboundPing(code byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outbound[code] = time.Now()
}

// RecordInboundPing matches an inbound ping code against a pending outbound
// ping. On a match it returns the measured round trip and updates the
// smoothed estimate; an unmatched code returns false.
func (r *RoundTripTime) RecordInboundPing(code byte) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sent, ok := r.outbound[code]
	if !ok {
		return 0, false
	}
	delete(r.outbound, code)

	rtt := time.Since(sent)
	r.latest = rtt
	if r.samples == 0 {
		r.smoothed = rtt
	} else {
		// EWMA with alpha = 1/8.
		r.smoothed = r.smoothed - r.smoothed/8 + rtt/8
	}
	r.samples++
	return rtt, true
}

// LatestRtt returns the most recent round-trip sample.
func (r *RoundTripTime) LatestRtt() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// SmoothedRtt returns the smoothed round-trip estimate.
func (r *RoundTripTime) SmoothedRtt() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.smoothed
}

// Samples returns the number of completed measurements.
func (r *RoundTripTime) Samples() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}
