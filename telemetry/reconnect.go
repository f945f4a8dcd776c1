package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
)

// Connection state constants, adapted directly from pipz's
// CircuitBreaker closed/open/half-open state machine
// (circuitbreaker.go), generalized from "stop calling a failing
// function" to "stop writing to a failed socket and periodically retry
// the dial."
const (
	stateConnected    = "connected"
	stateBackoff      = "backoff"
	stateReconnecting = "reconnecting"
)

// reconnector tracks whether a Link may attempt to redial its peer.
// Outbound frames are dropped by the caller for as long as State() is
// not stateConnected (spec.md §7: "Transport errors on the tuner link
// do not stop execution; the link enters a reconnect state and outbound
// frames are dropped until recovery").
//
// The wait between attempts grows exponentially (baseDelay, 2x, 4x, ...
// capped at maxDelay), adapted directly from pipz.Backoff's doubling
// policy (backoff.go), generalized from "spacing out retries of a
// processor call" to "spacing out redials of a dropped socket".
type reconnector struct {
	mu           sync.Mutex
	clock        clockz.Clock
	state        string
	lastFailTime time.Time
	baseDelay    time.Duration
	maxDelay     time.Duration
	curDelay     time.Duration
	attempts     int
	metrics      *metricz.Registry
}

func newReconnector(clock clockz.Clock, baseDelay, maxDelay time.Duration, metrics *metricz.Registry) *reconnector {
	if clock == nil {
		clock = clockz.RealClock
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &reconnector{
		clock:     clock,
		state:     stateConnected,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		curDelay:  baseDelay,
		metrics:   metrics,
	}
}

// ReadyToDial reports whether enough time has passed since the last
// failure to attempt a reconnect, transitioning backoff -> reconnecting
// the same way CircuitBreaker transitions open -> half-open.
func (r *reconnector) ReadyToDial() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == stateBackoff && r.clock.Since(r.lastFailTime) >= r.curDelay {
		r.state = stateReconnecting
		capitan.Info(context.Background(), SignalReconnecting, FieldAttempts.Field(r.attempts))
	}
	return r.state == stateReconnecting
}

// MarkConnected records a successful dial and handshake, resetting the
// backoff delay back to baseDelay for the next failure.
func (r *reconnector) MarkConnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateConnected {
		capitan.Info(context.Background(), SignalConnected, FieldAttempts.Field(r.attempts))
	}
	r.state = stateConnected
	r.attempts = 0
	r.curDelay = r.baseDelay
}

// MarkFailed records a dial, handshake, read, or write failure, enters
// backoff, and doubles the delay before the next dial attempt (capped
// at maxDelay).
func (r *reconnector) MarkFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stateBackoff
	r.lastFailTime = r.clock.Now()
	r.attempts++
	if r.attempts > 1 {
		r.curDelay *= 2
		if r.curDelay > r.maxDelay {
			r.curDelay = r.maxDelay
		}
	}
	if r.metrics != nil {
		r.metrics.Counter(ReconnectAttempsTotal).Inc()
	}
	capitan.Warn(context.Background(), SignalDisconnected, FieldAttempts.Field(r.attempts))
}

// State returns the current connection state for observability.
func (r *reconnector) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Connected reports whether outbound frames should be sent right now.
func (r *reconnector) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateConnected
}
