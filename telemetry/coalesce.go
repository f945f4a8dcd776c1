package telemetry

import (
	"context"
	"sync"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/metricz"
)

// signalCoalescer holds, per scope, only the most recently produced
// SignalFrame: a burst of ticks on a fast clock between two writer
// flushes collapses to one frame per scope instead of queuing every
// tick (spec.md §4.4 back-pressure note, spec.md §9 design note).
type signalCoalescer struct {
	mu      sync.Mutex
	pending map[string]SignalFrame
}

func newSignalCoalescer() *signalCoalescer {
	return &signalCoalescer{pending: make(map[string]SignalFrame)}
}

// Put replaces any unflushed frame for f.ScopeID with f.
func (c *signalCoalescer) Put(f SignalFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[f.ScopeID] = f
}

// DrainAll returns and clears every coalesced frame. Order is
// unspecified; the dashboard keys frames by scope_id regardless.
func (c *signalCoalescer) DrainAll() []SignalFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	out := make([]SignalFrame, 0, len(c.pending))
	for _, f := range c.pending {
		out = append(out, f)
	}
	c.pending = make(map[string]SignalFrame)
	return out
}

// videoGate holds at most one not-yet-sent VideoFrame per stream.
// Offer never blocks: a frame produced while the writer is still
// working on the previous one is dropped, never queued, matching
// spec.md §4.4's "video frames dropped, never queued" rule. Adapted
// from pipz.RateLimiter's "drop mode" (ratelimiter.go, modeDrop),
// generalized from rate-limiting a request stream to back-pressuring a
// telemetry frame stream.
type videoGate struct {
	mu      sync.Mutex
	pending map[string]VideoFrame
	metrics *metricz.Registry
}

func newVideoGate(metrics *metricz.Registry) *videoGate {
	return &videoGate{pending: make(map[string]VideoFrame), metrics: metrics}
}

// Offer replaces the pending frame for f.StreamID if one is not already
// waiting to be sent; otherwise it drops f and records the drop.
func (g *videoGate) Offer(f VideoFrame) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.pending[f.StreamID]; busy {
		if g.metrics != nil {
			g.metrics.Counter(VideoFramesDropped).Inc()
		}
		capitan.Warn(context.Background(), SignalVideoDropped, FieldStreamID.Field(f.StreamID))
		return
	}
	g.pending[f.StreamID] = f
}

// DrainAll returns and clears every pending video frame.
func (g *videoGate) DrainAll() []VideoFrame {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.pending) == 0 {
		return nil
	}
	out := make([]VideoFrame, 0, len(g.pending))
	for _, f := range g.pending {
		out = append(out, f)
	}
	g.pending = make(map[string]VideoFrame)
	return out
}

// paramQueue is a bounded SPSC queue of inbound parameter mutations,
// drained atomically at the executor's designated tick point
// (spec.md §5). A full queue drops the newest frame rather than
// blocking the link's read loop.
type paramQueue struct {
	ch      chan ParamFrame
	metrics *metricz.Registry
}

func newParamQueue(size int, metrics *metricz.Registry) *paramQueue {
	if size <= 0 {
		size = 64
	}
	return &paramQueue{ch: make(chan ParamFrame, size), metrics: metrics}
}

func (q *paramQueue) Offer(f ParamFrame) {
	select {
	case q.ch <- f:
	default:
		if q.metrics != nil {
			q.metrics.Counter(ParamFramesDropped).Inc()
		}
	}
}

// DrainAll returns every currently queued frame without blocking.
func (q *paramQueue) DrainAll() []ParamFrame {
	var out []ParamFrame
	for {
		select {
		case f := <-q.ch:
			out = append(out, f)
		default:
			return out
		}
	}
}
