package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"

	"github.com/bdexec/bdexec/executor"
)

// HandshakeError reports a version mismatch during the three-way
// handshake (spec.md §4.4). It is fatal: no data frame is ever sent or
// accepted before a successful handshake.
type HandshakeError struct {
	Got, Want int
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("telemetry: handshake version mismatch: got %d, want %d", e.Got, e.Want)
}

// Dialer opens a fresh transport to the broker. Implementations wrap
// net.Dial for TCP on host, or a UART driver's Open on embedded —
// spec.md §4.4 abstracts both behind "a single ordered byte stream".
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// Link is the node-side peer of the telemetry/tuning transport: it
// dials (or is handed) a connection to a broker, performs the
// handshake, sends the node definition, and thereafter runs a read
// loop (inbound param/stop frames) and a write loop (outbound coalesced
// signal/video frames) concurrently, reconnecting on transport failure
// without stopping the executor (spec.md §7).
//
// Only the node side is implemented here; the dashboard/broker process
// is an external collaborator (spec.md §1) whose contract this package
// satisfies but does not itself provide.
type Link struct {
	dial    Dialer
	nodeDef NodeDef

	clock         clockz.Clock
	flushInterval time.Duration

	metrics *metricz.Registry
	tracer  *tracez.Tracer

	baseDelay, maxDelay time.Duration

	coalescer *signalCoalescer
	videos    *videoGate
	params    *paramQueue
	recon     *reconnector

	mu   sync.Mutex
	conn io.ReadWriteCloser

	stopRequested atomic.Bool
}

// Option configures a Link at construction.
type Option func(*Link)

// WithClock overrides the clock used for reconnect backoff and write-loop
// flush timing, matching every other pack component's WithClock test hook.
func WithClock(c clockz.Clock) Option {
	return func(l *Link) { l.clock = c }
}

// WithFlushInterval overrides how often the write loop drains the
// coalescer and video gate. Defaults to 20ms.
func WithFlushInterval(d time.Duration) Option {
	return func(l *Link) { l.flushInterval = d }
}

// WithBackoff overrides the reconnect backoff's base and max delay.
// Defaults to 250ms base, 10s max.
func WithBackoff(base, max time.Duration) Option {
	return func(l *Link) { l.baseDelay, l.maxDelay = base, max }
}

// baseDelay/maxDelay are staged fields so WithBackoff can run before
// the reconnector is constructed in New.
func (l *Link) applyBackoffDefaults() {
	if l.baseDelay == 0 {
		l.baseDelay = 250 * time.Millisecond
	}
	if l.maxDelay == 0 {
		l.maxDelay = 10 * time.Second
	}
}

// New returns a Link that dials dial on first Run and on every
// reconnect. nodeDef is sent as the first outbound frame after each
// successful handshake.
func New(dial Dialer, nodeDef NodeDef, opts ...Option) *Link {
	l := &Link{
		dial:          dial,
		nodeDef:       nodeDef,
		clock:         clockz.RealClock,
		flushInterval: 20 * time.Millisecond,
		metrics:       metricz.New(),
		tracer:        tracez.New(),
		coalescer:     newSignalCoalescer(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.applyBackoffDefaults()
	l.videos = newVideoGate(l.metrics)
	l.params = newParamQueue(64, l.metrics)
	l.recon = newReconnector(l.clock, l.baseDelay, l.maxDelay, l.metrics)

	l.metrics.Counter(FramesSentTotal)
	l.metrics.Counter(FramesReceivedTotal)
	return l
}

// Run dials, handshakes, sends the node definition, then drives the
// read/write loops until ctx is canceled. Transport failures never
// return from Run: the link drops into a reconnect state and Run keeps
// retrying until ctx is done, matching spec.md §7's "transport errors
// on the tuner link do not stop execution".
func (l *Link) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := l.connectOnce(ctx); err != nil {
			var hs *HandshakeError
			if errors.As(err, &hs) {
				return err
			}
			l.recon.MarkFailed()
		}
		if err := l.waitForRedial(ctx); err != nil {
			return err
		}
	}
}

func (l *Link) waitForRedial(ctx context.Context) error {
	for !l.recon.Connected() && !l.recon.ReadyToDial() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(l.flushInterval):
		}
	}
	return nil
}

// connectOnce dials, handshakes, sends the node definition, then runs
// the read/write loops until either fails or ctx is canceled. It
// returns nil only when ctx is canceled mid-session; any transport or
// handshake failure returns a non-nil error.
func (l *Link) connectOnce(ctx context.Context) error {
	conn, err := l.dial(ctx)
	if err != nil {
		return err
	}

	if err := l.handshake(conn); err != nil {
		conn.Close() //nolint:errcheck
		var hs *HandshakeError
		if errors.As(err, &hs) {
			capitan.Error(ctx, SignalHandshakeErr, FieldGotVer.Field(hs.Got), FieldWantVer.Field(hs.Want))
		}
		return err
	}

	if err := writeFrame(conn, KindNodeDef, l.nodeDef); err != nil {
		conn.Close() //nolint:errcheck
		return err
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	l.recon.MarkConnected()

	var wg sync.WaitGroup
	wg.Add(2)
	errCh := make(chan error, 2)

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer wg.Done()
		errCh <- l.readLoop(readCtx, conn)
	}()
	go func() {
		defer wg.Done()
		errCh <- l.writeLoop(readCtx, conn)
	}()

	err = <-errCh
	cancel()
	wg.Wait()
	conn.Close() //nolint:errcheck

	l.mu.Lock()
	l.conn = nil
	l.mu.Unlock()

	if ctx.Err() != nil {
		return nil
	}
	return err
}

// handshake performs the three-way version exchange (spec.md §4.4,
// testable scenario 6): this side sends {version, role}, reads the
// peer's {version, role} and rejects on mismatch, then sends a final
// confirmation frame before any data frame is exchanged.
func (l *Link) handshake(rw io.ReadWriteCloser) error {
	if err := writeFrame(rw, KindHandshake, Handshake{Version: ProtocolVersion, Role: RoleNode}); err != nil {
		return err
	}
	kind, payload, err := readFrame(rw)
	if err != nil {
		return err
	}
	if kind != KindHandshake {
		return fmt.Errorf("telemetry: expected handshake frame, got %s", kind)
	}
	peer, err := decodePayload[Handshake](payload)
	if err != nil {
		return err
	}
	if peer.Version != ProtocolVersion {
		return &HandshakeError{Got: peer.Version, Want: ProtocolVersion}
	}
	return writeFrame(rw, KindHandshake, Handshake{Version: ProtocolVersion, Role: RoleNode})
}

// readLoop decodes inbound param/stop frames until r fails or ctx is
// canceled. Unknown kinds are ignored (spec.md §6: "any unknown key is
// ignored by the core").
func (l *Link) readLoop(ctx context.Context, r io.Reader) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		kind, payload, err := readFrame(r)
		if err != nil {
			return err
		}
		l.metrics.Counter(FramesReceivedTotal).Inc()
		switch kind {
		case KindParam:
			f, err := decodePayload[ParamFrame](payload)
			if err == nil {
				l.params.Offer(f)
			}
		case KindStop:
			l.stopRequested.Store(true)
			capitan.Info(ctx, SignalStopReceived)
		}
	}
}

// writeLoop periodically drains the signal coalescer and video gate
// and writes whatever accumulated, on a fixed tick rather than per
// produced frame (spec.md §4.4 back-pressure/coalescing).
func (l *Link) writeLoop(ctx context.Context, w io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(l.flushInterval):
			if err := l.flush(w); err != nil {
				return err
			}
		}
	}
}

func (l *Link) flush(w io.Writer) error {
	for _, f := range l.coalescer.DrainAll() {
		if err := writeFrame(w, KindSignal, f); err != nil {
			return err
		}
		l.metrics.Counter(FramesSentTotal).Inc()
	}
	for _, f := range l.videos.DrainAll() {
		if err := writeFrame(w, KindVideo, f); err != nil {
			return err
		}
		l.metrics.Counter(FramesSentTotal).Inc()
	}
	return nil
}

// PublishSignal queues a signal frame for the next write-loop flush,
// coalescing with any not-yet-sent frame for the same scope.
func (l *Link) PublishSignal(f SignalFrame) {
	if !l.recon.Connected() {
		return
	}
	l.coalescer.Put(f)
}

// PublishVideo offers a video frame for the next flush, dropping it
// immediately (never queuing) if a frame for the same stream is still
// pending (spec.md §4.4).
func (l *Link) PublishVideo(f VideoFrame) {
	if !l.recon.Connected() {
		return
	}
	l.videos.Offer(f)
}

// DrainParamUpdates implements executor.TunerLink.
func (l *Link) DrainParamUpdates() []executor.ParamUpdate {
	frames := l.params.DrainAll()
	if len(frames) == 0 {
		return nil
	}
	out := make([]executor.ParamUpdate, len(frames))
	for i, f := range frames {
		out[i] = executor.ParamUpdate{ParamID: f.ParamID, Value: f.Value}
	}
	return out
}

// StopRequested implements executor.TunerLink. It is a one-shot
// read-and-clear so a single inbound stop frame cannot retrigger
// Executor.triggerStop's already-idempotent CompareAndSwap pointlessly
// on every subsequent tick.
func (l *Link) StopRequested() bool {
	return l.stopRequested.Swap(false)
}

// Connected reports whether the link currently has a live, handshaken
// connection to the broker.
func (l *Link) Connected() bool {
	l.mu.Lock()
	live := l.conn != nil
	l.mu.Unlock()
	return live && l.recon.Connected()
}

// Metrics exposes the Link's metric registry.
func (l *Link) Metrics() *metricz.Registry { return l.metrics }

var _ executor.TunerLink = (*Link)(nil)
