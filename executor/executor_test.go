package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/bdexec/bdexec/graph"
	"github.com/bdexec/bdexec/planner"
)

// tickerBlock is a bare Clocked block with no ports, used to exercise the
// tick loop's drift-free scheduling in isolation.
type tickerBlock struct {
	id    string
	clock *graph.Clock
	ticks int32
}

func (b *tickerBlock) ID() string        { return b.id }
func (b *tickerBlock) Kind() graph.Kind  { return graph.KindClocked }
func (b *tickerBlock) Nin() int          { return 0 }
func (b *tickerBlock) Nout() int         { return 0 }
func (b *tickerBlock) SimOnly() bool     { return false }
func (b *tickerBlock) Clock() *graph.Clock { return b.clock }

func (b *tickerBlock) Tick(_ context.Context, _ float64) error {
	atomic.AddInt32(&b.ticks, 1)
	return nil
}

func ptrF(v float64) *float64 { return &v }

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExecutorDriftFreeScheduling(t *testing.T) {
	clock := clockz.NewFakeClock()

	fast := &graph.Clock{Name: "fast", T: 0.1}
	g := graph.NewGraph()
	g.AddClock(fast)
	block := &tickerBlock{id: "gen", clock: fast}
	g.AddBlock(block)
	must(t, g.Compile())

	plans, err := planner.New().Plan(context.Background(), g)
	must(t, err)

	ex := New(Config{Clock: clock, SetupBuffer: 0, MaxTime: ptrF(0.35)})

	errCh := make(chan error, 1)
	go func() { errCh <- ex.Run(context.Background(), g, plans) }()

	time.Sleep(10 * time.Millisecond)
	for i := 0; i < 5; i++ {
		clock.Advance(100 * time.Millisecond)
		clock.BlockUntilReady()
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop after MaxTime deadline")
	}

	// Ticks at simT = 0, 0.1, 0.2, 0.3, 0.4 (the first tick past MaxTime
	// stops the executor but still runs), five ticks total.
	if got := atomic.LoadInt32(&block.ticks); got != 5 {
		t.Fatalf("ticks = %d, want 5", got)
	}
}

// waveform is a Clocked source exposing state feedthrough (constant output),
// gain is a Function block, sink is a Sink capturing the last value it saw.
type waveform struct {
	id    string
	clock *graph.Clock
	value float64
}

func (b *waveform) ID() string          { return b.id }
func (b *waveform) Kind() graph.Kind    { return graph.KindClocked }
func (b *waveform) Nin() int            { return 0 }
func (b *waveform) Nout() int           { return 1 }
func (b *waveform) SimOnly() bool       { return false }
func (b *waveform) Clock() *graph.Clock { return b.clock }
func (b *waveform) Tick(_ context.Context, _ float64) error { return nil }
func (b *waveform) Output(_ context.Context, _ float64) ([]graph.Sample, error) {
	return []graph.Sample{graph.NewScalar(b.value)}, nil
}

type gainBlock struct {
	id     string
	gain   float64
	g      *graph.Graph
	handle int
}

func (b *gainBlock) ID() string          { return b.id }
func (b *gainBlock) Kind() graph.Kind    { return graph.KindFunction }
func (b *gainBlock) Nin() int            { return 1 }
func (b *gainBlock) Nout() int           { return 1 }
func (b *gainBlock) SimOnly() bool       { return false }
func (b *gainBlock) Clock() *graph.Clock { return nil }

func (b *gainBlock) Output(_ context.Context, _ float64) ([]graph.Sample, error) {
	in := b.g.Input(b.handle, 0)
	return []graph.Sample{graph.NewScalar(in.Scalar * b.gain)}, nil
}

type recordingSink struct {
	id     string
	g      *graph.Graph
	handle int

	last    atomic.Value
	steps   int32
	failOn  int32 // if > 0, Step returns an error on this 1-indexed step
	stopped int32
}

func (b *recordingSink) ID() string          { return b.id }
func (b *recordingSink) Kind() graph.Kind    { return graph.KindSink }
func (b *recordingSink) Nin() int            { return 1 }
func (b *recordingSink) Nout() int           { return 0 }
func (b *recordingSink) SimOnly() bool       { return false }
func (b *recordingSink) Clock() *graph.Clock { return nil }

func (b *recordingSink) Done(_ context.Context) error {
	atomic.StoreInt32(&b.stopped, 1)
	return nil
}

func (b *recordingSink) Step(_ context.Context) error {
	n := atomic.AddInt32(&b.steps, 1)
	if b.failOn > 0 && n == b.failOn {
		return errors.New("sink failure")
	}
	v := b.g.Input(b.handle, 0)
	b.last.Store(v.Scalar)
	return nil
}

func buildGainPipeline(t *testing.T, clock *graph.Clock) (*graph.Graph, *waveform, *gainBlock, *recordingSink) {
	t.Helper()
	g := graph.NewGraph()
	g.AddClock(clock)

	src := &waveform{id: "source", clock: clock, value: 2.0}
	gain := &gainBlock{id: "gain", gain: 3.0, g: g}
	sink := &recordingSink{id: "sink", g: g}

	srcH := g.AddBlock(src)
	gainH := g.AddBlock(gain)
	sinkH := g.AddBlock(sink)
	gain.handle = gainH
	sink.handle = sinkH

	must(t, g.Connect(graph.Port{Block: srcH, Index: 0}, graph.Port{Block: gainH, Index: 0}))
	must(t, g.Connect(graph.Port{Block: gainH, Index: 0}, graph.Port{Block: sinkH, Index: 0}))

	must(t, g.Compile())
	return g, src, gain, sink
}

func TestExecutorGainPipelineValueAtDeadline(t *testing.T) {
	clock := clockz.NewFakeClock()
	rtClock := &graph.Clock{Name: "fast", T: 0.05}

	g, _, _, sink := buildGainPipeline(t, rtClock)
	plans, err := planner.New().Plan(context.Background(), g)
	must(t, err)

	ex := New(Config{Clock: clock, SetupBuffer: 0, MaxTime: ptrF(0.25)})

	errCh := make(chan error, 1)
	go func() { errCh <- ex.Run(context.Background(), g, plans) }()

	time.Sleep(10 * time.Millisecond)
	for i := 0; i < 6; i++ {
		clock.Advance(50 * time.Millisecond)
		clock.BlockUntilReady()
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop")
	}

	got, _ := sink.last.Load().(float64)
	if got != 6.0 {
		t.Fatalf("sink.last = %v, want 6.0 (2.0 * 3.0 gain)", got)
	}
}

func TestExecutorStopsOnBlockFailureAndCallsDone(t *testing.T) {
	clock := clockz.NewFakeClock()
	rtClock := &graph.Clock{Name: "fast", T: 0.1}

	g, src, gain, sink := buildGainPipeline(t, rtClock)
	sink.failOn = 2

	plans, err := planner.New().Plan(context.Background(), g)
	must(t, err)

	_ = src
	_ = gain

	ex := New(Config{Clock: clock, SetupBuffer: 0})

	errCh := make(chan error, 1)
	go func() { errCh <- ex.Run(context.Background(), g, plans) }()

	time.Sleep(10 * time.Millisecond)
	for i := 0; i < 3; i++ {
		clock.Advance(100 * time.Millisecond)
		clock.BlockUntilReady()
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Run returned nil error, want the sink failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop on block failure")
	}

	if atomic.LoadInt32(&sink.stopped) != 1 {
		t.Fatal("sink.Done was not called during teardown")
	}
}

func TestExecutorTwoClocksRespectRatio(t *testing.T) {
	clock := clockz.NewFakeClock()

	fast := &graph.Clock{Name: "fast", T: 0.1}
	slow := &graph.Clock{Name: "slow", T: 0.3}

	g := graph.NewGraph()
	g.AddClock(fast)
	g.AddClock(slow)

	fastBlock := &tickerBlock{id: "fast-gen", clock: fast}
	slowBlock := &tickerBlock{id: "slow-gen", clock: slow}
	g.AddBlock(fastBlock)
	g.AddBlock(slowBlock)
	must(t, g.Compile())

	plans, err := planner.New().Plan(context.Background(), g)
	must(t, err)

	ex := New(Config{Clock: clock, SetupBuffer: 0, MaxTime: ptrF(0.9)})

	errCh := make(chan error, 1)
	go func() { errCh <- ex.Run(context.Background(), g, plans) }()

	time.Sleep(10 * time.Millisecond)
	for i := 0; i < 10; i++ {
		clock.Advance(100 * time.Millisecond)
		clock.BlockUntilReady()
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop")
	}

	fastTicks := atomic.LoadInt32(&fastBlock.ticks)
	slowTicks := atomic.LoadInt32(&slowBlock.ticks)
	if fastTicks < 9 {
		t.Fatalf("fast clock ticks = %d, want at least 9 over 0.9s at T=0.1", fastTicks)
	}
	wantSlow := fastTicks / 3
	if slowTicks < wantSlow-1 || slowTicks > wantSlow+1 {
		t.Fatalf("slow clock ticks = %d, want close to fast/3 = %d", slowTicks, wantSlow)
	}
}

// stuckBlock is a Clocked block whose Tick ignores ctx cancellation and
// blocks until released, exercising BlockTimeout's hard wall.
type stuckBlock struct {
	id      string
	clock   *graph.Clock
	release chan struct{}
}

func (b *stuckBlock) ID() string          { return b.id }
func (b *stuckBlock) Kind() graph.Kind    { return graph.KindClocked }
func (b *stuckBlock) Nin() int            { return 0 }
func (b *stuckBlock) Nout() int           { return 0 }
func (b *stuckBlock) SimOnly() bool       { return false }
func (b *stuckBlock) Clock() *graph.Clock { return b.clock }

func (b *stuckBlock) Tick(_ context.Context, _ float64) error {
	<-b.release
	return nil
}

func TestExecutorBlockTimeoutStopsRun(t *testing.T) {
	rtClock := &graph.Clock{Name: "fast", T: 0.01}
	g := graph.NewGraph()
	g.AddClock(rtClock)
	block := &stuckBlock{id: "stuck", clock: rtClock, release: make(chan struct{})}
	defer close(block.release)
	g.AddBlock(block)
	must(t, g.Compile())

	plans, err := planner.New().Plan(context.Background(), g)
	must(t, err)

	ex := New(Config{SetupBuffer: 0, BlockTimeout: 20 * time.Millisecond})

	errCh := make(chan error, 1)
	go func() { errCh <- ex.Run(context.Background(), g, plans) }()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Run returned nil error, want a block-timeout failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop after BlockTimeout elapsed")
	}
}
