package graph

import "context"

// Kind is the closed set of block roles spec §3 defines. KindTransfer
// exists only so Compile and the planner can recognize and reject it; no
// real-time plan ever contains one.
type Kind int

const (
	KindSource Kind = iota
	KindSink
	KindFunction
	KindClocked
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindSink:
		return "sink"
	case KindFunction:
		return "function"
	case KindClocked:
		return "clocked"
	case KindTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Block is the minimal identity and shape every node in a Graph exposes.
// The dominant operation (output/step/tick) is discovered separately via
// the Outputter/Stepper/Ticker capability interfaces, not part of this
// interface, so a block only implements what its Kind requires.
type Block interface {
	ID() string
	Kind() Kind
	Nin() int
	Nout() int
	SimOnly() bool
	Clock() *Clock // nil unless Kind() == KindClocked
}

// Outputter is a pure projection from current inputs, owned state, and
// simulation time to a new output vector. Required for Source and
// Function blocks; optional for Clocked blocks exposing state feedthrough.
type Outputter interface {
	Output(ctx context.Context, t float64) ([]Sample, error)
}

// Stepper consumes the current input vector, possibly side-effecting.
// Required for Sink blocks.
type Stepper interface {
	Step(ctx context.Context) error
}

// Ticker advances a block's internal state by one clock period. Required
// for Clocked blocks.
type Ticker interface {
	Tick(ctx context.Context, dt float64) error
}

// Starter is invoked once during executor setup, after reset, before the
// first tick is armed.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper releases block-owned resources. Called on every exit path, in
// reverse plan-concatenation order.
type Stopper interface {
	Done(ctx context.Context) error
}

// DispatchTag is the precomputed capability tag a compiled plan carries per
// block, so the executor's inner loop is a straight match on an enum
// instead of a runtime type switch (design note, spec §9).
//
// The tags are not mutually exclusive in effect the way "one of
// output/step/tick is dominant" might suggest in isolation: a Clocked
// block always ticks, and — per spec §3's "Clocked blocks may also
// provide output" — a DispatchClockedOutput block additionally runs the
// output+propagate step if it implements Outputter, exactly as
// original_source's create_exec_plan runs `if isinstance(b, ClockedBlock):
// b.tick(dt)` and the output branch as two independent statements, not an
// if/elif chain.
type DispatchTag int

const (
	// DispatchOutput blocks (Source, Function) run Output+propagate only.
	DispatchOutput DispatchTag = iota
	// DispatchStep blocks (Sink) run Step only.
	DispatchStep
	// DispatchClockedOutput blocks (Clocked) always Tick, then run
	// Output+propagate too if they implement Outputter.
	DispatchClockedOutput
)

// dispatchTag derives the tag for b given its Kind.
func dispatchTag(b Block) DispatchTag {
	switch b.Kind() {
	case KindSink:
		return DispatchStep
	case KindClocked:
		return DispatchClockedOutput
	default:
		return DispatchOutput
	}
}
