package graph

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	errInputAlreadyWired = errors.New("input port already wired")
	errUnconnectedInput  = errors.New("input port has no incoming wire")
	errTransferBlock     = errors.New("transfer blocks are not supported in real-time plans")
)

// blockEntry is the arena slot owning one Block plus the bookkeeping the
// graph needs to iterate and reset it: insertion order, dispatch tag,
// current input/output slots, and the set of wires leaving each output
// port (fan-out, insertion order preserved).
type blockEntry struct {
	block Block
	seq   int
	tag   DispatchTag

	// inputs/outputs are atomic.Pointer[Sample] slots, not plain Sample
	// fields: a cross-clock wire's producer and consumer run on different
	// clock tasks, possibly concurrently, and spec §5 requires an atomic
	// per-slot store on the host.
	inputs  []atomic.Pointer[Sample]
	outputs []atomic.Pointer[Sample]
	// wiredIn[i] is true once input port i has an incoming wire recorded
	// by connect; used by compile to check invariant (1).
	wiredIn []bool
	// outWires[i] holds, in insertion order, every wire leaving output
	// port i.
	outWires [][]Wire
}

// Graph owns blocks, wires, and clocks in insertion-order arenas. Blocks
// hold a back-reference to their Graph but the Graph never holds a
// pointer back to a block's owner; everything is addressed by integer
// handle (arena ownership, spec §9).
type Graph struct {
	blocks   []*blockEntry
	clocks   []*Clock
	compiled bool

	// byID lets callers look a block up by its stable identity without
	// keeping their own handle table.
	byID map[string]int
}

// NewGraph returns an empty Graph ready for block registration.
func NewGraph() *Graph {
	return &Graph{byID: make(map[string]int)}
}

// AddBlock registers b in the arena and returns its handle. Blocks must be
// added before any wire referencing them is created.
func (g *Graph) AddBlock(b Block) int {
	handle := len(g.blocks)
	entry := &blockEntry{
		block:    b,
		seq:      handle,
		tag:      dispatchTag(b),
		inputs:   make([]atomic.Pointer[Sample], b.Nin()),
		outputs:  make([]atomic.Pointer[Sample], b.Nout()),
		wiredIn:  make([]bool, b.Nin()),
		outWires: make([][]Wire, b.Nout()),
	}
	g.blocks = append(g.blocks, entry)
	g.byID[b.ID()] = handle
	g.compiled = false
	return handle
}

// AddClock registers a Clock and returns its handle.
func (g *Graph) AddClock(c *Clock) int {
	c.seq = len(g.clocks)
	g.clocks = append(g.clocks, c)
	g.compiled = false
	return len(g.clocks) - 1
}

// Block returns the block at handle.
func (g *Graph) Block(handle int) Block { return g.blocks[handle].block }

// Lookup resolves a stable block identity to its handle.
func (g *Graph) Lookup(id string) (int, bool) {
	h, ok := g.byID[id]
	return h, ok
}

// Blocks returns every block handle in insertion order.
func (g *Graph) Blocks() []int {
	handles := make([]int, len(g.blocks))
	for i := range g.blocks {
		handles[i] = i
	}
	return handles
}

// Clocks returns every registered Clock.
func (g *Graph) Clocks() []*Clock { return g.clocks }

// Connect wires an output port to an input port. Fails with ArityError if
// the input is already wired, ShapeError if either port index is out of
// range for its block.
func (g *Graph) Connect(out, in Port) error {
	outEntry, inEntry, err := g.resolvePorts(out, in)
	if err != nil {
		return err
	}
	if inEntry.wiredIn[in.Index] {
		return newError(KindArity, fmt.Errorf("%w: %s", errInputAlreadyWired, portLabel(g, in)),
			portLabel(g, in))
	}
	inEntry.wiredIn[in.Index] = true
	outEntry.outWires[out.Index] = append(outEntry.outWires[out.Index], Wire{Out: out, In: in})
	g.compiled = false
	return nil
}

func (g *Graph) resolvePorts(out, in Port) (*blockEntry, *blockEntry, error) {
	if out.Block < 0 || out.Block >= len(g.blocks) {
		return nil, nil, newError(KindShape, fmt.Errorf("output block handle %d out of range", out.Block))
	}
	if in.Block < 0 || in.Block >= len(g.blocks) {
		return nil, nil, newError(KindShape, fmt.Errorf("input block handle %d out of range", in.Block))
	}
	outEntry, inEntry := g.blocks[out.Block], g.blocks[in.Block]
	if out.Index < 0 || out.Index >= len(outEntry.outputs) {
		return nil, nil, newError(KindShape, fmt.Errorf("output port %d out of range on %s", out.Index, outEntry.block.ID()),
			outEntry.block.ID())
	}
	if in.Index < 0 || in.Index >= len(inEntry.inputs) {
		return nil, nil, newError(KindShape, fmt.Errorf("input port %d out of range on %s", in.Index, inEntry.block.ID()),
			inEntry.block.ID())
	}
	return outEntry, inEntry, nil
}

func portLabel(g *Graph, p Port) string {
	if p.Block < 0 || p.Block >= len(g.blocks) {
		return fmt.Sprintf("block#%d.%d", p.Block, p.Index)
	}
	return fmt.Sprintf("%s.%d", g.blocks[p.Block].block.ID(), p.Index)
}

// OutWires returns, in insertion order, every wire leaving the given
// output port. The planner relies on this order for reproducibility.
func (g *Graph) OutWires(p Port) []Wire {
	return g.blocks[p.Block].outWires[p.Index]
}

// InWired reports whether the given input port has a wire terminating on
// it.
func (g *Graph) InWired(p Port) bool {
	return g.blocks[p.Block].wiredIn[p.Index]
}

// Reset sets every input and output slot back to the unset sentinel.
// Blocks are responsible for reinitializing their own owned state.
func (g *Graph) Reset() {
	unset := Sample{}
	for _, e := range g.blocks {
		for i := range e.inputs {
			e.inputs[i].Store(&unset)
		}
		for i := range e.outputs {
			e.outputs[i].Store(&unset)
		}
	}
}

// Input returns the current value held in block handle h's input slot i.
// Safe to call concurrently with SetInput from a producer on another
// clock's task.
func (g *Graph) Input(h, i int) Sample {
	if p := g.blocks[h].inputs[i].Load(); p != nil {
		return *p
	}
	return Sample{}
}

// SetInput stores v into block handle h's input slot i as a single atomic
// pointer swap.
func (g *Graph) SetInput(h, i int, v Sample) { g.blocks[h].inputs[i].Store(&v) }

// Output returns the current value held in block handle h's output slot i.
func (g *Graph) Output(h, i int) Sample {
	if p := g.blocks[h].outputs[i].Load(); p != nil {
		return *p
	}
	return Sample{}
}

// SetOutput stores v into block handle h's output slot i.
func (g *Graph) SetOutput(h, i int, v Sample) { g.blocks[h].outputs[i].Store(&v) }

// DispatchTag returns the precomputed capability tag for block handle h.
func (g *Graph) DispatchTag(h int) DispatchTag { return g.blocks[h].tag }

// Compile verifies invariant (1) of spec §3: every input port of every
// non-sim_only block is the destination of exactly one wire, or belongs to
// a Source/Clocked block with nin == 0. Compile is idempotent.
func (g *Graph) Compile() error {
	for _, e := range g.blocks {
		b := e.block
		if b.SimOnly() {
			continue
		}
		if b.Kind() == KindTransfer {
			return newError(KindTopology, errTransferBlock, b.ID())
		}
		for i := range e.inputs {
			if !e.wiredIn[i] {
				return newError(KindTopology,
					fmt.Errorf("%w: %s.%d", errUnconnectedInput, b.ID(), i), b.ID())
			}
		}
	}
	g.compiled = true
	return nil
}

// Compiled reports whether Compile has succeeded since the last structural
// mutation (AddBlock, AddClock, Connect).
func (g *Graph) Compiled() bool { return g.compiled }
