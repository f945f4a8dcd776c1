// Package planner transforms a compiled graph into a map of clock to
// execution plan, implementing the seven-step algorithm grounded on
// original_source's run.py (_clocked_plans / _collect_connected).
package planner

import (
	"context"
	"fmt"
	"sort"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"

	"github.com/bdexec/bdexec/graph"
)

// Plan is an ordered sequence of blocks associated with one Clock, with a
// precomputed dispatch tag per block so the executor's inner loop is a
// straight match on an enum (design note, spec §9).
type Plan struct {
	Clock  *graph.Clock
	Blocks []int
	Tags   []graph.DispatchTag
}

// Planner turns a compiled Graph into a []*Plan, one per registered clock,
// in clock-offset order.
type Planner struct {
	metrics *metricz.Registry
	tracer  *tracez.Tracer
}

// New returns a ready-to-use Planner with its own metrics and tracer.
func New() *Planner {
	metrics := metricz.New()
	metrics.Counter(PlansProducedTotal)
	metrics.Counter(BlocksPlacedTotal)
	metrics.Counter(RejectionsTotal)

	return &Planner{
		metrics: metrics,
		tracer:  tracez.New(),
	}
}

// Metrics exposes the Planner's metric registry.
func (p *Planner) Metrics() *metricz.Registry { return p.metrics }

// Plan runs the algorithm of spec §4.2 over g and returns one Plan per
// clock, in clock-offset order. All failures are fatal: no plan is
// returned if any occur.
func (p *Planner) Plan(ctx context.Context, g *graph.Graph) ([]*Plan, error) {
	ctx, span := p.tracer.StartSpan(ctx, tracez.Key("planner.plan"))
	defer span.Finish()

	// Step 1: reject any non-sim_only transfer block up front.
	for _, h := range g.Blocks() {
		b := g.Block(h)
		if b.SimOnly() {
			continue
		}
		if b.Kind() == graph.KindTransfer {
			p.reject("transfer block present", b.ID())
			return nil, newError(KindUnsupportedBlock,
				fmt.Errorf("block %q has unsupported kind transfer", b.ID()), b.ID())
		}
	}

	// Step 2.
	g.Reset()

	// Step 3: sort clocks by offset, stable on insertion order (the slice
	// from g.Clocks() is already insertion-ordered).
	clocks := append([]*graph.Clock(nil), g.Clocks()...)
	sort.SliceStable(clocks, func(i, j int) bool { return clocks[i].Offset < clocks[j].Offset })

	// Step 4.
	placed := make(map[int]struct{})

	// Readiness persists across every clock processed in this call, mirroring
	// run.py's _clocked_plans: block.inputs is mutated on the block itself
	// and reset only when the block is actually appended to a plan, never
	// per clock. A mark set while processing one clock must stay visible to
	// every later clock's pass (spec §4.2's cross-clock "a value exists"
	// edge case, spec §8 scenario 4).
	ready := make(map[int][]bool)

	var plans []*Plan
	var prev *graph.Clock

	for _, clock := range clocks {
		// Step 7 is checked between consecutive clocks; do it before
		// building this clock's plan so a bad pair never produces one.
		if prev != nil && !prev.Divides(clock) {
			p.reject("non-divisible clock periods", prev.Name, clock.Name)
			return nil, newError(KindRatio,
				fmt.Errorf("clock %q (T=%g) and %q (T=%g) are not integer multiples of each other",
					prev.Name, prev.T, clock.Name, clock.T),
				prev.Name, clock.Name)
		}
		prev = clock

		plan := p.planOne(g, clock, placed, ready)
		for _, h := range plan {
			placed[h] = struct{}{}
		}
		p.metrics.Counter(BlocksPlacedTotal).Add(float64(len(plan)))

		tags := make([]graph.DispatchTag, len(plan))
		for i, h := range plan {
			tags[i] = g.DispatchTag(h)
		}

		capitan.Info(ctx, SignalPlanned,
			FieldClockName.Field(clock.Name),
			FieldPlanLen.Field(len(plan)),
		)
		plans = append(plans, &Plan{Clock: clock, Blocks: plan, Tags: tags})
	}

	// Step 6.
	var unreached []string
	for _, h := range g.Blocks() {
		b := g.Block(h)
		if b.SimOnly() {
			continue
		}
		if _, ok := placed[h]; !ok {
			unreached = append(unreached, b.ID())
		}
	}
	if len(unreached) > 0 {
		p.reject("blocks unreachable from any clock", unreached...)
		return nil, newError(KindUnreachableBlock,
			fmt.Errorf("%d block(s) do not depend on or are not a dependency of any clocked block", len(unreached)),
			unreached...)
	}

	p.metrics.Counter(PlansProducedTotal).Add(float64(len(plans)))
	return plans, nil
}

// planOne builds the plan for a single clock: partition discovery (5a),
// frontier seeding (5b), and propagation (5c). ready is the whole-Plan-call
// readiness map (see Plan's comment above its declaration): propagation
// marks a destination's input ready regardless of which clock's connected
// set it falls in, since only the "add to this clock's plan" decision is
// clock-scoped, not the readiness bookkeeping itself.
func (p *Planner) planOne(g *graph.Graph, clock *graph.Clock, placed map[int]struct{}, ready map[int][]bool) []int {
	shouldCollect := func(h int) bool {
		b := g.Block(h)
		if b.SimOnly() {
			return false
		}
		if _, done := placed[h]; done {
			return false
		}
		if b.Kind() == graph.KindClocked && b.Clock() != clock {
			return false
		}
		return true
	}

	var seeds []int
	for _, h := range g.Blocks() {
		b := g.Block(h)
		if b.Kind() == graph.KindClocked && b.Clock() == clock {
			seeds = append(seeds, h)
		}
	}
	connected := collectConnected(g, seeds, false, shouldCollect)
	for h := range collectConnected(g, seeds, true, shouldCollect) {
		connected[h] = struct{}{}
	}

	// 5a produces an unordered set; iterate the graph's own insertion
	// order for determinism (spec §4.2 "Tie-break & determinism").
	var ordered []int
	for _, h := range g.Blocks() {
		if _, ok := connected[h]; ok {
			ordered = append(ordered, h)
		}
	}

	inPlan := make(map[int]struct{})
	var plan []int

	readyFor := func(h int) []bool {
		if r, ok := ready[h]; ok {
			return r
		}
		r := make([]bool, g.Block(h).Nin())
		ready[h] = r
		return r
	}

	// 5b: seed with Sources (nin == 0) and Clocked blocks whose inputs are
	// all already marked ready (a value exists from a prior clock's tick,
	// not necessarily freshly produced this tick — spec §4.2 edge case).
	for _, h := range ordered {
		b := g.Block(h)
		allReady := true
		for _, r := range readyFor(h) {
			if !r {
				allReady = false
				break
			}
		}
		if b.Nin() == 0 || (b.Kind() == graph.KindClocked && allReady) {
			plan = append(plan, h)
			inPlan[h] = struct{}{}
		}
	}

	// 5c: propagate along a growing cursor. Readiness marks follow raw wires
	// to ANY destination, not just ones in this clock's own connected set S
	// (run.py mutates block.inputs globally across the whole clocked-plans
	// loop, never scoped to one clock) — a Clocked block in a different,
	// not-yet-processed clock gets its input marked ready now and is seeded
	// from that mark when its own clock's pass runs (spec §4.2's "readiness
	// here means a value exists, not freshly produced this tick"). Only
	// whether dst is appended to *this* plan is clock-scoped, via rateOK.
	for idx := 0; idx < len(plan); idx++ {
		h := plan[idx]
		b := g.Block(h)
		for outIdx := 0; outIdx < b.Nout(); outIdx++ {
			for _, w := range g.OutWires(graph.Port{Block: h, Index: outIdx}) {
				dst := w.In.Block
				dstBlock := g.Block(dst)
				if dstBlock.SimOnly() {
					continue
				}
				if _, already := placed[dst]; already {
					continue
				}
				if _, already := inPlan[dst]; already {
					continue
				}
				r := readyFor(dst)
				r[w.In.Index] = true

				allReady := true
				for _, v := range r {
					if !v {
						allReady = false
						break
					}
				}
				rateOK := dstBlock.Kind() != graph.KindClocked || dstBlock.Clock() == clock
				if allReady && rateOK {
					plan = append(plan, dst)
					inPlan[dst] = struct{}{}
					for i := range r {
						r[i] = false
					}
				}
			}
		}
	}

	return plan
}

func (p *Planner) reject(reason string, path ...string) {
	p.metrics.Counter(RejectionsTotal).Inc()
	capitan.Error(context.Background(), SignalRejected, FieldReason.Field(reason))
	_ = path // retained in the error returned to the caller, not the signal
}
