package planner

import "github.com/bdexec/bdexec/graph"

// predicate reports whether handle h should be collected and, if so,
// further traversed from.
type predicate func(h int) bool

// collectConnected is the worklist-based generalization of
// original_source's recursive _collect_connected: it gathers every block
// reachable from seeds, forward through outgoing wires or backward
// through incoming wires, for which predicate holds. Using an explicit
// stack instead of recursion avoids unbounded Go call-stack growth on
// large graphs — a grounded generalization of the traversal, not a change
// to what it computes.
func collectConnected(g *graph.Graph, seeds []int, forward bool, pred predicate) map[int]struct{} {
	collected := make(map[int]struct{})
	var stack []int

	push := func(h int) {
		if _, ok := collected[h]; ok {
			return
		}
		if !pred(h) {
			return
		}
		collected[h] = struct{}{}
		stack = append(stack, h)
	}

	for _, s := range seeds {
		collected[s] = struct{}{}
		stack = append(stack, s)
	}

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		b := g.Block(h)
		if forward {
			for outIdx := 0; outIdx < b.Nout(); outIdx++ {
				for _, w := range g.OutWires(graph.Port{Block: h, Index: outIdx}) {
					push(w.In.Block)
				}
			}
		} else {
			for inIdx := 0; inIdx < b.Nin(); inIdx++ {
				in := graph.Port{Block: h, Index: inIdx}
				if !g.InWired(in) {
					continue
				}
				for _, src := range inboundBlocks(g, in) {
					push(src)
				}
			}
		}
	}
	return collected
}

// inboundBlocks finds the source block(s) feeding input port in by
// scanning every block's outgoing wires. The graph only indexes wires by
// their output port (fan-out), so the backward direction is a linear scan
// rather than a second index — planning runs once per graph, so this
// trades a small constant for not maintaining a second wire index.
func inboundBlocks(g *graph.Graph, in graph.Port) []int {
	var sources []int
	for _, h := range g.Blocks() {
		b := g.Block(h)
		for outIdx := 0; outIdx < b.Nout(); outIdx++ {
			for _, w := range g.OutWires(graph.Port{Block: h, Index: outIdx}) {
				if w.In == in {
					sources = append(sources, h)
				}
			}
		}
	}
	return sources
}
