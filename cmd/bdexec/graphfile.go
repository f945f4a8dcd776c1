package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bdexec/bdexec/graph"
	"github.com/bdexec/bdexec/internal/blocks"
	"github.com/bdexec/bdexec/registry"
)

// graphFile is the minimal JSON graph-description format this module
// supplements (SPEC_FULL.md §10): spec.md leaves "a serialized graph"
// unspecified since original_source graphs are always authored as Python
// code, never loaded from a file.
type graphFile struct {
	Clocks []clockSpec `json:"clocks"`
	Blocks []blockSpec `json:"blocks"`
	Wires  []wireSpec  `json:"wires"`
}

type clockSpec struct {
	Name   string  `json:"name"`
	T      float64 `json:"t"`
	Offset float64 `json:"offset"`
}

type blockSpec struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Clock  string         `json:"clock"` // name of a clockSpec above; empty for non-Clocked blocks
	Config map[string]any `json:"config"`
}

// wireSpec connects one output port to one input port, each addressed as
// "blockID.portIndex".
type wireSpec struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// loadGraphFile reads and compiles path into a ready-to-plan graph.Graph.
// Every block type referenced must have been registered (via
// internal/blocks's init() side effects, imported for exactly that
// reason); clock-bearing blocks get their *graph.Clock injected through
// blocks.ClockConfigKey before construction, since registry.Constructor's
// config is a schema-less map with no dedicated clock slot.
func loadGraphFile(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph file: %w", err)
	}

	var gf graphFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("parsing graph file: %w", err)
	}

	g := graph.NewGraph()

	clocksByName := make(map[string]*graph.Clock, len(gf.Clocks))
	for _, cs := range gf.Clocks {
		c := &graph.Clock{Name: cs.Name, T: cs.T, Offset: cs.Offset}
		g.AddClock(c)
		clocksByName[cs.Name] = c
	}

	handles := make(map[string]int, len(gf.Blocks))
	for _, bs := range gf.Blocks {
		config := bs.Config
		if config == nil {
			config = map[string]any{}
		}
		if bs.Clock != "" {
			c, ok := clocksByName[bs.Clock]
			if !ok {
				return nil, fmt.Errorf("block %q references unknown clock %q", bs.ID, bs.Clock)
			}
			config[blocks.ClockConfigKey] = c
		}

		b, err := registry.Build(bs.Type, bs.ID, config)
		if err != nil {
			return nil, fmt.Errorf("building block %q: %w", bs.ID, err)
		}
		h := g.AddBlock(b)
		if binder, ok := b.(blocks.Binder); ok {
			binder.Bind(g, h)
		}
		handles[bs.ID] = h
	}

	for _, ws := range gf.Wires {
		out, err := parsePort(ws.From, handles)
		if err != nil {
			return nil, fmt.Errorf("wire %q -> %q: %w", ws.From, ws.To, err)
		}
		in, err := parsePort(ws.To, handles)
		if err != nil {
			return nil, fmt.Errorf("wire %q -> %q: %w", ws.From, ws.To, err)
		}
		if err := g.Connect(out, in); err != nil {
			return nil, fmt.Errorf("wire %q -> %q: %w", ws.From, ws.To, err)
		}
	}

	if err := g.Compile(); err != nil {
		return nil, err
	}
	return g, nil
}

// parsePort splits "blockID.portIndex" on the last dot and resolves
// blockID against handles, so block IDs may themselves contain dots.
func parsePort(s string, handles map[string]int) (graph.Port, error) {
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return graph.Port{}, fmt.Errorf("malformed port reference %q, want blockID.portIndex", s)
	}
	id, idxStr := s[:i], s[i+1:]
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return graph.Port{}, fmt.Errorf("malformed port index in %q: %w", s, err)
	}
	h, ok := handles[id]
	if !ok {
		return graph.Port{}, fmt.Errorf("unknown block %q", id)
	}
	return graph.Port{Block: h, Index: idx}, nil
}
