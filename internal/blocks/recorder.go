package blocks

import (
	"context"
	"sync"

	"github.com/bdexec/bdexec/graph"
	"github.com/bdexec/bdexec/registry"
)

// recorder is a Sink that keeps the last-seen value of its single input
// and a bounded history, the local-memory analogue of original_source's
// DataSender (blocks/data.py): DataSender ticks at a clock and forwards
// every input to a remote receiver over the telemetry transport, while
// recorder is driven by ordinary plan placement (it needs no clock of its
// own — it is reached purely by forward reachability from whatever
// Clocked block drives its plan) and keeps its samples in process for the
// dashboard's scope view instead of shipping them out over a socket.
type recorder struct {
	id    string
	scope graph.Scope
	cap   int

	g *graph.Graph
	h int

	mu      sync.Mutex
	history []float64
}

func newRecorder(id string, config map[string]any) *recorder {
	cap := int(floatOpt(config, "history", 256))
	if cap <= 0 {
		cap = 1
	}
	return &recorder{
		id:  id,
		cap: cap,
		scope: graph.Scope{
			ID:     stringOpt(config, "scope", id),
			Label:  stringOpt(config, "label", id),
			Lanes:  1,
			Styles: []string{"line"},
		},
	}
}

func (b *recorder) ID() string          { return b.id }
func (b *recorder) Kind() graph.Kind    { return graph.KindSink }
func (b *recorder) Nin() int            { return 1 }
func (b *recorder) Nout() int           { return 0 }
func (b *recorder) SimOnly() bool       { return false }
func (b *recorder) Clock() *graph.Clock { return nil }

func (b *recorder) Bind(g *graph.Graph, h int) { b.g, b.h = g, h }

func (b *recorder) Step(_ context.Context) error {
	v := b.g.Input(b.h, 0).Scalar

	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, v)
	if len(b.history) > b.cap {
		b.history = b.history[len(b.history)-b.cap:]
	}
	return nil
}

// Last returns the most recently recorded scalar, or 0 if Step has never
// run.
func (b *recorder) Last() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.history) == 0 {
		return 0
	}
	return b.history[len(b.history)-1]
}

// History returns a copy of the bounded sample buffer, oldest first.
func (b *recorder) History() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float64, len(b.history))
	copy(out, b.history)
	return out
}

func (b *recorder) Scopes() []graph.Scope { return []graph.Scope{b.scope} }

func init() {
	registry.Register("record", func(id string, config map[string]any) (graph.Block, error) {
		return newRecorder(id, config), nil
	})
}
