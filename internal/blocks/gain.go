package blocks

import (
	"context"

	"github.com/bdexec/bdexec/graph"
	"github.com/bdexec/bdexec/registry"
)

// gain multiplies its single input by a tunable scalar K, grounded in
// original_source's Tunable_Gain (blocks/functions.py). The matrix
// pre/post-multiply variants of the original are not carried over: a
// bdexec Sample is a scalar, flat vector, struct, or image, with no matrix
// variant carrying its own multiplication convention.
type gain struct {
	id string
	g  *graph.Graph
	h  int

	k *graph.Parameter
}

func newGain(id string, config map[string]any) *gain {
	return &gain{
		id: id,
		k:  exportedParam("K", floatOpt(config, "K", 1), graph.ParamConstraint{Min: ptr(-3.0), Max: ptr(3.0)}),
	}
}

func (b *gain) ID() string          { return b.id }
func (b *gain) Kind() graph.Kind    { return graph.KindFunction }
func (b *gain) Nin() int            { return 1 }
func (b *gain) Nout() int           { return 1 }
func (b *gain) SimOnly() bool       { return false }
func (b *gain) Clock() *graph.Clock { return nil }

// Bind attaches the compiled graph and this block's own handle so Output
// can read its current input, following the same back-reference pattern
// executor_test.go's gainBlock uses.
func (b *gain) Bind(g *graph.Graph, h int) { b.g, b.h = g, h }

func (b *gain) Output(_ context.Context, _ float64) ([]graph.Sample, error) {
	in := b.g.Input(b.h, 0)
	return []graph.Sample{graph.NewScalar(in.Scalar * b.k.Value)}, nil
}

func (b *gain) Parameters() []*graph.Parameter { return []*graph.Parameter{b.k} }

func init() {
	registry.Register("gain", func(id string, config map[string]any) (graph.Block, error) {
		return newGain(id, config), nil
	})
}
