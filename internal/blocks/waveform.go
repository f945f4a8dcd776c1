// Package blocks provides the reference block types bdexec ships out of
// the box: a tunable waveform source, a tunable gain, and a recording
// sink, each registered against package registry from an init() the way
// original_source's blocks/__init__.py imports every block module purely
// for its @block decorator side effect.
package blocks

import (
	"context"
	"math"

	"github.com/bdexec/bdexec/graph"
	"github.com/bdexec/bdexec/registry"
)

// Waveform shapes, encoded as a float so they fit graph.Parameter's
// float64-only Value, matching the oneof constraint original_source's
// Tunable_Waveform expresses as a string ('square'/'triangle'/'sine').
const (
	WaveSquare   = 0.0
	WaveTriangle = 1.0
	WaveSine     = 2.0
)

// waveform is a free-running periodic generator, grounded in
// original_source's Tunable_Waveform (blocks/sources.py): wave shape,
// frequency, phase, amplitude, offset, and square-wave duty cycle are all
// tunable parameters with the same bounds as the original's _param calls.
//
// It is Kind() == KindClocked rather than KindSource: bdexec has no
// separate continuous-simulation loop the way bdsim does, so the single
// real-time tick loop is the only driver available, and a plan needs at
// least one Clocked block to seed partition discovery (planner §4.2 step
// 5a). Tick is a no-op; the signal itself is a pure function of
// simulation time, computed in Output.
type waveform struct {
	id    string
	clock *graph.Clock

	wave      *graph.Parameter
	freq      *graph.Parameter
	phase     *graph.Parameter
	amplitude *graph.Parameter
	offset    *graph.Parameter
	duty      *graph.Parameter
}

func newWaveform(id string, clock *graph.Clock, config map[string]any) *waveform {
	return &waveform{
		id:    id,
		clock: clock,
		wave: exportedParam("wave", oneOf(config, "wave", WaveSine, map[string]float64{
			"square": WaveSquare, "triangle": WaveTriangle, "sine": WaveSine,
		}), graph.ParamConstraint{OneOf: []float64{WaveSquare, WaveTriangle, WaveSine}}),
		freq:      exportedParam("freq", floatOpt(config, "freq", 1), graph.ParamConstraint{Min: ptr(1.0), Max: ptr(50.0)}),
		phase:     exportedParam("phase", floatOpt(config, "phase", 0), graph.ParamConstraint{Min: ptr(0.0), Max: ptr(1.0)}),
		amplitude: exportedParam("amplitude", floatOpt(config, "amplitude", 1), graph.ParamConstraint{Min: ptr(0.0), Max: ptr(3.0)}),
		offset:    exportedParam("offset", floatOpt(config, "offset", 0), graph.ParamConstraint{Min: ptr(-5.0), Max: ptr(5.0)}),
		duty:      exportedParam("duty", floatOpt(config, "duty", 0.5), graph.ParamConstraint{Min: ptr(0.0), Max: ptr(1.0)}),
	}
}

func (b *waveform) ID() string          { return b.id }
func (b *waveform) Kind() graph.Kind    { return graph.KindClocked }
func (b *waveform) Nin() int            { return 0 }
func (b *waveform) Nout() int           { return 1 }
func (b *waveform) SimOnly() bool       { return false }
func (b *waveform) Clock() *graph.Clock { return b.clock }

func (b *waveform) Tick(_ context.Context, _ float64) error { return nil }

// Output computes the waveform's value at simulation time t, following
// original_source's phase/duty-cycle arithmetic exactly: signals are
// defined symmetric about zero in [-1, 1] before amplitude/offset scaling.
func (b *waveform) Output(_ context.Context, t float64) ([]graph.Sample, error) {
	phase := math.Mod(t*b.freq.Value-b.phase.Value, 1.0)
	if phase < 0 {
		phase++
	}

	var out float64
	switch b.wave.Value {
	case WaveSquare:
		if phase < b.duty.Value {
			out = 1
		} else {
			out = -1
		}
	case WaveTriangle:
		switch {
		case phase < 0.25:
			out = phase * 4
		case phase < 0.75:
			out = 1 - 4*(phase-0.25)
		default:
			out = -1 + 4*(phase-0.75)
		}
	default: // WaveSine
		out = math.Sin(phase * 2 * math.Pi)
	}

	out = out*b.amplitude.Value + b.offset.Value
	return []graph.Sample{graph.NewScalar(out)}, nil
}

func (b *waveform) Parameters() []*graph.Parameter {
	return []*graph.Parameter{b.wave, b.freq, b.phase, b.amplitude, b.offset, b.duty}
}

func init() {
	registry.Register("waveform", func(id string, config map[string]any) (graph.Block, error) {
		clock, err := clockOpt(config)
		if err != nil {
			return nil, err
		}
		return newWaveform(id, clock, config), nil
	})
}
