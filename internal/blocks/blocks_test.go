package blocks

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/bdexec/bdexec/executor"
	"github.com/bdexec/bdexec/graph"
	"github.com/bdexec/bdexec/planner"
	"github.com/bdexec/bdexec/registry"
)

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func ptrF(v float64) *float64 { return &v }

// bindAll calls Bind on every block in g that implements Binder, mirroring
// what the cmd/bdexec graph loader does after AddBlock.
func bindAll(g *graph.Graph, handles map[string]int) {
	for id, h := range handles {
		if binder, ok := g.Block(h).(Binder); ok {
			binder.Bind(g, h)
		}
		_ = id
	}
}

// buildPipeline wires Waveform(sine,1Hz,amp=1) -> Gain(K=2) -> Sink(record),
// the exact scenario spec.md §8 scenario 3 describes, and returns the
// graph plus the recorder for assertions.
func buildPipeline(t *testing.T, clock *graph.Clock) (*graph.Graph, *recorder) {
	t.Helper()
	g := graph.NewGraph()
	g.AddClock(clock)

	wf, err := registry.Build("waveform", "wave", map[string]any{
		ClockConfigKey: clock,
		"wave":         "sine",
		"freq":         1.0,
		"amplitude":    1.0,
	})
	must(t, err)
	gn, err := registry.Build("gain", "gain", map[string]any{"K": 2.0})
	must(t, err)
	rec, err := registry.Build("record", "sink", map[string]any{"scope": "out"})
	must(t, err)

	handles := make(map[string]int)
	handles["wave"] = g.AddBlock(wf)
	handles["gain"] = g.AddBlock(gn)
	handles["sink"] = g.AddBlock(rec)
	bindAll(g, handles)

	must(t, g.Connect(graph.Port{Block: handles["wave"], Index: 0}, graph.Port{Block: handles["gain"], Index: 0}))
	must(t, g.Connect(graph.Port{Block: handles["gain"], Index: 0}, graph.Port{Block: handles["sink"], Index: 0}))
	must(t, g.Compile())

	return g, rec.(*recorder)
}

func TestGainPipelineValueAtQuarterPeriod(t *testing.T) {
	fake := clockz.NewFakeClock()
	clock := &graph.Clock{Name: "main", T: 0.05}

	g, rec := buildPipeline(t, clock)
	plans, err := planner.New().Plan(context.Background(), g)
	must(t, err)

	ex := executor.New(executor.Config{Clock: fake, SetupBuffer: 0, MaxTime: ptrF(0.25)})

	errCh := make(chan error, 1)
	go func() { errCh <- ex.Run(context.Background(), g, plans) }()

	time.Sleep(10 * time.Millisecond)
	for i := 0; i < 6; i++ {
		fake.Advance(50 * time.Millisecond)
		fake.BlockUntilReady()
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop")
	}

	// sin(2*pi*1Hz*0.25s) = sin(pi/2) = 1, scaled by amplitude 1 and
	// gain K=2 gives 2.0.
	if got := rec.Last(); math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("recorded value = %v, want 2.0 +/- 1e-9", got)
	}
}

func TestWaveformParametersExported(t *testing.T) {
	clock := &graph.Clock{Name: "main", T: 0.01}
	wf, err := registry.Build("waveform", "wave", map[string]any{ClockConfigKey: clock})
	must(t, err)

	pe, ok := wf.(graph.ParamExporter)
	if !ok {
		t.Fatal("waveform does not implement graph.ParamExporter")
	}
	names := map[string]bool{}
	for _, p := range pe.Parameters() {
		names[p.Name] = true
		if !p.Exported {
			t.Fatalf("parameter %q should be exported", p.Name)
		}
	}
	for _, want := range []string{"wave", "freq", "phase", "amplitude", "offset", "duty"} {
		if !names[want] {
			t.Fatalf("missing parameter %q", want)
		}
	}
}

func TestWaveformRequiresClock(t *testing.T) {
	if _, err := registry.Build("waveform", "wave", map[string]any{}); err == nil {
		t.Fatal("expected error when config has no clock")
	}
}

func TestRecorderScope(t *testing.T) {
	rec, err := registry.Build("record", "sink", map[string]any{"scope": "s1", "label": "Output"})
	must(t, err)
	se, ok := rec.(graph.ScopeExporter)
	if !ok {
		t.Fatal("recorder does not implement graph.ScopeExporter")
	}
	scopes := se.Scopes()
	if len(scopes) != 1 || scopes[0].ID != "s1" || scopes[0].Label != "Output" {
		t.Fatalf("unexpected scopes: %+v", scopes)
	}
}

func TestRecorderHistoryBounded(t *testing.T) {
	g := graph.NewGraph()
	rec, err := registry.Build("record", "sink", map[string]any{"history": 3.0})
	must(t, err)
	h := g.AddBlock(rec)
	rec.(Binder).Bind(g, h)

	r := rec.(*recorder)
	for i := 0; i < 5; i++ {
		g.SetInput(h, 0, graph.NewScalar(float64(i)))
		must(t, r.Step(context.Background()))
	}
	hist := r.History()
	if len(hist) != 3 {
		t.Fatalf("history len = %d, want 3", len(hist))
	}
	if hist[0] != 2 || hist[2] != 4 {
		t.Fatalf("unexpected history window: %v", hist)
	}
}
