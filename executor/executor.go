// Package executor drives compiled plans on wall-clock time without
// drift, enforces period budgets, and surfaces stop conditions, grounded
// line-for-line on original_source's run.py (run / create_exec_plan).
package executor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"

	"github.com/bdexec/bdexec/graph"
	"github.com/bdexec/bdexec/planner"
)

// ParamUpdate is a single inbound parameter mutation drained from the
// tuner link at the designated tick point (spec §4.4/§5).
type ParamUpdate struct {
	ParamID string
	Value   float64
}

// TunerLink is the narrow interface the executor needs from the telemetry
// package, kept here rather than imported to avoid a package cycle
// (executor is lower in the dependency order than telemetry).
type TunerLink interface {
	DrainParamUpdates() []ParamUpdate
	// StopRequested reports whether the link received an inbound stop
	// frame since this was last checked (spec.md §4.4 "inbound stop:
	// sets state.stop").
	StopRequested() bool
}

// Config configures an Executor run.
type Config struct {
	// MaxTime is the soft deadline state.T; nil runs until state.stop is
	// set some other way.
	MaxTime *float64
	// SkipFirstTick resolves design-note Open Question (iii): off by
	// default per spec §9's recommendation.
	SkipFirstTick bool
	// Clock defaults to clockz.RealClock; tests inject clockz.NewFakeClock().
	Clock clockz.Clock
	// SetupBuffer overrides the build-tag default (1s host / 0 embedded).
	SetupBuffer time.Duration
	// Concurrency bounds how many clock tasks may tick at once when they
	// share no cross-clock wire. 0 or 1 means serial (single-core
	// embedded fallback).
	Concurrency int
	// Tuner, if non-nil, is polled at the end of every tick of the
	// fastest (most frequent) clock.
	Tuner TunerLink
	// BlockTimeout, if non-zero, bounds a single Output/Step/Tick
	// invocation; a block that exceeds it is treated as a block
	// failure. 0 disables the bound (the original behavior: a block may
	// run as long as it likes within its tick). Adapted from
	// `timeout.go`'s wrap-with-context.WithTimeout posture, generalized
	// from "bound a pipeline stage" to "bound one block's turn."
	BlockTimeout time.Duration
}

type stopRecord struct {
	cause  error
	normal bool
}

// Executor schedules one task per clock and invokes block operations in
// planner-determined order against wall-clock time.
type Executor struct {
	cfg   Config
	g     *graph.Graph
	plans []*planner.Plan

	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[Event]

	pool *taskPool

	stopState atomic.Pointer[stopRecord]
	simTime   atomic.Uint64 // math.Float64bits(t)
}

// Event is emitted on stop, budget violation, and block failure.
type Event struct {
	Kind      string
	ClockName string
	BlockID   string
	Cause     error
	Timestamp time.Time
}

// Hook event keys.
const (
	EventStop            = hookz.Key("executor.stop")
	EventBudgetViolation = hookz.Key("executor.budget_violation")
)

// New returns an Executor ready to Run the given compiled graph and plans.
func New(cfg Config) *Executor {
	if cfg.Clock == nil {
		cfg.Clock = clockz.RealClock
	}
	if cfg.SetupBuffer == 0 {
		cfg.SetupBuffer = defaultSetupBuffer
	}

	metrics := metricz.New()
	metrics.Counter(TicksTotal)
	metrics.Counter(BudgetViolationsTotal)
	metrics.Counter(BlockFailuresTotal)
	metrics.Counter(BlockTimeoutsTotal)

	return &Executor{
		cfg:     cfg,
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[Event](),
	}
}

// Metrics exposes the Executor's metric registry.
func (ex *Executor) Metrics() *metricz.Registry { return ex.metrics }

// OnStop registers a handler invoked once, when the executor stops.
func (ex *Executor) OnStop(handler func(context.Context, Event) error) error {
	_, err := ex.hooks.Hook(EventStop, handler)
	return err
}

// OnBudgetViolation registers a handler invoked on every period overrun.
func (ex *Executor) OnBudgetViolation(handler func(context.Context, Event) error) error {
	_, err := ex.hooks.Hook(EventBudgetViolation, handler)
	return err
}

func (ex *Executor) clock() clockz.Clock { return ex.cfg.Clock }

func (ex *Executor) stopped() bool { return ex.stopState.Load() != nil }

func (ex *Executor) setSimTime(t float64) { ex.simTime.Store(math.Float64bits(t)) }

// SimTime returns the most recently computed global simulation time.
func (ex *Executor) SimTime() float64 { return math.Float64frombits(ex.simTime.Load()) }

func (ex *Executor) triggerStop(cause error) {
	rec := &stopRecord{cause: cause, normal: cause == nil}
	if !ex.stopState.CompareAndSwap(nil, rec) {
		return
	}
	kind := "block-failure"
	if rec.normal {
		kind = "deadline"
	}
	capitan.Info(context.Background(), SignalStop, FieldCause.Field(fmt.Sprint(cause)))
	if ex.hooks.ListenerCount(EventStop) > 0 {
		_ = ex.hooks.Emit(context.Background(), EventStop, Event{ //nolint:errcheck
			Kind:      kind,
			Cause:     cause,
			Timestamp: ex.clock().Now(),
		})
	}
}

func (ex *Executor) recordBudgetViolation(clockName string) {
	ex.metrics.Counter(BudgetViolationsTotal).Inc()
	capitan.Warn(context.Background(), SignalBudgetViolation, FieldClockName.Field(clockName))
	if ex.hooks.ListenerCount(EventBudgetViolation) > 0 {
		_ = ex.hooks.Emit(context.Background(), EventBudgetViolation, Event{ //nolint:errcheck
			Kind:      "budget-violation",
			ClockName: clockName,
			Timestamp: ex.clock().Now(),
		})
	}
}

// drainTuner applies every pending parameter mutation to its owning
// block's Parameter, atomically with respect to the rest of tick
// execution since it only ever runs at the designated point at the end
// of the fastest clock's tick (spec §4.4/§5). ParamID is "blockID.name",
// the same qualification graph.Graph.ExportedParameters uses to build
// the node definition, so the executor never needs its own parallel
// parameter index.
func (ex *Executor) drainTuner(ctx context.Context) {
	if ex.cfg.Tuner.StopRequested() {
		ex.triggerStop(nil)
		return
	}
	updates := ex.cfg.Tuner.DrainParamUpdates()
	for _, u := range updates {
		blockID, name, ok := splitParamID(u.ParamID)
		if !ok {
			continue
		}
		h, ok := ex.g.Lookup(blockID)
		if !ok {
			continue
		}
		pe, ok := ex.g.Block(h).(graph.ParamExporter)
		if !ok {
			continue
		}
		for _, p := range pe.Parameters() {
			if p.Name == name {
				p.Set(ctx, blockID, u.Value)
				break
			}
		}
	}
}

// splitParamID splits "blockID.paramName" on the last dot, since block
// IDs themselves may contain dots in a hierarchical graph description.
func splitParamID(id string) (blockID, name string, ok bool) {
	i := strings.LastIndexByte(id, '.')
	if i < 0 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}

// Run arms every clock's timer and blocks until the executor stops (via
// state.stop, state.T, or ctx cancellation), then releases every block's
// resources in reverse plan-concatenation order and returns the stop
// cause (nil on a normal deadline stop).
func (ex *Executor) Run(ctx context.Context, g *graph.Graph, plans []*planner.Plan) error {
	ex.g = g
	ex.plans = plans

	for _, handle := range concatenatedOrder(plans) {
		if s, ok := g.Block(handle).(graph.Starter); ok {
			if err := s.Start(ctx); err != nil {
				ex.teardown(ctx, plans)
				return err
			}
		}
	}

	ex.pool = newTaskPool(ex.cfg.Concurrency)

	t0 := ex.clock().Now().Add(ex.cfg.SetupBuffer)
	tasks := buildClockTasks(g, plans, t0)

	var wg sync.WaitGroup
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, ct := range tasks {
		ct := ct
		wg.Add(1)
		go func() {
			defer wg.Done()
			ct.run(runCtx, ex)
		}()
	}

	wg.Wait()

	ex.teardown(ctx, plans)

	if rec := ex.stopState.Load(); rec != nil {
		return rec.cause
	}
	return ctx.Err()
}

// teardown calls Done on every block in reverse plan-concatenation order,
// on every exit path, matching spec §5's "released on every exit path in
// reverse order of acquisition" and grounded in pipz.Sequence.Close's
// closeOnce pattern (sequence.go) generalized from "close a pipeline
// once" to "tear down a plan's blocks once".
func (ex *Executor) teardown(ctx context.Context, plans []*planner.Plan) {
	order := concatenatedOrder(plans)
	for i := len(order) - 1; i >= 0; i-- {
		if s, ok := ex.g.Block(order[i]).(graph.Stopper); ok {
			_ = s.Done(ctx)
		}
	}
}

// runPlanTick executes one tick of plan in planner order, per spec §4.3
// step 2. Any block failure aborts the remainder of this tick's plan and
// is returned to the caller, which stops the executor.
func (ex *Executor) runPlanTick(ctx context.Context, plan *planner.Plan, dt, simT float64) error {
	ctx, span := ex.tracer.StartSpan(ctx, tracez.Key("executor.tick"))
	defer span.Finish()
	span.SetTag(tracez.Tag("executor.clock"), plan.Clock.Name)
	span.SetTag(tracez.Tag("executor.plan_length"), fmt.Sprintf("%d", len(plan.Blocks)))

	ex.metrics.Counter(TicksTotal).Inc()
	capitan.Info(ctx, SignalTick,
		FieldClockName.Field(plan.Clock.Name),
		FieldSimTime.Field(simT),
		FieldDeltaT.Field(dt),
	)

	for i, h := range plan.Blocks {
		b := ex.g.Block(h)
		tag := plan.Tags[i]

		if tag == graph.DispatchClockedOutput {
			ticker, ok := b.(graph.Ticker)
			if !ok {
				return fmt.Errorf("block %q is Clocked but does not implement Tick", b.ID())
			}
			if err := ex.callWithTimeout(ctx, b.ID(), func(c context.Context) error {
				return ticker.Tick(c, dt)
			}); err != nil {
				return ex.blockFailure(b.ID(), err)
			}
		}

		switch tag {
		case graph.DispatchStep:
			stepper, ok := b.(graph.Stepper)
			if !ok {
				return fmt.Errorf("block %q is Sink but does not implement Step", b.ID())
			}
			if err := ex.callWithTimeout(ctx, b.ID(), stepper.Step); err != nil {
				return ex.blockFailure(b.ID(), err)
			}
		default:
			outputter, ok := b.(graph.Outputter)
			if !ok {
				// A Clocked block need not expose output (spec §3: optional
				// state feedthrough); Source/Function blocks must.
				if tag == graph.DispatchClockedOutput {
					continue
				}
				return fmt.Errorf("block %q does not implement Output", b.ID())
			}
			var outs []graph.Sample
			err := ex.callWithTimeout(ctx, b.ID(), func(c context.Context) error {
				var outErr error
				outs, outErr = outputter.Output(c, simT)
				return outErr
			})
			if err != nil {
				return ex.blockFailure(b.ID(), err)
			}
			ex.fanOut(h, outs)
		}
	}
	return nil
}

// callWithTimeout runs fn, bounding it by cfg.BlockTimeout when set. A
// block that ignores context cancellation keeps its goroutine running in
// the background past the deadline — callWithTimeout returns the timeout
// error to the caller regardless, the same tradeoff timeout.go documents
// for processors that don't respect ctx.
func (ex *Executor) callWithTimeout(ctx context.Context, blockID string, fn func(context.Context) error) error {
	if ex.cfg.BlockTimeout <= 0 {
		return fn(ctx)
	}

	tctx, cancel := ex.clock().WithTimeout(ctx, ex.cfg.BlockTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- fn(tctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-tctx.Done():
		ex.metrics.Counter(BlockTimeoutsTotal).Inc()
		capitan.Warn(context.Background(), SignalBlockTimeout,
			FieldBlockID.Field(blockID), FieldCause.Field(ex.cfg.BlockTimeout.String()))
		return fmt.Errorf("block %q exceeded timeout %s: %w", blockID, ex.cfg.BlockTimeout, tctx.Err())
	}
}

func (ex *Executor) fanOut(h int, outs []graph.Sample) {
	for idx, v := range outs {
		ex.g.SetOutput(h, idx, v)
		for _, w := range ex.g.OutWires(graph.Port{Block: h, Index: idx}) {
			ex.g.SetInput(w.In.Block, w.In.Index, v)
		}
	}
}

func (ex *Executor) blockFailure(blockID string, cause error) error {
	ex.metrics.Counter(BlockFailuresTotal).Inc()
	capitan.Error(context.Background(), SignalBlockFailure,
		FieldBlockID.Field(blockID), FieldCause.Field(cause.Error()))
	return fmt.Errorf("block %q failed: %w", blockID, cause)
}

// concatenatedOrder flattens every plan's blocks in plan order, matching
// "reverse of plan concatenation" from spec §4.3's stop semantics.
func concatenatedOrder(plans []*planner.Plan) []int {
	var order []int
	for _, p := range plans {
		order = append(order, p.Blocks...)
	}
	return order
}

// buildClockTasks constructs one clockTask per plan, wiring up the
// tuner-poll flag (fastest clock) and cross-clock mutex groups (clocks
// that share a wire).
func buildClockTasks(g *graph.Graph, plans []*planner.Plan, t0 time.Time) []*clockTask {
	groups := crossClockGroups(g, plans)

	fastestIdx := 0
	for i, p := range plans {
		if p.Clock.T < plans[fastestIdx].Clock.T {
			fastestIdx = i
		}
	}

	tasks := make([]*clockTask, len(plans))
	for i, p := range plans {
		tasks[i] = &clockTask{
			plan:           p,
			clock:          p.Clock,
			t0:             t0,
			isTunerClock:   i == fastestIdx,
			crossClockLock: groups[i],
		}
	}
	return tasks
}

// crossClockGroups returns, per plan index, the shared *sync.Mutex for
// its cross-clock group, or nil if the clock shares no wire with another
// clock's plan.
func crossClockGroups(g *graph.Graph, plans []*planner.Plan) []*sync.Mutex {
	owner := make([]int, len(plans))
	for i := range owner {
		owner[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for owner[x] != x {
			owner[x] = owner[owner[x]]
			x = owner[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			owner[ra] = rb
		}
	}

	clockOf := make(map[int]int, len(plans))
	for i, p := range plans {
		for _, h := range p.Blocks {
			clockOf[h] = i
		}
	}

	for i, p := range plans {
		for _, h := range p.Blocks {
			b := g.Block(h)
			for outIdx := 0; outIdx < b.Nout(); outIdx++ {
				for _, w := range g.OutWires(graph.Port{Block: h, Index: outIdx}) {
					if j, ok := clockOf[w.In.Block]; ok && j != i {
						union(i, j)
					}
				}
			}
		}
	}

	groupSize := make(map[int]int)
	for i := range plans {
		groupSize[find(i)]++
	}
	mutexes := make(map[int]*sync.Mutex)
	result := make([]*sync.Mutex, len(plans))
	for i := range plans {
		root := find(i)
		if groupSize[root] <= 1 {
			continue
		}
		if mutexes[root] == nil {
			mutexes[root] = &sync.Mutex{}
		}
		result[i] = mutexes[root]
	}
	return result
}
