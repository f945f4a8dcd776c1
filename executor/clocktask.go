package executor

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/bdexec/bdexec/graph"
	"github.com/bdexec/bdexec/planner"
)

// clockTask owns the scheduling state for one clock: its plan, the
// absolute time of its last and next firing, and whichever synchronization
// primitive keeps it from racing a clock it shares a wire with.
type clockTask struct {
	plan  *planner.Plan
	clock *graph.Clock

	// crossClockLock is non-nil when this clock shares at least one wire
	// with another clock; both tasks share the same *sync.Mutex instance
	// and take it before ticking, serializing them instead of running
	// under the pool's bounded concurrency (spec §4.3's single-core
	// "higher-frequency clock defers by one tick" policy, generalized to
	// "whoever gets there second blocks").
	crossClockLock *sync.Mutex

	isTunerClock bool

	t0 time.Time
}

// firstFireAt returns the absolute time of this clock's first scheduled
// tick, given the executor's startup instant t0.
func (ct *clockTask) firstFireAt() time.Time {
	return ct.t0.Add(time.Duration(ct.clock.Offset * float64(time.Second)))
}

// run drives ct's periodic tick loop until ctx is canceled or the executor
// stops. It never pre-empts a tick: the select only waits at the top,
// matching spec §5's "suspension may occur only at the top of a tick".
func (ct *clockTask) run(ctx context.Context, ex *Executor) {
	clock := ex.clock()
	period := time.Duration(ct.clock.T * float64(time.Second))

	ts := ct.firstFireAt()
	tPrev := ts
	first := true

	timerCh := clock.After(waitUntil(clock, ts))

	for {
		select {
		case <-ctx.Done():
			return
		case <-timerCh:
		}

		if ex.stopped() {
			return
		}

		if ct.crossClockLock != nil {
			ct.crossClockLock.Lock()
		}
		if ct.crossClockLock == nil {
			ex.pool.acquire()
		}

		tickStart := clock.Now()
		dt := ts.Sub(tPrev).Seconds()
		simT := ts.Sub(ct.t0).Seconds()
		ex.setSimTime(simT)

		// With SkipFirstTick, a clock's first tick runs only its Sources
		// (nin == 0); every other block starts on the second tick.
		plan := ct.plan
		if first && ex.cfg.SkipFirstTick {
			plan = &planner.Plan{Clock: ct.plan.Clock}
			for i, h := range ct.plan.Blocks {
				if ex.g.Block(h).Nin() == 0 {
					plan.Blocks = append(plan.Blocks, h)
					plan.Tags = append(plan.Tags, ct.plan.Tags[i])
				}
			}
		}
		tickErr := ex.runPlanTick(ctx, plan, dt, simT)
		first = false

		if ct.isTunerClock && ex.cfg.Tuner != nil {
			ex.drainTuner(ctx)
		}

		if ct.crossClockLock != nil {
			ct.crossClockLock.Unlock()
		}
		if ct.crossClockLock == nil {
			ex.pool.release()
		}

		if tickErr != nil {
			ex.triggerStop(tickErr)
			return
		}

		if ex.cfg.MaxTime != nil && simT >= *ex.cfg.MaxTime {
			ex.triggerStop(nil)
			return
		}

		tickDur := clock.Now().Sub(tickStart)
		nextTs := ts.Add(period)
		if tickDur > period {
			ex.recordBudgetViolation(ct.clock.Name)
			nextTs = catchUp(nextTs, clock.Now(), period)
		}

		tPrev = ts
		ts = nextTs
		timerCh = clock.After(waitUntil(clock, ts))
	}
}

// waitUntil returns the non-negative delay from clock.Now() until target.
func waitUntil(clock clockz.Clock, target time.Time) time.Duration {
	d := target.Sub(clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// catchUp returns the earliest multiple of period at or after missedTs
// that is still in the future relative to now — "catch-up without
// replay" (spec §4.3 period budget).
func catchUp(missedTs, now time.Time, period time.Duration) time.Time {
	if period <= 0 {
		return now
	}
	next := missedTs
	for !next.After(now) {
		next = next.Add(period)
	}
	return next
}
