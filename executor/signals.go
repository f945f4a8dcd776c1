package executor

import (
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/metricz"
)

// Signal constants for executor events.
const (
	SignalTick            capitan.Signal = "executor.tick"
	SignalBudgetViolation capitan.Signal = "executor.budget-violation"
	SignalStop            capitan.Signal = "executor.stop"
	SignalBlockFailure    capitan.Signal = "executor.block-failure"
	SignalBlockTimeout    capitan.Signal = "executor.block-timeout"
)

// Metric keys, one registry instance per Executor.
const (
	TicksTotal            = metricz.Key("executor.ticks.total")
	BudgetViolationsTotal = metricz.Key("executor.budget_violations.total")
	BlockFailuresTotal    = metricz.Key("executor.block_failures.total")
	BlockTimeoutsTotal    = metricz.Key("executor.block_timeouts.total")
)

// Field keys used with the signals above.
var (
	FieldClockName = capitan.NewStringKey("clock")
	FieldSimTime   = capitan.NewFloat64Key("sim_time")
	FieldDeltaT    = capitan.NewFloat64Key("dt")
	FieldBlockID   = capitan.NewStringKey("block")
	FieldCause     = capitan.NewStringKey("cause")
)
