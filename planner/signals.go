package planner

import (
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/metricz"
)

// Signal constants for planner events, following pipz's signals.go
// pattern of <component>.<event> names.
const (
	SignalPlanned  capitan.Signal = "planner.planned"
	SignalRejected capitan.Signal = "planner.rejected"
)

// Metric keys.
const (
	PlansProducedTotal = metricz.Key("planner.plans.produced.total")
	BlocksPlacedTotal  = metricz.Key("planner.blocks.placed.total")
	RejectionsTotal    = metricz.Key("planner.rejections.total")
)

// Field keys used with the signals above.
var (
	FieldClockName = capitan.NewStringKey("clock")
	FieldPlanLen   = capitan.NewIntKey("plan_length")
	FieldReason    = capitan.NewStringKey("reason")
)
