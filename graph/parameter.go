package graph

import (
	"context"

	"github.com/zoobzio/hookz"
)

// paramChangeKey is the single hook event this package registers against;
// every Parameter gets its own Hooks[ParamChangeEvent] registry so
// listeners never cross between blocks.
const paramChangeKey = hookz.Key("param.change")

// ParamConstraint carries the bounds a tunable Parameter is validated
// against, matching original_source's tuner.param() kwargs one-for-one:
// min/max pair, oneof enumeration, step, log_scale, and an optional
// default for nullable parameters.
type ParamConstraint struct {
	Min      *float64
	Max      *float64
	OneOf    []float64
	Step     *float64
	LogScale bool
	Default  *float64
}

// Allows reports whether v satisfies the constraint. A zero-value
// ParamConstraint (no Min/Max/OneOf/Step set) allows everything.
func (c ParamConstraint) Allows(v float64) bool {
	if c.Min != nil && v < *c.Min {
		return false
	}
	if c.Max != nil && v > *c.Max {
		return false
	}
	if len(c.OneOf) > 0 {
		ok := false
		for _, candidate := range c.OneOf {
			if candidate == v {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// ParamChangeEvent is fired on every accepted mutation of a Parameter,
// whether driven by the tuner link or by graph-construction code.
type ParamChangeEvent struct {
	Block string
	Name  string
	Old   float64
	New   float64
}

// Parameter is a named, typed, runtime-mutable scalar owned by a block and
// optionally exported to the tuner. Mutation is externally driven (C4) and
// is applied only at the point the executor designates (spec §5).
type Parameter struct {
	Name       string
	Value      float64
	Constraint ParamConstraint
	Exported   bool

	onChange *hookz.Hooks[ParamChangeEvent]
}

// NewParameter constructs a Parameter with its own change-hook registry,
// grounded in original_source's param() factory.
func NewParameter(name string, initial float64, constraint ParamConstraint) *Parameter {
	return &Parameter{
		Name:       name,
		Value:      initial,
		Constraint: constraint,
		onChange:   hookz.New[ParamChangeEvent](),
	}
}

// OnChange registers a handler invoked whenever Set accepts a new value.
func (p *Parameter) OnChange(handler func(context.Context, ParamChangeEvent) error) error {
	_, err := p.onChange.Hook(paramChangeKey, handler)
	return err
}

// Set validates v against the constraint and, if accepted, updates Value
// and emits a ParamChangeEvent to every registered listener. Rejected
// mutations leave Value unchanged and return false.
func (p *Parameter) Set(ctx context.Context, blockID string, v float64) bool {
	if !p.Constraint.Allows(v) {
		return false
	}
	old := p.Value
	p.Value = v
	if p.onChange.ListenerCount(paramChangeKey) > 0 {
		_ = p.onChange.Emit(ctx, paramChangeKey, ParamChangeEvent{ //nolint:errcheck
			Block: blockID,
			Name:  p.Name,
			Old:   old,
			New:   v,
		})
	}
	return true
}
