package blocks

import (
	"fmt"

	"github.com/bdexec/bdexec/graph"
)

// ClockConfigKey is the reserved config map key the graph loader (cmd/bdexec)
// injects a block's already-constructed *graph.Clock under, since
// registry.Constructor's config is a schema-less map[string]any with no
// dedicated clock slot (§10). Only block types whose Kind() ==
// graph.KindClocked read it.
const ClockConfigKey = "__clock"

func clockOpt(config map[string]any) (*graph.Clock, error) {
	v, ok := config[ClockConfigKey]
	if !ok {
		return nil, fmt.Errorf("blocks: missing %q in config for a clocked block", ClockConfigKey)
	}
	clock, ok := v.(*graph.Clock)
	if !ok {
		return nil, fmt.Errorf("blocks: %q is not a *graph.Clock", ClockConfigKey)
	}
	return clock, nil
}

// floatOpt reads a numeric config value, tolerating both float64 (the
// shape encoding/json.Unmarshal into map[string]any produces) and int,
// falling back to def when absent.
func floatOpt(config map[string]any, key string, def float64) float64 {
	v, ok := config[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

// stringOpt reads a string config value, falling back to def when absent
// or of the wrong type.
func stringOpt(config map[string]any, key, def string) string {
	v, ok := config[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// oneOf resolves a string-keyed config option (e.g. wave shape) to its
// numeric encoding via table, defaulting to def when the key is absent or
// unrecognized.
func oneOf(config map[string]any, key string, def float64, table map[string]float64) float64 {
	s, ok := config[key].(string)
	if !ok {
		return def
	}
	if v, ok := table[s]; ok {
		return v
	}
	return def
}

func ptr(v float64) *float64 { return &v }

// exportedParam is a small convenience over graph.NewParameter that
// always marks the result Exported, since every reference block's
// parameters are meant to be tunable from the dashboard (§4.4).
func exportedParam(name string, initial float64, constraint graph.ParamConstraint) *graph.Parameter {
	p := graph.NewParameter(name, initial, constraint)
	p.Exported = true
	return p
}
