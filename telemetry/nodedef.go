package telemetry

import (
	"sort"

	"github.com/bdexec/bdexec/graph"
)

// paramSource is the narrow slice of *graph.Graph BuildNodeDef needs,
// kept as an interface so a NodeDef can be built from the graph's export
// methods alone.
type paramSource interface {
	ExportedParameters() map[string]*graph.Parameter
	Scopes() []graph.Scope
	Videos() []graph.Video
}

// BuildNodeDef assembles the first outbound frame after a successful
// handshake (spec.md §4.4): every exported parameter with its
// constraints and current value, every registered signal scope, and
// every registered video stream. Parameter order is sorted by ID for
// determinism — map iteration order is not a wire contract.
func BuildNodeDef(g paramSource) NodeDef {
	params := g.ExportedParameters()
	ids := make([]string, 0, len(params))
	for id := range params {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	def := NodeDef{
		Params: make([]ParamDef, 0, len(ids)),
	}
	for _, id := range ids {
		p := params[id]
		def.Params = append(def.Params, ParamDef{
			Name:     id,
			Value:    p.Value,
			Min:      p.Constraint.Min,
			Max:      p.Constraint.Max,
			OneOf:    p.Constraint.OneOf,
			Step:     p.Constraint.Step,
			LogScale: p.Constraint.LogScale,
			Default:  p.Constraint.Default,
		})
	}

	for _, s := range g.Scopes() {
		def.Scopes = append(def.Scopes, ScopeDef{
			ID: s.ID, Label: s.Label, Lanes: s.Lanes, Styles: s.Styles,
		})
	}
	for _, v := range g.Videos() {
		def.Videos = append(def.Videos, VideoDef{ID: v.ID, Label: v.Label})
	}
	return def
}
