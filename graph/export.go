package graph

// ParamExporter is implemented by blocks that expose tunable
// Parameters to the telemetry link (spec §3 "a set of tunable
// parameters"). A block may own parameters it never exports (Exported
// == false on the Parameter itself); Parameters() still returns them
// so the core can look them up by name, but NodeDef assembly (package
// telemetry) filters to Exported == true.
type ParamExporter interface {
	Parameters() []*Parameter
}

// Scope describes one signal-lane group a block exposes to the
// dashboard, grounded in original_source's blocks/displays.py
// TunerScope constructor.
type Scope struct {
	ID     string
	Label  string
	Lanes  int
	Styles []string
}

// ScopeExporter is implemented by blocks that register one or more
// signal scopes (typically Sink blocks doing the recording/display).
type ScopeExporter interface {
	Scopes() []Scope
}

// Video describes one video stream a block exposes to the dashboard,
// supplemented from the scope-registration pattern (spec.md §4.4 names
// `video` as a steady-state frame kind but never specifies how a
// stream is enumerated; camera/vision blocks enumerate the same way
// display blocks enumerate scopes).
type Video struct {
	ID    string
	Label string
}

// VideoExporter is implemented by blocks that register one or more
// video streams (typically camera/vision blocks).
type VideoExporter interface {
	Videos() []Video
}

// ExportedParameters walks every block in insertion order and returns
// every Parameter with Exported == true, qualified as "blockID.name"
// so two blocks may reuse a parameter name without colliding on the
// wire.
func (g *Graph) ExportedParameters() map[string]*Parameter {
	out := make(map[string]*Parameter)
	for _, e := range g.blocks {
		pe, ok := e.block.(ParamExporter)
		if !ok {
			continue
		}
		for _, p := range pe.Parameters() {
			if !p.Exported {
				continue
			}
			out[e.block.ID()+"."+p.Name] = p
		}
	}
	return out
}

// Scopes walks every block in insertion order and returns every
// registered Scope.
func (g *Graph) Scopes() []Scope {
	var out []Scope
	for _, e := range g.blocks {
		if se, ok := e.block.(ScopeExporter); ok {
			out = append(out, se.Scopes()...)
		}
	}
	return out
}

// Videos walks every block in insertion order and returns every
// registered Video stream.
func (g *Graph) Videos() []Video {
	var out []Video
	for _, e := range g.blocks {
		if ve, ok := e.block.(VideoExporter); ok {
			out = append(out, ve.Videos()...)
		}
	}
	return out
}
