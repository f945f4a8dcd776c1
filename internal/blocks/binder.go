package blocks

import "github.com/bdexec/bdexec/graph"

// Binder is implemented by every reference block that needs to read its
// own current input via the compiled graph (gain, recorder): registry.Build
// returns the graph.Block before it has a handle, so the graph loader
// calls Bind immediately after graph.Graph.AddBlock.
type Binder interface {
	Bind(g *graph.Graph, handle int)
}
