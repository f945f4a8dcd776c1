// Package registry is the process-wide map from block-type name to
// constructor, the Go-idiomatic equivalent of bdsim's @block decorator
// import-side-effect pattern: block packages call Register from an
// init() and the core discovers them by name alone.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bdexec/bdexec/graph"
)

// Constructor builds a new graph.Block instance given its instance ID and
// a schema-less config map decoded from a graph description (§10).
type Constructor func(id string, config map[string]any) (graph.Block, error)

var (
	mu    sync.RWMutex
	types = make(map[string]Constructor)
)

// Register associates a block-type name with its constructor. Calling
// Register twice for the same name panics, since it always indicates two
// block packages claiming the same type name at init time.
func Register(name string, ctor Constructor) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := types[name]; exists {
		panic(fmt.Sprintf("registry: block type %q already registered", name))
	}
	types[name] = ctor
}

// Lookup resolves a block-type name to its constructor.
func Lookup(name string) (Constructor, bool) {
	mu.RLock()
	defer mu.RUnlock()
	ctor, ok := types[name]
	return ctor, ok
}

// Names returns every registered block-type name, sorted, for
// diagnostics.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs a block of the named type, returning an error that
// names the unknown type rather than panicking — graph descriptions are
// untrusted input (§10).
func Build(typeName, id string, config map[string]any) (graph.Block, error) {
	ctor, ok := Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("registry: unknown block type %q", typeName)
	}
	return ctor(id, config)
}
