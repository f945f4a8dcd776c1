package graph

// Port identifies one side of a wire by the owning block's handle into the
// graph's arena and the port's index on that block. Ports never hold a
// pointer to the block directly (arena ownership, spec §9), so a Port
// value is cheap to copy and store in a Wire.
type Port struct {
	Block int // handle into Graph.blocks
	Index int
}

// Wire is a directed edge from an output port to an input port. The core
// treats the value flowing along it as an opaque Sample; shape agreement
// is a matter between the two endpoint blocks.
type Wire struct {
	Out Port
	In  Port
}
