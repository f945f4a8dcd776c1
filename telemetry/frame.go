// Package telemetry implements the tuning/dashboard link: a length-framed,
// msgpack-encoded, bidirectional transport over any io.ReadWriteCloser
// (TCP on host, a UART driver on embedded), grounded on
// original_source/bdsim_realtime's webapp.py/server.py frame exchange but
// with an explicit versioned handshake in place of the original's
// connection-order convention.
package telemetry

// Kind is the closed set of frame kinds exchanged over a Link.
type Kind int

const (
	KindHandshake Kind = iota
	KindNodeDef
	KindSignal
	KindVideo
	KindParam
	KindStop
)

func (k Kind) String() string {
	switch k {
	case KindHandshake:
		return "handshake"
	case KindNodeDef:
		return "node-def"
	case KindSignal:
		return "signal"
	case KindVideo:
		return "video"
	case KindParam:
		return "param"
	case KindStop:
		return "stop"
	default:
		return "unknown"
	}
}

// ProtocolVersion is bumped whenever a frame shape below changes
// incompatibly. The handshake rejects any peer advertising a different
// version before a single data frame is exchanged.
const ProtocolVersion = 1

// Role identifies which side of the link a peer is playing.
type Role string

const (
	RoleNode  Role = "node"
	RoleTuner Role = "tuner"
)

// Handshake is the first frame exchanged in both directions.
type Handshake struct {
	Version int  `msgpack:"version"`
	Role    Role `msgpack:"role"`
}

// ParamDef mirrors original_source's tuner.py param() kwargs one-for-one,
// plus Value: spec.md §4.4 requires the node definition to carry each
// exported parameter's constraints "and current values", not just its
// bounds.
type ParamDef struct {
	Name     string    `msgpack:"name"`
	Value    float64   `msgpack:"value"`
	Min      *float64  `msgpack:"min,omitempty"`
	Max      *float64  `msgpack:"max,omitempty"`
	OneOf    []float64 `msgpack:"one_of,omitempty"`
	Step     *float64  `msgpack:"step,omitempty"`
	LogScale bool      `msgpack:"log_scale,omitempty"`
	Default  *float64  `msgpack:"default,omitempty"`
}

// ScopeDef registers one signal lane group, grounded on
// blocks/displays.py's TunerScope constructor.
type ScopeDef struct {
	ID     string   `msgpack:"id"`
	Label  string   `msgpack:"label"`
	Lanes  int      `msgpack:"lanes"`
	Styles []string `msgpack:"styles,omitempty"`
}

// VideoDef registers one video stream. Supplemented from the scope
// registration pattern: the distilled spec names video frames as a
// steady-state frame kind but never says how a stream is enumerated to
// the dashboard, the way ScopeDef enumerates signal lanes.
type VideoDef struct {
	ID    string `msgpack:"id"`
	Label string `msgpack:"label"`
}

// NodeDef is sent once, right after a successful handshake, describing
// every exported parameter, signal scope, and video stream this node
// exposes.
type NodeDef struct {
	Params []ParamDef `msgpack:"params"`
	Scopes []ScopeDef `msgpack:"scopes"`
	Videos []VideoDef `msgpack:"videos"`
}

// SignalFrame carries one scope's worth of sample lanes at time T.
type SignalFrame struct {
	ScopeID string    `msgpack:"scope_id"`
	T       float64   `msgpack:"t"`
	Values  []float64 `msgpack:"values"`
}

// VideoFrame carries one encoded video frame.
type VideoFrame struct {
	StreamID string `msgpack:"stream_id"`
	FrameID  uint64 `msgpack:"frame_id"`
	Width    int    `msgpack:"width"`
	Height   int    `msgpack:"height"`
	Encoding string `msgpack:"encoding"`
	Bytes    []byte `msgpack:"bytes"`
}

// ParamFrame is an inbound parameter mutation request from the tuner.
type ParamFrame struct {
	ParamID string  `msgpack:"param_id"`
	Value   float64 `msgpack:"value"`
}

// StopFrame requests the node stop execution. It carries no fields.
type StopFrame struct{}
