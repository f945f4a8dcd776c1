package graph

// SampleKind distinguishes the variants a Sample may hold. The planner
// and executor never branch on it; only blocks and the telemetry link do.
type SampleKind int

const (
	SampleUnset SampleKind = iota
	SampleScalar
	SampleVector
	SampleStruct
	SampleImage
)

func (k SampleKind) String() string {
	switch k {
	case SampleScalar:
		return "scalar"
	case SampleVector:
		return "vector"
	case SampleStruct:
		return "struct"
	case SampleImage:
		return "image"
	default:
		return "unset"
	}
}

// ImageSample carries an encoded frame. Decoding it is a block's concern,
// not the core's.
type ImageSample struct {
	Width    int
	Height   int
	Encoding string
	Bytes    []byte
}

// Sample is the value carried along a wire: an opaque, tagged union of the
// shapes a port can agree to exchange with its peer. A zero Sample is the
// "unset" sentinel produced by Graph.Reset.
type Sample struct {
	Kind   SampleKind
	Scalar float64
	Vector []float64
	Struct map[string]any
	Image  ImageSample
}

// Unset reports whether the sample still holds the reset sentinel.
func (s Sample) Unset() bool { return s.Kind == SampleUnset }

// NewScalar wraps a single float64.
func NewScalar(v float64) Sample { return Sample{Kind: SampleScalar, Scalar: v} }

// NewVector wraps a slice of float64. The slice is stored as given; callers
// must not mutate it after handing it to a wire.
func NewVector(v []float64) Sample { return Sample{Kind: SampleVector, Vector: v} }

// NewStructSample wraps a schema-less map, mirroring the telemetry wire's
// self-describing payloads.
func NewStructSample(v map[string]any) Sample { return Sample{Kind: SampleStruct, Struct: v} }

// NewImageSample wraps an encoded frame.
func NewImageSample(img ImageSample) Sample { return Sample{Kind: SampleImage, Image: img} }
