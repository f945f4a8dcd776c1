package telemetry

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := SignalFrame{ScopeID: "scope1", T: 1.5, Values: []float64{1, 2, 3}}

	if err := writeFrame(&buf, KindSignal, want); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	kind, payload, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if kind != KindSignal {
		t.Fatalf("kind = %s, want signal", kind)
	}
	got, err := decodePayload[SignalFrame](payload)
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	if got.ScopeID != want.ScopeID || got.T != want.T || len(got.Values) != len(want.Values) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

// TestConcatenatedFramesSplitRegardlessOfReadGranularity covers spec.md §8's
// "two concatenated frames are split into two deliveries regardless of read
// granularity": writing two frames back to back into one buffer and reading
// it through a reader that only ever returns 1 byte per Read call must still
// yield exactly the two original frames, in order.
func TestConcatenatedFramesSplitRegardlessOfReadGranularity(t *testing.T) {
	var buf bytes.Buffer
	a := SignalFrame{ScopeID: "a", T: 1, Values: []float64{1}}
	b := SignalFrame{ScopeID: "b", T: 2, Values: []float64{2}}

	if err := writeFrame(&buf, KindSignal, a); err != nil {
		t.Fatalf("writeFrame a: %v", err)
	}
	if err := writeFrame(&buf, KindSignal, b); err != nil {
		t.Fatalf("writeFrame b: %v", err)
	}

	r := &oneByteReader{r: &buf}

	for _, want := range []SignalFrame{a, b} {
		kind, payload, err := readFrame(r)
		if err != nil {
			t.Fatalf("readFrame: %v", err)
		}
		if kind != KindSignal {
			t.Fatalf("kind = %s, want signal", kind)
		}
		got, err := decodePayload[SignalFrame](payload)
		if err != nil {
			t.Fatalf("decodePayload: %v", err)
		}
		if got.ScopeID != want.ScopeID {
			t.Fatalf("got scope %q, want %q", got.ScopeID, want.ScopeID)
		}
	}
}

// oneByteReader wraps another reader, returning at most one byte per Read
// call, to exercise readFrame's io.ReadFull-based framing under worst-case
// read granularity.
type oneByteReader struct{ r *bytes.Buffer }

func (o *oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func TestFrameTooLargeRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if _, _, err := readFrame(&buf); err == nil {
		t.Fatal("expected error for oversized length prefix")
	}
}
