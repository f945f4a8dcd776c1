package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameLength bounds a single frame's payload, mainly to keep a
// corrupt or malicious length prefix from causing an enormous read.
// Video frames are the largest legitimate payload; 16 MiB comfortably
// covers an uncompressed VGA frame.
const MaxFrameLength = 16 << 20

var errFrameTooLarge = errors.New("telemetry: frame exceeds MaxFrameLength")

// envelope is the outer msgpack struct every frame is wrapped in: a kind
// tag plus the kind-specific payload, itself msgpack-encoded. Two-pass
// encoding (encode payload, then wrap) keeps the inner frame types free
// of any envelope awareness.
type envelope struct {
	Kind    Kind   `msgpack:"kind"`
	Payload []byte `msgpack:"payload"`
}

// writeFrame encodes kind/payload into an envelope, msgpack-encodes the
// envelope, and writes it to w as a 4-byte big-endian length prefix
// followed by the encoded bytes (spec.md §4.4's explicit framing
// upgrade over the original's incremental unpacker).
func writeFrame(w io.Writer, kind Kind, payload any) error {
	inner, err := msgpack.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telemetry: encode payload: %w", err)
	}
	outer, err := msgpack.Marshal(envelope{Kind: kind, Payload: inner})
	if err != nil {
		return fmt.Errorf("telemetry: encode envelope: %w", err)
	}
	if len(outer) > MaxFrameLength {
		return errFrameTooLarge
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(outer)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("telemetry: write length prefix: %w", err)
	}
	if _, err := w.Write(outer); err != nil {
		return fmt.Errorf("telemetry: write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed envelope from r and returns its
// kind and raw payload bytes. Callers decode the payload into the
// concrete type matching the returned kind.
func readFrame(r io.Reader) (Kind, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameLength {
		return 0, nil, errFrameTooLarge
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, fmt.Errorf("telemetry: read frame body: %w", err)
	}

	var env envelope
	if err := msgpack.Unmarshal(body, &env); err != nil {
		return 0, nil, fmt.Errorf("telemetry: decode envelope: %w", err)
	}
	return env.Kind, env.Payload, nil
}

func decodePayload[T any](payload []byte) (T, error) {
	var v T
	err := msgpack.Unmarshal(payload, &v)
	return v, err
}
