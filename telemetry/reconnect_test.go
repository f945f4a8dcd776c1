package telemetry

import (
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestReconnectorExponentialBackoff(t *testing.T) {
	clock := clockz.NewFakeClock()
	r := newReconnector(clock, 100*time.Millisecond, 1*time.Second, nil)

	if !r.Connected() {
		t.Fatal("expected initial state connected")
	}

	r.MarkFailed()
	if r.Connected() {
		t.Fatal("expected backoff state after failure")
	}
	if r.ReadyToDial() {
		t.Fatal("should not be ready to dial immediately after failure")
	}

	clock.Advance(100 * time.Millisecond)
	clock.BlockUntilReady()
	if !r.ReadyToDial() {
		t.Fatal("expected ready to dial after base delay elapses")
	}

	// A second consecutive failure doubles the delay to 200ms.
	r.MarkFailed()
	clock.Advance(150 * time.Millisecond)
	clock.BlockUntilReady()
	if r.ReadyToDial() {
		t.Fatal("should not be ready to dial before doubled delay elapses")
	}
	clock.Advance(100 * time.Millisecond)
	clock.BlockUntilReady()
	if !r.ReadyToDial() {
		t.Fatal("expected ready to dial after doubled delay elapses")
	}

	r.MarkConnected()
	if !r.Connected() {
		t.Fatal("expected connected after MarkConnected")
	}

	// Delay resets to base after a successful connection.
	r.MarkFailed()
	if r.curDelay != 100*time.Millisecond {
		t.Fatalf("expected delay reset to base, got %v", r.curDelay)
	}
}

func TestReconnectorDelayCapsAtMax(t *testing.T) {
	clock := clockz.NewFakeClock()
	r := newReconnector(clock, 100*time.Millisecond, 250*time.Millisecond, nil)

	r.MarkFailed() // curDelay stays 100ms (first failure)
	r.MarkFailed() // doubles to 200ms
	r.MarkFailed() // would double to 400ms, capped at 250ms

	if r.curDelay != 250*time.Millisecond {
		t.Fatalf("expected delay capped at 250ms, got %v", r.curDelay)
	}
}
