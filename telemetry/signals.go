package telemetry

import (
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/metricz"
)

// Signal constants for telemetry link events.
const (
	SignalConnected    capitan.Signal = "telemetry.connected"
	SignalDisconnected capitan.Signal = "telemetry.disconnected"
	SignalReconnecting capitan.Signal = "telemetry.reconnecting"
	SignalHandshakeErr capitan.Signal = "telemetry.handshake_error"
	SignalVideoDropped capitan.Signal = "telemetry.video_dropped"
	SignalStopReceived capitan.Signal = "telemetry.stop_received"
)

// Metric keys, one registry instance per Link.
const (
	FramesSentTotal       = metricz.Key("telemetry.frames.sent.total")
	FramesReceivedTotal   = metricz.Key("telemetry.frames.received.total")
	ReconnectAttempsTotal = metricz.Key("telemetry.reconnect_attempts.total")
	VideoFramesDropped    = metricz.Key("telemetry.video_frames_dropped.total")
	ParamFramesDropped    = metricz.Key("telemetry.param_frames_dropped.total")
)

// Field keys used with the signals above.
var (
	FieldRole      = capitan.NewStringKey("role")
	FieldStreamID  = capitan.NewStringKey("stream_id")
	FieldAttempts  = capitan.NewIntKey("attempts")
	FieldGotVer    = capitan.NewIntKey("peer_version")
	FieldWantVer   = capitan.NewIntKey("expected_version")
	FieldCause     = capitan.NewStringKey("cause")
)
