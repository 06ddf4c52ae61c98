package wsbridge

import (
	"encoding/json"
	"time"
)

// State is a WebSocket connection's position in its lifecycle.
type State int

const (
	Connecting State = iota
	Authenticated
	Streaming
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticated:
		return "authenticated"
	case Streaming:
		return "streaming"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ControlFrame is the JSON envelope every non-PTY outbound message uses.
type ControlFrame struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

const (
	FrameLog          = "log"
	FrameStats        = "stats"
	FrameEvent        = "event"
	FrameConnected    = "connected"
	FrameDisconnected = "disconnected"
	FrameError        = "error"
	FrameHeartbeat    = "heartbeat"
)

// ErrorPayload is the payload of a FrameError control frame.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

// ResizeCommand is the inbound control frame exec input multiplexing
// recognizes: any non-JSON text frame is treated as raw STDIN instead.
type ResizeCommand struct {
	Type string `json:"type"`
	Rows uint   `json:"rows"`
	Cols uint   `json:"cols"`
}

func newControlFrame(kind string, payload any) (ControlFrame, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return ControlFrame{}, err
		}
		raw = b
	}
	return ControlFrame{Type: kind, Timestamp: time.Now(), Payload: raw}, nil
}
