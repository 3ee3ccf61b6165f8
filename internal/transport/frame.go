package transport

import (
	"encoding/json"
	"fmt"
)

// protocolVersion is the framing version this client speaks. The join
// payload advertises it; servers abort joins outside their supported
// range.
const protocolVersion = 1

// FrameType classifies one discrete transport message.
type FrameType string

const (
	// Inbound
	FrameAbort    FrameType = "abort"    // join rejected, no retry
	FrameStart    FrameType = "start"    // join acknowledged
	FrameResult   FrameType = "result"   // domain event payload
	FrameError    FrameType = "error"    // mid-stream auth failure
	FramePresence FrameType = "presence" // presence diff payload

	// Outbound
	FrameJoin       FrameType = "join"
	FrameTopicJoin  FrameType = "topic_join"
	FrameTopicLeave FrameType = "topic_leave"
)

// Frame is one transport message. Payload stays raw: the session routes
// frames, it never interprets domain payloads.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *FrameErr       `json:"error,omitempty"`
}

// FrameErr carries the server's failure detail on abort and error
// frames.
type FrameErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *FrameErr) String() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// decodeFrame parses a raw websocket message. Unlike domain payloads,
// the frame envelope itself must be well formed; a broken envelope is a
// transport-level fault.
func decodeFrame(raw []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Frame{}, fmt.Errorf("transport: malformed frame: %w", err)
	}
	if frame.Type == "" {
		return Frame{}, fmt.Errorf("transport: frame missing type")
	}
	return frame, nil
}

// joinPayload is the handshake body sent with the join frame.
type joinPayload struct {
	MinProtocol int    `json:"min_protocol"`
	MaxProtocol int    `json:"max_protocol"`
	Token       string `json:"token"`
	ClientID    string `json:"client_id"`
}
