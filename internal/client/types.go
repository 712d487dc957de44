// Package client owns the single realtime connection to the Goblin backend:
// dialing, keepalive, bounded reconnection and inbound frame dispatch.
// Types below mirror the backend wire protocol.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// FrameType identifies the kind of inbound frame.
type FrameType string

const (
	FrameChatChunk          FrameType = "chat_message_chunk"
	FrameError              FrameType = "error"
	FrameConnectionStatus   FrameType = "connection_status"
	FrameScreenshotAnalysis FrameType = "screenshot_analysis"
)

// Remote connection_status values.
const (
	RemoteConnected    = "connected"
	RemoteDisconnected = "disconnected"
)

// Frame is the envelope for every inbound message. Fields not used by a
// given type are left empty.
type Frame struct {
	Type       FrameType `json:"type"`
	Message    string    `json:"message,omitempty"`
	IsComplete bool      `json:"is_complete"`
	Source     string    `json:"source,omitempty"`
	TurnID     string    `json:"turn_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Analysis   string    `json:"analysis,omitempty"`
	Project    string    `json:"project,omitempty"`
	Timestamp  string    `json:"timestamp,omitempty"`
}

// ChatFrame is an outbound user message.
type ChatFrame struct {
	Message  string `json:"message"`
	Provider string `json:"provider"`
	Project  string `json:"project"`
}

// CaptureFrameType tags outbound screenshot payloads.
const CaptureFrameType = "screenshot"

// CaptureFrame is an outbound screenshot. Data is a base64 data URL and
// Timestamp is ISO-8601.
type CaptureFrame struct {
	Type      string `json:"type"`
	Data      string `json:"data"`
	Project   string `json:"project"`
	Timestamp string `json:"timestamp"`
}

var (
	ErrMissingType  = errors.New("frame has no type")
	ErrUnknownFrame = errors.New("unknown frame type")
)

const maxRawInError = 256

// DecodeFrame parses one inbound frame. Any failure is a *ProtocolError.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, &ProtocolError{Raw: clip(data), Err: err}
	}

	switch f.Type {
	case FrameChatChunk, FrameError, FrameConnectionStatus, FrameScreenshotAnalysis:
		return f, nil
	case "":
		return Frame{}, &ProtocolError{Raw: clip(data), Err: ErrMissingType}
	default:
		return Frame{}, &ProtocolError{Raw: clip(data), Err: fmt.Errorf("%w %q", ErrUnknownFrame, f.Type)}
	}
}

func clip(data []byte) string {
	if len(data) <= maxRawInError {
		return string(data)
	}
	n := maxRawInError
	for n > 0 && !utf8.RuneStart(data[n]) {
		n--
	}
	return string(data[:n]) + "..."
}
