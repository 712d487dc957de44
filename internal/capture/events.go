package capture

import (
	"time"

	"github.com/goblin/desktop/internal/bus"
)

const (
	TopicSent  bus.Topic = "capture.sent"
	TopicError bus.Topic = "capture.error"
)

// SentEvent is published after a capture was handed to the transport.
type SentEvent struct {
	Target string
	Bytes  int
	At     time.Time
}

func (SentEvent) Topic() bus.Topic { return TopicSent }

// ErrorEvent reports a capture that could not be produced or transmitted.
type ErrorEvent struct {
	Target string
	Err    error
}

func (ErrorEvent) Topic() bus.Topic { return TopicError }
