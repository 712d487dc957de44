package stream

import "github.com/goblin/desktop/internal/bus"

const (
	TopicUpdate   bus.Topic = "message.update"
	TopicComplete bus.Topic = "message.complete"
)

// UpdateEvent carries the full text of a pending message after each chunk.
type UpdateEvent struct {
	TurnID string
	Source Source
	Text   string
}

func (UpdateEvent) Topic() bus.Topic { return TopicUpdate }

// CompleteEvent is published exactly once per message.
type CompleteEvent struct {
	TurnID     string
	Source     Source
	Text       string
	Structured bool
	Segments   []Segment
	// Implicit is set when the message was closed without a terminal chunk:
	// a new turn started, or the connection went away.
	Implicit bool
}

func (CompleteEvent) Topic() bus.Topic { return TopicComplete }
