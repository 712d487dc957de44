package client

import (
	"time"

	"github.com/goblin/desktop/internal/bus"
)

const (
	TopicStatus       bus.Topic = "connection.status"
	TopicError        bus.Topic = "connection.error"
	TopicRemoteStatus bus.Topic = "connection.remote_status"
	TopicSend         bus.Topic = "connection.send"
)

// StatusEvent is published on every state transition.
type StatusEvent struct {
	State State
	// Attempt and Delay describe the scheduled retry when State is
	// StateReconnecting.
	Attempt int
	Delay   time.Duration
	Err     error
}

func (StatusEvent) Topic() bus.Topic { return TopicStatus }

// ErrorEvent reports a frame-level problem that did not tear the connection
// down: a malformed frame, or an error frame sent by the server (Remote).
type ErrorEvent struct {
	Detail string
	Remote bool
	Err    error
}

func (ErrorEvent) Topic() bus.Topic { return TopicError }

// RemoteStatusEvent relays the server's connection_status frame. It is
// informational and never changes the local State.
type RemoteStatusEvent struct {
	Status string
}

func (RemoteStatusEvent) Topic() bus.Topic { return TopicRemoteStatus }

func (e RemoteStatusEvent) Connected() bool { return e.Status == RemoteConnected }

// SendRequest asks the manager to transmit Payload. Done, if set, is called
// synchronously with the result of the send.
type SendRequest struct {
	Payload any
	Done    func(sent bool)
}

func (SendRequest) Topic() bus.Topic { return TopicSend }
