package client

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a manager that has been shut down.
var ErrClosed = errors.New("connection manager closed")

// TransportError is a socket-level failure. It tears the connection down and
// starts the reconnect path.
type TransportError struct {
	Op  string // "dial", "read" or "write"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a malformed or unexpected inbound frame. The connection
// stays up.
type ProtocolError struct {
	Raw string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
