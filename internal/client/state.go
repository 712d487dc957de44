package client

import "time"

// State is the lifecycle state of the logical connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	// StateExhausted is terminal until an explicit Connect: the retry budget
	// is spent and no timer is armed.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Policy bounds automatic reconnection. Backoff is linear: the n-th retry
// waits BaseInterval × n.
type Policy struct {
	MaxAttempts  int
	BaseInterval time.Duration
}

// Delay returns the wait before retry attempt n (1-based).
func (p Policy) Delay(n int) time.Duration {
	return p.BaseInterval * time.Duration(n)
}
