package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/goblin/desktop/internal/bus"
	"github.com/goblin/desktop/internal/clock"
	"github.com/goblin/desktop/internal/metrics"
	"github.com/rs/zerolog"
)

// FrameHandler consumes inbound frames. Handlers run on the read loop, one
// frame at a time, in arrival order.
type FrameHandler func(Frame)

// Options configure a Manager. Dialer and Clock default to a WebsocketDialer
// and the wall clock.
type Options struct {
	URL     string
	Policy  Policy
	Dialer  Dialer
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

// Manager owns one logical connection. It is the only writer of State and
// the only holder of the socket; everything else transmits through Send.
//
// Lifecycle operations (Connect, Reconnect, Close, retry timers and read-loop
// teardown) are serialised and publish their StatusEvents in order. Bus
// handlers may call State and Send but must not call Connect or Close
// synchronously.
type Manager struct {
	url     string
	policy  Policy
	dialer  Dialer
	clock   clock.Clock
	bus     *bus.Bus
	metrics *metrics.Metrics
	log     zerolog.Logger

	opMu sync.Mutex

	mu       sync.Mutex
	state    State
	conn     Conn
	gen      uint64 // bumped whenever conn is replaced or dropped
	attempts int
	retry    clock.Timer
	retrySeq uint64
	ctx      context.Context
	cancel   context.CancelFunc
	closed   bool

	handlersMu  sync.RWMutex
	handlers    []handlerEntry
	nextHandler uint64

	unsubSend func()
}

type handlerEntry struct {
	id uint64
	fn FrameHandler
}

// NewManager creates a disconnected manager and subscribes it to
// SendRequests on b.
func NewManager(opts Options, b *bus.Bus) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = &WebsocketDialer{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real
	}

	m := &Manager{
		url:     opts.URL,
		policy:  opts.Policy,
		dialer:  opts.Dialer,
		clock:   opts.Clock,
		bus:     b,
		metrics: opts.Metrics,
		log:     opts.Log.With().Str("component", "client").Logger(),
		state:   StateDisconnected,
	}

	m.unsubSend = bus.On(b, func(req SendRequest) {
		sent := m.Send(req.Payload)
		if req.Done != nil {
			req.Done(sent)
		}
	})
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of consecutive failed attempts since the last
// successful connection.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// OnFrame registers h for inbound frames. The returned function unregisters
// it.
func (m *Manager) OnFrame(h FrameHandler) (unregister func()) {
	m.handlersMu.Lock()
	m.nextHandler++
	id := m.nextHandler
	m.handlers = append(m.handlers, handlerEntry{id: id, fn: h})
	m.handlersMu.Unlock()

	return func() {
		m.handlersMu.Lock()
		defer m.handlersMu.Unlock()
		for i, e := range m.handlers {
			if e.id == id {
				m.handlers = append(m.handlers[:i:i], m.handlers[i+1:]...)
				return
			}
		}
	}
}

// Connect opens a fresh connection, closing any live socket and cancelling
// any pending retry first. A user-initiated Connect also restores the retry
// budget, which is how an Exhausted manager is revived. On failure the
// reconnect path is already armed when Connect returns the error.
func (m *Manager) Connect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.connectLocked(ctx)
}

// Reconnect makes a single recovery attempt on behalf of another component,
// e.g. after a failed send. It does nothing while a dial or retry is already
// pending, and never revives an Exhausted manager.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	switch m.State() {
	case StateConnected, StateDisconnected:
		return m.connectLocked(ctx)
	default:
		return nil
	}
}

func (m *Manager) connectLocked(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.stopRetryLocked()
	m.dropConnLocked()
	if m.cancel != nil {
		m.cancel()
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.attempts = 0
	dialCtx := m.ctx
	m.mu.Unlock()

	return m.dialLocked(dialCtx)
}

// dialLocked performs one attempt. Requires opMu.
func (m *Manager) dialLocked(ctx context.Context) error {
	m.transition(StatusEvent{State: StateConnecting})

	conn, err := m.dialer.Dial(ctx, m.url)
	if err != nil {
		terr := &TransportError{Op: "dial", Err: err}
		if ctx.Err() != nil {
			m.transition(StatusEvent{State: StateDisconnected, Err: terr})
			return terr
		}
		m.failLocked(terr)
		return terr
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	m.gen++
	gen := m.gen
	m.conn = conn
	m.attempts = 0
	m.mu.Unlock()

	m.log.Info().Str("url", m.url).Msg("connected")
	m.transition(StatusEvent{State: StateConnected})

	go m.readLoop(gen, conn)
	return nil
}

// failLocked records a failed attempt and either arms the next retry or
// gives up. Requires opMu.
func (m *Manager) failLocked(cause error) {
	m.mu.Lock()
	if m.attempts >= m.policy.MaxAttempts {
		attempts := m.attempts
		m.retry = nil
		m.mu.Unlock()

		m.log.Error().Err(cause).Int("attempts", attempts).Msg("reconnect attempts exhausted")
		m.transition(StatusEvent{State: StateExhausted, Attempt: attempts, Err: cause})
		return
	}

	m.attempts++
	n := m.attempts
	delay := m.policy.Delay(n)
	m.retrySeq++
	seq := m.retrySeq
	m.retry = m.clock.AfterFunc(delay, func() { m.retryFired(seq) })
	m.mu.Unlock()

	m.metrics.ReconnectScheduled()
	m.log.Warn().Err(cause).Int("attempt", n).Int("max", m.policy.MaxAttempts).Dur("delay", delay).Msg("connection failed, retry scheduled")
	m.transition(StatusEvent{State: StateReconnecting, Attempt: n, Delay: delay, Err: cause})
}

func (m *Manager) retryFired(seq uint64) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed || m.retry == nil || seq != m.retrySeq {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	ctx := m.ctx
	m.mu.Unlock()

	if ctx.Err() != nil {
		m.transition(StatusEvent{State: StateDisconnected, Err: ctx.Err()})
		return
	}
	m.dialLocked(ctx)
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.Read()
		if err != nil {
			m.connectionLost(gen, err)
			return
		}
		m.dispatch(data)
	}
}

func (m *Manager) connectionLost(gen uint64, err error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed || gen != m.gen {
		// Superseded by Connect or Close; nothing to recover.
		m.mu.Unlock()
		return
	}
	m.dropConnLocked()
	ctx := m.ctx
	m.mu.Unlock()

	terr := &TransportError{Op: "read", Err: err}
	if ctx.Err() != nil {
		m.transition(StatusEvent{State: StateDisconnected, Err: terr})
		return
	}
	m.failLocked(terr)
}

func (m *Manager) dispatch(data []byte) {
	f, err := DecodeFrame(data)
	if err != nil {
		m.metrics.ProtocolError()
		m.log.Warn().Err(err).Msg("dropping inbound frame")
		m.bus.Publish(ErrorEvent{Detail: err.Error(), Err: err})
		return
	}
	m.metrics.FrameReceived(string(f.Type))

	switch f.Type {
	case FrameError:
		m.log.Warn().Str("detail", f.Message).Msg("server reported error")
		m.bus.Publish(ErrorEvent{Detail: f.Message, Remote: true})
	case FrameConnectionStatus:
		m.bus.Publish(RemoteStatusEvent{Status: f.Status})
	}

	m.handlersMu.RLock()
	handlers := make([]handlerEntry, len(m.handlers))
	copy(handlers, m.handlers)
	m.handlersMu.RUnlock()

	for _, h := range handlers {
		m.deliver(h, f)
	}
}

func (m *Manager) deliver(h handlerEntry, f Frame) {
	defer func() {
		if r := recover(); r != nil {
			err := &ProtocolError{Err: fmt.Errorf("frame handler panic: %v", r)}
			m.log.Error().Err(err).Str("type", string(f.Type)).Msg("frame handler failed")
			m.bus.Publish(ErrorEvent{Detail: err.Error(), Err: err})
		}
	}()
	h.fn(f)
}

// Send encodes payload as JSON and transmits it. It returns false, without
// buffering, unless the connection is Connected and the write succeeds. A
// failed write closes the socket; the read loop then runs recovery.
func (m *Manager) Send(payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		m.metrics.Send("failed")
		m.log.Error().Err(err).Msg("cannot encode outbound payload")
		return false
	}

	m.mu.Lock()
	state, conn := m.state, m.conn
	m.mu.Unlock()

	if state != StateConnected || conn == nil {
		m.metrics.Send("dropped")
		m.log.Debug().Stringer("state", state).Int("bytes", len(data)).Msg("send dropped while not connected")
		return false
	}

	if err := conn.WriteText(data); err != nil {
		m.metrics.Send("failed")
		m.log.Warn().Err(&TransportError{Op: "write", Err: err}).Msg("send failed, closing socket")
		conn.Close()
		return false
	}

	m.metrics.Send("sent")
	return true
}

// Close shuts the manager down: the retry timer is cancelled, the socket is
// closed and the state becomes Disconnected. Close is final and idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel() // abort an in-flight dial so opMu is released promptly
	}
	m.mu.Unlock()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopRetryLocked()
	m.dropConnLocked()
	// A dial aborted above has already reported Disconnected.
	settled := m.state == StateDisconnected
	m.mu.Unlock()

	m.unsubSend()
	if !settled {
		m.transition(StatusEvent{State: StateDisconnected})
	}
	return nil
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *Manager) dropConnLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.gen++
}

// transition updates the state and publishes it. Requires opMu, which keeps
// published transitions in the order they happened.
func (m *Manager) transition(ev StatusEvent) {
	m.mu.Lock()
	prev := m.state
	m.state = ev.State
	m.mu.Unlock()

	m.metrics.StateChanged(int(ev.State), ev.State.String())
	m.log.Debug().Stringer("from", prev).Stringer("to", ev.State).Msg("state transition")
	m.bus.Publish(ev)
}

// IsTransportError reports whether err is a socket-level failure.
func IsTransportError(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr)
}
