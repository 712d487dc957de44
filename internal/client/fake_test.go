package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goblin/desktop/internal/bus"
	"github.com/goblin/desktop/internal/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var errRefused = errors.New("connection refused")

type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	written  [][]byte
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Read() ([]byte, error) {
	select {
	case d := <-c.in:
		return d, nil
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, w := range c.written {
		out[i] = string(w)
	}
	return out
}

// fakeDialer hands out scripted results in order. Once the script is
// exhausted every dial fails.
type fakeDialer struct {
	mu     sync.Mutex
	script []any // *fakeConn or error
	dials  int
}

func (d *fakeDialer) push(results ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, results...)
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.script) == 0 {
		return nil, errRefused
	}
	next := d.script[0]
	d.script = d.script[1:]
	switch v := next.(type) {
	case *fakeConn:
		return v, nil
	case error:
		return nil, v
	}
	panic("bad script entry")
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// recorder captures published events of one type.
type recorder[T bus.Event] struct {
	mu     sync.Mutex
	events []T
}

func record[T bus.Event](b *bus.Bus) *recorder[T] {
	r := &recorder[T]{}
	bus.On(b, func(e T) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder[T]) All() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.events))
	copy(out, r.events)
	return out
}

type harness struct {
	bus    *bus.Bus
	clock  *clock.Fake
	dialer *fakeDialer
	mgr    *Manager
	status *recorder[StatusEvent]
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	b := bus.New(zerolog.Nop())
	h := &harness{
		bus:    b,
		clock:  clock.NewFake(time.Unix(0, 0)),
		dialer: &fakeDialer{},
		status: record[StatusEvent](b),
	}
	h.mgr = NewManager(Options{
		URL:    "ws://test.invalid/ws/chat/",
		Policy: policy,
		Dialer: h.dialer,
		Clock:  h.clock,
		Log:    zerolog.Nop(),
	}, b)
	t.Cleanup(func() { h.mgr.Close() })
	return h
}

func (h *harness) states() []State {
	var out []State
	for _, e := range h.status.All() {
		out = append(out, e.State)
	}
	return out
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.mgr.State() == want }, 2*time.Second, 5*time.Millisecond,
		"state never became %s", want)
}
