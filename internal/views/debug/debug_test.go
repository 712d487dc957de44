package debug

import (
	"errors"
	"testing"
	"time"

	"github.com/goblin/desktop/internal/capture"
	"github.com/goblin/desktop/internal/client"
	"github.com/goblin/desktop/internal/stream"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestMaxEntries(t *testing.T) {
	m := New()
	for i := 0; i < maxEntries+50; i++ {
		m.Add(t0, "conn", "msg")
	}
	require.Len(t, m.Entries, maxEntries)
}

func TestScroll(t *testing.T) {
	m := New()
	for i := 0; i < 20; i++ {
		m.Add(t0, "conn", "msg")
	}

	m.ScrollUp(5)
	require.Equal(t, 5, m.Offset)
	m.ScrollDown(3)
	require.Equal(t, 2, m.Offset)
	m.ScrollDown(10)
	require.Equal(t, 0, m.Offset)
	m.ScrollUp(100)
	require.Equal(t, 19, m.Offset)

	m.Add(t0, "conn", "new")
	require.Equal(t, 0, m.Offset, "a new entry jumps back to the bottom")
}

func TestDescribe(t *testing.T) {
	kind, msg, ok := Describe(client.StatusEvent{State: client.StateReconnecting, Attempt: 2, Delay: 2 * time.Second, Err: errors.New("refused")})
	require.True(t, ok)
	require.Equal(t, "conn", kind)
	require.Equal(t, "state reconnecting attempt=2 delay=2s: refused", msg)

	kind, msg, ok = Describe(client.ErrorEvent{Detail: "overloaded", Remote: true})
	require.True(t, ok)
	require.Equal(t, "err", kind)
	require.Equal(t, "server: overloaded", msg)

	_, msg, ok = Describe(stream.CompleteEvent{TurnID: "0123456789", Source: stream.SourceChat, Text: "hello", Implicit: true})
	require.True(t, ok)
	require.Equal(t, "chat turn 01234567 complete (5 chars) implicit", msg)

	kind, msg, ok = Describe(capture.SentEvent{Target: "goblin", Bytes: 42})
	require.True(t, ok)
	require.Equal(t, "cap", kind)
	require.Equal(t, "sent goblin (42 bytes)", msg)

	_, _, ok = Describe(stream.UpdateEvent{Text: "partial"})
	require.False(t, ok)
}

func TestRecordSkipsUpdates(t *testing.T) {
	m := New()
	m.Record(t0, stream.UpdateEvent{Text: "partial"})
	m.Record(t0, client.RemoteStatusEvent{Status: client.RemoteConnected})
	require.Len(t, m.Entries, 1)
	require.Equal(t, "server reports connected", m.Entries[0].Message)
}

func TestView(t *testing.T) {
	m := New()
	require.Contains(t, m.View(80, 20), "No events")

	m.Add(t0, "conn", "state connected")
	m.Add(t0, "err", "timeout")
	v := m.View(80, 20)
	require.Contains(t, v, "state connected")
	require.Contains(t, v, "timeout")
	require.Contains(t, v, "12:00:00.000")
}
