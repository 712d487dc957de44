package app

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/goblin/desktop/internal/bus"
	"github.com/goblin/desktop/internal/capture"
	"github.com/goblin/desktop/internal/client"
	"github.com/goblin/desktop/internal/stream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	connects int
	state    client.State
}

func (f *fakeConn) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return nil
}

func (f *fakeConn) State() client.State { return f.state }

type fakeCapture struct {
	job    capture.Job
	starts []string
}

func (f *fakeCapture) Start(target string, period time.Duration) error {
	if target == "" {
		return capture.ErrNoTargetContext
	}
	f.starts = append(f.starts, target)
	f.job = capture.Job{Target: target, Period: 5 * time.Second, Active: true}
	return nil
}

func (f *fakeCapture) Stop()            { f.job.Active = false }
func (f *fakeCapture) Job() capture.Job { return f.job }

func newModel(t *testing.T) (Model, *bus.Bus, *fakeConn, *fakeCapture) {
	t.Helper()
	b := bus.New(zerolog.Nop())
	conn := &fakeConn{}
	capt := &fakeCapture{job: capture.Job{Target: "goblin"}}
	m := New(Options{
		Bus:      b,
		Conn:     conn,
		Capture:  capt,
		Provider: "anthropic",
		Project:  "goblin",
	})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(Model), b, conn, capt
}

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestStreamingMessageInTranscript(t *testing.T) {
	m, _, _, _ := newModel(t)

	m, _ = step(t, m, EventMsg{Event: stream.UpdateEvent{TurnID: "t1", Source: stream.SourceChat, Text: "Hel"}})
	m, _ = step(t, m, EventMsg{Event: stream.UpdateEvent{TurnID: "t1", Source: stream.SourceChat, Text: "Hello"}})
	require.Len(t, m.transcript, 1)
	require.False(t, m.transcript[0].done)
	require.Contains(t, m.View(), "Hello")

	m, _ = step(t, m, EventMsg{Event: stream.CompleteEvent{TurnID: "t1", Source: stream.SourceChat, Text: "Hello world"}})
	require.Len(t, m.transcript, 1)
	require.True(t, m.transcript[0].done)
	require.Equal(t, roleAssistant, m.transcript[0].role)
	require.NotEmpty(t, m.transcript[0].rendered)
	require.Contains(t, m.View(), "Hello")
}

func TestFencedCodeRenderedVerbatim(t *testing.T) {
	m, _, _, _ := newModel(t)

	text := "Run this:\n```go\nfmt.Println(\"**not bold**\")\n```"
	m, _ = step(t, m, EventMsg{Event: stream.CompleteEvent{
		TurnID:     "t1",
		Source:     stream.SourceChat,
		Text:       text,
		Structured: true,
		Segments:   stream.ParseFences(text),
	}})

	e := m.transcript[0]
	require.Len(t, e.segments, 2)
	require.Contains(t, e.rendered, `fmt.Println("**not bold**")`)
	require.Contains(t, e.rendered, "go")
	require.Contains(t, e.rendered, "Run")

	// Resizing re-renders from the segments.
	m, _ = step(t, m, tea.WindowSizeMsg{Width: 60, Height: 20})
	require.Contains(t, m.transcript[0].rendered, `fmt.Println("**not bold**")`)
}

func TestScreenshotAnalysisIsSeparateEntry(t *testing.T) {
	m, _, _, _ := newModel(t)

	m, _ = step(t, m, EventMsg{Event: stream.UpdateEvent{TurnID: "t1", Source: stream.SourceChat, Text: "chat"}})
	m, _ = step(t, m, EventMsg{Event: stream.UpdateEvent{TurnID: "s1", Source: stream.SourceScreenshot, Text: "a terminal"}})

	require.Len(t, m.transcript, 2)
	require.Equal(t, roleScreen, m.transcript[1].role)
}

func TestSendPublishesRequest(t *testing.T) {
	m, b, _, _ := newModel(t)

	var got []client.SendRequest
	bus.On(b, func(r client.SendRequest) {
		got = append(got, r)
		r.Done(true)
	})

	m.input.SetValue("  hello goblin ")
	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.Empty(t, m.input.Value())
	require.Equal(t, roleUser, m.transcript[0].role)
	require.Equal(t, "hello goblin", m.transcript[0].text)

	msg := cmd()
	require.Equal(t, sendResultMsg{sent: true}, msg)
	require.Len(t, got, 1)
	require.Equal(t, client.ChatFrame{Message: "hello goblin", Provider: "anthropic", Project: "goblin"}, got[0].Payload)

	m, _ = step(t, m, msg)
	require.Len(t, m.transcript, 1)
}

func TestDroppedSendIsReported(t *testing.T) {
	m, _, _, _ := newModel(t)

	m.input.SetValue("hi")
	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	// No manager is subscribed, so nothing reports success.
	m, _ = step(t, m, cmd())

	require.Len(t, m.transcript, 2)
	require.Equal(t, roleSystem, m.transcript[1].role)
	require.Contains(t, m.transcript[1].text, "not sent")
}

func TestEmptyInputIsIgnored(t *testing.T) {
	m, _, _, _ := newModel(t)

	m.input.SetValue("   ")
	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Empty(t, m.transcript)
}

func TestReconnectKey(t *testing.T) {
	m, _, conn, _ := newModel(t)

	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	require.NotNil(t, cmd)
	require.Equal(t, connectResultMsg{}, cmd())
	require.Equal(t, 1, conn.connects)
	require.Contains(t, m.transcript[len(m.transcript)-1].text, "reconnecting")
}

func TestCaptureToggle(t *testing.T) {
	m, _, _, capt := newModel(t)

	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	m, _ = step(t, m, cmd())
	require.Equal(t, []string{"goblin"}, capt.starts)
	require.True(t, m.statusBar.Capture.Active)
	require.Contains(t, m.View(), "capture goblin every 5s")

	m, cmd = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	m, _ = step(t, m, cmd())
	require.False(t, m.statusBar.Capture.Active)
}

func TestStatusEventsUpdateStatusBar(t *testing.T) {
	m, _, _, _ := newModel(t)

	m, _ = step(t, m, EventMsg{Event: client.StatusEvent{State: client.StateReconnecting, Attempt: 1, Delay: time.Second}})
	require.Equal(t, client.StateReconnecting, m.statusBar.State)
	require.Contains(t, m.View(), "attempt 1")

	m, _ = step(t, m, EventMsg{Event: client.StatusEvent{State: client.StateExhausted}})
	require.Contains(t, m.transcript[len(m.transcript)-1].text, "ctrl+r")

	m, _ = step(t, m, EventMsg{Event: client.ErrorEvent{Detail: "overloaded", Remote: true}})
	require.Contains(t, m.transcript[len(m.transcript)-1].text, "overloaded")
	require.Len(t, m.events.Entries, 3)
}

func TestEventOverlay(t *testing.T) {
	m, _, _, _ := newModel(t)
	m, _ = step(t, m, EventMsg{Event: client.RemoteStatusEvent{Status: client.RemoteConnected}})

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	require.True(t, m.showEvents)
	require.Contains(t, m.View(), "EVENT LOG")
	require.Contains(t, m.View(), "server reports connected")

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.False(t, m.showEvents)
}

func TestCaptureWithoutTarget(t *testing.T) {
	m, _, _, capt := newModel(t)
	capt.job.Target = ""

	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	m, _ = step(t, m, cmd())
	require.Contains(t, m.transcript[len(m.transcript)-1].text, "no target context")
	require.False(t, m.statusBar.Capture.Active)
}

func TestQuit(t *testing.T) {
	m, _, _, _ := newModel(t)

	_, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.IsType(t, tea.QuitMsg{}, cmd())
	require.Error(t, m.ctx.Err())
}

func TestViewBeforeResize(t *testing.T) {
	m := New(Options{Bus: bus.New(zerolog.Nop())})
	require.Equal(t, "Initializing...", m.View())
}
