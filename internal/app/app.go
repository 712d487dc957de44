package app

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/goblin/desktop/internal/bus"
	"github.com/goblin/desktop/internal/capture"
	"github.com/goblin/desktop/internal/client"
	"github.com/goblin/desktop/internal/stream"
	"github.com/goblin/desktop/internal/theme"
	"github.com/goblin/desktop/internal/views/debug"
	"github.com/goblin/desktop/internal/views/status"
)

// Connector is the connection control surface used by the UI.
type Connector interface {
	Connect(ctx context.Context) error
	State() client.State
}

// Capturer controls scheduled captures.
type Capturer interface {
	Start(target string, period time.Duration) error
	Stop()
	Job() capture.Job
}

type Options struct {
	Bus     *bus.Bus
	Conn    Connector
	Capture Capturer // optional
	Bridge  *Bridge

	Provider string
	Project  string
}

type role string

const (
	roleUser      role = "you"
	roleAssistant role = "goblin"
	roleScreen    role = "screen"
	roleSystem    role = "system"
)

type entry struct {
	role     role
	turnID   string
	text     string
	rendered string
	done     bool
	alert    bool
	// segments is set for completed replies that contain fenced code.
	segments []stream.Segment
}

type sendResultMsg struct{ sent bool }

type connectResultMsg struct{ err error }

type captureToggledMsg struct {
	job capture.Job
	err error
}

// Model is the root Bubble Tea model.
type Model struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time

	keys   KeyMap
	width  int
	height int

	viewport   viewport.Model
	input      textinput.Model
	renderer   *glamour.TermRenderer
	transcript []entry

	statusBar  status.Model
	events     debug.Model
	showEvents bool
}

// New creates the root model.
func New(opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())

	in := textinput.New()
	in.Placeholder = "Ask goblin something..."
	in.Prompt = "> "
	in.CharLimit = 4000
	in.Focus()

	bar := status.New(opts.Project)
	if opts.Capture != nil {
		bar.Capture = opts.Capture.Job()
	}

	return Model{
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
		keys:      DefaultKeyMap(),
		viewport:  viewport.New(80, 10),
		input:     in,
		statusBar: bar,
		events:    debug.New(),
	}
}

// Init connects and starts draining bus events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.connect(), m.waitEvent())
}

func (m Model) waitEvent() tea.Cmd {
	if m.opts.Bridge == nil {
		return nil
	}
	return m.opts.Bridge.Wait()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case EventMsg:
		m.handleEvent(msg.Event)
		return m, m.waitEvent()

	case sendResultMsg:
		if !msg.sent {
			m.appendSystem("not connected: message was not sent")
		}
		return m, nil

	case connectResultMsg:
		return m, nil

	case captureToggledMsg:
		if msg.err != nil {
			m.appendSystem("capture: " + msg.err.Error())
		}
		m.statusBar.Capture = msg.job
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showEvents {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Events):
			m.showEvents = false
		case key.Matches(msg, m.keys.PageUp):
			m.events.ScrollUp(10)
		case key.Matches(msg, m.keys.PageDown):
			m.events.ScrollDown(10)
		case key.Matches(msg, m.keys.Quit):
			m.cancel()
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Send):
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		m.transcript = append(m.transcript, entry{role: roleUser, text: text, done: true})
		m.refresh()
		return m, m.send(text)

	case key.Matches(msg, m.keys.Reconnect):
		m.appendSystem("reconnecting...")
		return m, m.connect()

	case key.Matches(msg, m.keys.Capture):
		return m, m.toggleCapture()

	case key.Matches(msg, m.keys.Events):
		m.showEvents = true
		return m, nil

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleEvent(e bus.Event) {
	m.events.Record(m.now(), e)

	switch e := e.(type) {
	case client.StatusEvent:
		m.statusBar.SetStatus(e)
		if e.State == client.StateExhausted {
			m.appendAlert("connection lost, press ctrl+r to reconnect")
		}
	case client.RemoteStatusEvent:
		m.statusBar.Remote = e.Status
	case client.ErrorEvent:
		if e.Remote {
			m.appendAlert("server error: " + e.Detail)
		}
	case stream.UpdateEvent:
		m.upsert(e.TurnID, e.Source, e.Text, nil, false)
	case stream.CompleteEvent:
		var segs []stream.Segment
		if e.Structured {
			segs = e.Segments
		}
		m.upsert(e.TurnID, e.Source, e.Text, segs, true)
	case capture.SentEvent:
		m.statusBar.LastCapture = e.At
	case capture.ErrorEvent:
		if m.opts.Capture != nil {
			m.statusBar.Capture = m.opts.Capture.Job()
		}
	}
}

// upsert updates the transcript entry for turnID, appending one if needed.
func (m *Model) upsert(turnID string, src stream.Source, text string, segs []stream.Segment, done bool) {
	r := roleAssistant
	if src == stream.SourceScreenshot {
		r = roleScreen
	}

	idx := -1
	for i := len(m.transcript) - 1; i >= 0; i-- {
		if m.transcript[i].turnID == turnID && m.transcript[i].role == r {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.transcript = append(m.transcript, entry{role: r, turnID: turnID})
		idx = len(m.transcript) - 1
	}

	e := &m.transcript[idx]
	e.text = text
	e.segments = segs
	e.done = done
	e.rendered = ""
	if done {
		e.rendered = m.renderEntry(*e)
	}
	m.refresh()
}

func (m *Model) appendSystem(text string) {
	m.transcript = append(m.transcript, entry{role: roleSystem, text: text, done: true})
	m.refresh()
}

func (m *Model) appendAlert(text string) {
	m.transcript = append(m.transcript, entry{role: roleSystem, text: text, done: true, alert: true})
	m.refresh()
}

// renderEntry renders prose as markdown and fenced code verbatim.
func (m *Model) renderEntry(e entry) string {
	if len(e.segments) == 0 || m.renderer == nil {
		return m.render(e.text)
	}
	parts := make([]string, 0, len(e.segments))
	for _, seg := range e.segments {
		if seg.Kind == stream.SegmentCode {
			parts = append(parts, renderCode(seg))
			continue
		}
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		if out := m.render(seg.Text); out != "" {
			parts = append(parts, out)
		}
	}
	return strings.Join(parts, "\n")
}

func renderCode(seg stream.Segment) string {
	block := theme.StyleCode.Render(seg.Text)
	if seg.Lang == "" {
		return block
	}
	return theme.StyleDimmed.Render(seg.Lang) + "\n" + block
}

func (m *Model) render(text string) string {
	if m.renderer == nil {
		return ""
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return ""
	}
	return strings.TrimRight(out, "\n")
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.statusBar.Width = width - 2

	m.viewport.Width = width
	m.viewport.Height = max(height-7, 3)
	m.input.Width = max(width-4, 10)

	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err == nil {
		m.renderer = r
	}
	for i := range m.transcript {
		if m.transcript[i].done && m.transcript[i].role != roleUser && m.transcript[i].role != roleSystem {
			m.transcript[i].rendered = m.renderEntry(m.transcript[i])
		}
	}
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return theme.StyleDimmed.Render("  No messages yet.")
	}

	var blocks []string
	for _, e := range m.transcript {
		label := lipgloss.NewStyle().Bold(true).Foreground(theme.RoleColor(string(e.role))).Render(string(e.role))
		body := e.text
		if e.rendered != "" {
			body = e.rendered
		}
		switch {
		case e.alert:
			body = theme.StyleError.Render(body)
		case e.role == roleSystem:
			body = theme.StyleDimmed.Render(body)
		}
		if !e.done {
			body += theme.StyleDimmed.Render(" ▍")
		}
		blocks = append(blocks, label+"\n"+body)
	}
	return strings.Join(blocks, "\n\n")
}

func (m Model) send(text string) tea.Cmd {
	b := m.opts.Bus
	frame := client.ChatFrame{Message: text, Provider: m.opts.Provider, Project: m.opts.Project}
	return func() tea.Msg {
		var sent bool
		b.Publish(client.SendRequest{Payload: frame, Done: func(ok bool) { sent = ok }})
		return sendResultMsg{sent: sent}
	}
}

func (m Model) connect() tea.Cmd {
	if m.opts.Conn == nil {
		return nil
	}
	conn, ctx := m.opts.Conn, m.ctx
	return func() tea.Msg {
		return connectResultMsg{err: conn.Connect(ctx)}
	}
}

func (m Model) toggleCapture() tea.Cmd {
	c := m.opts.Capture
	if c == nil {
		return func() tea.Msg {
			return captureToggledMsg{err: capture.ErrNoTargetContext}
		}
	}
	return func() tea.Msg {
		if c.Job().Active {
			c.Stop()
			return captureToggledMsg{job: c.Job()}
		}
		// Resume with the target context the scheduler last stored.
		err := c.Start(c.Job().Target, 0)
		return captureToggledMsg{job: c.Job(), err: err}
	}
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	body := m.viewport.View()
	if m.showEvents {
		body = m.events.View(m.width, m.viewport.Height+2)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		body,
		m.input.View(),
		theme.StyleDimmed.Render("  "+m.keys.Help()),
	)
}
