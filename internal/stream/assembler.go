// Package stream rebuilds incrementally delivered assistant responses and
// publishes them as message.update / message.complete events.
package stream

import (
	"sync"

	"github.com/goblin/desktop/internal/bus"
	"github.com/goblin/desktop/internal/client"
	"github.com/goblin/desktop/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Source names an independent chunk channel.
type Source string

const (
	// SourceChat is the primary channel. Its chunks are deltas.
	SourceChat Source = "chat"
	// SourceScreenshot is the analysis channel. Each chunk carries the whole
	// text so far and replaces what came before.
	SourceScreenshot Source = "screenshot"
)

func (s Source) replaces() bool { return s == SourceScreenshot }

// Chunk is one piece of a streamed response.
type Chunk struct {
	Text     string
	Complete bool
	Source   Source
	TurnID   string
}

type pending struct {
	turnID string
	source Source
	text   string
}

// Assembler keeps at most one pending message per source. Event handlers run
// while the assembler lock is held and must not call back into it.
type Assembler struct {
	bus     *bus.Bus
	metrics *metrics.Metrics
	log     zerolog.Logger
	newID   func() string

	mu      sync.Mutex
	pending map[Source]*pending

	unsub func()
}

// New creates an assembler that flushes on any connection.status other than
// Connected.
func New(b *bus.Bus, m *metrics.Metrics, log zerolog.Logger) *Assembler {
	a := &Assembler{
		bus:     b,
		metrics: m,
		log:     log.With().Str("component", "stream").Logger(),
		newID:   uuid.NewString,
		pending: make(map[Source]*pending),
	}
	a.unsub = bus.On(b, func(e client.StatusEvent) {
		if e.State != client.StateConnected {
			a.Flush()
		}
	})
	return a
}

// Close detaches the assembler from the bus. Pending messages are dropped
// without completion.
func (a *Assembler) Close() { a.unsub() }

// HandleFrame adapts inbound frames. It is meant to be registered with
// client.Manager.OnFrame.
func (a *Assembler) HandleFrame(f client.Frame) {
	switch f.Type {
	case client.FrameChatChunk:
		src := Source(f.Source)
		if src == "" {
			src = SourceChat
		}
		a.Ingest(Chunk{Text: f.Message, Complete: f.IsComplete, Source: src, TurnID: f.TurnID})
	case client.FrameScreenshotAnalysis:
		a.Ingest(Chunk{Text: f.Analysis, Complete: f.IsComplete, Source: SourceScreenshot, TurnID: f.TurnID})
	}
}

// Ingest advances the state machine of c.Source.
func (a *Assembler) Ingest(c Chunk) {
	if c.Source == "" {
		c.Source = SourceChat
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.pending[c.Source]
	if p != nil && c.TurnID != "" && c.TurnID != p.turnID {
		a.log.Debug().Str("turn_id", p.turnID).Str("next_turn_id", c.TurnID).Msg("new turn started before completion")
		a.completeLocked(p, true)
		p = nil
	}

	if p == nil {
		if c.Complete {
			// Terminal chunk with nothing pending.
			return
		}
		id := c.TurnID
		if id == "" {
			id = a.newID()
		}
		p = &pending{turnID: id, source: c.Source, text: c.Text}
		a.pending[c.Source] = p
		a.bus.Publish(UpdateEvent{TurnID: p.turnID, Source: p.source, Text: p.text})
		return
	}

	if c.Text != "" {
		if c.Source.replaces() {
			p.text = c.Text
		} else {
			p.text += c.Text
		}
	}

	if c.Complete {
		a.completeLocked(p, false)
		return
	}
	a.bus.Publish(UpdateEvent{TurnID: p.turnID, Source: p.source, Text: p.text})
}

// Flush completes every pending message implicitly.
func (a *Assembler) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, src := range []Source{SourceChat, SourceScreenshot} {
		if p := a.pending[src]; p != nil {
			a.completeLocked(p, true)
		}
	}
	for _, p := range a.pending {
		a.completeLocked(p, true)
	}
}

// Pending reports whether src has a message in progress.
func (a *Assembler) Pending(src Source) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending[src] != nil
}

func (a *Assembler) completeLocked(p *pending, implicit bool) {
	delete(a.pending, p.source)

	segs := ParseFences(p.text)
	a.metrics.MessageCompleted(string(p.source), implicit)
	a.log.Debug().
		Str("turn_id", p.turnID).
		Str("source", string(p.source)).
		Int("len", len(p.text)).
		Bool("implicit", implicit).
		Msg("message complete")

	a.bus.Publish(CompleteEvent{
		TurnID:     p.turnID,
		Source:     p.source,
		Text:       p.text,
		Structured: Structured(segs),
		Segments:   segs,
		Implicit:   implicit,
	})
}
