package app

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/goblin/desktop/internal/bus"
	"github.com/goblin/desktop/internal/capture"
	"github.com/goblin/desktop/internal/client"
	"github.com/goblin/desktop/internal/stream"
)

// EventMsg carries a bus event into the Bubble Tea update loop.
type EventMsg struct {
	Event bus.Event
}

// Bridge forwards bus events to the UI. Bus handlers run on the publisher's
// goroutine, so the bridge only queues; the model drains the queue with Wait.
type Bridge struct {
	ch     chan bus.Event
	done   chan struct{}
	once   sync.Once
	unsubs []func()
}

var bridgedTopics = []bus.Topic{
	client.TopicStatus,
	client.TopicError,
	client.TopicRemoteStatus,
	stream.TopicUpdate,
	stream.TopicComplete,
	capture.TopicSent,
	capture.TopicError,
}

func NewBridge(b *bus.Bus) *Bridge {
	br := &Bridge{
		ch:   make(chan bus.Event, 256),
		done: make(chan struct{}),
	}
	for _, topic := range bridgedTopics {
		br.unsubs = append(br.unsubs, b.Subscribe(topic, br.forward))
	}
	return br
}

func (br *Bridge) forward(e bus.Event) {
	if _, ok := e.(stream.UpdateEvent); ok {
		// Each update carries the full text, so a dropped one is
		// superseded by the next.
		select {
		case br.ch <- e:
		default:
		}
		return
	}
	select {
	case br.ch <- e:
	case <-br.done:
	}
}

// Wait returns a command that delivers the next event.
func (br *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case e := <-br.ch:
			return EventMsg{Event: e}
		case <-br.done:
			return nil
		}
	}
}

// Close detaches from the bus and releases blocked publishers. Call it
// before shutting the connection down.
func (br *Bridge) Close() {
	br.once.Do(func() {
		for _, u := range br.unsubs {
			u()
		}
		close(br.done)
	})
}
