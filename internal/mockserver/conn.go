package mockserver

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/goblin/desktop/internal/client"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const sendBuffer = 64

type peer struct {
	s    *Server
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newPeer(s *Server, conn *websocket.Conn) *peer {
	c := &peer{
		s:    s,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

func (c *peer) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.s.removePeer(c)
			return
		}
	}
}

func (c *peer) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// enqueue queues v for writing. A client that cannot keep up is dropped.
func (c *peer) enqueue(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.s.log.Error().Err(err).Msg("marshal outbound frame")
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	select {
	case c.send <- data:
		c.mu.Unlock()
		return true
	default:
		c.mu.Unlock()
		c.s.log.Warn().Msg("client too slow, disconnecting")
		c.s.removePeer(c)
		return false
	}
}

// inbound is the union of the frames a desktop client sends.
type inbound struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Provider  string `json:"provider"`
	Project   string `json:"project"`
	Data      string `json:"data"`
	Timestamp string `json:"timestamp"`
}

func (c *peer) readPump() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.enqueue(client.Frame{Type: client.FrameError, Message: "invalid JSON: " + err.Error()})
			continue
		}

		switch {
		case in.Type == client.CaptureFrameType:
			c.handleCapture(in)
		case in.Type == "" && in.Message != "":
			if !c.handleChat(in) {
				return
			}
		default:
			c.enqueue(client.Frame{Type: client.FrameError, Message: "unsupported message"})
		}
	}
}

func (c *peer) handleCapture(in inbound) {
	_, payload, ok := strings.Cut(in.Data, ",")
	if !ok || !strings.HasPrefix(in.Data, "data:image/") {
		c.enqueue(client.Frame{Type: client.FrameError, Message: "screenshot data must be an image data URL"})
		return
	}

	c.s.log.Info().Str("project", in.Project).Int("kb", len(payload)/1024).Msg("screenshot received")
	c.enqueue(client.Frame{
		Type:      client.FrameScreenshotAnalysis,
		Analysis:  c.s.script.analysis(in.Project, len(payload)),
		Project:   in.Project,
		Timestamp: in.Timestamp,
	})
}

// handleChat streams a reply chunk by chunk. It returns false when the client
// went away mid-stream.
func (c *peer) handleChat(in inbound) bool {
	if strings.HasPrefix(in.Message, "/error") {
		return c.enqueue(client.Frame{Type: client.FrameError, Message: strings.TrimSpace(strings.TrimPrefix(in.Message, "/error"))})
	}

	turn := uuid.NewString()
	for _, piece := range c.s.script.reply(in.Message) {
		if !c.enqueue(client.Frame{Type: client.FrameChatChunk, Message: piece, Source: "chat", TurnID: turn}) {
			return false
		}
		if c.s.opts.ChunkDelay > 0 {
			time.Sleep(c.s.opts.ChunkDelay)
		}
	}
	return c.enqueue(client.Frame{Type: client.FrameChatChunk, IsComplete: true, Source: "chat", TurnID: turn})
}

func statusFrame() client.Frame {
	return client.Frame{Type: client.FrameConnectionStatus, Status: client.RemoteConnected}
}
