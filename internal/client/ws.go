package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout        = 10 * time.Second
	defaultPingInterval = 30 * time.Second
)

// Conn is one established socket. Read is only ever called from a single
// goroutine; WriteText and Close may be called concurrently with it.
type Conn interface {
	Read() ([]byte, error)
	WriteText(data []byte) error
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket and keeps the connection alive
// with periodic pings.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	Token            string
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	var header http.Header
	if d.Token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + d.Token}}
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (http %d)", err, resp.StatusCode)
		}
		return nil, err
	}

	interval := d.PingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}
	return newWSConn(conn, interval), nil
}

type wsConn struct {
	conn        *websocket.Conn
	writeMu     sync.Mutex // serialises all conn writes (ping, text, close)
	pongTimeout time.Duration
	stop        chan struct{}
	closeOnce   sync.Once
}

func newWSConn(conn *websocket.Conn, pingInterval time.Duration) *wsConn {
	c := &wsConn{
		conn:        conn,
		pongTimeout: 2 * pingInterval,
		stop:        make(chan struct{}),
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(c.pongTimeout))

	go c.pingLoop(pingInterval)
	return c
}

// pingLoop sends periodic pings until the connection is closed or a ping
// fails. A missing pong surfaces as a read deadline error in Read.
func (c *wsConn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *wsConn) Read() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			// Any traffic proves liveness.
			c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
			return data, nil
		}
	}
}

func (c *wsConn) WriteText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
