package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades, records the Authorization header and echoes every
// text message back.
func echoServer(t *testing.T, auth chan<- string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth != nil {
			auth <- r.Header.Get("Authorization")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteMessage(kind, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocketDialerRoundTrip(t *testing.T) {
	auth := make(chan string, 1)
	url := echoServer(t, auth)

	d := &WebsocketDialer{HandshakeTimeout: time.Second, PingInterval: 50 * time.Millisecond, Token: "secret"}
	conn, err := d.Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, "Bearer secret", <-auth)

	require.NoError(t, conn.WriteText([]byte(`{"message":"hi"}`)))
	data, err := conn.Read()
	require.NoError(t, err)
	require.JSONEq(t, `{"message":"hi"}`, string(data))

	// Pongs move the read deadline only while a reader is blocked, as the
	// manager's read loop always is.
	got := make(chan []byte, 1)
	errc := make(chan error, 1)
	go func() {
		data, err := conn.Read()
		if err != nil {
			errc <- err
			return
		}
		got <- data
	}()

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, conn.WriteText([]byte(`{"message":"still here"}`)))

	select {
	case data := <-got:
		require.JSONEq(t, `{"message":"still here"}`, string(data))
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}
}

func TestWebsocketDialerNoToken(t *testing.T) {
	auth := make(chan string, 1)
	url := echoServer(t, auth)

	conn, err := (&WebsocketDialer{}).Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()
	require.Empty(t, <-auth)
}

func TestWebsocketReadFailsAfterServerClose(t *testing.T) {
	url := echoServer(t, nil)

	conn, err := (&WebsocketDialer{}).Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteText([]byte("bye")))
	_, err = conn.Read()
	require.Error(t, err)
}

func TestWebsocketDialRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, err := (&WebsocketDialer{HandshakeTimeout: time.Second}).Dial(context.Background(), url)
	require.Error(t, err)
	require.Contains(t, err.Error(), "http 404")

	srv.Close()
	_, err = (&WebsocketDialer{HandshakeTimeout: time.Second}).Dial(context.Background(), url)
	require.Error(t, err)
}

func TestManagerOverRealSocket(t *testing.T) {
	url := echoServer(t, nil)
	h := newHarness(t, testPolicy)
	h.mgr.dialer = &WebsocketDialer{HandshakeTimeout: time.Second}
	h.mgr.url = url

	got := make(chan Frame, 1)
	h.mgr.OnFrame(func(f Frame) { got <- f })
	require.NoError(t, h.mgr.Connect(context.Background()))

	// The echo server reflects the outbound chunk as if the backend sent it.
	require.True(t, h.mgr.Send(Frame{Type: FrameChatChunk, Message: "echo", IsComplete: true}))
	select {
	case f := <-got:
		require.Equal(t, "echo", f.Message)
		require.True(t, f.IsComplete)
	case <-time.After(2 * time.Second):
		t.Fatal("frame never arrived")
	}
}
