// Package mockserver is a local stand-in for the chat backend. It speaks the
// same websocket protocol: chat messages are answered with streamed chunks
// and screenshots with an analysis frame.
package mockserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const ChatPath = "/ws/chat/"

type Options struct {
	// Token, when set, must be presented as a bearer token or ?token= query.
	Token string
	// ChunkDelay spaces out streamed chunks.
	ChunkDelay time.Duration
	// Replies are cycled through for successive chat turns.
	Replies []string
	Log     zerolog.Logger
}

type Server struct {
	opts     Options
	log      zerolog.Logger
	upgrader websocket.Upgrader
	router   chi.Router
	script   *script

	mu    sync.RWMutex
	peers map[*peer]bool
}

func New(opts Options) *Server {
	s := &Server{
		opts:   opts,
		log:    opts.Log.With().Str("component", "mockserver").Logger(),
		script: newScript(opts.Replies),
		peers:  make(map[*peer]bool),
		// Desktop clients send no Origin header; anything else is local dev.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(ChatPath, s.handleWS)
	r.Get(strings.TrimSuffix(ChatPath, "/"), s.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	c := newPeer(s, conn)
	s.mu.Lock()
	s.peers[c] = true
	s.mu.Unlock()

	s.log.Info().Str("remote", r.RemoteAddr).Msg("client connected")
	c.enqueue(statusFrame())

	go func() {
		defer func() {
			s.removePeer(c)
			s.log.Info().Str("remote", r.RemoteAddr).Msg("client disconnected")
		}()
		c.readPump()
	}()
}

func (s *Server) authorize(r *http.Request) bool {
	if s.opts.Token == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.opts.Token {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.opts.Token
}

func (s *Server) removePeer(c *peer) {
	s.mu.Lock()
	if _, ok := s.peers[c]; ok {
		delete(s.peers, c)
		c.close()
	}
	s.mu.Unlock()
}

// PeerCount returns the number of connected sockets.
func (s *Server) PeerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// DropPeers closes every socket abruptly, as a crashed backend would.
func (s *Server) DropPeers() {
	s.mu.RLock()
	peers := make([]*peer, 0, len(s.peers))
	for c := range s.peers {
		peers = append(peers, c)
	}
	s.mu.RUnlock()

	for _, c := range peers {
		c.conn.Close()
	}
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Str("path", ChatPath).Msg("mock server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.DropPeers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
