// Package bridge serves the keyboard to a browser over a websocket. Each
// connection gets its own controller; the page renders keys and reports
// pointer events, the bridge answers with typed keys and panel updates.
package bridge

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/bnema/softkeys/internal/controller"
	"github.com/bnema/softkeys/internal/engine"
	"github.com/bnema/softkeys/internal/host"
	"github.com/bnema/softkeys/internal/layout"
	"github.com/bnema/softkeys/internal/logger"
	"github.com/bnema/softkeys/internal/timers"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// ErrServerClosed is returned for connections after Close
var ErrServerClosed = errors.New("bridge server closed")

// Options configure a Server
type Options struct {
	Config  controller.Config
	Catalog layout.Catalog
	Loader  engine.Loader
	// Sink optionally receives every key in addition to the browser.
	Sink host.Sink
	// RowHeight estimates the panel height before the page reports it.
	RowHeight int
	Clock     timers.Clock
	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool
}

// Server is an http.Handler upgrading requests to keyboard sessions
type Server struct {
	opts     Options
	upgrader websocket.Upgrader
	log      *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	catalog  layout.Catalog
	sessions map[string]*Session
	closed   bool
}

// NewServer creates a bridge server
func NewServer(opts Options) (*Server, error) {
	if opts.Catalog == nil {
		return nil, controller.ErrNoCatalog
	}
	if opts.RowHeight <= 0 {
		opts.RowHeight = 48
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log:      logger.With("component", "bridge"),
		ctx:      ctx,
		cancel:   cancel,
		catalog:  opts.Catalog,
		sessions: make(map[string]*Session),
	}, nil
}

// ServeHTTP upgrades the request and runs a session until it disconnects
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	sess := newSession(s, conn)
	if err := s.add(sess); err != nil {
		_ = conn.WriteJSON(Message{Type: MsgError, Payload: jsonRaw(ErrorPayload{Error: err.Error()})})
		conn.Close()
		return
	}

	if err := sess.start(s.ctx); err != nil {
		s.log.Error("Failed to start session", "error", err)
		_ = conn.WriteJSON(Message{Type: MsgError, Payload: jsonRaw(ErrorPayload{Error: err.Error()})})
		sess.close()
		return
	}

	s.log.Info("Session opened", "session", sess.ID, "remote", r.RemoteAddr)
	go sess.writePump()
	go sess.readPump()
}

func (s *Server) add(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Server) remove(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.ID)
}

// Catalog returns the catalog new sessions start with
func (s *Server) Catalog() layout.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

// SetCatalog replaces the catalog and pushes it to every open session
func (s *Server) SetCatalog(c layout.Catalog) {
	s.mu.Lock()
	s.catalog = c
	sessions := s.snapshot()
	s.mu.Unlock()

	for _, sess := range sessions {
		sess := sess
		sess.loop.Post(func() {
			if sess.ctrl == nil {
				return
			}
			if err := sess.ctrl.SetCatalog(c); err != nil {
				sess.log.Warn("Catalog rejected", "error", err)
			}
		})
	}
}

// Sessions returns the open sessions
func (s *Server) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Server) snapshot() []*Session {
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Close disconnects every session and refuses new ones
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sessions := s.snapshot()
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.conn.Close()
	}
	s.cancel()
}
