// Package web streams hub events to dashboard clients over websockets.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/srg/vitalink/events"
	"github.com/srg/vitalink/internal/groutine"
	"github.com/srg/vitalink/internal/ringchan"
)

// envelope is the wire frame sent to websocket clients.
type envelope struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}

// Server broadcasts every bus event to all connected websocket clients.
// Bus handlers enqueue into a ring buffer and a pump goroutine does the
// actual writes, so a stalled dashboard can never block a BLE callback.
// Slow clients are dropped rather than buffered.
type Server struct {
	logger   *logrus.Logger
	upgrader websocket.Upgrader
	srv      *http.Server
	queue    *ringchan.Ring[events.Event]
	pumped   sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	clients map[*websocket.Conn]struct{}
}

// NewServer builds a Server listening on addr once Start is called.
func NewServer(logger *logrus.Logger, addr string) *Server {
	s := &Server{
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		queue:    ringchan.New[events.Event](256),
		clients:  make(map[*websocket.Conn]struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.srv = &http.Server{Addr: addr, Handler: mux}

	s.pumped.Add(1)
	groutine.Go(context.Background(), "web-broadcast", func(context.Context) {
		defer s.pumped.Done()
		for ev := range s.queue.C() {
			s.Broadcast(ev)
		}
	})
	return s
}

// Attach subscribes the server to the bus.
func (s *Server) Attach(bus *events.Bus) {
	bus.Subscribe("web", s.enqueue)
}

// enqueue hands an event to the pump. Never blocks; the oldest queued event
// is discarded when dashboards fall behind.
func (s *Server) enqueue(ev events.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	dropped := s.queue.ForceSend(ev)
	s.mu.Unlock()

	if dropped {
		s.logger.WithField("topic", ev.Topic()).Debug("Dropped event for slow dashboards")
	}
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.srv.Addr).Info("Web server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the pump, closes all websocket clients, and stops the HTTP
// server. The server must be detached from the bus first (Stop the bus
// publishers, or Unsubscribe "web").
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	s.mu.Unlock()
	if !alreadyClosed {
		s.queue.Close()
		s.pumped.Wait()
	}

	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.WithFields(logrus.Fields{
		"remote":  conn.RemoteAddr().String(),
		"clients": n,
	}).Info("Dashboard client connected")

	// Drain the read side so pings and close frames are processed.
	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	_, ok := s.clients[conn]
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
	if ok {
		s.logger.WithField("remote", conn.RemoteAddr().String()).Info("Dashboard client disconnected")
	}
}

// Broadcast sends one event to every connected client.
func (s *Server) Broadcast(ev events.Event) {
	msg, err := json.Marshal(envelope{Topic: ev.Topic(), Payload: ev, At: time.Now()})
	if err != nil {
		s.logger.WithError(err).WithField("topic", ev.Topic()).Error("Marshal event failed")
		return
	}

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.drop(conn)
		}
	}
}

// ClientCount reports the number of connected dashboard clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
