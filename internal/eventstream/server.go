// Package eventstream serves simulation events to remote viewers over
// websocket. Every connection gets its own bus subscription; events are
// written as JSON text frames.
package eventstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/coredefense/internal/game/events"
)

// Path is the websocket endpoint.
const Path = "/events"

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Subscriber is the event source each connection subscribes to.
type Subscriber interface {
	Subscribe(name string, buffer int) (<-chan events.Event, func())
}

// Server upgrades requests on Path and streams events until the viewer
// disconnects. A "types" query parameter (comma separated) filters the stream.
type Server struct {
	src      Subscriber
	buffer   int
	logger   *zap.Logger
	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	clients  atomic.Int64
	srv      atomic.Pointer[http.Server]
}

// NewServer creates a Server.
//
// Precondition: src must be non-nil.
func NewServer(src Subscriber, buffer int, logger *zap.Logger) *Server {
	if src == nil {
		panic("eventstream.NewServer: src must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		src:    src,
		buffer: max(buffer, 1),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns a mux serving Path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.serveWS)
	return mux
}

// Clients returns the number of connected viewers.
func (s *Server) Clients() int64 { return s.clients.Load() }

// Start listens on addr until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	s.srv.Store(srv)
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	s.logger.Info("event stream listening", zap.String("addr", addr), zap.String("path", Path))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes the listener. Open connections end when their subscription closes.
func (s *Server) Stop() {
	if srv := s.srv.Load(); srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func parseTypes(raw string) map[events.Type]bool {
	if raw == "" {
		return nil
	}
	want := make(map[events.Type]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			want[events.Type(t)] = true
		}
	}
	return want
}

func (s *Server) serveWS(rw http.ResponseWriter, r *http.Request) {
	want := parseTypes(r.URL.Query().Get("types"))
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch, unsubscribe := s.src.Subscribe("ws-viewer", s.buffer)
	defer unsubscribe()

	id := s.nextID.Add(1)
	s.clients.Add(1)
	defer s.clients.Add(-1)
	logger := s.logger.With(zap.Uint64("viewer", id), zap.String("remote", r.RemoteAddr))
	logger.Info("viewer connected")
	defer logger.Info("viewer disconnected")

	// The reader only services control frames and notices the close.
	closed := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case e, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"), time.Now().Add(writeWait))
				return
			}
			if want != nil && !want[e.Type] {
				continue
			}
			b, err := json.Marshal(e)
			if err != nil {
				logger.Warn("encoding event", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				logger.Debug("write failed", zap.Error(err))
				return
			}
		}
	}
}
