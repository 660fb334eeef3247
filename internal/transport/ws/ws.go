// Package ws implements the standalone WebSocket transport adapter of
// spec §4.6: one text frame per command line, push messages one frame
// each. This listener is separate from the WebSocket endpoint mounted at
// /ws of the HTTP server (see internal/transport/httpapi); both share the
// same token check when auth_user is configured.
package ws

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pisugar/pisugar-server/internal/bus"
	"github.com/pisugar/pisugar-server/internal/protocol"
	"github.com/pisugar/pisugar-server/internal/transport/auth"
	"github.com/pisugar/pisugar-server/internal/transport/lineconn"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server hosts the standalone WebSocket listener.
type Server struct {
	httpServer *http.Server
	ln         net.Listener

	Dispatcher *protocol.Dispatcher
	Bus        *bus.Bus
	Log        *zap.Logger

	// AuthUser, when non-empty, requires a valid token naming this user
	// on every upgrade (spec §4.6).
	AuthUser string
	Issuer   *auth.Issuer
}

// Listen binds addr without starting to accept connections yet.
func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding ws %s: %w", addr, err)
	}
	return &Server{ln: ln}, nil
}

// Serve accepts upgrade requests until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	s.httpServer = &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		_ = s.httpServer.Close()
	}()

	err := s.httpServer.Serve(s.ln)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.AuthUser != "" {
		token := r.Header.Get("x-pisugar-token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" || s.Issuer.Verify(token, s.AuthUser) != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	go s.serveConn(conn)
}

func (s *Server) serveConn(conn *websocket.Conn) {
	defer conn.Close()
	sub := s.Bus.Subscribe()
	defer s.Bus.Unsubscribe(sub)

	lines := make(chan string)
	closed := make(chan struct{})
	go func() {
		defer close(lines)
		defer close(closed)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			lines <- string(data)
		}
	}()

	for {
		select {
		case <-closed:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if resp := s.Dispatcher.Handle(line); resp != "" {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(resp)); err != nil {
					return
				}
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(lineconn.FormatPush(ev))); err != nil {
				return
			}
		case ev, ok := <-sub.Taps():
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(lineconn.FormatPush(ev))); err != nil {
				return
			}
		}
	}
}

// Close shuts down the listener.
func (s *Server) Close() error {
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return s.ln.Close()
}
