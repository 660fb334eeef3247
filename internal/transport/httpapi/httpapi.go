// Package httpapi implements the HTTP transport adapter of spec §4.6:
// POST /login, GET /ws (WebSocket upgrade mounted on the HTTP server),
// GET|POST /exec, and a static file fallback serving the configured
// web-root.
package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/pisugar/pisugar-server/internal/bus"
	"github.com/pisugar/pisugar-server/internal/protocol"
	"github.com/pisugar/pisugar-server/internal/store"
	"github.com/pisugar/pisugar-server/internal/transport/auth"
	"github.com/pisugar/pisugar-server/internal/transport/lineconn"
	"go.uber.org/zap"
)

// Server wraps a fiber.App configured with the three core endpoints plus
// static file serving.
type Server struct {
	app  *fiber.App
	addr string
}

// Config configures one HTTP transport instance.
type Config struct {
	Addr    string
	WebRoot string

	Dispatcher *protocol.Dispatcher
	Store      *store.Store
	Bus        *bus.Bus
	Issuer     *auth.Issuer
	Log        *zap.Logger
}

// New builds the fiber app and registers routes; it does not start
// listening until Serve is called.
func New(cfg Config) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())

	h := &handler{cfg: cfg}

	app.Post("/login", h.login)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if !fiberws.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if !h.requireToken(c) {
			return fiber.ErrUnauthorized
		}
		return c.Next()
	})
	app.Get("/ws", fiberws.New(h.serveWS))

	app.Get("/exec", h.exec)
	app.Post("/exec", h.exec)

	if cfg.WebRoot != "" {
		app.Static("/", cfg.WebRoot)
	}

	return &Server{app: app, addr: cfg.Addr}
}

// Serve starts accepting connections and blocks until ctx is cancelled or
// the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listen(s.addr) }()

	select {
	case <-ctx.Done():
		_ = s.app.ShutdownWithTimeout(2 * time.Second)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close shuts down the fiber app immediately.
func (s *Server) Close() error {
	return s.app.Shutdown()
}

type handler struct {
	cfg Config
}

func (h *handler) login(c *fiber.Ctx) error {
	cfg := h.cfg.Store.Config()
	if cfg.AuthUser == "" {
		return c.SendString("")
	}
	username := c.Query("username")
	password := c.Query("password")
	if username != cfg.AuthUser || password != cfg.AuthPassword {
		return c.Status(fiber.StatusUnauthorized).SendString("unauthorized")
	}
	token, err := h.cfg.Issuer.Issue(username)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
	}
	return c.SendString(token)
}

func (h *handler) requireToken(c *fiber.Ctx) bool {
	cfg := h.cfg.Store.Config()
	if cfg.AuthUser == "" {
		return true
	}
	token := c.Get("x-pisugar-token")
	if token == "" {
		token = c.Query("token")
	}
	return token != "" && h.cfg.Issuer.Verify(token, cfg.AuthUser) == nil
}

func (h *handler) exec(c *fiber.Ctx) error {
	if !h.requireToken(c) {
		return c.Status(fiber.StatusUnauthorized).SendString("unauthorized")
	}
	cmd := c.Query("cmd")
	return c.SendString(h.cfg.Dispatcher.Handle(cmd))
}

// serveWS runs after the /ws middleware has already validated the token
// (if auth is configured), so no further check is needed here.
func (h *handler) serveWS(c *fiberws.Conn) {
	sub := h.cfg.Bus.Subscribe()
	defer h.cfg.Bus.Unsubscribe(sub)

	lines := make(chan string)
	closed := make(chan struct{})
	go func() {
		defer close(lines)
		defer close(closed)
		for {
			_, data, err := c.ReadMessage()
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
			if resp := h.cfg.Dispatcher.Handle(line); resp != "" {
				if err := c.WriteMessage(fiberws.TextMessage, []byte(resp)); err != nil {
					return
				}
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := c.WriteMessage(fiberws.TextMessage, []byte(lineconn.FormatPush(ev))); err != nil {
				return
			}
		case ev, ok := <-sub.Taps():
			if !ok {
				return
			}
			if err := c.WriteMessage(fiberws.TextMessage, []byte(lineconn.FormatPush(ev))); err != nil {
				return
			}
		}
	}
}
