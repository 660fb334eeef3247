// Package tcp implements the TCP transport adapter of spec §4.6:
// unauthenticated, line-delimited, one accept task plus one task per
// connection. The listener is always bound at startup; no flag or
// configuration key turns it off.
package tcp

import (
	"context"
	"fmt"
	"net"

	"github.com/pisugar/pisugar-server/internal/bus"
	"github.com/pisugar/pisugar-server/internal/protocol"
	"github.com/pisugar/pisugar-server/internal/transport/lineconn"
	"go.uber.org/zap"
)

// Listener owns the bound socket and its accept loop.
type Listener struct {
	ln net.Listener
}

// Listen binds addr (host:port).
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding tcp %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Serve accepts connections until ctx is cancelled, handling each
// concurrently against dispatcher and eventBus.
func (l *Listener) Serve(ctx context.Context, dispatcher *protocol.Dispatcher, eventBus *bus.Bus, log *zap.Logger) {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Warn("tcp accept failed", zap.Error(err))
				return
			}
		}
		go lineconn.Handle(ctx, conn, dispatcher, eventBus, log)
	}
}

// Close releases the listener.
func (l *Listener) Close() error {
	return l.ln.Close()
}
