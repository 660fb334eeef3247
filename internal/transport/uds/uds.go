// Package uds implements the Unix-domain-socket transport adapter of
// spec §4.6: unauthenticated, line-delimited, one accept task plus one
// task per connection.
package uds

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/pisugar/pisugar-server/internal/bus"
	"github.com/pisugar/pisugar-server/internal/protocol"
	"github.com/pisugar/pisugar-server/internal/transport/lineconn"
	"go.uber.org/zap"
)

// Listener owns the bound socket and its accept loop.
type Listener struct {
	ln   net.Listener
	path string
}

// Listen binds a Unix-domain socket at path, replacing any stale socket
// file left behind by a previous unclean shutdown.
func Listen(path string) (*Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("binding uds %s: %w", path, err)
	}
	return &Listener{ln: ln, path: path}, nil
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
				log.Warn("uds accept failed", zap.Error(err))
				return
			}
		}
		go lineconn.Handle(ctx, conn, dispatcher, eventBus, log)
	}
}

// Close releases the listener and removes the socket file.
func (l *Listener) Close() error {
	err := l.ln.Close()
	_ = os.Remove(l.path)
	return err
}
