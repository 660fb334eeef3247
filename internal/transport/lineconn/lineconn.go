// Package lineconn implements the line-delimited text protocol shared by
// the UDS and TCP transport adapters (spec §4.6): one command per line in,
// one response line out, with server-initiated push lines multiplexed in
// whenever the event bus has something to say.
package lineconn

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pisugar/pisugar-server/internal/bus"
	"github.com/pisugar/pisugar-server/internal/model"
	"github.com/pisugar/pisugar-server/internal/protocol"
	"go.uber.org/zap"
)

// IdleTimeout is the per-connection read idle timeout of spec §5.
const IdleTimeout = 120 * time.Second

// Handle serves one accepted connection to completion: it reads command
// lines, dispatches each to completion before reading the next (per-
// connection FIFO, spec §5), and interleaves push lines from the event
// bus as they arrive. The connection is closed when the peer disconnects,
// the idle timeout elapses, or ctx is cancelled.
func Handle(ctx context.Context, conn net.Conn, dispatcher *protocol.Dispatcher, eventBus *bus.Bus, log *zap.Logger) {
	defer conn.Close()

	sub := eventBus.Subscribe()
	defer eventBus.Unsubscribe(sub)

	lines := make(chan string)
	readErrs := make(chan error, 1)
	go readLines(conn, lines, readErrs)

	writes := make(chan string, 64)
	done := make(chan struct{})
	go writePump(conn, writes, done)
	defer close(writes)

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case err := <-readErrs:
			if err != nil {
				log.Debug("connection read error", zap.Error(err))
			}
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			resp := dispatcher.Handle(line)
			if resp != "" {
				select {
				case writes <- resp:
				case <-done:
					return
				}
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			select {
			case writes <- FormatPush(ev):
			case <-done:
				return
			}
		case ev, ok := <-sub.Taps():
			if !ok {
				return
			}
			select {
			case writes <- FormatPush(ev):
			case <-done:
				return
			}
		}
	}
}

func readLines(conn net.Conn, out chan<- string, errs chan<- error) {
	defer close(out)
	scanner := bufio.NewScanner(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(IdleTimeout))
		if !scanner.Scan() {
			errs <- scanner.Err()
			return
		}
		out <- scanner.Text()
	}
}

func writePump(conn net.Conn, in <-chan string, done chan<- struct{}) {
	defer close(done)
	for line := range in {
		if _, err := conn.Write([]byte(line)); err != nil {
			return
		}
	}
}

// FormatPush renders one bus event as one or more push lines using the
// same "<key>: <value>\n" shape as command responses (spec §4.4). The
// synthetic "__full__" delta delivered on attach expands into one line
// per battery field instead of a single opaque value. Shared by every
// transport adapter so push formatting never drifts between them.
func FormatPush(ev bus.Event) string {
	switch ev.Kind {
	case bus.KindTapEvent:
		return "tap: " + ev.Tap.String() + "\n"
	case bus.KindConfigDelta:
		return ev.Field + ": " + pushValue(ev.Value) + "\n"
	case bus.KindSnapshotDelta:
		if ev.Field == "__full__" {
			return formatFullSnapshot(ev.Value.(model.BatterySnapshot))
		}
		return ev.Field + ": " + pushValue(ev.Value) + "\n"
	default:
		return ""
	}
}

func formatFullSnapshot(s model.BatterySnapshot) string {
	return fmt.Sprintf(
		"battery: %d\nbattery_charging: %s\nbattery_power_plugged: %s\n",
		s.CapacityPercent, pushValue(s.Charging), pushValue(s.PowerPlugged),
	)
}

func pushValue(v interface{}) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "true"
		}
		return "false"
	case *model.ChargingRange:
		if t == nil {
			return ""
		}
		return fmt.Sprintf("%d,%d", t.RestartPercent, t.StopPercent)
	default:
		return fmt.Sprintf("%v", v)
	}
}
