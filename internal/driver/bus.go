package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"go.uber.org/zap"
)

const (
	maxAttempts  = 3
	retryBackoff = 50 * time.Millisecond
)

// Bus serializes every I²C transaction from every task onto a single FIFO
// queue, so writes that require the pisugar3 unlock/lock bracket are atomic
// with respect to concurrent readers (spec §5, §4.1).
type Bus struct {
	conn conn.Conn
	addr uint16

	jobs chan func()
	log  *zap.Logger

	mu             sync.Mutex
	consecutiveErr int
	offline        bool
}

// NewBus wraps a periph i2c.Bus opened at the given address and starts its
// serialization worker. Close stops the worker.
func NewBus(bus i2c.Bus, addr uint16, log *zap.Logger) *Bus {
	b := &Bus{
		conn: &i2c.Dev{Bus: bus, Addr: addr},
		addr: addr,
		jobs: make(chan func(), 64),
		log:  log,
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	for job := range b.jobs {
		job()
	}
}

// Close drains the queue and stops the worker.
func (b *Bus) Close(ctx context.Context) error {
	done := make(chan struct{})
	b.jobs <- func() { close(done) }
	close(b.jobs)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isTransient reports whether err is a recoverable bus condition worth
// retrying (EIO, ENXIO, arbitration-lost, timeout all surface through
// periph as opaque errors on Linux, so we retry any non-nil, non-context
// error up to the attempt budget).
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// txLocked performs one transaction with the bounded retry policy, and is
// always invoked from inside the serialization queue.
func (b *Bus) txLocked(op string, w, r []byte) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := b.conn.Tx(w, r); err != nil {
			lastErr = err
			if isTransient(err) && attempt < maxAttempts {
				time.Sleep(retryBackoff)
				continue
			}
			b.noteFailure()
			return newBusError(op, err)
		}
		b.noteSuccess()
		return nil
	}
	return newBusError(op, lastErr)
}

func (b *Bus) noteFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveErr++
	if b.consecutiveErr >= 3 {
		if !b.offline {
			b.log.Warn("device demoted to offline after consecutive bus failures", zap.Int("failures", b.consecutiveErr))
		}
		b.offline = true
	}
}

func (b *Bus) noteSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveErr = 0
	b.offline = false
}

// Offline reports whether the device has been demoted per spec §4.1.
func (b *Bus) Offline() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offline
}

// do enqueues fn onto the single ordered worker and blocks for its result.
func (b *Bus) do(fn func() error) error {
	result := make(chan error, 1)
	b.jobs <- func() { result <- fn() }
	return <-result
}

// ReadReg reads n bytes starting at register reg.
func (b *Bus) ReadReg(reg byte, n int) ([]byte, error) {
	var out []byte
	err := b.do(func() error {
		buf := make([]byte, n)
		if err := b.txLocked("read_reg", []byte{reg}, buf); err != nil {
			return err
		}
		out = buf
		return nil
	})
	return out, err
}

// WriteReg writes data starting at register reg.
func (b *Bus) WriteReg(reg byte, data []byte) error {
	return b.do(func() error {
		w := make([]byte, 0, len(data)+1)
		w = append(w, reg)
		w = append(w, data...)
		return b.txLocked("write_reg", w, nil)
	})
}

// readRegLocked and writeRegLocked perform one transaction directly via
// txLocked, with no b.do() enqueue of their own. They must only be called
// from inside a job already running on the worker goroutine (do's fn, or
// WithBracket's fn) — calling them from any other goroutine races the bus.
func (b *Bus) readRegLocked(reg byte, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := b.txLocked("read_reg", []byte{reg}, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (b *Bus) writeRegLocked(reg byte, data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, reg)
	w = append(w, data...)
	return b.txLocked("write_reg", w, nil)
}

// WithBracket runs fn with the pisugar3 write-protect register unlocked
// before and re-locked after, as a single atomic step on the queue: no
// other task's transaction can interleave (spec §4.1, §8 invariant 4).
//
// fn already runs on the worker goroutine that is the sole consumer of
// b.jobs, so it must talk to the bus via readRegLocked/writeRegLocked
// (or txLocked directly), never via ReadReg/WriteReg/RawTx — those enqueue
// onto b.jobs themselves and would block forever waiting for the very
// goroutine that's blocked waiting for them.
func (b *Bus) WithBracket(wpReg byte, fn func() error) error {
	return b.do(func() error {
		if err := b.txLocked("wp_unlock", []byte{wpReg, 0x29}, nil); err != nil {
			return err
		}
		innerErr := fn()
		if err := b.txLocked("wp_lock", []byte{wpReg, 0x00}, nil); err != nil {
			if innerErr != nil {
				return fmt.Errorf("%v (also failed to re-lock: %w)", innerErr, err)
			}
			return err
		}
		return innerErr
	})
}

// RawTx exposes an arbitrary write/read pair to model-specific code while
// staying inside the serialized queue (e.g. multi-register reads that must
// not be interleaved with a write).
func (b *Bus) RawTx(op string, w, r []byte) error {
	return b.do(func() error { return b.txLocked(op, w, r) })
}
