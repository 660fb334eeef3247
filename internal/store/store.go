// Package store implements the single-writer State Store of spec §3: the
// one component that owns the configuration and latest device snapshots,
// mutated only through typed setters that validate, emit a bus delta, and
// schedule persistence when the field is persisted configuration.
package store

import (
	"context"
	"time"

	"github.com/pisugar/pisugar-server/internal/bus"
	"github.com/pisugar/pisugar-server/internal/config"
	"github.com/pisugar/pisugar-server/internal/model"
	"go.uber.org/zap"
)

// Store serializes all reads and writes onto a single goroutine, mirroring
// the I²C bus's ordered queue in internal/driver — the same "single-writer
// task plus request channels" primitive used throughout this service
// (spec §9).
type Store struct {
	jobs    chan func(*stateData)
	bus     *bus.Bus
	cfgPath string
	log     *zap.Logger

	persistReq chan struct{}
}

// New constructs a Store seeded from the loaded configuration and starts
// its run loop plus debounced persister. Call Close on shutdown to flush
// any dirty configuration.
func New(initial model.Configuration, cfgPath string, eventBus *bus.Bus, log *zap.Logger) *Store {
	s := &Store{
		jobs:       make(chan func(*stateData), 128),
		bus:        eventBus,
		cfgPath:    cfgPath,
		log:        log,
		persistReq: make(chan struct{}, 1),
	}
	state := &stateData{cfg: initial, authUsername: initial.AuthUser}
	go s.run(state)
	go s.persistLoop()
	return s
}

func (s *Store) run(state *stateData) {
	for job := range s.jobs {
		job(state)
	}
}

// do enqueues fn onto the Store's single-writer goroutine and blocks until
// it has run, giving read-your-writes consistency to the caller.
func (s *Store) do(fn func(*stateData)) {
	done := make(chan struct{})
	s.jobs <- func(st *stateData) {
		fn(st)
		close(done)
	}
	<-done
}

// Snapshot returns a read-only copy of the current battery snapshot. Reads
// never mutate the Store (spec §8 invariant 6).
func (s *Store) Snapshot() model.BatterySnapshot {
	var out model.BatterySnapshot
	s.do(func(st *stateData) { out = st.battery })
	return out
}

// RTC returns a read-only copy of the current RTC snapshot.
func (s *Store) RTC() model.RtcSnapshot {
	var out model.RtcSnapshot
	s.do(func(st *stateData) { out = st.rtc })
	return out
}

// Config returns a read-only copy of the current configuration.
func (s *Store) Config() model.Configuration {
	var out model.Configuration
	s.do(func(st *stateData) { out = st.cfg })
	return out
}

// markDirty flags the configuration for the debounced atomic persister.
// Must only be called from inside the run loop.
func (s *Store) markDirty(st *stateData) {
	st.dirty = true
	select {
	case s.persistReq <- struct{}{}:
	default:
	}
}

// persistLoop writes the configuration to disk shortly after it is marked
// dirty, coalescing bursts of setter calls into a single rewrite.
func (s *Store) persistLoop() {
	for range s.persistReq {
		time.Sleep(200 * time.Millisecond)
		var cfg model.Configuration
		var wasDirty bool
		s.do(func(st *stateData) { cfg = st.cfg; wasDirty = st.dirty })
		if !wasDirty {
			continue
		}
		if err := config.Persist(s.cfgPath, cfg); err != nil {
			s.log.Error("failed to persist configuration", zap.Error(err))
			continue
		}
		s.do(func(st *stateData) { st.dirty = false })
	}
}

// Close flushes any dirty configuration synchronously and stops the Store.
func (s *Store) Close(ctx context.Context) error {
	var cfg model.Configuration
	var wasDirty bool
	s.do(func(st *stateData) { cfg = st.cfg; wasDirty = st.dirty })
	close(s.jobs)
	close(s.persistReq)
	if wasDirty {
		return config.Persist(s.cfgPath, cfg)
	}
	return nil
}
