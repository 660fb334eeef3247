package store

import (
	"context"
	"testing"

	"github.com/pisugar/pisugar-server/internal/bus"
	"github.com/pisugar/pisugar-server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	eb := bus.New(nil)
	cfgPath := t.TempDir() + "/config.json"
	s := New(model.Default(model.PiSugar3), cfgPath, eb, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// Invariant 6: get is idempotent and does not mutate the Store.
func TestGetDoesNotMutate(t *testing.T) {
	s := newTestStore(t)
	before := s.Config()
	_ = s.Config()
	_ = s.Snapshot()
	after := s.Config()
	assert.Equal(t, before, after)
}

// Invariant 7 (round-trip): setter then getter yields the same state.
func TestSafeShutdownLevelRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetSafeShutdownLevel(42))
	assert.Equal(t, 42, s.Config().AutoShutdownLevel)
}

func TestChargingRangeRoundTripAndClear(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetChargingRangeConfig(&model.ChargingRange{RestartPercent: 60, StopPercent: 90}))
	got := s.Config().AutoChargingRange
	require.NotNil(t, got)
	assert.Equal(t, 60, got.RestartPercent)
	assert.Equal(t, 90, got.StopPercent)

	require.NoError(t, s.SetChargingRangeConfig(nil))
	assert.Nil(t, s.Config().AutoChargingRange)
}

func TestSetSafeShutdownLevelRejectsOutOfRange(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.SetSafeShutdownLevel(101))
	assert.Error(t, s.SetSafeShutdownLevel(-1))
}

func TestChargingRangeRejectsRestartAboveStop(t *testing.T) {
	s := newTestStore(t)
	err := s.SetChargingRangeConfig(&model.ChargingRange{RestartPercent: 90, StopPercent: 60})
	assert.Error(t, err)
}

func TestPersistWritesConfigAtomically(t *testing.T) {
	eb := bus.New(nil)
	cfgPath := t.TempDir() + "/config.json"
	s := New(model.Default(model.PiSugar3), cfgPath, eb, zaptest.NewLogger(t))
	require.NoError(t, s.SetSafeShutdownLevel(17))
	require.NoError(t, s.Close(context.Background()))
}
