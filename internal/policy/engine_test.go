package policy

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pisugar/pisugar-server/internal/bus"
	"github.com/pisugar/pisugar-server/internal/model"
	"github.com/pisugar/pisugar-server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeDevice struct {
	caps model.Capabilities

	chargeEnabled *bool
	chargingRange *model.ChargingRange
	watchdogFeeds int
	rtcTime       time.Time
	rtcErr        error
	syncedTimes   []time.Time
}

func (f *fakeDevice) Model() model.Model              { return model.PiSugar3 }
func (f *fakeDevice) Capabilities() model.Capabilities { return f.caps }
func (f *fakeDevice) ReadSnapshot() (model.BatterySnapshot, error) { return model.BatterySnapshot{}, nil }
func (f *fakeDevice) ReadRTC() (model.RtcSnapshot, error)          { return model.RtcSnapshot{}, nil }
func (f *fakeDevice) WriteAlarm(time.Time, uint8) error            { return nil }
func (f *fakeDevice) DisableAlarm() error                          { return nil }
func (f *fakeDevice) SyncTimeToRTC(now time.Time) error {
	f.syncedTimes = append(f.syncedTimes, now)
	return nil
}
func (f *fakeDevice) ReadTimeFromRTC() (time.Time, error) { return f.rtcTime, f.rtcErr }
func (f *fakeDevice) SetChargeEnable(enabled bool) error {
	f.chargeEnabled = &enabled
	return nil
}
func (f *fakeDevice) SetChargingRange(restart, stop int) error {
	f.chargingRange = &model.ChargingRange{RestartPercent: restart, StopPercent: stop}
	return nil
}
func (f *fakeDevice) SetAntiMistouch(bool) error       { return nil }
func (f *fakeDevice) SetSoftPoweroffEnable(bool) error { return nil }
func (f *fakeDevice) SetInputProtect(bool) error       { return nil }
func (f *fakeDevice) FeedWatchdog() error {
	f.watchdogFeeds++
	return nil
}
func (f *fakeDevice) ReadButtonEdge() (model.RawEdge, bool, error) { return model.RawEdge{}, false, nil }
func (f *fakeDevice) AdjustPPM(int) error                          { return nil }
func (f *fakeDevice) Offline() bool                                { return false }
func (f *fakeDevice) Close() error                                 { return nil }

func newTestStore(t *testing.T, cfg model.Configuration) *store.Store {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	eventBus := bus.New(func() model.BatterySnapshot { return model.BatterySnapshot{} })
	s := store.New(cfg, cfgPath, eventBus, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// TestScenarioS4AutoShutdownCountdownCancelledByPowerPlug covers spec §8
// invariant 5 / scenario S4: a low-battery countdown that is running is
// reset the instant power is plugged back in, and does not fire even once
// the original deadline has elapsed.
func TestScenarioS4AutoShutdownCountdownCancelledByPowerPlug(t *testing.T) {
	cfg := model.Default(model.PiSugar3)
	cfg.AutoShutdownLevel = 20
	cfg.AutoShutdownDelay = 10
	s := newTestStore(t, cfg)
	dev := &fakeDevice{caps: model.Caps(model.PiSugar3)}
	e := New(s, dev, zaptest.NewLogger(t))

	t0 := time.Now()
	s.UpdateBatterySnapshot(model.BatterySnapshot{CapacityPercent: 15, Charging: false, PowerPlugged: false})
	e.tick(t0)
	require.NotNil(t, s.LowBatterySince())

	s.UpdateBatterySnapshot(model.BatterySnapshot{CapacityPercent: 15, Charging: false, PowerPlugged: true})
	e.tick(t0.Add(11 * time.Second))
	assert.Nil(t, s.LowBatterySince())
}

func TestAutoShutdownFiresAfterDelayElapsed(t *testing.T) {
	cfg := model.Default(model.PiSugar3)
	cfg.AutoShutdownLevel = 20
	cfg.AutoShutdownDelay = 5
	cfg.SoftPoweroff = true
	cfg.SoftPoweroffShell = "true"
	s := newTestStore(t, cfg)
	dev := &fakeDevice{caps: model.Caps(model.PiSugar3)}
	e := New(s, dev, zaptest.NewLogger(t))

	t0 := time.Now()
	s.UpdateBatterySnapshot(model.BatterySnapshot{CapacityPercent: 10, Charging: false, PowerPlugged: false})
	e.tick(t0)
	require.NotNil(t, s.LowBatterySince())

	e.tick(t0.Add(6 * time.Second))
	assert.Nil(t, s.LowBatterySince(), "countdown should clear once the shutdown fires")
}

func TestChargingWindowHysteresis(t *testing.T) {
	cfg := model.Default(model.PiSugar3)
	cfg.AutoChargingRange = &model.ChargingRange{RestartPercent: 40, StopPercent: 90}
	s := newTestStore(t, cfg)
	dev := &fakeDevice{caps: model.Caps(model.PiSugar3)}
	e := New(s, dev, zaptest.NewLogger(t))

	now := time.Now()
	s.UpdateBatterySnapshot(model.BatterySnapshot{CapacityPercent: 95})
	e.tick(now)
	require.NotNil(t, dev.chargeEnabled)
	assert.False(t, *dev.chargeEnabled)

	dev.chargeEnabled = nil
	s.UpdateBatterySnapshot(model.BatterySnapshot{CapacityPercent: 35})
	e.tick(now.Add(time.Second))
	require.NotNil(t, dev.chargeEnabled)
	assert.True(t, *dev.chargeEnabled)

	dev.chargeEnabled = nil
	s.UpdateBatterySnapshot(model.BatterySnapshot{CapacityPercent: 60})
	e.tick(now.Add(2 * time.Second))
	assert.Nil(t, dev.chargeEnabled, "inside the hysteresis band neither edge should fire")
}

func TestWatchdogFedEveryTick(t *testing.T) {
	cfg := model.Default(model.PiSugar3)
	s := newTestStore(t, cfg)
	dev := &fakeDevice{caps: model.Caps(model.PiSugar3)}
	e := New(s, dev, zaptest.NewLogger(t))

	e.tick(time.Now())
	e.tick(time.Now().Add(time.Second))
	assert.Equal(t, 2, dev.watchdogFeeds)
}

func TestRTCAutoSyncOnlyWhenSkewExceedsThreshold(t *testing.T) {
	cfg := model.Default(model.PiSugar3)
	cfg.AutoRTCSync = true
	s := newTestStore(t, cfg)
	now := time.Now()
	dev := &fakeDevice{caps: model.Caps(model.PiSugar3), rtcTime: now.Add(-time.Second)}
	e := New(s, dev, zaptest.NewLogger(t))

	e.tick(now)
	assert.Empty(t, dev.syncedTimes, "1s of skew is within tolerance")

	dev.rtcTime = now.Add(-5 * time.Second)
	e.tick(now.Add(rtcSyncInterval + time.Second))
	assert.Len(t, dev.syncedTimes, 1, "16s of skew (RTC 5s behind now, checked 11s later) should trigger a sync")
}
