package protocol

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pisugar/pisugar-server/internal/bus"
	"github.com/pisugar/pisugar-server/internal/core"
	"github.com/pisugar/pisugar-server/internal/model"
	"github.com/pisugar/pisugar-server/internal/store"
	"github.com/pisugar/pisugar-server/internal/tap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeDevice struct {
	caps    model.Capabilities
	charged *bool
}

func (f *fakeDevice) Model() model.Model                          { return model.PiSugar3 }
func (f *fakeDevice) Capabilities() model.Capabilities             { return f.caps }
func (f *fakeDevice) ReadSnapshot() (model.BatterySnapshot, error) { return model.BatterySnapshot{}, nil }
func (f *fakeDevice) ReadRTC() (model.RtcSnapshot, error)          { return model.RtcSnapshot{}, nil }
func (f *fakeDevice) WriteAlarm(time.Time, uint8) error            { return nil }
func (f *fakeDevice) DisableAlarm() error                          { return nil }
func (f *fakeDevice) SyncTimeToRTC(time.Time) error                { return nil }
func (f *fakeDevice) ReadTimeFromRTC() (time.Time, error)          { return time.Now(), nil }
func (f *fakeDevice) SetChargeEnable(enabled bool) error {
	f.charged = &enabled
	return nil
}
func (f *fakeDevice) SetChargingRange(int, int) error              { return nil }
func (f *fakeDevice) SetAntiMistouch(bool) error                   { return nil }
func (f *fakeDevice) SetSoftPoweroffEnable(bool) error             { return nil }
func (f *fakeDevice) SetInputProtect(bool) error                   { return nil }
func (f *fakeDevice) FeedWatchdog() error                          { return nil }
func (f *fakeDevice) ReadButtonEdge() (model.RawEdge, bool, error) { return model.RawEdge{}, false, nil }
func (f *fakeDevice) AdjustPPM(int) error                          { return nil }
func (f *fakeDevice) Offline() bool                                { return false }
func (f *fakeDevice) Close() error                                 { return nil }

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Store, *fakeDevice) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	eventBus := bus.New(func() model.BatterySnapshot { return model.BatterySnapshot{} })
	cfg := model.Default(model.PiSugar3)
	s := store.New(cfg, cfgPath, eventBus, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	dev := &fakeDevice{caps: model.Caps(model.PiSugar3)}
	dispatcher := &tap.Dispatcher{}
	c := core.New(s, dev, eventBus, dispatcher, zaptest.NewLogger(t))
	return New(c, s, dev), s, dev
}

func TestGetUnknownKeyRespondsUnknown(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	assert.Equal(t, "get bogus: unknown command\n", d.Handle("get bogus"))
}

func TestUnknownCommandRespondsUnknown(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	assert.Equal(t, "frobnicate: unknown command\n", d.Handle("frobnicate"))
}

func TestGetModelReturnsConfiguredModel(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	assert.Equal(t, "model: PiSugar3\n", d.Handle("get model"))
}

func TestSetSafeShutdownLevelThenGetRoundTrips(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	assert.Equal(t, "set_safe_shutdown_level: done\n", d.Handle("set_safe_shutdown_level 15"))
	assert.Equal(t, "safe_shutdown_level: 15\n", d.Handle("get safe_shutdown_level"))
}

func TestSetSafeShutdownLevelRejectsNonInteger(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	resp := d.Handle("set_safe_shutdown_level nope")
	assert.Contains(t, resp, "set_safe_shutdown_level: ")
	assert.NotContains(t, resp, "done")
}

func TestSetBatteryChargingRangeRoundTrips(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	require.Equal(t, "set_battery_charging_range: done\n", d.Handle("set_battery_charging_range 40,90"))
	assert.Equal(t, "battery_charging_range: 40,90\n", d.Handle("get battery_charging_range"))

	require.Equal(t, "set_battery_charging_range: done\n", d.Handle("set_battery_charging_range"))
	assert.Equal(t, "battery_charging_range: \n", d.Handle("get battery_charging_range"))
}

func TestSetButtonEnableAndShellRoundTrip(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	require.Equal(t, "set_button_enable: done\n", d.Handle("set_button_enable double 1"))
	assert.Equal(t, "button_enable double: true\n", d.Handle("get button_enable double"))

	require.Equal(t, "set_button_shell: done\n", d.Handle("set_button_shell long sudo shutdown now"))
	assert.Equal(t, "button_shell long: sudo shutdown now\n", d.Handle("get button_shell long"))
}

func TestSetAllowChargingWritesThroughDriver(t *testing.T) {
	d, _, dev := newTestDispatcher(t)
	require.Equal(t, "set_allow_charging: done\n", d.Handle("set_allow_charging true"))
	require.NotNil(t, dev.charged)
	assert.True(t, *dev.charged)
}

func TestSetBatteryOutputAlwaysErrors(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	resp := d.Handle("set_battery_output true")
	assert.NotContains(t, resp, "done")
}

func TestBlankLineProducesNoResponse(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	assert.Equal(t, "", d.Handle("   "))
}
