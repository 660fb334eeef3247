package store

import (
	"fmt"
	"time"

	"github.com/pisugar/pisugar-server/internal/model"
)

// Every setter below runs inside the single-writer goroutine: it validates,
// mutates stateData, emits a bus delta, and marks the configuration dirty
// so the debounced persister picks it up (spec §3).

func (s *Store) setConfig(field string, value interface{}, mutate func(*model.Configuration)) {
	s.do(func(st *stateData) {
		mutate(&st.cfg)
		s.markDirty(st)
	})
	s.bus.PublishConfigDelta(field, value)
}

// UpdateBatterySnapshot replaces the current decoded battery state,
// called once per driver poll tick, and emits a delta per changed field.
func (s *Store) UpdateBatterySnapshot(snap model.BatterySnapshot) {
	var prev model.BatterySnapshot
	s.do(func(st *stateData) {
		prev = st.battery
		st.battery = snap
	})
	if prev.CapacityPercent != snap.CapacityPercent {
		s.bus.PublishSnapshotDelta("battery", snap.CapacityPercent)
	}
	if prev.Charging != snap.Charging {
		s.bus.PublishSnapshotDelta("battery_charging", snap.Charging)
	}
	if prev.PowerPlugged != snap.PowerPlugged {
		s.bus.PublishSnapshotDelta("battery_power_plugged", snap.PowerPlugged)
	}
}

// UpdateRTCSnapshot replaces the current decoded RTC state.
func (s *Store) UpdateRTCSnapshot(snap model.RtcSnapshot) {
	s.do(func(st *stateData) { st.rtc = snap })
}

// --- Tap configuration ---

func (s *Store) SetTapEnable(kind string, enabled bool) error {
	switch kind {
	case "single":
		s.setConfig("single_tap_enable", enabled, func(c *model.Configuration) { c.TapEnable.Single = enabled })
	case "double":
		s.setConfig("double_tap_enable", enabled, func(c *model.Configuration) { c.TapEnable.Double = enabled })
	case "long":
		s.setConfig("long_tap_enable", enabled, func(c *model.Configuration) { c.TapEnable.Long = enabled })
	default:
		return fmt.Errorf("unknown button kind %q", kind)
	}
	return nil
}

func (s *Store) SetTapShell(kind, shell string) error {
	switch kind {
	case "single":
		s.setConfig("single_tap_shell", shell, func(c *model.Configuration) { c.TapShell.Single = shell })
	case "double":
		s.setConfig("double_tap_shell", shell, func(c *model.Configuration) { c.TapShell.Double = shell })
	case "long":
		s.setConfig("long_tap_shell", shell, func(c *model.Configuration) { c.TapShell.Long = shell })
	default:
		return fmt.Errorf("unknown button kind %q", kind)
	}
	return nil
}

// --- Shutdown / charging policy configuration ---

func (s *Store) SetSafeShutdownLevel(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("level must be 0-100")
	}
	s.setConfig("safe_shutdown_level", pct, func(c *model.Configuration) { c.AutoShutdownLevel = pct })
	return nil
}

func (s *Store) SetSafeShutdownDelay(sec int) error {
	if sec < 0 {
		return fmt.Errorf("delay must be >= 0")
	}
	s.setConfig("safe_shutdown_delay", sec, func(c *model.Configuration) { c.AutoShutdownDelay = sec })
	return nil
}

// SetChargingRangeConfig persists the (restart,stop) pair; nil clears it.
func (s *Store) SetChargingRangeConfig(r *model.ChargingRange) error {
	if r != nil {
		if r.RestartPercent < 0 || r.RestartPercent > 100 || r.StopPercent < 0 || r.StopPercent > 100 {
			return fmt.Errorf("percentages must be 0-100")
		}
		if r.RestartPercent >= r.StopPercent {
			return fmt.Errorf("restart percent must be less than stop percent")
		}
	}
	s.setConfig("battery_charging_range", r, func(c *model.Configuration) { c.AutoChargingRange = r })
	return nil
}

func (s *Store) SetAutoPowerOn(enabled bool) {
	s.setConfig("auto_power_on", enabled, func(c *model.Configuration) { c.AutoPowerOn = enabled })
}

func (s *Store) SetAntiMistouchConfig(enabled bool) {
	s.setConfig("anti_mistouch", enabled, func(c *model.Configuration) { c.AntiMistouch = enabled })
}

func (s *Store) SetSoftPoweroffConfig(enabled bool) {
	s.setConfig("soft_poweroff", enabled, func(c *model.Configuration) { c.SoftPoweroff = enabled })
}

func (s *Store) SetSoftPoweroffShell(shell string) {
	s.setConfig("soft_poweroff_shell", shell, func(c *model.Configuration) { c.SoftPoweroffShell = shell })
}

func (s *Store) SetInputProtectConfig(enabled bool) {
	s.setConfig("input_protect", enabled, func(c *model.Configuration) { c.BatteryInputProtect = enabled })
}

func (s *Store) SetBatteryKeepInput(enabled bool) {
	s.setConfig("battery_keep_input", enabled, func(c *model.Configuration) { c.BatteryKeepInput = enabled })
}

func (s *Store) SetAuth(user, password string) {
	s.setConfig("auth_username", user, func(c *model.Configuration) {
		c.AuthUser = user
		c.AuthPassword = password
	})
}

func (s *Store) SetAutoWake(t time.Time, mask uint8) {
	s.do(func(st *stateData) {
		st.cfg.AutoWakeTime = t
		st.cfg.AutoWakeRepeat = mask
		s.markDirty(st)
	})
	s.bus.PublishConfigDelta("auto_wake_time", t)
	s.bus.PublishConfigDelta("alarm_repeat", mask)
}

// --- Derived policy flags (not persisted) ---

func (s *Store) SetLowBatterySince(t *time.Time) {
	s.do(func(st *stateData) { st.derived.LowBatterySince = t })
}

func (s *Store) LowBatterySince() *time.Time {
	var out *time.Time
	s.do(func(st *stateData) { out = st.derived.LowBatterySince })
	return out
}

func (s *Store) SetChargeRestartArmed(armed bool) {
	s.do(func(st *stateData) { st.derived.ChargeRestartArmed = armed })
}

func (s *Store) ChargeRestartArmed() bool {
	var out bool
	s.do(func(st *stateData) { out = st.derived.ChargeRestartArmed })
	return out
}

func (s *Store) SetFullChargeStartedAt(t *time.Time) {
	s.do(func(st *stateData) { st.derived.FullChargeStartedAt = t })
}

func (s *Store) FullChargeStartedAt() *time.Time {
	var out *time.Time
	s.do(func(st *stateData) { out = st.derived.FullChargeStartedAt })
	return out
}

func (s *Store) SetWatchdogLastFedAt(t time.Time) {
	s.do(func(st *stateData) { st.derived.WatchdogLastFedAt = t })
}
