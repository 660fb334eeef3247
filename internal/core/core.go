// Package core wires the Device Driver, State Store and Event Bus behind
// the operations named in spec §6: getters that read the Store, and
// setters that validate, write through to hardware where the command
// requires it, then persist via the Store. The protocol dispatcher and the
// maintenance scheduler are thin callers of this facade; the policy engine
// works on the Store and the Device directly.
package core

import (
	"fmt"
	"time"

	"github.com/pisugar/pisugar-server/internal/bus"
	"github.com/pisugar/pisugar-server/internal/driver"
	"github.com/pisugar/pisugar-server/internal/model"
	"github.com/pisugar/pisugar-server/internal/store"
	"github.com/pisugar/pisugar-server/internal/tap"
	"go.uber.org/zap"
)

// Core composes the components every transport-facing command touches.
type Core struct {
	Store      *store.Store
	Driver     driver.Device
	Bus        *bus.Bus
	Dispatcher *tap.Dispatcher
	Log        *zap.Logger
}

// New constructs a Core from already-initialized components.
func New(st *store.Store, dev driver.Device, eventBus *bus.Bus, dispatcher *tap.Dispatcher, log *zap.Logger) *Core {
	return &Core{Store: st, Driver: dev, Bus: eventBus, Dispatcher: dispatcher, Log: log}
}

// --- RTC actions ---

func (c *Core) RTCPi2RTC() error {
	return c.Driver.SyncTimeToRTC(time.Now())
}

func (c *Core) RTCRtc2Pi() error {
	t, err := c.Driver.ReadTimeFromRTC()
	if err != nil {
		return err
	}
	return setSystemTime(t)
}

// RTCWeb syncs using the host's current wall-clock time, treating the
// local system clock as already NTP-disciplined rather than reaching out
// to a separate network time source.
func (c *Core) RTCWeb() error {
	now := time.Now()
	if err := setSystemTime(now); err != nil {
		return err
	}
	return c.Driver.SyncTimeToRTC(now)
}

func (c *Core) RTCAlarmSet(t time.Time, weekdayMask uint8) error {
	if err := c.Driver.WriteAlarm(t, weekdayMask); err != nil {
		return err
	}
	c.Store.SetAutoWake(t, weekdayMask)
	return nil
}

func (c *Core) RTCAlarmDisable() error {
	return c.Driver.DisableAlarm()
}

func (c *Core) RTCAdjustPPM(ppm int) error {
	if !c.Driver.Capabilities().HasPPMAdjust {
		return fmt.Errorf("rtc_adjust_ppm: not supported on this model")
	}
	return c.Driver.AdjustPPM(ppm)
}

// --- Battery / charging actions ---

func (c *Core) SetAllowCharging(enabled bool) error {
	if !c.Driver.Capabilities().HasChargeEnable {
		return fmt.Errorf("set_allow_charging: not supported on this model")
	}
	return c.Driver.SetChargeEnable(enabled)
}

func (c *Core) SetBatteryChargingRange(r *model.ChargingRange) error {
	if r != nil {
		if !c.Driver.Capabilities().HasChargingRange {
			return fmt.Errorf("set_battery_charging_range: not supported on this model")
		}
		if err := c.Driver.SetChargingRange(r.RestartPercent, r.StopPercent); err != nil {
			return err
		}
	}
	return c.Store.SetChargingRangeConfig(r)
}

func (c *Core) SetBatteryInputProtect(enabled bool) error {
	if c.Driver.Capabilities().HasInputProtect {
		if err := c.Driver.SetInputProtect(enabled); err != nil {
			return err
		}
	}
	c.Store.SetInputProtectConfig(enabled)
	return nil
}

func (c *Core) SetBatteryKeepInput(enabled bool) error {
	// Advisory only: the setter is accepted and the last-set value is
	// reported back, but pisugar3 hardware has no observable effect
	// (spec §9 open question).
	c.Store.SetBatteryKeepInput(enabled)
	return nil
}

func (c *Core) SetBatteryOutput(enabled bool) error {
	return fmt.Errorf("set_battery_output: output gating is not exposed by any supported model")
}

func (c *Core) SetAntiMistouch(enabled bool) error {
	if !c.Driver.Capabilities().HasAntiMistouch {
		return fmt.Errorf("set_anti_mistouch: not supported on this model")
	}
	if err := c.Driver.SetAntiMistouch(enabled); err != nil {
		return err
	}
	c.Store.SetAntiMistouchConfig(enabled)
	return nil
}

func (c *Core) SetSoftPoweroff(enabled bool) error {
	if c.Driver.Capabilities().HasSoftPoweroff {
		if err := c.Driver.SetSoftPoweroffEnable(enabled); err != nil {
			return err
		}
	}
	c.Store.SetSoftPoweroffConfig(enabled)
	if c.Dispatcher != nil {
		c.Dispatcher.SoftPoweroff = enabled
	}
	return nil
}

func (c *Core) SetSoftPoweroffShell(shell string) {
	c.Store.SetSoftPoweroffShell(shell)
}

func (c *Core) SetInputProtect(enabled bool) error {
	return c.SetBatteryInputProtect(enabled)
}
