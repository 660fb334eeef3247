// Package protocol implements the text-line command dispatcher of spec
// §4.4: one line in, one line out, shared verbatim across the UDS, TCP,
// WebSocket and HTTP /exec transports.
package protocol

import (
	"strconv"
	"strings"
	"time"

	"github.com/pisugar/pisugar-server/internal/core"
	"github.com/pisugar/pisugar-server/internal/driver"
	"github.com/pisugar/pisugar-server/internal/model"
	"github.com/pisugar/pisugar-server/internal/store"
)

// Dispatcher parses and executes one command line at a time. It holds no
// per-connection state; the same Dispatcher is shared across every
// transport adapter and connection.
type Dispatcher struct {
	Core   *core.Core
	Store  *store.Store
	Driver driver.Device
}

// New constructs a Dispatcher over the shared Core/Store/Driver.
func New(c *core.Core, st *store.Store, dev driver.Device) *Dispatcher {
	return &Dispatcher{Core: c, Store: st, Driver: dev}
}

// Handle parses and executes a single command line, returning the
// complete response (including trailing newline), or "" for a blank line.
func (d *Dispatcher) Handle(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	if cmd == "get" {
		if len(args) == 0 {
			return unknown(cmd)
		}
		return d.handleGet(args[0], args[1:])
	}
	return d.handleAction(cmd, args)
}

func (d *Dispatcher) handleGet(key string, args []string) string {
	cfg := d.Store.Config()
	snap := d.Store.Snapshot()
	rtc := d.Store.RTC()
	caps := d.Driver.Capabilities()

	switch key {
	case "firmware_version":
		return reply(key, snap.FirmwareVersion)
	case "model":
		return reply(key, cfg.Model.String())
	case "battery":
		return reply(key, itoa(snap.CapacityPercent))
	case "battery_i":
		return reply(key, itoa(snap.CurrentMA))
	case "battery_v":
		return reply(key, itoa(snap.VoltageMV))
	case "battery_charging":
		return reply(key, formatBool(snap.Charging))
	case "battery_input_protect_enabled":
		return reply(key, formatBool(cfg.BatteryInputProtect))
	case "battery_keep_input":
		return reply(key, formatBool(cfg.BatteryKeepInput))
	case "battery_led_amount":
		return reply(key, itoa(caps.LEDCount))
	case "battery_power_plugged":
		return reply(key, formatBool(snap.PowerPlugged))
	case "battery_charging_range":
		return reply(key, formatChargingRange(cfg.AutoChargingRange))
	case "battery_allow_charging":
		return reply(key, formatBool(snap.AllowCharging))
	case "battery_output_enabled":
		return reply(key, formatBool(false))
	case "rtc_time":
		return reply(key, formatTime(rtc.RtcTime))
	case "system_time":
		return reply(key, formatTime(time.Now()))
	case "rtc_alarm_enabled":
		return reply(key, formatBool(rtc.AlarmEnabled))
	case "rtc_alarm_time":
		return reply(key, formatTime(rtc.AlarmTime))
	case "alarm_repeat":
		return reply(key, itoa(int(cfg.AutoWakeRepeat)))
	case "button_enable":
		return d.getButtonEnable(args, cfg)
	case "button_shell":
		return d.getButtonShell(args, cfg)
	case "safe_shutdown_level":
		return reply(key, itoa(cfg.AutoShutdownLevel))
	case "safe_shutdown_delay":
		return reply(key, itoa(cfg.AutoShutdownDelay))
	case "rtc_adjust_ppm":
		return reply(key, itoa(rtc.PPMAdjust))
	case "auth_username":
		return reply(key, cfg.AuthUser)
	case "anti_mistouch":
		return reply(key, formatBool(cfg.AntiMistouch))
	case "soft_poweroff":
		return reply(key, formatBool(cfg.SoftPoweroff))
	case "soft_poweroff_shell":
		return reply(key, cfg.SoftPoweroffShell)
	case "temperature":
		return reply(key, itoa(snap.TemperatureC))
	case "input_protect":
		return reply(key, formatBool(cfg.BatteryInputProtect))
	case "auto_power_on":
		return reply(key, formatBool(cfg.AutoPowerOn))
	default:
		return unknown("get " + key)
	}
}

func (d *Dispatcher) getButtonEnable(args []string, cfg model.Configuration) string {
	if len(args) != 1 {
		return unknown("get button_enable")
	}
	kind := args[0]
	key := "button_enable " + kind
	switch kind {
	case "single":
		return reply(key, formatBool(cfg.TapEnable.Single))
	case "double":
		return reply(key, formatBool(cfg.TapEnable.Double))
	case "long":
		return reply(key, formatBool(cfg.TapEnable.Long))
	default:
		return unknown("get " + key)
	}
}

func (d *Dispatcher) getButtonShell(args []string, cfg model.Configuration) string {
	if len(args) != 1 {
		return unknown("get button_shell")
	}
	kind := args[0]
	key := "button_shell " + kind
	switch kind {
	case "single":
		return reply(key, cfg.TapShell.Single)
	case "double":
		return reply(key, cfg.TapShell.Double)
	case "long":
		return reply(key, cfg.TapShell.Long)
	default:
		return unknown("get " + key)
	}
}

func (d *Dispatcher) handleAction(cmd string, args []string) string {
	switch cmd {
	case "rtc_pi2rtc":
		return d.noArgAction(cmd, args, d.Core.RTCPi2RTC)
	case "rtc_rtc2pi":
		return d.noArgAction(cmd, args, d.Core.RTCRtc2Pi)
	case "rtc_web":
		return d.noArgAction(cmd, args, d.Core.RTCWeb)
	case "rtc_alarm_set":
		return d.rtcAlarmSet(cmd, args)
	case "rtc_alarm_disable":
		return d.noArgAction(cmd, args, d.Core.RTCAlarmDisable)
	case "rtc_adjust_ppm":
		return d.rtcAdjustPPM(cmd, args)
	case "set_battery_keep_input":
		return d.boolAction(cmd, args, d.Core.SetBatteryKeepInput)
	case "set_button_enable":
		return d.setButtonEnable(cmd, args)
	case "set_button_shell":
		return d.setButtonShell(cmd, args)
	case "set_battery_input_protect":
		return d.boolAction(cmd, args, d.Core.SetBatteryInputProtect)
	case "set_safe_shutdown_level":
		return d.intAction(cmd, args, d.Store.SetSafeShutdownLevel)
	case "set_safe_shutdown_delay":
		return d.intAction(cmd, args, d.Store.SetSafeShutdownDelay)
	case "set_battery_charging_range":
		return d.setBatteryChargingRange(cmd, args)
	case "set_allow_charging":
		return d.boolAction(cmd, args, d.Core.SetAllowCharging)
	case "set_battery_output":
		return d.boolAction(cmd, args, d.Core.SetBatteryOutput)
	case "set_auth":
		return d.setAuth(cmd, args)
	case "set_anti_mistouch":
		return d.boolAction(cmd, args, d.Core.SetAntiMistouch)
	case "set_soft_poweroff":
		return d.boolAction(cmd, args, d.Core.SetSoftPoweroff)
	case "set_soft_poweroff_shell":
		return d.stringAction(cmd, args, func(s string) error { d.Core.SetSoftPoweroffShell(s); return nil })
	case "set_input_protect":
		return d.boolAction(cmd, args, d.Core.SetInputProtect)
	case "set_auto_power_on":
		return d.boolAction(cmd, args, func(b bool) error { d.Store.SetAutoPowerOn(b); return nil })
	default:
		return unknown(cmd)
	}
}

func (d *Dispatcher) noArgAction(cmd string, args []string, fn func() error) string {
	if len(args) != 0 {
		return unknown(cmd)
	}
	if err := fn(); err != nil {
		return replyErr(cmd, err)
	}
	return done(cmd)
}

func (d *Dispatcher) boolAction(cmd string, args []string, fn func(bool) error) string {
	if len(args) != 1 {
		return unknown(cmd)
	}
	b, err := parseBool(args[0])
	if err != nil {
		return replyErr(cmd, err)
	}
	if err := fn(b); err != nil {
		return replyErr(cmd, err)
	}
	return done(cmd)
}

func (d *Dispatcher) intAction(cmd string, args []string, fn func(int) error) string {
	if len(args) != 1 {
		return unknown(cmd)
	}
	n, err := parseInt(args[0])
	if err != nil {
		return replyErr(cmd, err)
	}
	if err := fn(n); err != nil {
		return replyErr(cmd, err)
	}
	return done(cmd)
}

func (d *Dispatcher) stringAction(cmd string, args []string, fn func(string) error) string {
	if len(args) < 1 {
		return unknown(cmd)
	}
	s := strings.Join(args, " ")
	if err := fn(s); err != nil {
		return replyErr(cmd, err)
	}
	return done(cmd)
}

func (d *Dispatcher) rtcAlarmSet(cmd string, args []string) string {
	if len(args) != 2 {
		return unknown(cmd)
	}
	t, err := time.Parse(time.RFC3339, args[0])
	if err != nil {
		return replyErr(cmd, err)
	}
	mask, err := parseInt(args[1])
	if err != nil {
		return replyErr(cmd, err)
	}
	if err := d.Core.RTCAlarmSet(t, uint8(mask)); err != nil {
		return replyErr(cmd, err)
	}
	return done(cmd)
}

func (d *Dispatcher) rtcAdjustPPM(cmd string, args []string) string {
	if len(args) != 1 {
		return unknown(cmd)
	}
	n, err := parseInt(args[0])
	if err != nil {
		return replyErr(cmd, err)
	}
	if err := d.Core.RTCAdjustPPM(n); err != nil {
		return replyErr(cmd, err)
	}
	return done(cmd)
}

func (d *Dispatcher) setButtonEnable(cmd string, args []string) string {
	if len(args) != 2 {
		return unknown(cmd)
	}
	enabled, err := parseBool(args[1])
	if err != nil {
		return replyErr(cmd, err)
	}
	if err := d.Store.SetTapEnable(args[0], enabled); err != nil {
		return replyErr(cmd, err)
	}
	return done(cmd)
}

func (d *Dispatcher) setButtonShell(cmd string, args []string) string {
	if len(args) < 2 {
		return unknown(cmd)
	}
	shell := strings.Join(args[1:], " ")
	if err := d.Store.SetTapShell(args[0], shell); err != nil {
		return replyErr(cmd, err)
	}
	return done(cmd)
}

func (d *Dispatcher) setBatteryChargingRange(cmd string, args []string) string {
	var raw string
	if len(args) == 1 {
		raw = args[0]
	} else if len(args) > 1 {
		return unknown(cmd)
	}
	r, err := parseChargingRange(raw)
	if err != nil {
		return replyErr(cmd, err)
	}
	if err := d.Core.SetBatteryChargingRange(r); err != nil {
		return replyErr(cmd, err)
	}
	return done(cmd)
}

func (d *Dispatcher) setAuth(cmd string, args []string) string {
	switch len(args) {
	case 0:
		d.Store.SetAuth("", "")
	case 2:
		d.Store.SetAuth(args[0], args[1])
	default:
		return unknown(cmd)
	}
	return done(cmd)
}

func itoa(n int) string { return strconv.Itoa(n) }
