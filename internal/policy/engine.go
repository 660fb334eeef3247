// Package policy implements the fixed-rate tick of spec §4.3: auto-
// shutdown, the charging hysteresis window, power-restore wake, RTC
// auto-sync and watchdog feeding, all driven off the State Store and the
// Device Driver.
package policy

import (
	"context"
	"os/exec"
	"time"

	"github.com/pisugar/pisugar-server/internal/driver"
	"github.com/pisugar/pisugar-server/internal/model"
	"github.com/pisugar/pisugar-server/internal/store"
	"go.uber.org/zap"
)

const (
	tickInterval    = 1 * time.Second
	rtcSyncInterval = 10 * time.Second
	rtcSyncSkew     = 2 * time.Second
)

// Engine runs the policy tick. It is not re-entrant: a tick that overruns
// its period is allowed to, and the next tick starts immediately on
// completion with no backlog (spec §5).
type Engine struct {
	store  *store.Store
	driver driver.Device
	log    *zap.Logger

	lastPowerPlugged bool
	sawFirstSnapshot bool
	lastRTCSyncCheck time.Time
}

// New constructs a policy Engine over the given Store and Driver.
func New(st *store.Store, dev driver.Device, log *zap.Logger) *Engine {
	return &Engine{store: st, driver: dev, log: log}
}

// Run ticks at a fixed rate until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.tick(now)
		}
	}
}

func (e *Engine) tick(now time.Time) {
	snap := e.store.Snapshot()
	cfg := e.store.Config()

	e.applyPowerRestoreWake(cfg, snap)
	e.applyAutoShutdown(now, cfg, snap)
	e.applyChargingWindow(now, cfg, snap)
	e.applyWatchdog(now)
	e.applyRTCSync(now, cfg)

	e.lastPowerPlugged = snap.PowerPlugged
	e.sawFirstSnapshot = true
}

// applyAutoShutdown implements spec §4.3 and §8 invariant 5 / scenario S4:
// shutdown fires iff capacity < level AND not charging has held
// continuously for >= delay seconds; plugging in cancels the countdown.
func (e *Engine) applyAutoShutdown(now time.Time, cfg model.Configuration, snap model.BatterySnapshot) {
	if cfg.AutoShutdownLevel <= 0 {
		return
	}
	lowCondition := snap.CapacityPercent < cfg.AutoShutdownLevel && !snap.Charging

	if snap.PowerPlugged {
		e.store.SetLowBatterySince(nil)
		return
	}

	since := e.store.LowBatterySince()
	if !lowCondition {
		if since != nil {
			e.store.SetLowBatterySince(nil)
		}
		return
	}

	if since == nil {
		t := now
		e.store.SetLowBatterySince(&t)
		return
	}

	if now.Sub(*since) >= time.Duration(cfg.AutoShutdownDelay)*time.Second {
		e.log.Warn("auto-shutdown threshold reached", zap.Int("capacity", snap.CapacityPercent), zap.Int("level", cfg.AutoShutdownLevel))
		invokeShutdown(cfg, e.log)
		e.store.SetLowBatterySince(nil)
	}
}

// applyChargingWindow implements the hysteresis in spec §4.3: crossing
// above stop disables charging, dropping below restart re-enables it, and
// full_charge_duration extends the "on" state past first observed 100%.
func (e *Engine) applyChargingWindow(now time.Time, cfg model.Configuration, snap model.BatterySnapshot) {
	r := cfg.AutoChargingRange
	caps := e.driver.Capabilities()
	if r == nil || (!caps.HasChargeEnable && !caps.HasChargingRange) {
		return
	}

	if snap.CapacityPercent >= 100 {
		started := e.store.FullChargeStartedAt()
		if started == nil {
			t := now
			e.store.SetFullChargeStartedAt(&t)
		} else if now.Sub(*started) >= time.Duration(cfg.FullChargeDuration)*time.Second {
			e.setChargeEnable(false)
		}
		return
	}
	e.store.SetFullChargeStartedAt(nil)

	if snap.CapacityPercent >= r.StopPercent {
		e.setChargeEnable(false)
	} else if snap.CapacityPercent < r.RestartPercent {
		e.setChargeEnable(true)
	}
}

// setChargeEnable flips the charge-enable bit on models that have one.
// Models with HasChargingRange instead charge/stop autonomously off the
// restart/stop register bank written by SetChargingRange, with no
// separate enable bit to toggle here.
func (e *Engine) setChargeEnable(enabled bool) {
	if !e.driver.Capabilities().HasChargeEnable {
		return
	}
	if err := e.driver.SetChargeEnable(enabled); err != nil {
		e.log.Warn("charging window: set_charge_enable failed", zap.Error(err))
	}
}

// applyPowerRestoreWake implements spec §4.3: on power_plugged false->true,
// when auto_power_on is set, request a cold-start. On pisugar3 this is the
// hardware's own behaviour and nothing further needs to be written; the
// flag only documents intent (spec §9 open question).
func (e *Engine) applyPowerRestoreWake(cfg model.Configuration, snap model.BatterySnapshot) {
	if !cfg.AutoPowerOn {
		return
	}
	if e.sawFirstSnapshot && !e.lastPowerPlugged && snap.PowerPlugged {
		e.log.Info("power restored with auto_power_on set; cold-start is hardware-driven on this model")
	}
}

func (e *Engine) applyWatchdog(now time.Time) {
	if err := e.driver.FeedWatchdog(); err != nil {
		e.log.Warn("watchdog feed failed", zap.Error(err))
		return
	}
	e.store.SetWatchdogLastFedAt(now)
}

func (e *Engine) applyRTCSync(now time.Time, cfg model.Configuration) {
	if !cfg.AutoRTCSync {
		return
	}
	if now.Sub(e.lastRTCSyncCheck) < rtcSyncInterval {
		return
	}
	e.lastRTCSyncCheck = now

	rtcNow, err := e.driver.ReadTimeFromRTC()
	if err != nil {
		e.log.Warn("rtc auto-sync: read failed", zap.Error(err))
		return
	}
	delta := now.Sub(rtcNow)
	if delta < 0 {
		delta = -delta
	}
	if delta > rtcSyncSkew {
		if err := e.driver.SyncTimeToRTC(now); err != nil {
			e.log.Warn("rtc auto-sync: write failed", zap.Error(err))
		}
	}
}

// invokeShutdown runs the configured soft-poweroff shell, or the default
// hard shutdown command when soft poweroff isn't enabled (spec §4.3).
func invokeShutdown(cfg model.Configuration, log *zap.Logger) {
	shell := "sudo shutdown now"
	if cfg.SoftPoweroff && cfg.SoftPoweroffShell != "" {
		shell = cfg.SoftPoweroffShell
	}
	cmd := exec.Command("sh", "-c", shell)
	if err := cmd.Start(); err != nil {
		log.Error("shutdown shell spawn failed", zap.String("shell", shell), zap.Error(err))
		return
	}
	go func() { _ = cmd.Wait() }()
}
