package core

import (
	"context"
	"time"

	"github.com/pisugar/pisugar-server/internal/bus"
	"github.com/pisugar/pisugar-server/internal/model"
	"github.com/pisugar/pisugar-server/internal/tap"
	"go.uber.org/zap"
)

// buttonPollInterval samples the raw button edge at well above the 100Hz
// the tap classifier's state machine requires to resolve Long/Double
// boundaries cleanly.
const buttonPollInterval = 5 * time.Millisecond

// batteryPollInterval refreshes the battery/RTC snapshot the rest of the
// system reads from the Store.
const batteryPollInterval = 1 * time.Second

// Poller runs the two periodic tasks that pull state out of the Device and
// push it into the Store/Classifier: a fast button-edge sampler and a
// slower battery/RTC snapshot reader. Both are pure polling loops, not
// interrupt-driven, because the i2c HATs this talks to expose no edge
// notification of their own (spec §4.1/§4.2).
type Poller struct {
	core       *Core
	classifier *tap.Classifier
}

// NewPoller builds a Poller bound to core and classifier. classifier's
// emit callback is expected to route into core.Bus/core.Dispatcher; see
// NewClassifierEmit.
func NewPoller(c *Core, classifier *tap.Classifier) *Poller {
	return &Poller{core: c, classifier: classifier}
}

// NewClassifierEmit builds the emit callback passed to tap.New: it
// publishes the classified event on the bus and hands it to the shell
// dispatcher, mirroring what spec §4.2 requires of every classified tap.
func NewClassifierEmit(c *Core) func(model.ButtonEvent, time.Time) {
	return func(ev model.ButtonEvent, _ time.Time) {
		c.Bus.PublishTap(ev)
		if c.Dispatcher != nil {
			c.Dispatcher.Dispatch(ev)
		}
	}
}

// Run blocks until ctx is cancelled, driving both poll loops and the
// config-sync listener from their own goroutines.
func (p *Poller) Run(ctx context.Context) {
	done := make(chan struct{}, 3)
	go func() { p.runButtons(ctx); done <- struct{}{} }()
	go func() { p.runBattery(ctx); done <- struct{}{} }()
	go func() { p.runConfigSync(ctx); done <- struct{}{} }()
	<-done
	<-done
	<-done
}

// runConfigSync keeps the classifier's enable gates and the shell
// dispatcher's commands in step with live config changes, so a setter
// issued over any transport takes effect on the very next edge instead of
// only after a restart.
func (p *Poller) runConfigSync(ctx context.Context) {
	sub := p.core.Bus.Subscribe()
	defer p.core.Bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Kind != bus.KindConfigDelta {
				continue
			}
			p.applyConfigField(ev.Field)
		case _, ok := <-sub.Taps():
			if !ok {
				return
			}
		}
	}
}

func (p *Poller) applyConfigField(field string) {
	switch field {
	case "single_tap_enable", "double_tap_enable", "long_tap_enable":
		cfg := p.core.Store.Config()
		p.classifier.SetEnables(tap.Enables{
			Single: cfg.TapEnable.Single,
			Double: cfg.TapEnable.Double,
			Long:   cfg.TapEnable.Long,
		})
	case "single_tap_shell", "double_tap_shell", "long_tap_shell":
		cfg := p.core.Store.Config()
		if p.core.Dispatcher != nil {
			p.core.Dispatcher.Shells = tap.Enables2Shell{
				Single: cfg.TapShell.Single,
				Double: cfg.TapShell.Double,
				Long:   cfg.TapShell.Long,
			}
		}
	case "soft_poweroff":
		if p.core.Dispatcher != nil {
			p.core.Dispatcher.SoftPoweroff = p.core.Store.Config().SoftPoweroff
		}
	}
}

func (p *Poller) runButtons(ctx context.Context) {
	ticker := time.NewTicker(buttonPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			edge, changed, err := p.core.Driver.ReadButtonEdge()
			if err != nil {
				p.core.Log.Debug("button poll failed", zap.Error(err))
				continue
			}
			if changed {
				p.classifier.Feed(edge.Pressed, edge.Timestamp)
			}
			p.classifier.Tick(now)
		}
	}
}

func (p *Poller) runBattery(ctx context.Context) {
	ticker := time.NewTicker(batteryPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := p.core.Driver.ReadSnapshot()
			if err != nil {
				p.core.Log.Warn("battery poll failed", zap.Error(err))
				continue
			}
			p.core.Store.UpdateBatterySnapshot(snap)

			rtc, err := p.core.Driver.ReadRTC()
			if err != nil {
				p.core.Log.Debug("rtc poll failed", zap.Error(err))
				continue
			}
			p.core.Store.UpdateRTCSnapshot(rtc)
		}
	}
}
