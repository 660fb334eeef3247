package driver

import (
	"fmt"
	"time"

	"github.com/pisugar/pisugar-server/internal/model"
	"go.uber.org/zap"
)

// pisugar2 register map, spec §4.1. The two sub-variants (IP5209/IP5312)
// differ in where voltage and charger status live.
const (
	reg2VoltageIP5209Hi = 0xA2
	reg2VoltageIP5209Lo = 0xA3
	reg2VoltageIP5312Hi = 0xD0
	reg2VoltageIP5312Lo = 0xD1

	reg2ChargerIP5209 = 0x55
	reg2ChargerIP5312 = 0x58
	chargerBitCharging = 1 << 4

	reg2RestartBank = 0x23 // model-2 charging-range register bank
	reg2StopBank    = 0x24
)

type pisugar2Dev struct {
	bus     *Bus
	model   model.Model
	variant pisugar2Variant
	ring    *voltageRing
	smooth  *smoother
	curve   []model.CurveBreakpoint
	log     *zap.Logger
	button  *buttonLine
}

// NewPiSugar2 constructs a pisugar2 variant (Std or Pro), pinned to the
// IC sub-variant detected at Probe time. button may be nil, in which case
// ReadButtonEdge reports no edges.
func NewPiSugar2(bus *Bus, m model.Model, variant pisugar2Variant, log *zap.Logger, button *buttonLine) Device {
	return &pisugar2Dev{
		bus:     bus,
		model:   m,
		variant: variant,
		ring:    newVoltageRing(),
		smooth:  &smoother{},
		curve:   model.DischargeCurve(m),
		log:     log,
		button:  button,
	}
}

func (d *pisugar2Dev) Model() model.Model               { return d.model }
func (d *pisugar2Dev) Capabilities() model.Capabilities { return model.Caps(d.model) }
func (d *pisugar2Dev) Offline() bool                    { return d.bus.Offline() }
func (d *pisugar2Dev) Close() error                     { return nil }

func (d *pisugar2Dev) voltageRegs() (hi, lo byte) {
	if d.variant == ip5312 {
		return reg2VoltageIP5312Hi, reg2VoltageIP5312Lo
	}
	return reg2VoltageIP5209Hi, reg2VoltageIP5209Lo
}

func (d *pisugar2Dev) chargerReg() byte {
	if d.variant == ip5312 {
		return reg2ChargerIP5312
	}
	return reg2ChargerIP5209
}

func (d *pisugar2Dev) decodeVoltage(raw byte, signExtend bool) int {
	v := int(raw)
	if signExtend && raw&0x80 != 0 {
		v = v - 256
	}
	return 2600 + v*27/100
}

func (d *pisugar2Dev) ReadSnapshot() (model.BatterySnapshot, error) {
	hiReg, loReg := d.voltageRegs()
	hi, err := d.bus.ReadReg(hiReg, 1)
	if err != nil {
		return model.BatterySnapshot{}, err
	}
	lo, err := d.bus.ReadReg(loReg, 1)
	if err != nil {
		return model.BatterySnapshot{}, err
	}
	chg, err := d.bus.ReadReg(d.chargerReg(), 1)
	if err != nil {
		return model.BatterySnapshot{}, err
	}

	// IP5209 sign-extends the high byte; IP5312's pair is unsigned.
	signExtend := d.variant == ip5209
	mv := d.decodeVoltage(hi[0], signExtend) + (int(lo[0]) * 27 / 100 / 256)
	if mv < 2000 || mv > 5000 {
		return model.BatterySnapshot{}, newDecodeError("read_snapshot", fmt.Errorf("voltage out of range: %d", mv))
	}

	d.ring.push(mv)
	rawPct := capacityFromCurve(d.curve, d.ring.mean())
	charging := chg[0]&chargerBitCharging != 0

	return model.BatterySnapshot{
		VoltageMV:       mv,
		CapacityPercent: d.smooth.apply(rawPct),
		Charging:        charging,
		PowerPlugged:    charging,
		AllowCharging:   true,
		LEDCount:        model.Caps(d.model).LEDCount,
		FirmwareVersion: "unknown",
		Offline:         d.bus.Offline(),
		Timestamp:       time.Now(),
	}, nil
}

func (d *pisugar2Dev) ReadRTC() (model.RtcSnapshot, error) { return readRTC(d.bus) }

func (d *pisugar2Dev) WriteAlarm(timeOfDay time.Time, weekdayMask uint8) error {
	return writeAlarm(d.bus, timeOfDay, weekdayMask)
}

func (d *pisugar2Dev) DisableAlarm() error { return disableAlarm(d.bus) }

func (d *pisugar2Dev) SyncTimeToRTC(now time.Time) error { return writeRTCTime(d.bus, now) }

func (d *pisugar2Dev) ReadTimeFromRTC() (time.Time, error) { return readRTCTime(d.bus) }

func (d *pisugar2Dev) SetChargeEnable(enabled bool) error {
	return fmt.Errorf("set_allow_charging: %w: pisugar2 charging is hardware-managed", errUnsupportedOp)
}

func (d *pisugar2Dev) SetChargingRange(restartPercent, stopPercent int) error {
	if restartPercent < 0 || restartPercent > 100 || stopPercent < 0 || stopPercent > 100 {
		return fmt.Errorf("set_battery_charging_range: percentages must be 0-100")
	}
	if err := d.bus.WriteReg(reg2RestartBank, []byte{byte(restartPercent)}); err != nil {
		return err
	}
	return d.bus.WriteReg(reg2StopBank, []byte{byte(stopPercent)})
}

func (d *pisugar2Dev) SetAntiMistouch(enabled bool) error {
	return fmt.Errorf("set_anti_mistouch: %w", errUnsupportedOp)
}

func (d *pisugar2Dev) SetSoftPoweroffEnable(enabled bool) error {
	return fmt.Errorf("set_soft_poweroff: %w", errUnsupportedOp)
}

func (d *pisugar2Dev) SetInputProtect(enabled bool) error {
	return fmt.Errorf("set_input_protect: %w", errUnsupportedOp)
}

func (d *pisugar2Dev) FeedWatchdog() error {
	// pisugar2 exposes no documented watchdog-feed register; accepted as a
	// no-op so the policy engine's tick doesn't need a capability branch.
	return nil
}

func (d *pisugar2Dev) ReadButtonEdge() (model.RawEdge, bool, error) {
	return d.button.Read()
}

func (d *pisugar2Dev) AdjustPPM(ppm int) error {
	return fmt.Errorf("rtc_adjust_ppm: %w", errUnsupportedOp)
}
