package driver

import (
	"fmt"
	"time"

	"github.com/pisugar/pisugar-server/internal/model"
	"go.uber.org/zap"
)

// pisugar3 register map, spec §4.1.
const (
	reg3Firmware   = 0x00
	reg3Mode       = 0x01
	reg3Control    = 0x02
	reg3Temp       = 0x04
	reg3VoltageHi  = 0x22
	reg3VoltageLo  = 0x23
	reg3Capacity   = 0x2A
	reg3WriteProt  = 0x0B

	ctlBitUSBPresent  = 1 << 7
	ctlBitChargeEnable = 1 << 6
	ctlBitWatchdogFeed = 1 << 0

	wpUnlockValue = 0x29
	wpLockValue   = 0x00
)

type pisugar3Dev struct {
	bus         *Bus
	smooth      *smoother
	log         *zap.Logger
	lastControl byte
	button      *buttonLine

	antiMistouch bool
	softPoweroff bool
	inputProtect bool
}

// NewPiSugar3 constructs the pisugar3 device variant. Unlike pisugar2, it
// needs no voltage ring or discharge curve: its gauge reports capacity
// directly at 0x2A (see ReadSnapshot). button may be nil, in which case
// ReadButtonEdge reports no edges.
func NewPiSugar3(bus *Bus, log *zap.Logger, button *buttonLine) Device {
	return &pisugar3Dev{
		bus:    bus,
		smooth: &smoother{},
		log:    log,
		button: button,
	}
}

func (d *pisugar3Dev) Model() model.Model                { return model.PiSugar3 }
func (d *pisugar3Dev) Capabilities() model.Capabilities  { return model.Caps(model.PiSugar3) }
func (d *pisugar3Dev) Offline() bool                     { return d.bus.Offline() }
func (d *pisugar3Dev) Close() error                      { return nil }

func (d *pisugar3Dev) ReadSnapshot() (model.BatterySnapshot, error) {
	fw, err := d.bus.ReadReg(reg3Firmware, 1)
	if err != nil {
		return model.BatterySnapshot{}, err
	}
	ctl, err := d.bus.ReadReg(reg3Control, 1)
	if err != nil {
		return model.BatterySnapshot{}, err
	}
	tempRaw, err := d.bus.ReadReg(reg3Temp, 1)
	if err != nil {
		return model.BatterySnapshot{}, err
	}
	vHi, err := d.bus.ReadReg(reg3VoltageHi, 1)
	if err != nil {
		return model.BatterySnapshot{}, err
	}
	vLo, err := d.bus.ReadReg(reg3VoltageLo, 1)
	if err != nil {
		return model.BatterySnapshot{}, err
	}
	capRaw, err := d.bus.ReadReg(reg3Capacity, 1)
	if err != nil {
		return model.BatterySnapshot{}, err
	}

	mv := int(vHi[0])<<8 | int(vLo[0])
	if mv < 0 || mv > 0xFFFF {
		return model.BatterySnapshot{}, newDecodeError("read_snapshot", fmt.Errorf("voltage out of range: %d", mv))
	}

	d.lastControl = ctl[0]

	// Unlike pisugar2, pisugar3 exposes its own gauge's capacity directly at
	// 0x2A; that reading, not a curve lookup over a voltage trail, is
	// authoritative here (spec §8 scenario S2).
	rawPct := clampPercent(int(capRaw[0]))

	snap := model.BatterySnapshot{
		VoltageMV:       mv,
		CapacityPercent: d.smooth.apply(rawPct),
		Charging:        ctl[0]&ctlBitChargeEnable != 0,
		PowerPlugged:    ctl[0]&ctlBitUSBPresent != 0,
		AllowCharging:   ctl[0]&ctlBitChargeEnable != 0,
		TemperatureC:    int(tempRaw[0]) - 40,
		HasTemperature:  true,
		LEDCount:        4,
		FirmwareVersion: fmt.Sprintf("%d", fw[0]),
		Offline:         d.bus.Offline(),
		Timestamp:       time.Now(),
	}
	return snap, nil
}

func (d *pisugar3Dev) ReadRTC() (model.RtcSnapshot, error) {
	snap, err := readRTC(d.bus)
	if err != nil {
		return snap, err
	}
	fw, err := d.bus.ReadReg(0x2D, 2)
	if err == nil && len(fw) == 2 {
		snap.PPMAdjust = int(int16(fw[0])<<8 | int16(fw[1]))
	}
	return snap, nil
}

func (d *pisugar3Dev) WriteAlarm(timeOfDay time.Time, weekdayMask uint8) error {
	return writeAlarm(d.bus, timeOfDay, weekdayMask)
}

func (d *pisugar3Dev) DisableAlarm() error { return disableAlarm(d.bus) }

func (d *pisugar3Dev) SyncTimeToRTC(now time.Time) error { return writeRTCTime(d.bus, now) }

func (d *pisugar3Dev) ReadTimeFromRTC() (time.Time, error) { return readRTCTime(d.bus) }

// writeControlBracketed sets or clears bit in the control byte. The current
// byte is read before the unlock, inside the same queued job, so the
// unlock/write/lock bracket holds nothing but the control write and no other
// task's transaction can land between the read and the write.
func (d *pisugar3Dev) writeControlBracketed(set bool, bit byte) error {
	return d.bus.do(func() error {
		ctl, err := d.bus.readRegLocked(reg3Control, 1)
		if err != nil {
			return err
		}
		next := ctl[0]
		if set {
			next |= bit
		} else {
			next &^= bit
		}
		if err := d.bus.writeRegLocked(reg3WriteProt, []byte{wpUnlockValue}); err != nil {
			return err
		}
		writeErr := d.bus.writeRegLocked(reg3Control, []byte{next})
		if err := d.bus.writeRegLocked(reg3WriteProt, []byte{wpLockValue}); err != nil && writeErr == nil {
			return err
		}
		return writeErr
	})
}

func (d *pisugar3Dev) SetChargeEnable(enabled bool) error {
	return d.writeControlBracketed(enabled, ctlBitChargeEnable)
}

func (d *pisugar3Dev) SetChargingRange(restartPercent, stopPercent int) error {
	return fmt.Errorf("set_charging_range: %w: not supported on pisugar3", errUnsupportedOp)
}

func (d *pisugar3Dev) SetAntiMistouch(enabled bool) error {
	d.antiMistouch = enabled
	return nil
}

func (d *pisugar3Dev) SetSoftPoweroffEnable(enabled bool) error {
	d.softPoweroff = enabled
	return nil
}

func (d *pisugar3Dev) SetInputProtect(enabled bool) error {
	d.inputProtect = enabled
	return nil
}

func (d *pisugar3Dev) FeedWatchdog() error {
	return d.bus.WithBracket(reg3WriteProt, func() error {
		ctl, err := d.bus.readRegLocked(reg3Control, 1)
		if err != nil {
			return err
		}
		return d.bus.writeRegLocked(reg3Control, []byte{ctl[0] | ctlBitWatchdogFeed})
	})
}

func (d *pisugar3Dev) ReadButtonEdge() (model.RawEdge, bool, error) {
	return d.button.Read()
}

func (d *pisugar3Dev) AdjustPPM(ppm int) error {
	if ppm < -500 || ppm > 500 {
		return fmt.Errorf("adjust_ppm: value %d out of range [-500,500]", ppm)
	}
	return d.bus.WithBracket(reg3WriteProt, func() error {
		return d.bus.writeRegLocked(0x2D, []byte{byte(int16(ppm) >> 8), byte(int16(ppm))})
	})
}
