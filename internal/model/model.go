// Package model defines the data types shared across the driver, store,
// policy engine and protocol dispatcher: the board model table, the
// decoded battery/RTC snapshots, button events and the persisted
// configuration.
package model

import (
	"fmt"
	"time"
)

// Model is the tagged board variant.
type Model int

const (
	PiSugar2Std Model = iota
	PiSugar2Pro
	PiSugar3
)

func (m Model) String() string {
	switch m {
	case PiSugar2Std:
		return "PiSugar2Std"
	case PiSugar2Pro:
		return "PiSugar2Pro"
	case PiSugar3:
		return "PiSugar3"
	default:
		return "Unknown"
	}
}

// ParseModel accepts the --model flag / config "model" value.
func ParseModel(s string) (Model, error) {
	switch s {
	case "PiSugar2Std", "pisugar2", "pisugar2std":
		return PiSugar2Std, nil
	case "PiSugar2Pro", "pisugar2pro":
		return PiSugar2Pro, nil
	case "PiSugar3", "pisugar3":
		return PiSugar3, nil
	default:
		return 0, fmt.Errorf("unknown model %q", s)
	}
}

// Capabilities describes what a model's register set supports.
type Capabilities struct {
	HasUSBDetect      bool
	HasChargeEnable   bool
	HasRTC            bool
	HasChargingRange  bool
	HasSoftPoweroff   bool
	HasAntiMistouch   bool
	HasPPMAdjust      bool
	HasCurrentSense   bool
	HasTemperature    bool
	HasInputProtect   bool
	DefaultI2CAddr    uint16
	LEDCount          int
}

// CurveBreakpoint is one (mV, percent) point on a model's discharge curve.
// Breakpoints are ordered by descending voltage; percent is strictly
// decreasing as voltage decreases.
type CurveBreakpoint struct {
	MilliVolts int
	Percent    int
}

// Caps returns the capability table for a model; its discharge curve comes
// from DischargeCurve.
func Caps(m Model) Capabilities {
	switch m {
	case PiSugar3:
		return Capabilities{
			HasUSBDetect:     true,
			HasChargeEnable:  true,
			HasRTC:           true,
			HasChargingRange: false,
			HasSoftPoweroff:  true,
			HasAntiMistouch:  true,
			HasPPMAdjust:     true,
			HasCurrentSense:  false,
			HasTemperature:   true,
			HasInputProtect:  true,
			DefaultI2CAddr:   0x57,
			LEDCount:         4,
		}
	case PiSugar2Pro:
		return Capabilities{
			HasUSBDetect:     true,
			HasChargeEnable:  false,
			HasRTC:           true,
			HasChargingRange: true,
			HasSoftPoweroff:  false,
			HasAntiMistouch:  false,
			HasPPMAdjust:     false,
			HasCurrentSense:  true,
			HasTemperature:   false,
			HasInputProtect:  false,
			DefaultI2CAddr:   0x57,
			LEDCount:         4,
		}
	default: // PiSugar2Std
		return Capabilities{
			HasUSBDetect:     true,
			HasChargeEnable:  false,
			HasRTC:           true,
			HasChargingRange: true,
			HasSoftPoweroff:  false,
			HasAntiMistouch:  false,
			HasPPMAdjust:     false,
			HasCurrentSense:  true,
			HasTemperature:   false,
			HasInputProtect:  false,
			DefaultI2CAddr:   0x75,
			LEDCount:         2,
		}
	}
}

// DischargeCurve returns the strictly-decreasing piecewise-linear
// voltage-to-capacity breakpoints for a model, ordered high-to-low.
// Per spec §9 Open Questions, the strictly-decreasing slope is normative.
func DischargeCurve(m Model) []CurveBreakpoint {
	if m == PiSugar3 {
		return []CurveBreakpoint{
			{4200, 100}, {4100, 95}, {4050, 90}, {4000, 85}, {3920, 80},
			{3870, 75}, {3820, 70}, {3790, 65}, {3770, 60}, {3750, 55},
			{3730, 50}, {3710, 45}, {3690, 40}, {3670, 35}, {3650, 30},
			{3620, 25}, {3580, 20}, {3490, 15}, {3390, 10}, {3280, 5},
			{3000, 0},
		}
	}
	return []CurveBreakpoint{
		{4160, 100}, {4050, 95}, {4000, 90}, {3950, 85}, {3900, 80},
		{3850, 75}, {3800, 70}, {3750, 65}, {3700, 60}, {3650, 55},
		{3600, 50}, {3550, 45}, {3500, 40}, {3450, 35}, {3400, 30},
		{3350, 25}, {3300, 20}, {3250, 15}, {3200, 10}, {3100, 5},
		{3000, 0},
	}
}

// BatterySnapshot is the decoded, model-uniform state produced each tick.
type BatterySnapshot struct {
	VoltageMV       int
	CurrentMA       int // model-2 only, signed; 0 if unsupported
	CapacityPercent int // 0-100, clamped
	Charging        bool
	PowerPlugged    bool
	AllowCharging   bool
	TemperatureC    int  // pisugar3 only
	HasTemperature  bool
	LEDCount        int
	FirmwareVersion string
	Offline         bool
	Timestamp       time.Time
}

// RtcSnapshot is the decoded real-time-clock state.
type RtcSnapshot struct {
	RtcTime          time.Time // timezone-aware, second resolution
	AlarmTime        time.Time // time-of-day only; date fields ignored
	AlarmWeekdayMask uint8     // bit0=Sunday .. bit6=Saturday
	AlarmEnabled     bool
	PPMAdjust        int // pisugar3 only, -500..500
}

// ButtonEvent is a classified tap.
type ButtonEvent int

const (
	Single ButtonEvent = iota
	Double
	Long
)

func (b ButtonEvent) String() string {
	switch b {
	case Single:
		return "single"
	case Double:
		return "double"
	case Long:
		return "long"
	default:
		return "unknown"
	}
}

// RawEdge is a raw button sample from the driver's poll loop.
type RawEdge struct {
	Pressed   bool
	Timestamp time.Time
}

// ChargingRange is the (restart%, stop%) hysteresis pair. Nil means unset.
type ChargingRange struct {
	RestartPercent int
	StopPercent    int
}
