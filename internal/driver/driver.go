package driver

import (
	"time"

	"github.com/pisugar/pisugar-server/internal/model"
)

// Device is the capability interface every model variant implements,
// per spec §9 ("polymorphism across models"). The policy engine, tap
// classifier and protocol dispatcher only ever see this interface.
type Device interface {
	Model() model.Model
	Capabilities() model.Capabilities

	ReadSnapshot() (model.BatterySnapshot, error)
	ReadRTC() (model.RtcSnapshot, error)
	WriteAlarm(timeOfDay time.Time, weekdayMask uint8) error
	DisableAlarm() error
	SyncTimeToRTC(now time.Time) error
	ReadTimeFromRTC() (time.Time, error)

	SetChargeEnable(enabled bool) error
	SetChargingRange(restartPercent, stopPercent int) error
	SetAntiMistouch(enabled bool) error
	SetSoftPoweroffEnable(enabled bool) error
	SetInputProtect(enabled bool) error

	FeedWatchdog() error
	ReadButtonEdge() (model.RawEdge, bool, error)
	AdjustPPM(ppm int) error

	Offline() bool
	Close() error
}
