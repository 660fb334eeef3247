package store

import (
	"time"

	"github.com/pisugar/pisugar-server/internal/model"
)

// derived holds policy-computed flags that live alongside the raw snapshot
// and configuration, per spec §3 ("State Store").
type derived struct {
	LowBatterySince     *time.Time
	ChargeRestartArmed  bool
	FullChargeStartedAt *time.Time
	WatchdogLastFedAt   time.Time
}

// stateData is the single mutable record the Store task owns exclusively.
// Every field is only ever touched from inside the Store's run loop.
type stateData struct {
	battery model.BatterySnapshot
	rtc     model.RtcSnapshot
	cfg     model.Configuration
	derived derived

	authUsername string // auth user copied at construction; SetAuth does not update it and get auth_username reads cfg.AuthUser
	dirty        bool
}
