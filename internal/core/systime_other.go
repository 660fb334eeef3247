//go:build !linux

package core

import (
	"fmt"
	"runtime"
	"time"
)

func setSystemTime(t time.Time) error {
	return fmt.Errorf("rtc_rtc2pi: setting the system clock is not supported on %s", runtime.GOOS)
}
