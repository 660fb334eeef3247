//go:build linux

package core

import (
	"time"

	"golang.org/x/sys/unix"
)

// setSystemTime pushes t to the host clock via settimeofday(2). Requires
// CAP_SYS_TIME; the server is expected to run with the privilege the
// packaging scripts grant it (out of scope here, spec §1).
func setSystemTime(t time.Time) error {
	tv := unix.Timeval{Sec: t.Unix(), Usec: int64(t.Nanosecond() / 1000)}
	return unix.Settimeofday(&tv)
}
