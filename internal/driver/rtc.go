package driver

import (
	"time"

	"github.com/pisugar/pisugar-server/internal/model"
)

// The RTC block is the same physical clock chip across every model variant
// (only the gauge/charger front-end differs), so both drivers share these
// register offsets and BCD helpers. Time registers hold seconds, minutes,
// hours, day, weekday, month, year (2000-based), read/written atomically
// in a single transaction so the snapshot is always coherent.
const (
	rtcRegTime     = 0x10 // 7 bytes: sec,min,hour,day,weekday,month,year
	rtcRegAlarmMin = 0x17
	rtcRegAlarmHr  = 0x18
	rtcRegAlarmMsk = 0x19
	rtcRegAlarmCtl = 0x1A

	alarmCtlEnableBit = 1 << 0
)

func parseBCD(v byte) int {
	return int(v&0x0F) + int(v>>4)*10
}

func encodeBCD(v int) byte {
	return byte((v%10)&0x0F) | byte((v/10)<<4)
}

func readRTC(bus *Bus) (model.RtcSnapshot, error) {
	timeRegs, err := bus.ReadReg(rtcRegTime, 7)
	if err != nil {
		return model.RtcSnapshot{}, err
	}
	alarmRegs, err := bus.ReadReg(rtcRegAlarmMin, 2)
	if err != nil {
		return model.RtcSnapshot{}, err
	}
	maskReg, err := bus.ReadReg(rtcRegAlarmMsk, 1)
	if err != nil {
		return model.RtcSnapshot{}, err
	}
	ctlReg, err := bus.ReadReg(rtcRegAlarmCtl, 1)
	if err != nil {
		return model.RtcSnapshot{}, err
	}

	rtcTime := time.Date(
		2000+parseBCD(timeRegs[6]),
		time.Month(parseBCD(timeRegs[5])),
		parseBCD(timeRegs[3]),
		parseBCD(timeRegs[2]),
		parseBCD(timeRegs[1]),
		parseBCD(timeRegs[0]&0x7F),
		0,
		time.Local,
	)
	alarmTime := time.Date(0, 1, 1, parseBCD(alarmRegs[1]), parseBCD(alarmRegs[0]), 0, 0, time.Local)

	return model.RtcSnapshot{
		RtcTime:          rtcTime,
		AlarmTime:        alarmTime,
		AlarmWeekdayMask: maskReg[0] & 0x7F,
		AlarmEnabled:     ctlReg[0]&alarmCtlEnableBit != 0,
	}, nil
}

func writeRTCTime(bus *Bus, t time.Time) error {
	t = t.Local()
	data := []byte{
		encodeBCD(t.Second()),
		encodeBCD(t.Minute()),
		encodeBCD(t.Hour()),
		encodeBCD(t.Day()),
		encodeBCD(int(t.Weekday())),
		encodeBCD(int(t.Month())),
		encodeBCD(t.Year() - 2000),
	}
	return bus.WriteReg(rtcRegTime, data)
}

func readRTCTime(bus *Bus) (time.Time, error) {
	snap, err := readRTC(bus)
	if err != nil {
		return time.Time{}, err
	}
	return snap.RtcTime, nil
}

func writeAlarm(bus *Bus, timeOfDay time.Time, weekdayMask uint8) error {
	if err := bus.WriteReg(rtcRegAlarmMin, []byte{encodeBCD(timeOfDay.Minute()), encodeBCD(timeOfDay.Hour())}); err != nil {
		return err
	}
	if err := bus.WriteReg(rtcRegAlarmMsk, []byte{weekdayMask & 0x7F}); err != nil {
		return err
	}
	ctl, err := bus.ReadReg(rtcRegAlarmCtl, 1)
	if err != nil {
		return err
	}
	return bus.WriteReg(rtcRegAlarmCtl, []byte{ctl[0] | alarmCtlEnableBit})
}

func disableAlarm(bus *Bus) error {
	ctl, err := bus.ReadReg(rtcRegAlarmCtl, 1)
	if err != nil {
		return err
	}
	return bus.WriteReg(rtcRegAlarmCtl, []byte{ctl[0] &^ alarmCtlEnableBit})
}
