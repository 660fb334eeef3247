package driver

import (
	"time"

	"github.com/pisugar/pisugar-server/internal/model"
)

// gpioPin abstracts a single digital input line so this file stays
// platform-agnostic; button_linux.go and button_other.go supply the
// concrete implementation (open.go picks one at startup).
type gpioPin interface {
	Read() (bool, error)
}

// buttonLine turns a raw digital pin into the edge samples the poll loop
// feeds to the tap classifier. The capacitive tap button is wired to a
// dedicated GPIO line on every PiSugar variant — unlike battery gauging
// and RTC access, it is not one of the I²C registers in the §4.1 map —
// so read_button_edge is a driver operation that talks to the Pi's own
// GPIO header rather than the I²C bus.
type buttonLine struct {
	pin     gpioPin
	primed  bool
	pressed bool
}

func newButtonLine(pin gpioPin) *buttonLine {
	return &buttonLine{pin: pin}
}

// Read reports the current raw edge and whether the line changed since the
// previous call. A nil buttonLine (GPIO unavailable on this platform, or
// the line failed to open) always reports no change, matching how the
// driver already degrades the rest of its surface rather than panicking.
func (b *buttonLine) Read() (model.RawEdge, bool, error) {
	if b == nil || b.pin == nil {
		return model.RawEdge{}, false, nil
	}
	val, err := b.pin.Read()
	if err != nil {
		return model.RawEdge{}, false, err
	}
	now := time.Now()
	if !b.primed {
		b.primed = true
		b.pressed = val
		return model.RawEdge{Pressed: val, Timestamp: now}, true, nil
	}
	if val == b.pressed {
		return model.RawEdge{}, false, nil
	}
	b.pressed = val
	return model.RawEdge{Pressed: val, Timestamp: now}, true, nil
}
