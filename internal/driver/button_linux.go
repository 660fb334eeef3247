//go:build linux

package driver

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
)

// rpioPin adapts a go-rpio line to gpioPin. The tap button pulls the line
// low when pressed, so Read inverts the raw level.
type rpioPin struct {
	pin rpio.Pin
}

// openButtonPin opens /dev/gpiomem and configures the given Broadcom pin
// number as a pulled-up input for the tap button.
func openButtonPin(bcm int) (gpioPin, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}
	pin := rpio.Pin(bcm)
	pin.Input()
	pin.PullUp()
	return &rpioPin{pin: pin}, nil
}

func (p *rpioPin) Read() (bool, error) {
	return p.pin.Read() == rpio.Low, nil
}
