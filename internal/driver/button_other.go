//go:build !linux

package driver

import "fmt"

// openButtonPin has no implementation off Linux; /dev/gpiomem doesn't
// exist there. Callers treat the error as non-fatal and run with the tap
// button permanently unpressed, matching core/systime_other.go's
// degrade-gracefully pattern for the rest of the non-Linux dev build.
func openButtonPin(bcm int) (gpioPin, error) {
	return nil, fmt.Errorf("gpio button line unsupported on this platform")
}
