package driver

import (
	"fmt"

	"github.com/pisugar/pisugar-server/internal/model"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Open initializes periph.io, opens the configured I²C bus, probes the
// identity registers and returns the matching Device. A probe mismatch is
// the one fatal-at-startup condition from spec §7 (exit code 2); callers
// should treat a non-nil error here as fatal.
func Open(cfg model.Configuration, log *zap.Logger) (Device, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("init periph host: %w", err)
	}

	busName := fmt.Sprintf("/dev/i2c-%d", cfg.I2CBus)
	raw, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("open i2c bus %s: %w", busName, err)
	}

	addr := cfg.I2CAddr
	if addr == 0 {
		addr = model.Caps(cfg.Model).DefaultI2CAddr
	}

	if err := Probe(raw, cfg.Model, addr, log); err != nil {
		raw.Close()
		return nil, nil, fmt.Errorf("probe %v at %#x: %w", cfg.Model, addr, err)
	}

	bus := NewBus(raw, addr, log)
	button := openButtonLine(cfg, log)

	switch cfg.Model {
	case model.PiSugar3:
		return NewPiSugar3(bus, log, button), raw, nil
	case model.PiSugar2Pro, model.PiSugar2Std:
		variant, verr := probeIP5xxx(&i2c.Dev{Bus: raw, Addr: addr})
		if verr != nil {
			raw.Close()
			return nil, nil, fmt.Errorf("probe ip5xxx variant: %w", verr)
		}
		return NewPiSugar2(bus, cfg.Model, variant, log, button), raw, nil
	default:
		raw.Close()
		return nil, nil, fmt.Errorf("unsupported model %v", cfg.Model)
	}
}

// openButtonLine opens the tap button's GPIO line. A failure here (no
// /dev/gpiomem access, non-Linux dev build, wrong permissions) is not
// fatal: the server runs on with the button permanently unpressed rather
// than refusing to start over a non-essential input.
func openButtonLine(cfg model.Configuration, log *zap.Logger) *buttonLine {
	bcm := cfg.ButtonGPIOPin
	if bcm == 0 {
		bcm = model.DefaultButtonGPIOPin
	}
	pin, err := openButtonPin(bcm)
	if err != nil {
		log.Warn("tap button GPIO line unavailable, running without physical tap detection", zap.Int("bcm_pin", bcm), zap.Error(err))
		return newButtonLine(nil)
	}
	return newButtonLine(pin)
}
