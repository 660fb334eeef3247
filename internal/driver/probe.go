package driver

import (
	"fmt"

	"github.com/pisugar/pisugar-server/internal/model"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"
)

// pisugar2Variant distinguishes the two pisugar2 charger ICs, detected by
// which charger status register responds sensibly.
type pisugar2Variant int

const (
	ip5209 pisugar2Variant = iota // voltage at 0xA2/0xA3, charger status at 0x55
	ip5312                        // voltage at 0xD0/0xD1, charger status at 0x58
)

// Probe reads identity registers to confirm the configured model, per
// spec §4.1. A mismatch is fatal at startup (exit code 2) but is reported
// as an error here; the caller decides the exit code.
func Probe(bus i2c.Bus, want model.Model, addr uint16, log *zap.Logger) error {
	dev := &i2c.Dev{Bus: bus, Addr: addr}

	switch want {
	case model.PiSugar3:
		reg := make([]byte, 2)
		if err := dev.Tx([]byte{0x00}, reg[:1]); err != nil {
			return fmt.Errorf("reading firmware register: %w", err)
		}
		if err := dev.Tx([]byte{0x01}, reg[1:2]); err != nil {
			return fmt.Errorf("reading mode register: %w", err)
		}
		if reg[0] != 3 || reg[1] != 0x0F {
			log.Warn("pisugar3 probe mismatch", zap.Uint8("fw", reg[0]), zap.Uint8("mode", reg[1]))
			return ErrProbeMismatch
		}
		return nil
	case model.PiSugar2Std, model.PiSugar2Pro:
		variant, err := probeIP5xxx(dev)
		if err != nil {
			return err
		}
		log.Info("pisugar2 probe succeeded", zap.Int("variant", int(variant)))
		return nil
	default:
		return fmt.Errorf("probe: unknown model %v", want)
	}
}

// probeIP5xxx distinguishes IP5209 from IP5312 by reading each charger
// status register in turn and accepting the first that responds without a
// bus error; both ICs otherwise answer on the same address.
func probeIP5xxx(dev *i2c.Dev) (pisugar2Variant, error) {
	var status [1]byte
	if err := dev.Tx([]byte{0x55}, status[:]); err == nil {
		return ip5209, nil
	}
	if err := dev.Tx([]byte{0x58}, status[:]); err == nil {
		return ip5312, nil
	}
	return 0, ErrProbeMismatch
}
