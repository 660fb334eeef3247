package tap

import (
	"os/exec"

	"github.com/pisugar/pisugar-server/internal/logger"
	"github.com/pisugar/pisugar-server/internal/model"
	"go.uber.org/zap"
)

// Dispatcher spawns the configured shell for each classified event,
// detached, with stdout/stderr discarded and without waiting (spec §4.2).
// Concurrent overlapping shells are permitted; shell spawn failure is
// logged but the event is still considered delivered (spec §7).
type Dispatcher struct {
	Shells       Enables2Shell
	SoftPoweroff bool
}

// Enables2Shell maps each tap kind to its configured shell command.
type Enables2Shell struct {
	Single string
	Double string
	Long   string
}

// Dispatch spawns the shell configured for ev, if any. When soft_poweroff
// is enabled and the long-tap shell is empty, the default shutdown command
// is synthesised in its place.
func (d *Dispatcher) Dispatch(ev model.ButtonEvent) {
	shell := d.shellFor(ev)
	if shell == "" {
		return
	}
	cmd := exec.Command("sh", "-c", shell)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		logger.WithComponent("tap").Warn("shell spawn failed", zap.String("event", ev.String()), zap.Error(err))
		return
	}
	go func() { _ = cmd.Wait() }()
}

func (d *Dispatcher) shellFor(ev model.ButtonEvent) string {
	switch ev {
	case model.Single:
		return d.Shells.Single
	case model.Double:
		return d.Shells.Double
	case model.Long:
		if d.Shells.Long == "" && d.SoftPoweroff {
			return "sudo shutdown now"
		}
		return d.Shells.Long
	default:
		return ""
	}
}
