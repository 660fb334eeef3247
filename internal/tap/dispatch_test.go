package tap

import (
	"testing"

	"github.com/pisugar/pisugar-server/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestShellForSynthesisesDefaultPoweroff(t *testing.T) {
	d := &Dispatcher{SoftPoweroff: true}
	assert.Equal(t, "sudo shutdown now", d.shellFor(model.Long))
}

func TestShellForRespectsConfiguredLongShell(t *testing.T) {
	d := &Dispatcher{Shells: Enables2Shell{Long: "/usr/local/bin/my-long.sh"}, SoftPoweroff: true}
	assert.Equal(t, "/usr/local/bin/my-long.sh", d.shellFor(model.Long))
}

func TestShellForEmptyWithoutSoftPoweroff(t *testing.T) {
	d := &Dispatcher{}
	assert.Equal(t, "", d.shellFor(model.Long))
}
