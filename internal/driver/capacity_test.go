package driver

import (
	"context"
	"testing"

	"github.com/pisugar/pisugar-server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCapacityFromCurveInterpolatesLinearly(t *testing.T) {
	curve := model.DischargeCurve(model.PiSugar3)
	pct := capacityFromCurve(curve, 4200)
	assert.Equal(t, 100, pct)

	// Interior point between two breakpoints interpolates, not steps.
	pct = capacityFromCurve(curve, 4150)
	assert.True(t, pct > 90 && pct < 100, "expected interpolated value between breakpoints, got %d", pct)
}

func TestCapacityFromCurveClampsToRange(t *testing.T) {
	curve := model.DischargeCurve(model.PiSugar3)
	assert.Equal(t, 100, capacityFromCurve(curve, 5000))
	assert.Equal(t, 0, capacityFromCurve(curve, 0))
}

func TestVoltageRingMeanPrefilled(t *testing.T) {
	r := newVoltageRing()
	require.Equal(t, 4200, r.mean())
	for i := 0; i < ringSize; i++ {
		r.push(4000)
	}
	assert.Equal(t, 4000, r.mean())
}

func TestSmootherCapsDischargeDrop(t *testing.T) {
	s := &smoother{}
	assert.Equal(t, 80, s.apply(80))
	// A sudden drop to 50 must be capped to one step down per tick.
	assert.Equal(t, 79, s.apply(50))
	assert.Equal(t, 78, s.apply(50))
}

func TestSmootherPublishesRiseImmediately(t *testing.T) {
	s := &smoother{}
	s.apply(50)
	assert.Equal(t, 90, s.apply(90))
}

// S2 from spec §8: register bytes 0x22=0x10, 0x23=0x68, 0x2A=0x55, expects
// voltage_mv=4200 (0x1068=4200) and capacity_percent=85 (0x55=85) read
// directly off the gauge's own capacity register, not derived from the
// discharge curve.
func TestScenarioS2PiSugar3Capacity(t *testing.T) {
	fake := newFakeI2CBus()
	fake.regs[reg3VoltageHi] = 0x10
	fake.regs[reg3VoltageLo] = 0x68
	fake.regs[reg3Capacity] = 0x55
	log := zaptest.NewLogger(t)
	bus := NewBus(fake, 0x57, log)
	defer bus.Close(context.Background())

	snap, err := NewPiSugar3(bus, log, nil).ReadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, 4200, snap.VoltageMV)
	assert.Equal(t, 85, snap.CapacityPercent)
}
