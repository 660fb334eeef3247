package tap

import (
	"testing"
	"time"

	"github.com/pisugar/pisugar-server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseTime() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

// S1 from spec §8: press at t=0, release at t=120ms, press at t=250ms,
// release at t=380ms, both enables on. Expect exactly one Double, no Single.
func TestScenarioS1DoubleTap(t *testing.T) {
	t0 := baseTime()
	var events []model.ButtonEvent
	c := New(Enables{Single: true, Double: true, Long: true}, func(ev model.ButtonEvent, _ time.Time) {
		events = append(events, ev)
	})

	c.Feed(true, t0)
	c.Tick(t0)
	c.Feed(false, t0.Add(120*time.Millisecond))
	c.Tick(t0.Add(120 * time.Millisecond))
	c.Feed(true, t0.Add(250*time.Millisecond))
	c.Tick(t0.Add(250 * time.Millisecond))
	c.Feed(false, t0.Add(380*time.Millisecond))
	c.Tick(t0.Add(380 * time.Millisecond))

	require.Len(t, events, 1)
	assert.Equal(t, model.Double, events[0])
}

// Invariant 3: a press held >= 1000ms produces exactly one Long and no
// Single/Double.
func TestScenarioLongPressSuppressesOthers(t *testing.T) {
	t0 := baseTime()
	var events []model.ButtonEvent
	c := New(Enables{Single: true, Double: true, Long: true}, func(ev model.ButtonEvent, _ time.Time) {
		events = append(events, ev)
	})

	c.Feed(true, t0)
	c.Tick(t0.Add(500 * time.Millisecond))
	c.Tick(t0.Add(1000 * time.Millisecond)) // crosses LONG_MIN while still held
	c.Feed(false, t0.Add(1200*time.Millisecond))
	c.Tick(t0.Add(1200 * time.Millisecond))

	require.Len(t, events, 1)
	assert.Equal(t, model.Long, events[0])
}

func TestSingleTapFiresAfterDoubleGapTimeout(t *testing.T) {
	t0 := baseTime()
	var events []model.ButtonEvent
	c := New(Enables{Single: true, Double: true}, func(ev model.ButtonEvent, _ time.Time) {
		events = append(events, ev)
	})

	c.Feed(true, t0)
	c.Tick(t0)
	c.Feed(false, t0.Add(100*time.Millisecond))
	c.Tick(t0.Add(100 * time.Millisecond))
	// No second press; tick past the 300ms gap.
	c.Tick(t0.Add(450 * time.Millisecond))

	require.Len(t, events, 1)
	assert.Equal(t, model.Single, events[0])
}

func TestSingleNotEmittedWithin300msOfRelease(t *testing.T) {
	t0 := baseTime()
	var events []model.ButtonEvent
	c := New(Enables{Single: true, Double: true}, func(ev model.ButtonEvent, _ time.Time) {
		events = append(events, ev)
	})

	c.Feed(true, t0)
	c.Tick(t0)
	c.Feed(false, t0.Add(100*time.Millisecond))
	// Tick well before the 300ms gap elapses: must not fire yet.
	c.Tick(t0.Add(250 * time.Millisecond))
	assert.Empty(t, events)
}

func TestDisabledEventKindsAreSuppressed(t *testing.T) {
	t0 := baseTime()
	var events []model.ButtonEvent
	c := New(Enables{Single: false, Double: false, Long: false}, func(ev model.ButtonEvent, _ time.Time) {
		events = append(events, ev)
	})

	c.Feed(true, t0)
	c.Tick(t0.Add(1200 * time.Millisecond))
	c.Feed(false, t0.Add(1300*time.Millisecond))
	assert.Empty(t, events)
}
