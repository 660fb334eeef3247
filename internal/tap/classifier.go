// Package tap implements the button-edge-to-event state machine of
// spec §4.2: raw press/release samples come in, Single/Double/Long events
// go out, gated by the configured per-kind enables.
package tap

import (
	"time"

	"github.com/pisugar/pisugar-server/internal/model"
)

const (
	LongMin       = 1000 * time.Millisecond
	ShortMax      = 500 * time.Millisecond
	DoubleGapMax  = 300 * time.Millisecond
)

type state int

const (
	stateIdle state = iota
	stateHolding
	stateLongFired
	stateMaybeDouble
	stateSecondHold
)

// Enables gates which event kinds the classifier is allowed to emit.
type Enables struct {
	Single bool
	Double bool
	Long   bool
}

// Classifier runs the table in spec §4.2 over a stream of RawEdges fed by
// Feed. It owns no timer goroutine itself: Feed(edge) drives transitions on
// press/release, and Tick(now) must be called periodically (e.g. at the
// driver's poll rate) so that held-to-Long and MaybeDouble-timeout
// transitions — which depend on the passage of time without an edge — can
// fire without waiting for the next physical edge.
type Classifier struct {
	st            state
	pressedAt     time.Time
	releasedAt    time.Time
	enables       Enables
	emit          func(model.ButtonEvent, time.Time)
}

// New constructs a Classifier. emit is called synchronously from Feed/Tick
// with the classified event and its commit timestamp; the caller is
// expected to dispatch it onto the event bus and spawn shells without
// blocking the classifier.
func New(enables Enables, emit func(model.ButtonEvent, time.Time)) *Classifier {
	return &Classifier{st: stateIdle, enables: enables, emit: emit}
}

// SetEnables updates which event kinds may fire, e.g. after a config change.
func (c *Classifier) SetEnables(e Enables) { c.enables = e }

// Feed processes one raw press/release transition at time t.
func (c *Classifier) Feed(pressed bool, t time.Time) {
	if pressed {
		c.onPress(t)
	} else {
		c.onRelease(t)
	}
}

func (c *Classifier) onPress(t time.Time) {
	switch c.st {
	case stateIdle:
		c.pressedAt = t
		c.st = stateHolding
	case stateMaybeDouble:
		if t.Sub(c.releasedAt) <= DoubleGapMax {
			c.st = stateSecondHold
		} else {
			// Gap exceeded; Tick should already have fired Single, but
			// handle a race where the press arrives right at the boundary.
			c.commitSingle(c.releasedAt.Add(DoubleGapMax))
			c.pressedAt = t
			c.st = stateHolding
		}
	default:
		// press while already holding/fired/second-hold: ignore, physical
		// bounce; the FSM only tracks one logical press at a time.
	}
}

func (c *Classifier) onRelease(t time.Time) {
	switch c.st {
	case stateHolding:
		held := t.Sub(c.pressedAt)
		if held >= LongMin {
			// Tick should have already fired Long; release just returns
			// to Idle. Defensive: fire here too if Tick hasn't run yet.
			c.fireLongIfNeeded(t)
			c.st = stateIdle
			return
		}
		c.releasedAt = t
		c.st = stateMaybeDouble
	case stateLongFired:
		c.st = stateIdle
	case stateSecondHold:
		if c.enables.Double {
			c.emit(model.Double, t)
		}
		c.st = stateIdle
	default:
	}
}

func (c *Classifier) fireLongIfNeeded(t time.Time) {
	if c.enables.Long {
		c.emit(model.Long, t)
	}
}

func (c *Classifier) commitSingle(t time.Time) {
	if c.enables.Single {
		c.emit(model.Single, t)
	}
	c.st = stateIdle
}

// Tick advances time-based transitions that don't depend on a physical
// edge: Holding -> LongFired once held >= LongMin, and
// MaybeDouble -> Idle (emitting Single) once the gap has elapsed without a
// second press. Call at a rate at least as fast as the polling loop feeding
// Feed (spec requires sampling at >= 100Hz).
func (c *Classifier) Tick(now time.Time) {
	switch c.st {
	case stateHolding:
		if now.Sub(c.pressedAt) >= LongMin {
			c.fireLongIfNeeded(now)
			c.st = stateLongFired
		}
	case stateMaybeDouble:
		if now.Sub(c.releasedAt) > DoubleGapMax {
			c.commitSingle(c.releasedAt.Add(DoubleGapMax))
		}
	}
}
