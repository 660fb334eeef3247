package driver

import "github.com/pisugar/pisugar-server/internal/model"

const ringSize = 30

// voltageRing is the trailing-30-sample mean used for capacity smoothing
// (spec §3, §8 invariant 1). Pre-filled to 4200mV so the very first
// snapshot reports a sane capacity instead of 0.
type voltageRing struct {
	samples [ringSize]int
	filled  bool
}

func newVoltageRing() *voltageRing {
	r := &voltageRing{}
	for i := range r.samples {
		r.samples[i] = 4200
	}
	return r
}

func (r *voltageRing) push(mv int) {
	copy(r.samples[:], r.samples[1:])
	r.samples[ringSize-1] = mv
}

func (r *voltageRing) mean() int {
	sum := 0
	for _, v := range r.samples {
		sum += v
	}
	return sum / ringSize
}

// capacityFromCurve linearly interpolates mv against the model's
// strictly-decreasing piecewise-linear discharge curve, clamped to [0,100].
func capacityFromCurve(curve []model.CurveBreakpoint, mv int) int {
	if len(curve) == 0 {
		return 0
	}
	if mv >= curve[0].MilliVolts {
		return curve[0].Percent
	}
	last := curve[len(curve)-1]
	if mv <= last.MilliVolts {
		return last.Percent
	}
	for i := 0; i < len(curve)-1; i++ {
		hi, lo := curve[i], curve[i+1]
		if mv <= hi.MilliVolts && mv >= lo.MilliVolts {
			span := hi.MilliVolts - lo.MilliVolts
			if span == 0 {
				return hi.Percent
			}
			frac := float64(mv-lo.MilliVolts) / float64(span)
			pct := float64(lo.Percent) + frac*float64(hi.Percent-lo.Percent)
			return clampPercent(int(pct + 0.5))
		}
	}
	return clampPercent(last.Percent)
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// smoother tracks the last published capacity so that on discharge (value
// decreasing), it never drops by more than one gauge step per tick, per the
// monotone-smoothing invariant in spec §3. Rises (recharge) are published
// immediately.
type smoother struct {
	lastPublished int
	hasPublished  bool
}

// apply returns the capacity to publish this tick given the raw
// curve-derived value.
func (s *smoother) apply(raw int) int {
	if !s.hasPublished {
		s.lastPublished = raw
		s.hasPublished = true
		return raw
	}
	if raw >= s.lastPublished {
		s.lastPublished = raw
		return raw
	}
	// Discharging: cap the drop to a single percentage point per tick.
	next := s.lastPublished - 1
	if next < raw {
		next = raw
	}
	s.lastPublished = next
	return next
}
