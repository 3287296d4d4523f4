// Package crossfade provides the gain ramp used to fade between two tracks.
package crossfade

import (
	"math"
	"time"
)

// DefaultTick is the ramp resolution.
const DefaultTick = 15 * time.Millisecond

// minGain is the floor used when converting a gain to decibels.
const minGain = 1e-4

// Ramp is a quadratic gain curve from Start to End over Steps ticks.
type Ramp struct {
	Start float64
	End   float64
	Steps int
}

// NewRamp builds a ramp covering duration at the given tick. There is always
// at least one step.
func NewRamp(start, end float64, duration, tick time.Duration) Ramp {
	if tick <= 0 {
		tick = DefaultTick
	}
	return Ramp{Start: start, End: end, Steps: max(1, int(duration/tick))}
}

// GainAt returns start + (end-start) * min(1, step/steps)^2.
func (r Ramp) GainAt(step int) float64 {
	p := math.Min(1, float64(max(step, 0))/float64(max(r.Steps, 1)))
	return r.Start + (r.End-r.Start)*p*p
}

// Pair returns the outgoing and incoming gains at step for a full fade.
func Pair(step, steps int) (out, in float64) {
	return Ramp{Start: 1, End: 0, Steps: steps}.GainAt(step), Ramp{Start: 0, End: 1, Steps: steps}.GainAt(step)
}

// GainToDB converts a linear gain to decibels, flooring at -80 dB.
func GainToDB(g float64) float64 {
	return 20 * math.Log10(math.Max(minGain, g))
}

// DBToGain converts decibels to a linear gain.
func DBToGain(db float64) float64 {
	return math.Pow(10, db/20)
}
