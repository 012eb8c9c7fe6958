// Package control implements the heater control loop: a discrete PID with
// safety overrides and a time-limited open-loop boost after reactivation.
//
// The loop is pure. Time is passed in, and the caller writes the returned
// drive value to the heater.
package control

import (
	"time"

	"github.com/chewxy/math32"

	"github.com/sweeney/t12-station/internal/mathx"
	"github.com/sweeney/t12-station/internal/sensor"
)

// MaxDrive is the full-scale heater drive value.
const MaxDrive = 255

// Gains are the PID coefficients.
type Gains struct {
	Kp float32 `json:"kp"`
	Ki float32 `json:"ki"`
	Kd float32 `json:"kd"`
}

// Config holds the loop constants.
type Config struct {
	Gains         Gains
	IntegralLimit float32 // |integral| bound
	Ceiling       int     // tip above this forces the heater off
	Boost         BoostConfig
}

// State is the loop's internal state, exposed read-only for status surfaces.
type State struct {
	Error         float32   `json:"error"`
	Integral      float32   `json:"integral"`
	Derivative    float32   `json:"derivative"`
	Output        int       `json:"output"`
	BoostDeadline time.Time `json:"boost_deadline"`
	BoostValue    int       `json:"boost_value"`
	BoostKind     BoostKind `json:"boost_kind"`
}

// Boosting reports whether the boost override is in effect at now.
func (s State) Boosting(now time.Time) bool {
	return s.BoostKind != BoostNone && !now.After(s.BoostDeadline)
}

// Loop is the PID controller. It is owned by the control routine.
type Loop struct {
	cfg       Config
	state     State
	prevError float32
	primed    bool
}

// NewLoop creates a loop with zeroed state.
func NewLoop(cfg Config) *Loop {
	return &Loop{cfg: cfg}
}

// State returns a copy of the loop state.
func (l *Loop) State() State { return l.state }

// Tick computes the drive value for one control period.
//
// A non-positive setpoint, a faulted reading, or a tip above the ceiling
// returns 0, resets the integral, and cancels any boost. Otherwise the PID
// result is returned, replaced by the boost value while a boost window is
// open.
func (l *Loop) Tick(setpoint int, r sensor.Reading, now time.Time) int {
	if setpoint <= 0 || r.Fault || r.Tip > l.cfg.Ceiling {
		l.reset()
		return 0
	}

	e := float32(setpoint - r.Tip)
	d := float32(0)
	if l.primed {
		d = e - l.prevError
	}
	l.prevError = e
	l.primed = true

	limit := math32.Abs(l.cfg.IntegralLimit)
	i := mathx.Clamp(l.state.Integral+e, -limit, limit)

	out := Output(l.cfg.Gains, e, i, d)

	l.state.Error = e
	l.state.Integral = i
	l.state.Derivative = d

	if l.state.Boosting(now) {
		out = l.state.BoostValue
	} else if l.state.BoostKind != BoostNone {
		l.cancelBoost()
	}
	l.state.Output = out
	return out
}

// Output evaluates Kp*e + Ki*i + Kd*d, rounded and clamped to [0, MaxDrive].
// For non-negative gains it is monotonic non-decreasing in each term.
func Output(g Gains, e, i, d float32) int {
	v := g.Kp*e + g.Ki*i + g.Kd*d
	if math32.IsNaN(v) {
		return 0
	}
	v = mathx.Clamp(math32.Round(v), 0, MaxDrive)
	return int(v)
}

func (l *Loop) reset() {
	l.state.Error = 0
	l.state.Integral = 0
	l.state.Derivative = 0
	l.state.Output = 0
	l.prevError = 0
	l.primed = false
	l.cancelBoost()
}

func (l *Loop) cancelBoost() {
	l.state.BoostDeadline = time.Time{}
	l.state.BoostValue = 0
	l.state.BoostKind = BoostNone
}
