package control

import (
	"time"

	"github.com/chewxy/math32"

	"github.com/sweeney/t12-station/internal/mathx"
	"github.com/sweeney/t12-station/internal/sensor"
)

// BoostKind identifies which boost branch is running.
type BoostKind string

const (
	BoostNone BoostKind = ""
	BoostCold BoostKind = "cold"
	BoostWarm BoostKind = "warm"
)

// BoostConfig holds the reactivation boost constants.
type BoostConfig struct {
	ColdThreshold time.Duration // idle at or above this selects the cold branch
	ColdFactor    float32       // multiple of the baseline drive
	ColdWindow    time.Duration
	WarmFactor    float32
	MaxGap        int           // °C gap mapped onto MaxWindow
	MaxWindow     time.Duration // window at MaxGap
}

// StartBoost opens a boost window after the handle was picked up following
// idle of the given length. The cold branch drives ColdFactor times baseline
// for ColdWindow; the warm branch drives WarmFactor times baseline for a
// window proportional to the gap between setpoint and tip. The returned kind
// is BoostNone when no window was opened.
func (l *Loop) StartBoost(idle time.Duration, setpoint int, r sensor.Reading, baseline int, now time.Time) BoostKind {
	if setpoint <= 0 || r.Fault {
		return BoostNone
	}
	b := l.cfg.Boost

	kind := BoostWarm
	factor := b.WarmFactor
	window := WarmWindow(b, setpoint-r.Tip)
	if idle >= b.ColdThreshold {
		kind = BoostCold
		factor = b.ColdFactor
		window = b.ColdWindow
	}
	if window <= 0 {
		return BoostNone
	}

	l.state.BoostKind = kind
	l.state.BoostValue = BoostValue(factor, baseline)
	l.state.BoostDeadline = now.Add(window)
	return kind
}

// BoostValue is factor*baseline, truncated and clamped to [0, MaxDrive].
func BoostValue(factor float32, baseline int) int {
	v := math32.Floor(factor * float32(baseline))
	return int(mathx.Clamp(v, 0, MaxDrive))
}

// WarmWindow maps a temperature gap, clamped to [0, MaxGap], linearly onto
// [0, MaxWindow].
func WarmWindow(b BoostConfig, gap int) time.Duration {
	if b.MaxGap <= 0 {
		return 0
	}
	ms := mathx.Map(int64(gap), 0, int64(b.MaxGap), 0, b.MaxWindow.Milliseconds())
	return time.Duration(ms) * time.Millisecond
}
