package logic

import (
	"time"

	"github.com/sweeney/t12-station/internal/mathx"
)

// Machine owns the operating mode, the menu, and the user-adjustable
// settings. It is not safe for concurrent use; exactly one routine drives it
// and publishes the results.
type Machine struct {
	cfg      Config
	settings Settings

	mode        Mode
	menu        MenuState
	maintenance bool
	calibrating bool
	calSeq      uint64
	deepSleep   bool

	lastActivity   time.Time
	lastRotate     time.Time
	lastShortPress time.Time

	handleActive   bool
	handleReleased time.Time // zero until the handle has been released once
}

// NewMachine creates a machine in Active mode. The idle timer starts at now.
func NewMachine(cfg Config, s Settings, now time.Time) *Machine {
	s.TargetTemperature = mathx.Clamp(s.TargetTemperature, cfg.MinTemp, cfg.MaxTemp)
	m := &Machine{
		cfg:          cfg,
		settings:     s,
		lastActivity: now,
	}
	m.mode = m.derive(now)
	return m
}

// Handle applies an input event. Every event counts as activity and resets
// the idle timer, which pulls AOD and Sleep back to Active.
func (m *Machine) Handle(ev Event) Result {
	prev := m.mode
	var r Result
	if m.deepSleep {
		return m.finish(prev, r, ev.Time)
	}
	m.lastActivity = ev.Time

	if ev.Kind == EventHandleContact {
		m.trackHandle(ev, &r)
		return m.finish(prev, r, ev.Time)
	}

	// Buttons and rotation are ignored until a calibration run finishes.
	if m.calibrating {
		return m.finish(prev, r, ev.Time)
	}

	switch ev.Kind {
	case EventRotate:
		m.rotate(ev, &r)
	case EventShortPress:
		m.shortPress(ev, &r)
	case EventLongPress:
		m.longPress()
	}
	return m.finish(prev, r, ev.Time)
}

// Advance re-evaluates the idle timers without an input event.
func (m *Machine) Advance(now time.Time) Result {
	return m.finish(m.mode, Result{}, now)
}

// FinishCalibration completes the calibration run identified by seq. The
// offset is applied only when ok is set; a stale seq is ignored.
func (m *Machine) FinishCalibration(seq uint64, offset int, ok bool, now time.Time) Result {
	prev := m.mode
	var r Result
	if !m.calibrating || seq != m.calSeq {
		return m.finish(prev, r, now)
	}
	m.calibrating = false
	if ok && offset != m.settings.CalibrationOffset {
		m.settings.CalibrationOffset = offset
		r.SettingsChanged = true
	}
	return m.finish(prev, r, now)
}

// Mode returns the current mode as of the last Handle/Advance call.
func (m *Machine) Mode() Mode { return m.mode }

// Menu returns the menu state.
func (m *Machine) Menu() MenuState { return m.menu }

// Settings returns a copy of the current settings.
func (m *Machine) Settings() Settings { return m.settings }

// CalibrationSeq identifies the most recent calibration request.
func (m *Machine) CalibrationSeq() uint64 { return m.calSeq }

// HandleActive reports the last known handle contact state.
func (m *Machine) HandleActive() bool { return m.handleActive }

// Setpoint returns the temperature the control loop should aim for in the
// current mode: zero for the forcing modes, the sleep temperature for the idle
// modes, and the configured target otherwise.
func (m *Machine) Setpoint() int {
	switch {
	case m.mode.ForcesOff():
		return 0
	case m.mode.Idle():
		return m.cfg.SleepTemperature
	default:
		return m.settings.TargetTemperature
	}
}

func (m *Machine) rotate(ev Event, r *Result) {
	n := ev.Magnitude
	if n <= 0 {
		n = 1
	}
	dir := 1
	if ev.Direction < 0 {
		dir = -1
	}
	if m.menu.Open {
		m.menu.Index = mathx.Clamp(m.menu.Index+dir*n, 0, menuItems-1)
		return
	}
	if m.maintenance {
		return
	}

	// Only adjusting rotations time the fast turn. The first detent is timed
	// against the previous adjusting event; the others in the same event came
	// within one input period of it.
	fast := !m.lastRotate.IsZero() && ev.Time.Sub(m.lastRotate) < m.cfg.FastWindow
	m.lastRotate = ev.Time

	delta := m.detentStep(fast)
	if n > 1 {
		delta += (n - 1) * m.detentStep(true)
	}
	target := mathx.Clamp(m.settings.TargetTemperature+dir*delta, m.cfg.MinTemp, m.cfg.MaxTemp)
	if target != m.settings.TargetTemperature {
		m.settings.TargetTemperature = target
		r.SettingsChanged = true
	}
}

func (m *Machine) detentStep(fast bool) int {
	if fast && m.cfg.FastStep > 0 {
		return m.cfg.FastStep
	}
	return m.cfg.Step
}

func (m *Machine) shortPress(ev Event, r *Result) {
	if m.menu.Open {
		m.execute(r)
		return
	}
	switch m.cfg.LongPress {
	case LongPressMaintenance:
		if !m.lastShortPress.IsZero() && ev.Time.Sub(m.lastShortPress) <= m.cfg.DoubleClickWindow {
			m.lastShortPress = time.Time{}
			m.openMenu()
			return
		}
		m.lastShortPress = ev.Time
	default:
		m.maintenance = !m.maintenance
	}
}

func (m *Machine) longPress() {
	if m.menu.Open {
		m.closeMenu()
		return
	}
	switch m.cfg.LongPress {
	case LongPressMaintenance:
		m.maintenance = !m.maintenance
	default:
		m.openMenu()
	}
}

func (m *Machine) execute(r *Result) {
	item := m.menu.Selected()
	m.closeMenu()
	switch item {
	case MenuRecalibrate:
		m.calibrating = true
		m.calSeq++
		r.CalibrationRequested = true
	case MenuDeepSleep:
		m.deepSleep = true
	}
}

func (m *Machine) openMenu() {
	m.menu = MenuState{Open: true, Index: int(MenuBack)}
}

func (m *Machine) closeMenu() {
	m.menu = MenuState{}
}

func (m *Machine) trackHandle(ev Event, r *Result) {
	if ev.Active == m.handleActive {
		return
	}
	m.handleActive = ev.Active
	if !ev.Active {
		m.handleReleased = ev.Time
		return
	}
	r.Reactivated = true
	if m.handleReleased.IsZero() {
		r.Idle = MaxIdle
	} else {
		r.Idle = ev.Time.Sub(m.handleReleased)
	}
}

func (m *Machine) finish(prev Mode, r Result, now time.Time) Result {
	m.mode = m.derive(now)
	r.Mode = m.mode
	r.Changed = m.mode != prev
	r.ForcedOff = r.Changed && m.mode.ForcesOff()
	return r
}

// derive computes the mode from the flags in priority order.
func (m *Machine) derive(now time.Time) Mode {
	switch {
	case m.deepSleep:
		return ModeDeepSleep
	case m.calibrating:
		return ModeCalibrating
	case m.menu.Open:
		return ModeMenu
	case m.maintenance:
		return ModeMaintenance
	case m.handleActive:
		return ModeActive
	}

	idle := now.Sub(m.lastActivity)
	if m.cfg.SleepAfter > 0 && idle >= m.cfg.SleepAfter {
		return ModeSleep
	}
	if m.cfg.AODAfter > 0 && idle >= m.cfg.AODAfter {
		return ModeAOD
	}
	return ModeActive
}
