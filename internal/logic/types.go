// Package logic contains the pure operating-mode state machine of the iron.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Mode is the operating mode of the station.
type Mode string

const (
	ModeActive      Mode = "ACTIVE"
	ModeSleep       Mode = "SLEEP"
	ModeAOD         Mode = "AOD"
	ModeMaintenance Mode = "MAINTENANCE"
	ModeMenu        Mode = "MENU"
	ModeCalibrating Mode = "CALIBRATING"
	ModeDeepSleep   Mode = "DEEP_SLEEP"
)

// ForcesOff reports whether the mode pins the setpoint to zero.
func (m Mode) ForcesOff() bool {
	switch m {
	case ModeMaintenance, ModeMenu, ModeCalibrating, ModeDeepSleep:
		return true
	}
	return false
}

// Idle reports whether the mode is one of the reduced-setpoint idle modes.
func (m Mode) Idle() bool {
	return m == ModeSleep || m == ModeAOD
}

// Settings are the persisted tunables of the station.
type Settings struct {
	TargetTemperature int // °C, bounded by Config.MinTemp..MaxTemp
	PWMBaseline       int // 0..255, drive used as the boost baseline
	PWMFrequencyHz    int
	ControlPeriodMs   int
	CalibrationOffset int // °C added to the mapped tip temperature
}

// MenuItem identifies an entry of the configuration menu.
type MenuItem int

const (
	MenuBack MenuItem = iota
	MenuRecalibrate
	MenuDeepSleep

	menuItems = 3
)

func (i MenuItem) String() string {
	switch i {
	case MenuBack:
		return "back"
	case MenuRecalibrate:
		return "recalibrate"
	case MenuDeepSleep:
		return "sleep"
	default:
		return "unknown"
	}
}

// MenuState is the open/closed state and cursor of the menu.
type MenuState struct {
	Open  bool
	Index int // 0..2
}

// Selected returns the item under the cursor.
func (m MenuState) Selected() MenuItem {
	return MenuItem(m.Index)
}

// EventKind identifies a discrete input event.
type EventKind string

const (
	EventRotate        EventKind = "ROTATE"
	EventShortPress    EventKind = "SHORT_PRESS"
	EventLongPress     EventKind = "LONG_PRESS"
	EventHandleContact EventKind = "HANDLE_CONTACT"
)

// Event is a single input event produced by the input decoder.
type Event struct {
	Kind      EventKind
	Direction int  // Rotate: +1 or -1
	Magnitude int  // Rotate: number of detents
	Active    bool // HandleContact: new contact state
	Time      time.Time
}

// LongPressPolicy selects how a long press is interpreted.
type LongPressPolicy string

const (
	// LongPressMenu opens/closes the menu on long press; a short press outside
	// the menu toggles maintenance.
	LongPressMenu LongPressPolicy = "menu"
	// LongPressMaintenance toggles maintenance on long press; a double short
	// press opens the menu.
	LongPressMaintenance LongPressPolicy = "maintenance"
)

// Config is the data-driven mode behaviour. Zero idle durations disable the
// corresponding idle mode, which is how device variants without AOD or Sleep
// are expressed.
type Config struct {
	MinTemp           int
	MaxTemp           int
	SleepTemperature  int
	Step              int
	FastStep          int
	FastWindow        time.Duration
	AODAfter          time.Duration
	SleepAfter        time.Duration
	LongPress         LongPressPolicy
	DoubleClickWindow time.Duration
}

// Result describes the side effects a caller must carry out after an event
// or an idle advance.
type Result struct {
	// Mode after the transition.
	Mode Mode
	// Changed is true when Mode differs from the mode before the call.
	Changed bool
	// ForcedOff is true when the transition entered a mode that forces the
	// heater off; the caller writes zero drive immediately.
	ForcedOff bool
	// SettingsChanged is true when the persisted settings were modified.
	SettingsChanged bool
	// Reactivated is true on a handle inactive->active edge.
	Reactivated bool
	// Idle is how long the handle had been inactive before Reactivated.
	// A handle never seen active since start reports MaxIdle.
	Idle time.Duration
	// CalibrationRequested is true when the menu asked for a calibration run.
	CalibrationRequested bool
}

// MaxIdle is reported for a reactivation with no previous contact.
const MaxIdle = time.Duration(1<<63 - 1)
