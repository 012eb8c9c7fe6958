// Package status provides the thread-safe shared state of the station.
// Each routine publishes the fields it owns; readers (display, telemetry,
// HTTP) take an immutable Snapshot.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/t12-station/internal/control"
	"github.com/sweeney/t12-station/internal/logic"
	"github.com/sweeney/t12-station/internal/sensor"
)

// StatusFault is reported instead of the mode while the tip reading is faulted.
const StatusFault = "FAULT"

// NetworkInfo contains network state for display.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Broker          string
	PostURL         string
	HTTPAddr        string
	MinTemp         int
	MaxTemp         int
	SleepTemp       int
	LongPressPolicy string
	HeaterOhms      float64
}

// ModeState is the part of the state owned by the mode machine.
type ModeState struct {
	Mode           logic.Mode
	Menu           logic.MenuState
	Settings       logic.Settings
	Setpoint       int
	HandleActive   bool
	CalibrationSeq uint64
}

// ControlState is the part of the state owned by the control routine.
type ControlState struct {
	Reading sensor.Reading
	Loop    control.State
	Drive   int // value last written to the heater
	Ticks   uint64
}

// Snapshot is a point-in-time view of station state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	ModeState
	ControlState

	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Status returns the mode name, or FAULT while the reading is faulted.
func (s Snapshot) Status() string {
	if s.Reading.Fault {
		return StatusFault
	}
	if s.Mode == "" {
		return "UNKNOWN"
	}
	return string(s.Mode)
}

// Power returns the heater power estimate V²/R × duty.
func (s Snapshot) Power() float64 {
	return Power(s.Reading.SupplyVolts, s.Config.HeaterOhms, s.Drive)
}

// Boosting reports whether a boost window is open at the snapshot time.
func (s Snapshot) Boosting() bool {
	return s.Loop.Boosting(s.Now)
}

// Power computes V²/R scaled by drive/255. A non-positive resistance yields 0.
func Power(volts, ohms float64, drive int) float64 {
	if ohms <= 0 || drive <= 0 {
		return 0
	}
	return volts * volts / ohms * float64(drive) / control.MaxDrive
}

// Tracker holds mutable station state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetClock replaces the time source used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// PublishMode replaces the mode machine's fields.
// Called from the input routine after every event and idle advance.
func (t *Tracker) PublishMode(m ModeState) {
	t.mu.Lock()
	t.snap.ModeState = m
	t.mu.Unlock()
}

// PublishControl replaces the control routine's fields.
// Called once per control tick.
func (t *Tracker) PublishControl(c ControlState) {
	t.mu.Lock()
	t.snap.ControlState = c
	t.mu.Unlock()
}

// LoadSettings sets the settings read at startup.
func (t *Tracker) LoadSettings(s logic.Settings) {
	t.mu.Lock()
	t.snap.Settings = s
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the station state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
