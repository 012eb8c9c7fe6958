package logic

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		MinTemp:           150,
		MaxTemp:           450,
		SleepTemperature:  150,
		Step:              5,
		FastStep:          25,
		FastWindow:        30 * time.Millisecond,
		AODAfter:          10 * time.Second,
		SleepAfter:        60 * time.Second,
		LongPress:         LongPressMenu,
		DoubleClickWindow: 400 * time.Millisecond,
	}
}

func testSettings() Settings {
	return Settings{
		TargetTemperature: 320,
		PWMBaseline:       30,
		PWMFrequencyHz:    2000,
		ControlPeriodMs:   100,
	}
}

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	return NewMachine(testConfig(), testSettings(), t0)
}

func TestNewMachine(t *testing.T) {
	m := newTestMachine(t)
	if m.Mode() != ModeActive {
		t.Errorf("mode: got %s, want ACTIVE", m.Mode())
	}
	if m.Setpoint() != 320 {
		t.Errorf("setpoint: got %d, want 320", m.Setpoint())
	}
	if m.Menu().Open {
		t.Error("menu should start closed")
	}
}

func TestNewMachineClampsTarget(t *testing.T) {
	s := testSettings()
	s.TargetTemperature = 999
	m := NewMachine(testConfig(), s, t0)
	if got := m.Settings().TargetTemperature; got != 450 {
		t.Errorf("target: got %d, want 450", got)
	}
}

func TestIdleModes(t *testing.T) {
	m := newTestMachine(t)

	r := m.Advance(t0.Add(9 * time.Second))
	if r.Mode != ModeActive {
		t.Errorf("at 9s: got %s, want ACTIVE", r.Mode)
	}

	r = m.Advance(t0.Add(10 * time.Second))
	if r.Mode != ModeAOD || !r.Changed {
		t.Errorf("at 10s: got %s changed=%v, want AOD changed", r.Mode, r.Changed)
	}
	if r.ForcedOff {
		t.Error("AOD must not force the heater off")
	}
	if m.Setpoint() != 150 {
		t.Errorf("AOD setpoint: got %d, want 150", m.Setpoint())
	}

	r = m.Advance(t0.Add(60 * time.Second))
	if r.Mode != ModeSleep {
		t.Errorf("at 60s: got %s, want SLEEP", r.Mode)
	}
	if m.Setpoint() != 150 {
		t.Errorf("SLEEP setpoint: got %d, want 150", m.Setpoint())
	}
}

func TestIdleSetpointIndependentOfTarget(t *testing.T) {
	for _, target := range []int{200, 320, 450} {
		s := testSettings()
		s.TargetTemperature = target
		m := NewMachine(testConfig(), s, t0)
		m.Advance(t0.Add(15 * time.Second))
		if m.Mode() != ModeAOD {
			t.Fatalf("target %d: mode got %s, want AOD", target, m.Mode())
		}
		if m.Setpoint() != 150 {
			t.Errorf("target %d: setpoint got %d, want sleep temperature 150", target, m.Setpoint())
		}
	}
}

func TestIdleModesDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.AODAfter = 0
	cfg.SleepAfter = 0
	m := NewMachine(cfg, testSettings(), t0)
	if r := m.Advance(t0.Add(time.Hour)); r.Mode != ModeActive {
		t.Errorf("got %s, want ACTIVE with idle modes disabled", r.Mode)
	}
}

func TestHandleActiveBlocksIdle(t *testing.T) {
	m := newTestMachine(t)
	m.Handle(Event{Kind: EventHandleContact, Active: true, Time: t0.Add(time.Second)})

	if r := m.Advance(t0.Add(5 * time.Minute)); r.Mode != ModeActive {
		t.Errorf("handle held: got %s, want ACTIVE", r.Mode)
	}

	m.Handle(Event{Kind: EventHandleContact, Active: false, Time: t0.Add(5 * time.Minute)})
	if r := m.Advance(t0.Add(5*time.Minute + 10*time.Second)); r.Mode != ModeAOD {
		t.Errorf("10s after release: got %s, want AOD", r.Mode)
	}
}

func TestEventExitsIdle(t *testing.T) {
	events := []Event{
		{Kind: EventRotate, Direction: 1, Magnitude: 1},
		{Kind: EventShortPress},
		{Kind: EventHandleContact, Active: true},
	}
	for _, ev := range events {
		t.Run(string(ev.Kind), func(t *testing.T) {
			cfg := testConfig()
			cfg.LongPress = LongPressMaintenance // short press has no side effect
			m := NewMachine(cfg, testSettings(), t0)
			m.Advance(t0.Add(70 * time.Second))
			if m.Mode() != ModeSleep {
				t.Fatalf("precondition: got %s, want SLEEP", m.Mode())
			}
			ev.Time = t0.Add(71 * time.Second)
			r := m.Handle(ev)
			if r.Mode != ModeActive {
				t.Errorf("got %s, want ACTIVE", r.Mode)
			}
		})
	}
}

func TestRotateAdjustsTarget(t *testing.T) {
	m := newTestMachine(t)

	r := m.Handle(Event{Kind: EventRotate, Direction: 1, Magnitude: 1, Time: t0.Add(time.Second)})
	if !r.SettingsChanged {
		t.Error("expected SettingsChanged")
	}
	if got := m.Settings().TargetTemperature; got != 325 {
		t.Errorf("target: got %d, want 325", got)
	}

	m.Handle(Event{Kind: EventRotate, Direction: -1, Magnitude: 1, Time: t0.Add(2 * time.Second)})
	if got := m.Settings().TargetTemperature; got != 320 {
		t.Errorf("target: got %d, want 320", got)
	}
}

func TestRotateMultiDetentEventIsFast(t *testing.T) {
	m := newTestMachine(t)
	m.Handle(Event{Kind: EventRotate, Direction: 1, Magnitude: 3, Time: t0.Add(time.Second)})

	// 320 + 5 (first detent, slow) + 2 × 25
	if got := m.Settings().TargetTemperature; got != 375 {
		t.Errorf("target: got %d, want 375", got)
	}
}

func TestMenuRotationDoesNotArmFastTurn(t *testing.T) {
	m := newTestMachine(t)
	m.Handle(Event{Kind: EventLongPress, Time: t0.Add(time.Second)})
	m.Handle(Event{Kind: EventRotate, Direction: 1, Magnitude: 1, Time: t0.Add(2 * time.Second)})
	m.Handle(Event{Kind: EventRotate, Direction: -1, Magnitude: 1, Time: t0.Add(2*time.Second + 5*time.Millisecond)})
	m.Handle(Event{Kind: EventShortPress, Time: t0.Add(2*time.Second + 10*time.Millisecond)}) // back

	// first adjusting rotation after the menu, 10 ms after a menu detent
	m.Handle(Event{Kind: EventRotate, Direction: 1, Magnitude: 1, Time: t0.Add(2*time.Second + 15*time.Millisecond)})
	if got := m.Settings().TargetTemperature; got != 325 {
		t.Errorf("target: got %d, want 325 (slow step)", got)
	}
}

func TestRotateFastTurn(t *testing.T) {
	m := newTestMachine(t)
	m.Handle(Event{Kind: EventRotate, Direction: 1, Magnitude: 1, Time: t0.Add(time.Second)})
	m.Handle(Event{Kind: EventRotate, Direction: 1, Magnitude: 1, Time: t0.Add(time.Second + 10*time.Millisecond)})

	// 320 + 5 (slow) + 25 (fast)
	if got := m.Settings().TargetTemperature; got != 350 {
		t.Errorf("target: got %d, want 350", got)
	}
}

func TestRotateClampsToBounds(t *testing.T) {
	m := newTestMachine(t)
	m.Handle(Event{Kind: EventRotate, Direction: 1, Magnitude: 100, Time: t0.Add(time.Second)})
	if got := m.Settings().TargetTemperature; got != 450 {
		t.Errorf("target: got %d, want 450", got)
	}
	r := m.Handle(Event{Kind: EventRotate, Direction: 1, Magnitude: 1, Time: t0.Add(2 * time.Second)})
	if r.SettingsChanged {
		t.Error("no change expected at the upper bound")
	}
	m.Handle(Event{Kind: EventRotate, Direction: -1, Magnitude: 100, Time: t0.Add(3 * time.Second)})
	if got := m.Settings().TargetTemperature; got != 150 {
		t.Errorf("target: got %d, want 150", got)
	}
}

func TestLongPressOpensMenu(t *testing.T) {
	m := newTestMachine(t)
	r := m.Handle(Event{Kind: EventLongPress, Time: t0.Add(time.Second)})

	if r.Mode != ModeMenu {
		t.Fatalf("mode: got %s, want MENU", r.Mode)
	}
	if !r.ForcedOff {
		t.Error("entering the menu must force the heater off")
	}
	if m.Menu().Index != 0 || m.Menu().Selected() != MenuBack {
		t.Errorf("menu index: got %d, want 0 (back)", m.Menu().Index)
	}
	if m.Setpoint() != 0 {
		t.Errorf("menu setpoint: got %d, want 0", m.Setpoint())
	}

	// Short press on "back" resumes the previous setpoint computation.
	r = m.Handle(Event{Kind: EventShortPress, Time: t0.Add(2 * time.Second)})
	if r.Mode != ModeActive {
		t.Errorf("mode after back: got %s, want ACTIVE", r.Mode)
	}
	if m.Menu().Open {
		t.Error("menu should be closed")
	}
	if m.Setpoint() != 320 {
		t.Errorf("setpoint after back: got %d, want 320", m.Setpoint())
	}
}

func TestMenuRotationNavigates(t *testing.T) {
	m := newTestMachine(t)
	m.Handle(Event{Kind: EventLongPress, Time: t0.Add(time.Second)})

	for i := 0; i < 5; i++ {
		m.Handle(Event{Kind: EventRotate, Direction: 1, Magnitude: 1, Time: t0.Add(time.Duration(2+i) * time.Second)})
	}
	if m.Menu().Index != 2 {
		t.Errorf("index: got %d, want 2 (clamped)", m.Menu().Index)
	}
	if got := m.Settings().TargetTemperature; got != 320 {
		t.Errorf("target changed while in menu: got %d", got)
	}

	m.Handle(Event{Kind: EventRotate, Direction: -1, Magnitude: 1, Time: t0.Add(10 * time.Second)})
	if m.Menu().Selected() != MenuRecalibrate {
		t.Errorf("selected: got %s, want recalibrate", m.Menu().Selected())
	}
}

func TestLongPressClosesMenu(t *testing.T) {
	m := newTestMachine(t)
	m.Handle(Event{Kind: EventShortPress, Time: t0.Add(time.Second)}) // maintenance on
	if m.Mode() != ModeMaintenance {
		t.Fatalf("precondition: got %s, want MAINTENANCE", m.Mode())
	}

	m.Handle(Event{Kind: EventLongPress, Time: t0.Add(2 * time.Second)})
	if m.Mode() != ModeMenu {
		t.Fatalf("got %s, want MENU", m.Mode())
	}

	r := m.Handle(Event{Kind: EventLongPress, Time: t0.Add(3 * time.Second)})
	if r.Mode != ModeMaintenance {
		t.Errorf("closing the menu: got %s, want prior mode MAINTENANCE", r.Mode)
	}
}

func TestMenuRecalibrate(t *testing.T) {
	m := newTestMachine(t)
	m.Handle(Event{Kind: EventLongPress, Time: t0.Add(time.Second)})
	m.Handle(Event{Kind: EventRotate, Direction: 1, Magnitude: 1, Time: t0.Add(2 * time.Second)})
	r := m.Handle(Event{Kind: EventShortPress, Time: t0.Add(3 * time.Second)})

	if r.Mode != ModeCalibrating {
		t.Fatalf("mode: got %s, want CALIBRATING", r.Mode)
	}
	if !r.CalibrationRequested {
		t.Error("expected CalibrationRequested")
	}
	if m.Setpoint() != 0 {
		t.Errorf("calibrating setpoint: got %d, want 0", m.Setpoint())
	}
	seq := m.CalibrationSeq()
	if seq != 1 {
		t.Errorf("seq: got %d, want 1", seq)
	}

	// Input is ignored while calibrating.
	m.Handle(Event{Kind: EventLongPress, Time: t0.Add(4 * time.Second)})
	if m.Mode() != ModeCalibrating {
		t.Errorf("long press during calibration: got %s, want CALIBRATING", m.Mode())
	}

	// Stale sequence numbers do nothing.
	m.FinishCalibration(seq+1, -7, true, t0.Add(5*time.Second))
	if m.Mode() != ModeCalibrating {
		t.Errorf("stale finish: got %s, want CALIBRATING", m.Mode())
	}

	r = m.FinishCalibration(seq, -7, true, t0.Add(5*time.Second))
	if r.Mode != ModeActive {
		t.Errorf("after calibration: got %s, want ACTIVE", r.Mode)
	}
	if !r.SettingsChanged {
		t.Error("expected SettingsChanged for new offset")
	}
	if got := m.Settings().CalibrationOffset; got != -7 {
		t.Errorf("offset: got %d, want -7", got)
	}
}

func TestCalibrationFailureKeepsOffset(t *testing.T) {
	s := testSettings()
	s.CalibrationOffset = 4
	m := NewMachine(testConfig(), s, t0)
	m.Handle(Event{Kind: EventLongPress, Time: t0.Add(time.Second)})
	m.Handle(Event{Kind: EventRotate, Direction: 1, Magnitude: 1, Time: t0.Add(2 * time.Second)})
	m.Handle(Event{Kind: EventShortPress, Time: t0.Add(3 * time.Second)})

	r := m.FinishCalibration(m.CalibrationSeq(), 99, false, t0.Add(4*time.Second))
	if r.SettingsChanged {
		t.Error("failed calibration must not change settings")
	}
	if got := m.Settings().CalibrationOffset; got != 4 {
		t.Errorf("offset: got %d, want 4", got)
	}
	if r.Mode != ModeActive {
		t.Errorf("mode: got %s, want ACTIVE", r.Mode)
	}
}

func TestMenuDeepSleepIsTerminal(t *testing.T) {
	m := newTestMachine(t)
	m.Handle(Event{Kind: EventLongPress, Time: t0.Add(time.Second)})
	m.Handle(Event{Kind: EventRotate, Direction: 1, Magnitude: 2, Time: t0.Add(2 * time.Second)})
	r := m.Handle(Event{Kind: EventShortPress, Time: t0.Add(3 * time.Second)})

	if r.Mode != ModeDeepSleep {
		t.Fatalf("mode: got %s, want DEEP_SLEEP", r.Mode)
	}
	if !r.ForcedOff {
		t.Error("deep sleep entry must force the heater off")
	}

	m.Handle(Event{Kind: EventLongPress, Time: t0.Add(4 * time.Second)})
	m.Handle(Event{Kind: EventHandleContact, Active: true, Time: t0.Add(5 * time.Second)})
	if m.Mode() != ModeDeepSleep {
		t.Errorf("deep sleep left on input: got %s", m.Mode())
	}
	if m.Setpoint() != 0 {
		t.Errorf("setpoint: got %d, want 0", m.Setpoint())
	}
}

func TestShortPressTogglesMaintenance(t *testing.T) {
	m := newTestMachine(t)

	r := m.Handle(Event{Kind: EventShortPress, Time: t0.Add(time.Second)})
	if r.Mode != ModeMaintenance || !r.ForcedOff {
		t.Errorf("got %s forcedOff=%v, want MAINTENANCE forcedOff", r.Mode, r.ForcedOff)
	}
	if m.Setpoint() != 0 {
		t.Errorf("maintenance setpoint: got %d, want 0", m.Setpoint())
	}

	// Rotation does not adjust the target in maintenance.
	r = m.Handle(Event{Kind: EventRotate, Direction: 1, Magnitude: 1, Time: t0.Add(2 * time.Second)})
	if r.SettingsChanged {
		t.Error("rotation must not change settings in maintenance")
	}

	// Maintenance does not time out into idle modes.
	if r := m.Advance(t0.Add(10 * time.Minute)); r.Mode != ModeMaintenance {
		t.Errorf("maintenance after idle: got %s", r.Mode)
	}

	r = m.Handle(Event{Kind: EventShortPress, Time: t0.Add(11 * time.Minute)})
	if r.Mode != ModeActive {
		t.Errorf("toggle off: got %s, want ACTIVE", r.Mode)
	}
}

func TestMaintenancePolicy(t *testing.T) {
	cfg := testConfig()
	cfg.LongPress = LongPressMaintenance
	m := NewMachine(cfg, testSettings(), t0)

	r := m.Handle(Event{Kind: EventLongPress, Time: t0.Add(time.Second)})
	if r.Mode != ModeMaintenance {
		t.Fatalf("long press: got %s, want MAINTENANCE", r.Mode)
	}
	r = m.Handle(Event{Kind: EventLongPress, Time: t0.Add(2 * time.Second)})
	if r.Mode != ModeActive {
		t.Fatalf("second long press: got %s, want ACTIVE", r.Mode)
	}

	// A single short press does nothing.
	r = m.Handle(Event{Kind: EventShortPress, Time: t0.Add(3 * time.Second)})
	if r.Mode != ModeActive {
		t.Errorf("single short press: got %s, want ACTIVE", r.Mode)
	}

	// A double press opens the menu.
	r = m.Handle(Event{Kind: EventShortPress, Time: t0.Add(3*time.Second + 200*time.Millisecond)})
	if r.Mode != ModeMenu {
		t.Errorf("double press: got %s, want MENU", r.Mode)
	}

	// Long press inside the menu closes it rather than toggling maintenance.
	r = m.Handle(Event{Kind: EventLongPress, Time: t0.Add(5 * time.Second)})
	if r.Mode != ModeActive {
		t.Errorf("long press in menu: got %s, want ACTIVE", r.Mode)
	}
}

func TestMaintenancePolicySlowDoublePress(t *testing.T) {
	cfg := testConfig()
	cfg.LongPress = LongPressMaintenance
	m := NewMachine(cfg, testSettings(), t0)

	m.Handle(Event{Kind: EventShortPress, Time: t0.Add(time.Second)})
	r := m.Handle(Event{Kind: EventShortPress, Time: t0.Add(2 * time.Second)})
	if r.Mode != ModeActive {
		t.Errorf("presses 1s apart: got %s, want ACTIVE", r.Mode)
	}
}

func TestHandleReactivation(t *testing.T) {
	m := newTestMachine(t)

	r := m.Handle(Event{Kind: EventHandleContact, Active: true, Time: t0.Add(time.Second)})
	if !r.Reactivated {
		t.Fatal("expected Reactivated on first contact")
	}
	if r.Idle != MaxIdle {
		t.Errorf("first contact idle: got %v, want MaxIdle", r.Idle)
	}

	// Repeated level reports are not edges.
	r = m.Handle(Event{Kind: EventHandleContact, Active: true, Time: t0.Add(2 * time.Second)})
	if r.Reactivated {
		t.Error("no edge, no reactivation")
	}

	m.Handle(Event{Kind: EventHandleContact, Active: false, Time: t0.Add(time.Minute)})
	r = m.Handle(Event{Kind: EventHandleContact, Active: true, Time: t0.Add(7 * time.Minute)})
	if !r.Reactivated {
		t.Fatal("expected Reactivated")
	}
	if r.Idle != 6*time.Minute {
		t.Errorf("idle: got %v, want 6m", r.Idle)
	}
}

func TestModeForcesOff(t *testing.T) {
	tests := []struct {
		mode Mode
		want bool
	}{
		{ModeActive, false},
		{ModeSleep, false},
		{ModeAOD, false},
		{ModeMaintenance, true},
		{ModeMenu, true},
		{ModeCalibrating, true},
		{ModeDeepSleep, true},
	}
	for _, tt := range tests {
		if got := tt.mode.ForcesOff(); got != tt.want {
			t.Errorf("%s.ForcesOff(): got %v, want %v", tt.mode, got, tt.want)
		}
	}
}
