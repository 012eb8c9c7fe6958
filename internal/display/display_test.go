package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/t12-station/internal/control"
	"github.com/sweeney/t12-station/internal/logic"
	"github.com/sweeney/t12-station/internal/sensor"
	"github.com/sweeney/t12-station/internal/status"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func snapshot(mode logic.Mode) status.Snapshot {
	return status.Snapshot{
		ModeState: status.ModeState{
			Mode:     mode,
			Setpoint: 320,
			Settings: logic.Settings{TargetTemperature: 320, PWMBaseline: 30, PWMFrequencyHz: 2000, ControlPeriodMs: 100},
		},
		ControlState: status.ControlState{
			Reading: sensor.Reading{Tip: 318, Ambient: 23, SupplyVolts: 24},
			Drive:   255,
		},
		Now:    t0,
		Config: status.Config{HeaterOhms: 8},
	}
}

func TestActiveScreen(t *testing.T) {
	lines := Lines(snapshot(logic.ModeActive))

	want := []string{
		"HEAT         RT:23",
		"TIP 318C",
		"SET 320C",
		"P30 F2000 D100",
		"72W          24.0V",
	}
	if len(lines) != len(want) {
		t.Fatalf("lines: got %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestBoostHeader(t *testing.T) {
	snap := snapshot(logic.ModeActive)
	snap.Loop = control.State{BoostKind: control.BoostCold, BoostValue: 90, BoostDeadline: t0.Add(time.Second)}

	if got := Lines(snap)[0]; !strings.HasPrefix(got, "BOOST!") {
		t.Errorf("header: got %q, want BOOST! prefix", got)
	}
}

func TestModeScreens(t *testing.T) {
	tests := []struct {
		mode  logic.Mode
		first string
	}{
		{logic.ModeMaintenance, "MAINTENANCE"},
		{logic.ModeCalibrating, "CALIBRATING"},
		{logic.ModeMenu, "MENU"},
		{logic.ModeSleep, "SLEEP"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			lines := Lines(snapshot(tt.mode))
			if len(lines) == 0 || lines[0] != tt.first {
				t.Errorf("first line: got %q, want %q", lines, tt.first)
			}
		})
	}
}

func TestDeepSleepIsBlank(t *testing.T) {
	if lines := Lines(snapshot(logic.ModeDeepSleep)); lines != nil {
		t.Errorf("deep sleep: got %q, want blank", lines)
	}
}

func TestFaultScreen(t *testing.T) {
	snap := snapshot(logic.ModeActive)
	snap.Reading = sensor.Reading{Tip: 999, Fault: true}

	lines := Lines(snap)
	if lines[0] != "FAULT" {
		t.Errorf("header: got %q, want FAULT", lines[0])
	}
	if lines[2] != "NO TIP" {
		t.Errorf("line 2: got %q, want NO TIP", lines[2])
	}
}

func TestMaintenanceWinsOverFault(t *testing.T) {
	snap := snapshot(logic.ModeMaintenance)
	snap.Reading.Fault = true
	if got := Lines(snap)[0]; got != "MAINTENANCE" {
		t.Errorf("header: got %q, want MAINTENANCE", got)
	}
}

func TestMenuCursor(t *testing.T) {
	snap := snapshot(logic.ModeMenu)
	snap.Menu = logic.MenuState{Open: true, Index: 2}

	lines := Lines(snap)
	want := []string{"MENU", "", "  back", "  recalibrate", "> sleep"}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestAODShifts(t *testing.T) {
	snap := snapshot(logic.ModeAOD)
	snap.Setpoint = 150

	a := Lines(snap)
	snap.Now = t0.Add(5 * time.Second)
	b := Lines(snap)

	if strings.TrimSpace(a[0]) != "AOD" || strings.TrimSpace(b[0]) != "AOD" {
		t.Fatalf("header: got %q / %q", a[0], b[0])
	}
	if a[0] == b[0] {
		t.Errorf("AOD screen should move: both %q", a[0])
	}
	if strings.TrimSpace(b[3]) != "SET 150C" {
		t.Errorf("setpoint line: got %q", b[3])
	}
}

func TestLinesFitPanel(t *testing.T) {
	snap := snapshot(logic.ModeActive)
	snap.Settings.PWMFrequencyHz = 50000
	snap.Settings.ControlPeriodMs = 1000
	snap.Settings.PWMBaseline = 255

	for _, mode := range []logic.Mode{logic.ModeActive, logic.ModeAOD, logic.ModeMenu, logic.ModeMaintenance} {
		snap.Mode = mode
		for i := 0; i < 4; i++ {
			snap.Now = t0.Add(time.Duration(i) * 5 * time.Second)
			lines := Lines(snap)
			if len(lines) > Rows {
				t.Errorf("%s: %d rows, max %d", mode, len(lines), Rows)
			}
			for _, l := range lines {
				if len(l) > Columns {
					t.Errorf("%s: %q exceeds %d columns", mode, l, Columns)
				}
			}
		}
	}
}

func TestConsoleSkipsUnchanged(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	snap := snapshot(logic.ModeActive)
	c.Render(snap)
	c.Render(snap)
	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Errorf("renders: got %d lines, want 1", n)
	}

	snap.Reading.Tip = 319
	c.Render(snap)
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Errorf("renders after change: got %d lines, want 2", n)
	}

	c.Blank()
	if !strings.HasSuffix(buf.String(), "[]\n") {
		t.Errorf("blank: got %q", buf.String())
	}
}

func TestFakeRecords(t *testing.T) {
	f := &Fake{}
	f.Render(snapshot(logic.ModeMenu))
	if got := f.Last(); got[0] != "MENU" {
		t.Errorf("last: got %q", got)
	}
	f.Blank()
	if f.Last() != nil || f.Blanks() != 1 || f.Renders() != 2 {
		t.Errorf("after blank: last=%q blanks=%d renders=%d", f.Last(), f.Blanks(), f.Renders())
	}
}
