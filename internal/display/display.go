// Package display renders station snapshots on the operator screen.
// Screens are built as plain text lines so every renderer shows the same
// content and tests need no hardware.
package display

import (
	"fmt"
	"strings"

	"github.com/sweeney/t12-station/internal/logic"
	"github.com/sweeney/t12-station/internal/status"
)

// Columns and Rows are the text grid of a 128x64 panel with a 7x13 font.
const (
	Columns = 18
	Rows    = 5
)

// Renderer shows snapshots. It reads the state and never changes it.
type Renderer interface {
	Render(snap status.Snapshot) error
	// Blank clears the panel (deep sleep).
	Blank() error
	Close() error
}

// Lines returns the screen for snap. A nil result is a blank screen.
func Lines(snap status.Snapshot) []string {
	switch {
	case snap.Mode == logic.ModeDeepSleep:
		return nil
	case snap.Mode == logic.ModeMenu:
		return menuScreen(snap)
	case snap.Mode == logic.ModeCalibrating:
		return []string{
			"CALIBRATING",
			"",
			"heater off",
			fmt.Sprintf("RT %dC", snap.Reading.Ambient),
		}
	case snap.Mode == logic.ModeMaintenance:
		return []string{
			"MAINTENANCE",
			"",
			"SAFE",
			"HEATER DISABLED",
		}
	case snap.Reading.Fault:
		return []string{
			status.StatusFault,
			"",
			"NO TIP",
			"heater off",
		}
	case snap.Mode.Idle():
		return idleScreen(snap)
	}
	return activeScreen(snap)
}

func activeScreen(snap status.Snapshot) []string {
	head := "HEAT"
	if snap.Boosting() {
		head = "BOOST!"
	}
	s := snap.Settings
	return []string{
		row(head, fmt.Sprintf("RT:%d", snap.Reading.Ambient)),
		fmt.Sprintf("TIP %dC", snap.Reading.Tip),
		fmt.Sprintf("SET %dC", snap.Setpoint),
		fmt.Sprintf("P%d F%d D%d", s.PWMBaseline, s.PWMFrequencyHz, s.ControlPeriodMs),
		row(fmt.Sprintf("%.0fW", snap.Power()), fmt.Sprintf("%.1fV", snap.Reading.SupplyVolts)),
	}
}

// idleScreen shifts the text every few seconds in AOD to spread panel wear.
func idleScreen(snap status.Snapshot) []string {
	lines := []string{
		string(snap.Mode),
		"",
		fmt.Sprintf("TIP %dC", snap.Reading.Tip),
		fmt.Sprintf("SET %dC", snap.Setpoint),
	}
	if snap.Mode != logic.ModeAOD {
		return lines
	}
	pad := strings.Repeat(" ", int(snap.Now.Unix()/5%4))
	for i, l := range lines {
		if l != "" {
			lines[i] = clip(pad + l)
		}
	}
	return lines
}

func menuScreen(snap status.Snapshot) []string {
	lines := []string{"MENU", ""}
	items := []logic.MenuItem{logic.MenuBack, logic.MenuRecalibrate, logic.MenuDeepSleep}
	for i, item := range items {
		cursor := "  "
		if i == snap.Menu.Index {
			cursor = "> "
		}
		lines = append(lines, cursor+item.String())
	}
	return lines
}

// row puts left and right on one line, right-aligned to the panel width.
func row(left, right string) string {
	gap := Columns - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return clip(left + strings.Repeat(" ", gap) + right)
}

func clip(s string) string {
	if len(s) > Columns {
		return s[:Columns]
	}
	return s
}

func equal(a, b []string) bool {
	if len(a) != len(b) || (a == nil) != (b == nil) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
