// Package input turns raw input line samples into discrete events for the
// mode machine.
// It never touches hardware and time is always passed in.
package input

import (
	"time"

	"github.com/sweeney/t12-station/internal/gpio"
	"github.com/sweeney/t12-station/internal/logic"
)

// Config tunes the decoder.
type Config struct {
	// LongPress is how long the button must be held for a LongPress. The
	// event fires once while the button is still held.
	LongPress time.Duration
	// HandleDebounce is the number of consecutive agreeing samples needed
	// before a handle contact change is reported.
	HandleDebounce int
}

// Decoder converts successive samples into events. It is not safe for
// concurrent use.
type Decoder struct {
	cfg Config

	primed   bool
	position int64

	pressed    bool
	pressStart time.Time
	longFired  bool

	handle      bool // debounced state
	handleCount int
}

// NewDecoder creates a decoder. The handle is assumed released at start.
func NewDecoder(cfg Config) *Decoder {
	if cfg.HandleDebounce < 1 {
		cfg.HandleDebounce = 1
	}
	return &Decoder{cfg: cfg}
}

// Decode consumes one sample taken at now and returns the resulting events in
// order: handle contact, rotation, button.
func (d *Decoder) Decode(s gpio.Sample, now time.Time) []logic.Event {
	var events []logic.Event

	if ev, ok := d.decodeHandle(s.Handle, now); ok {
		events = append(events, ev)
	}
	if ev, ok := d.decodeRotation(s.Position, now); ok {
		events = append(events, ev)
	}
	if ev, ok := d.decodeButton(s.Button, now); ok {
		events = append(events, ev)
	}
	return events
}

func (d *Decoder) decodeHandle(active bool, now time.Time) (logic.Event, bool) {
	if active == d.handle {
		d.handleCount = 0
		return logic.Event{}, false
	}
	d.handleCount++
	if d.handleCount < d.cfg.HandleDebounce {
		return logic.Event{}, false
	}
	d.handle = active
	d.handleCount = 0
	return logic.Event{Kind: logic.EventHandleContact, Active: active, Time: now}, true
}

func (d *Decoder) decodeRotation(pos int64, now time.Time) (logic.Event, bool) {
	if !d.primed {
		d.primed = true
		d.position = pos
		return logic.Event{}, false
	}
	delta := pos - d.position
	d.position = pos
	if delta == 0 {
		return logic.Event{}, false
	}
	dir := 1
	if delta < 0 {
		dir = -1
		delta = -delta
	}
	return logic.Event{Kind: logic.EventRotate, Direction: dir, Magnitude: int(delta), Time: now}, true
}

func (d *Decoder) decodeButton(pressed bool, now time.Time) (logic.Event, bool) {
	switch {
	case pressed && !d.pressed:
		d.pressed = true
		d.pressStart = now
		d.longFired = false
	case pressed && !d.longFired && now.Sub(d.pressStart) >= d.cfg.LongPress:
		d.longFired = true
		return logic.Event{Kind: logic.EventLongPress, Time: now}, true
	case !pressed && d.pressed:
		d.pressed = false
		if !d.longFired {
			return logic.Event{Kind: logic.EventShortPress, Time: now}, true
		}
	}
	return logic.Event{}, false
}
