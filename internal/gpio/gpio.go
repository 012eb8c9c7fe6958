// Package gpio reads the iron's input lines: the rotary encoder, its push
// button, and the handle contact switch.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Sample is one reading of all input lines, already in logical form.
type Sample struct {
	Position int64 // encoder detents since open, clockwise positive
	Button   bool  // true = pressed
	Handle   bool  // true = handle in contact
}

// Reader reads the input lines.
type Reader interface {
	// Read returns the current encoder position and line states.
	Read() (Sample, error)

	// Close releases GPIO resources.
	Close() error
}

// Pins names the input lines (BCM numbering on a Raspberry Pi).
type Pins struct {
	Chip   string
	CLK    int // encoder clock; a falling edge is one detent
	DT     int // encoder data; level at the CLK edge gives direction
	Button int // active low, pulled up
	Handle int // active low, pulled up

	// Debounce is applied by the kernel to the CLK line.
	Debounce time.Duration
}

// DefaultPins matches the reference wiring.
var DefaultPins = Pins{
	Chip:     "gpiochip0",
	CLK:      17,
	DT:       27,
	Button:   22,
	Handle:   23,
	Debounce: 2 * time.Millisecond,
}
