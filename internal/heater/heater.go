// Package heater drives the tip heater.
//
// Drive values are 0..255 as produced by the control loop. Every Driver is
// safe for concurrent use: the control routine writes each tick and the
// input routine may force the heater off at any time.
package heater

// Driver is a PWM heater output.
type Driver interface {
	// SetDuty sets the drive value, clamped to 0..255.
	SetDuty(duty int) error
	// SetFrequency changes the PWM carrier frequency.
	SetFrequency(hz int) error
	// Off forces zero drive.
	Off() error
	// Close turns the heater off and releases the output.
	Close() error
}

// MaxDuty is the full-scale drive value.
const MaxDuty = 255
