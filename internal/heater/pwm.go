package heater

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/sweeney/t12-station/internal/mathx"
)

// PWM drives the heater MOSFET from a hardware PWM pin through periph.io.
type PWM struct {
	mu   sync.Mutex
	pin  gpio.PinIO
	freq physic.Frequency
	duty int
}

// NewPWM initialises the host drivers and claims the named pin, leaving the
// heater off.
func NewPWM(pinName string, hz int) (*PWM, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host: %w", err)
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("heater pin %q not found", pinName)
	}
	p := &PWM{pin: pin, freq: physic.Frequency(hz) * physic.Hertz}
	if err := p.Off(); err != nil {
		return nil, err
	}
	return p, nil
}

// SetDuty sets the drive value.
func (p *PWM) SetDuty(duty int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.apply(mathx.Clamp(duty, 0, MaxDuty))
}

// SetFrequency changes the carrier and re-applies the current drive.
func (p *PWM) SetFrequency(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("invalid pwm frequency %d", hz)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freq = physic.Frequency(hz) * physic.Hertz
	return p.apply(p.duty)
}

// Off forces zero drive.
func (p *PWM) Off() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.apply(0)
}

// Close turns the heater off and halts the pin.
func (p *PWM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.apply(0); err != nil {
		return err
	}
	return p.pin.Halt()
}

func (p *PWM) apply(duty int) error {
	var err error
	if duty == 0 {
		err = p.pin.Out(gpio.Low)
	} else {
		d := gpio.Duty(int64(duty) * int64(gpio.DutyMax) / MaxDuty)
		err = p.pin.PWM(d, p.freq)
	}
	if err != nil {
		return fmt.Errorf("heater pin %s: %w", p.pin, err)
	}
	p.duty = duty
	return nil
}
