package heater

import (
	"math"
	"sync"
	"time"

	"github.com/sweeney/t12-station/internal/mathx"
)

// SimConfig describes the simulated tip.
type SimConfig struct {
	Ambient    float64 // °C
	HeatRate   float64 // °C/s at full drive
	Loss       float64 // 1/s, Newtonian cooling towards ambient
	SupplyVolt float64

	// ADC model, the inverse of the sensor mapping.
	RawMax     uint16
	TempAtZero float64
	TempAtFull float64
	VRef       float64
	R1, R2     float64

	// TipRemoved makes the ADC read full scale, as an open thermocouple does.
	TipRemoved bool
}

// DefaultSimConfig is a T12 tip on a 24 V supply.
var DefaultSimConfig = SimConfig{
	Ambient:    22,
	HeatRate:   150,
	Loss:       0.3,
	SupplyVolt: 24,
	RawMax:     4095,
	TempAtZero: 0,
	TempAtFull: 450,
	VRef:       3.3,
	R1:         10000,
	R2:         1500,
}

// Sim is a lumped thermal model of the tip. It is a heater Driver and also
// serves the tip ADC and the ambient probe, so the station runs without
// hardware.
type Sim struct {
	mu   sync.Mutex
	cfg  SimConfig
	now  func() time.Time
	last time.Time
	temp float64
	duty int
	freq int
}

// NewSim creates a simulator at ambient temperature.
func NewSim(cfg SimConfig, now func() time.Time) *Sim {
	if now == nil {
		now = time.Now
	}
	return &Sim{cfg: cfg, now: now, last: now(), temp: cfg.Ambient}
}

// SetDuty integrates the model and changes the drive.
func (s *Sim) SetDuty(duty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.duty = mathx.Clamp(duty, 0, MaxDuty)
	return nil
}

// SetFrequency records the carrier; the model ignores it.
func (s *Sim) SetFrequency(hz int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freq = hz
	return nil
}

// Off sets zero drive.
func (s *Sim) Off() error { return s.SetDuty(0) }

// Close sets zero drive.
func (s *Sim) Close() error { return s.Off() }

// ReadTip returns the ADC count for the current tip temperature.
func (s *Sim) ReadTip() (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	if s.cfg.TipRemoved {
		return s.cfg.RawMax, nil
	}
	span := s.cfg.TempAtFull - s.cfg.TempAtZero
	if span <= 0 {
		return 0, nil
	}
	raw := (s.temp - s.cfg.TempAtZero) / span * float64(s.cfg.RawMax)
	return uint16(mathx.Clamp(math.Round(raw), 0, float64(s.cfg.RawMax))), nil
}

// ReadSupply returns the ADC count of the supply divider.
func (s *Sim) ReadSupply() (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.VRef <= 0 || s.cfg.R1+s.cfg.R2 <= 0 {
		return 0, nil
	}
	v := s.cfg.SupplyVolt * s.cfg.R2 / (s.cfg.R1 + s.cfg.R2)
	raw := v / s.cfg.VRef * float64(s.cfg.RawMax)
	return uint16(mathx.Clamp(math.Round(raw), 0, float64(s.cfg.RawMax))), nil
}

// ReadCelsius returns the simulated ambient temperature.
func (s *Sim) ReadCelsius() (float64, error) {
	return s.cfg.Ambient, nil
}

// Temperature returns the modelled tip temperature.
func (s *Sim) Temperature() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	return s.temp
}

// SetTipRemoved simulates pulling the tip out of the handle.
func (s *Sim) SetTipRemoved(removed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.TipRemoved = removed
}

func (s *Sim) advance() {
	now := s.now()
	dt := now.Sub(s.last).Seconds()
	s.last = now
	if dt <= 0 {
		return
	}
	heat := float64(s.duty) / MaxDuty * s.cfg.HeatRate
	for dt > 0 {
		step := math.Min(dt, simStep)
		s.temp += (heat - (s.temp-s.cfg.Ambient)*s.cfg.Loss) * step
		dt -= step
	}
}

// simStep bounds the Euler step in seconds.
const simStep = 0.01
