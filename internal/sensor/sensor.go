// Package sensor turns raw tip and ambient readings into a calibrated
// temperature with a fault flag.
//
// The tip thermocouple shares its path with the heater current, so every
// sample quiesces the heater for a short settle time before the ADC is read.
// The ambient sensor is slow and is read outside that window by
// RefreshAmbient; Sample only uses the cached value.
package sensor

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/asecurityteam/rolling"

	"github.com/sweeney/t12-station/internal/mathx"
)

// ErrNoProbe is returned by ReadAmbient when no ambient probe is attached.
var ErrNoProbe = errors.New("no ambient probe")

// Reading is one fully computed sample. A Reading is never partially updated.
type Reading struct {
	Tip         int     `json:"tip"`     // °C, FaultTemperature when Fault is set
	Ambient     int     `json:"ambient"` // °C, last plausible probe value
	SupplyVolts float64 `json:"supply_volts"`
	Fault       bool    `json:"fault"`
	Raw         uint16  `json:"raw"` // averaged tip ADC count
}

// ADC reads the tip and supply channels.
type ADC interface {
	ReadTip() (uint16, error)
	ReadSupply() (uint16, error)
}

// BurstADC is an ADC that averages n tip conversions itself and returns the
// supply count from the same cycle.
type BurstADC interface {
	ReadBurst(n int) (tip, supply uint16, err error)
}

// Quiescer forces the heater drive to zero before sensing.
type Quiescer interface {
	Off() error
}

// Probe is an ambient temperature probe.
type Probe interface {
	ReadCelsius() (float64, error)
}

// Config holds the sensing constants.
type Config struct {
	Samples          int           // raw reads averaged per sample
	Settle           time.Duration // heater-off wait before reading
	RawMax           uint16        // full-scale ADC count
	Saturation       uint16        // averaged count above this is a fault
	TempAtZero       int           // °C at raw 0
	TempAtFull       int           // °C at RawMax
	FaultTemperature int           // reported Tip while faulted

	AmbientMin     float64 // exclusive
	AmbientMax     float64 // exclusive
	InitialAmbient int

	CalMin int // plausible implied temperature during calibration
	CalMax int

	VRef float64 // ADC reference voltage
	R1   float64 // supply divider, high side
	R2   float64 // supply divider, low side
}

// Sensor is the calibrated tip sensor. Sample and Calibrate belong to the
// control routine; RefreshAmbient and Ambient may be called from any goroutine.
type Sensor struct {
	cfg    Config
	adc    ADC
	heater Quiescer
	probe  Probe
	window *rolling.PointPolicy

	sleep func(time.Duration)

	volts float64

	mu      sync.Mutex
	ambient int
}

// New creates a sensor. probe may be nil, in which case the ambient value
// stays at cfg.InitialAmbient and calibration is never accepted.
func New(cfg Config, adc ADC, heater Quiescer, probe Probe) *Sensor {
	if cfg.Samples < 1 {
		cfg.Samples = 1
	}
	return &Sensor{
		cfg:     cfg,
		adc:     adc,
		heater:  heater,
		probe:   probe,
		window:  rolling.NewPointPolicy(rolling.NewWindow(cfg.Samples)),
		sleep:   time.Sleep,
		ambient: cfg.InitialAmbient,
	}
}

// SetSleep replaces the settle wait. Used in tests.
func (s *Sensor) SetSleep(sleep func(time.Duration)) {
	s.sleep = sleep
}

// Sample quiesces the heater, reads the tip, and applies offset. Ambient is
// the cached value.
func (s *Sensor) Sample(offset int) Reading {
	raw, supply, supplyOK, err := s.quiescedRaw()
	if err == nil && !supplyOK {
		supply, supplyOK = s.readSupply()
	}

	r := Reading{
		Raw:         raw,
		SupplyVolts: s.supply(supply, supplyOK),
		Ambient:     s.Ambient(),
	}
	switch {
	case err != nil:
		log.Printf("sensor: tip read failed: %v", err)
		r.Fault = true
	case raw > s.cfg.Saturation:
		r.Fault = true
	}
	if r.Fault {
		r.Tip = s.cfg.FaultTemperature
		return r
	}
	r.Tip = max(0, s.implied(raw)+offset)
	return r
}

// Calibrate computes a new offset from a fresh ambient value and a heater-off
// reading. Ambient is read before the heater is quiesced. It
// returns the current offset and false when either input is implausible.
func (s *Sensor) Calibrate(offset int) (int, bool) {
	amb, err := s.ReadAmbient()
	if err != nil {
		log.Printf("sensor: calibration rejected, ambient: %v", err)
		return offset, false
	}
	s.setAmbient(amb)

	raw, _, _, err := s.quiescedRaw()
	if err != nil {
		log.Printf("sensor: calibration read failed: %v", err)
		return offset, false
	}
	if raw > s.cfg.Saturation {
		log.Printf("sensor: calibration rejected, saturated raw=%d", raw)
		return offset, false
	}
	implied := s.implied(raw)
	if !mathx.Between(implied, s.cfg.CalMin, s.cfg.CalMax) {
		log.Printf("sensor: calibration rejected, implied=%d", implied)
		return offset, false
	}
	return amb - implied, true
}

// RefreshAmbient reads ambient now and caches a plausible value. An implausible
// or failed read keeps the previous value. It returns the cached value.
func (s *Sensor) RefreshAmbient() int {
	amb, err := s.ReadAmbient()
	if err == nil {
		s.setAmbient(amb)
	} else if !errors.Is(err, ErrNoProbe) {
		log.Printf("sensor: ambient read: %v", err)
	}
	return s.Ambient()
}

// Ambient returns the last plausible ambient value.
func (s *Sensor) Ambient() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ambient
}

func (s *Sensor) setAmbient(c int) {
	s.mu.Lock()
	s.ambient = c
	s.mu.Unlock()
}

// ReadAmbient reads the probe immediately and validates the value.
func (s *Sensor) ReadAmbient() (int, error) {
	if s.probe == nil {
		return 0, ErrNoProbe
	}
	c, err := s.probe.ReadCelsius()
	if err != nil {
		return 0, err
	}
	if !s.plausible(c) {
		return 0, &RangeError{Value: c}
	}
	return int(math.Round(c)), nil
}

// RangeError reports an ambient value outside the plausible range.
type RangeError struct {
	Value float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("implausible ambient reading %.1f°C", e.Value)
}

func (s *Sensor) plausible(c float64) bool {
	return c > s.cfg.AmbientMin && c < s.cfg.AmbientMax
}

// quiescedRaw returns the averaged tip count. A BurstADC also yields the
// supply count of the same cycle, and supplyOK is set.
func (s *Sensor) quiescedRaw() (tip, supply uint16, supplyOK bool, err error) {
	if err := s.heater.Off(); err != nil {
		log.Printf("sensor: heater quiesce failed: %v", err)
	}
	s.sleep(s.cfg.Settle)
	if b, ok := s.adc.(BurstADC); ok {
		tip, supply, err = b.ReadBurst(s.cfg.Samples)
		return tip, supply, err == nil, err
	}
	for i := 0; i < s.cfg.Samples; i++ {
		v, err := s.adc.ReadTip()
		if err != nil {
			return 0, 0, false, err
		}
		s.window.Append(float64(v))
	}
	avg := s.window.Reduce(rolling.Avg)
	return uint16(math.Round(avg)), 0, false, nil
}

func (s *Sensor) implied(raw uint16) int {
	return mathx.Map(int(raw), 0, int(s.cfg.RawMax), s.cfg.TempAtZero, s.cfg.TempAtFull)
}

func (s *Sensor) readSupply() (uint16, bool) {
	v, err := s.adc.ReadSupply()
	return v, err == nil
}

func (s *Sensor) supply(v uint16, ok bool) float64 {
	if !ok || s.cfg.RawMax == 0 {
		return s.volts
	}
	volts := float64(v) / float64(s.cfg.RawMax) * s.cfg.VRef
	if s.cfg.R2 > 0 {
		volts = volts * (s.cfg.R1 + s.cfg.R2) / s.cfg.R2
	}
	s.volts = volts
	return volts
}
