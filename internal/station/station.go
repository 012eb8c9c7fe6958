// Package station runs the concurrent routines of the iron against one
// shared state tracker:
//
//	input      polls the lines, drives the mode machine, forces the heater off
//	control    samples the tip, runs the PID loop, writes the heater
//	display    renders snapshots
//	telemetry  reports snapshots, best effort
//	persist    saves settings once they have been stable
//	ambient    refreshes the ambient reading off the control path
//
// Each field of the shared state has exactly one writing routine. The mode
// machine and decoder belong to input; the loop and sensor belong to control.
package station

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/t12-station/internal/control"
	"github.com/sweeney/t12-station/internal/display"
	"github.com/sweeney/t12-station/internal/gpio"
	"github.com/sweeney/t12-station/internal/heater"
	"github.com/sweeney/t12-station/internal/input"
	"github.com/sweeney/t12-station/internal/logic"
	"github.com/sweeney/t12-station/internal/sensor"
	"github.com/sweeney/t12-station/internal/settings"
	"github.com/sweeney/t12-station/internal/status"
	"github.com/sweeney/t12-station/internal/telemetry"
)

// ErrDeepSleep is returned by Run after the orderly deep-sleep shutoff. The
// process should exit; waking is a restart.
var ErrDeepSleep = errors.New("deep sleep")

// Config collects the station tunables.
type Config struct {
	Logic            logic.Config
	Control          control.Config
	Input            input.Config
	Defaults         logic.Settings
	SettingsDebounce time.Duration

	InputPeriod     time.Duration
	DisplayPeriod   time.Duration
	TelemetryPeriod time.Duration
	PersistPeriod   time.Duration
	AmbientPeriod   time.Duration // defaults to 2s
}

// Deps are the collaborators of a station.
type Deps struct {
	GPIO      gpio.Reader
	Heater    heater.Driver
	Sensor    *sensor.Sensor
	Display   display.Renderer
	Telemetry telemetry.Publisher
	Store     settings.Store
	Tracker   *status.Tracker
	Now       func() time.Time
}

// boostRequest carries the setpoint after the reactivating transition; the
// control routine may still hold a snapshot from before it.
type boostRequest struct {
	idle     time.Duration
	setpoint int
}

type calResult struct {
	seq    uint64
	offset int
	ok     bool
}

// Station owns the routines.
type Station struct {
	cfg  Config
	deps Deps
	now  func() time.Time

	debouncer *settings.Debouncer
	reporter  *telemetry.Reporter

	boosts     chan boostRequest
	calResults chan calResult

	// driveMu orders control writes against the forced-off path.
	driveMu sync.Mutex
	// displayMu serialises the display routine and the deep-sleep blank.
	displayMu sync.Mutex

	// input routine
	machine    *logic.Machine
	decoder    *input.Decoder
	gpioFailed bool

	// control routine
	loop    *control.Loop
	freq    int
	calDone uint64
	ticks   uint64

	displayFailed bool
}

// New loads the persisted settings and builds the station. A settings load
// failure other than absence is logged and the defaults are used.
func New(cfg Config, deps Deps) *Station {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Nop{}
	}
	if cfg.AmbientPeriod <= 0 {
		cfg.AmbientPeriod = 2 * time.Second
	}
	now := deps.Now()

	loaded, err := deps.Store.Load(cfg.Defaults)
	if err != nil {
		log.Printf("settings: load failed, using defaults: %v", err)
		loaded = cfg.Defaults
	}

	s := &Station{
		cfg:        cfg,
		deps:       deps,
		now:        deps.Now,
		debouncer:  settings.NewDebouncer(deps.Store, cfg.SettingsDebounce, loaded),
		reporter:   telemetry.NewReporter(deps.Telemetry),
		boosts:     make(chan boostRequest, 1),
		calResults: make(chan calResult, 1),
		machine:    logic.NewMachine(cfg.Logic, loaded, now),
		decoder:    input.NewDecoder(cfg.Input),
		loop:       control.NewLoop(cfg.Control),
	}
	deps.Tracker.LoadSettings(s.machine.Settings())
	s.publishMode()
	log.Printf("settings: target=%d pwm=%d freq=%d delay=%d offset=%d",
		loaded.TargetTemperature, loaded.PWMBaseline, loaded.PWMFrequencyHz,
		loaded.ControlPeriodMs, loaded.CalibrationOffset)
	return s
}

// Run starts the routines and blocks until ctx is cancelled or deep sleep is
// entered. The heater is off when Run returns.
func (s *Station) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return every(ctx, s.cfg.InputPeriod, s.now, s.inputStep) })
	g.Go(func() error { return s.runControl(ctx) })
	g.Go(func() error {
		return every(ctx, s.cfg.DisplayPeriod, s.now, func(time.Time) error {
			s.displayStep()
			return nil
		})
	})
	g.Go(func() error {
		return every(ctx, s.cfg.TelemetryPeriod, s.now, func(time.Time) error {
			s.telemetryStep()
			return nil
		})
	})
	g.Go(func() error {
		return every(ctx, s.cfg.PersistPeriod, s.now, func(t time.Time) error {
			s.debouncer.Poll(t)
			return nil
		})
	})
	g.Go(func() error {
		s.deps.Sensor.RefreshAmbient()
		return every(ctx, s.cfg.AmbientPeriod, s.now, func(time.Time) error {
			s.deps.Sensor.RefreshAmbient()
			return nil
		})
	})

	err := g.Wait()
	s.forceOff()
	return err
}

// Flush saves pending settings immediately.
func (s *Station) Flush() error {
	return s.debouncer.Flush()
}

// every calls fn each period until ctx is done or fn fails.
func every(ctx context.Context, period time.Duration, now func() time.Time, fn func(time.Time) error) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(now()); err != nil {
				return err
			}
		}
	}
}

// runControl ticks at the persisted control period, re-armed every tick so
// a changed period applies to the next one.
func (s *Station) runControl(ctx context.Context) error {
	timer := time.NewTimer(s.controlPeriod())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			s.controlStep(s.now())
			timer.Reset(s.controlPeriod())
		}
	}
}

func (s *Station) controlPeriod() time.Duration {
	ms := s.deps.Tracker.Snapshot().Settings.ControlPeriodMs
	if ms <= 0 {
		ms = s.cfg.Defaults.ControlPeriodMs
	}
	return time.Duration(ms) * time.Millisecond
}

// inputStep reads one sample, applies the decoded events, any finished
// calibration, and the idle timers. It returns ErrDeepSleep once the
// deep-sleep shutoff has run.
func (s *Station) inputStep(now time.Time) error {
	sample, err := s.deps.GPIO.Read()
	if err != nil {
		if !s.gpioFailed {
			log.Printf("gpio read error: %v", err)
			s.gpioFailed = true
		}
	} else {
		s.gpioFailed = false
		for _, ev := range s.decoder.Decode(sample, now) {
			s.apply(s.machine.Handle(ev))
		}
	}

	select {
	case c := <-s.calResults:
		if c.ok {
			log.Printf("calibration: offset=%d", c.offset)
		} else {
			log.Printf("calibration: rejected, offset unchanged")
		}
		s.apply(s.machine.FinishCalibration(c.seq, c.offset, c.ok, now))
	default:
	}

	s.apply(s.machine.Advance(now))
	s.publishMode()
	s.debouncer.Observe(s.machine.Settings(), now)

	if s.machine.Mode() == logic.ModeDeepSleep {
		return s.deepSleep()
	}
	return nil
}

func (s *Station) apply(r logic.Result) {
	if r.Changed {
		log.Printf("mode: %s setpoint=%d", r.Mode, s.machine.Setpoint())
	}
	if r.ForcedOff {
		// Publish first so a concurrent control write sees the new mode.
		s.publishMode()
		s.forceOff()
	}
	if r.Reactivated {
		req := boostRequest{idle: r.Idle, setpoint: s.machine.Setpoint()}
		select {
		case s.boosts <- req:
		default:
			// replace a request the control routine has not taken yet
			select {
			case <-s.boosts:
			default:
			}
			s.boosts <- req
		}
	}
}

func (s *Station) publishMode() {
	m := s.machine
	s.deps.Tracker.PublishMode(status.ModeState{
		Mode:           m.Mode(),
		Menu:           m.Menu(),
		Settings:       m.Settings(),
		Setpoint:       m.Setpoint(),
		HandleActive:   m.HandleActive(),
		CalibrationSeq: m.CalibrationSeq(),
	})
}

// deepSleep runs the orderly shutoff: heater off, display blank, pending
// settings saved.
func (s *Station) deepSleep() error {
	s.forceOff()

	s.displayMu.Lock()
	if err := s.deps.Display.Blank(); err != nil {
		log.Printf("display: blank failed: %v", err)
	}
	s.displayMu.Unlock()

	if err := s.debouncer.Flush(); err != nil {
		log.Printf("settings: flush before deep sleep failed: %v", err)
	}
	log.Printf("entering deep sleep")
	return ErrDeepSleep
}

// forceOff writes zero drive outside the control tick.
func (s *Station) forceOff() {
	s.driveMu.Lock()
	defer s.driveMu.Unlock()
	if err := s.deps.Heater.Off(); err != nil {
		log.Printf("heater: off failed: %v", err)
	}
}

// writeDrive writes the tick result. A mode that forces the heater off
// published since the tick started wins over the computed value.
func (s *Station) writeDrive(out int) int {
	s.driveMu.Lock()
	defer s.driveMu.Unlock()
	if s.deps.Tracker.Snapshot().Mode.ForcesOff() {
		out = 0
	}
	if err := s.deps.Heater.SetDuty(out); err != nil {
		log.Printf("heater: write failed: %v", err)
	}
	return out
}

// controlStep runs one control period: frequency sync, a pending
// calibration, one sample, one loop tick, one heater write.
func (s *Station) controlStep(now time.Time) {
	snap := s.deps.Tracker.Snapshot()
	set := snap.Settings

	if set.PWMFrequencyHz > 0 && set.PWMFrequencyHz != s.freq {
		if err := s.deps.Heater.SetFrequency(set.PWMFrequencyHz); err != nil {
			log.Printf("heater: set frequency %d failed: %v", set.PWMFrequencyHz, err)
		} else {
			s.freq = set.PWMFrequencyHz
		}
	}

	if snap.Mode == logic.ModeCalibrating && snap.CalibrationSeq != s.calDone {
		offset, ok := s.deps.Sensor.Calibrate(set.CalibrationOffset)
		s.calDone = snap.CalibrationSeq
		select {
		case s.calResults <- calResult{seq: snap.CalibrationSeq, offset: offset, ok: ok}:
		default:
		}
	}

	r := s.deps.Sensor.Sample(set.CalibrationOffset)

	setpoint := snap.Setpoint
	select {
	case req := <-s.boosts:
		setpoint = req.setpoint
		if kind := s.loop.StartBoost(req.idle, setpoint, r, set.PWMBaseline, now); kind != control.BoostNone {
			st := s.loop.State()
			log.Printf("boost: %s value=%d until=%s", kind, st.BoostValue, st.BoostDeadline.Format("15:04:05.000"))
		}
	default:
	}

	out := s.writeDrive(s.loop.Tick(setpoint, r, now))
	s.ticks++

	s.deps.Tracker.PublishControl(status.ControlState{
		Reading: r,
		Loop:    s.loop.State(),
		Drive:   out,
		Ticks:   s.ticks,
	})
}

func (s *Station) displayStep() {
	s.displayMu.Lock()
	defer s.displayMu.Unlock()
	if err := s.deps.Display.Render(s.deps.Tracker.Snapshot()); err != nil {
		if !s.displayFailed {
			log.Printf("display: render failed: %v", err)
			s.displayFailed = true
		}
		return
	}
	s.displayFailed = false
}

func (s *Station) telemetryStep() {
	if cs, ok := s.deps.Telemetry.(telemetry.ConnectionStatus); ok {
		s.deps.Tracker.SetMQTTConnected(cs.IsConnected())
	}
	s.reporter.Report(s.deps.Tracker.Snapshot())
}
