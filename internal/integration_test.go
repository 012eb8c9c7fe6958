package internal

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sweeney/t12-station/internal/collector"
	"github.com/sweeney/t12-station/internal/config"
	"github.com/sweeney/t12-station/internal/display"
	"github.com/sweeney/t12-station/internal/gpio"
	"github.com/sweeney/t12-station/internal/heater"
	"github.com/sweeney/t12-station/internal/input"
	"github.com/sweeney/t12-station/internal/sensor"
	"github.com/sweeney/t12-station/internal/settings"
	"github.com/sweeney/t12-station/internal/station"
	"github.com/sweeney/t12-station/internal/status"
	"github.com/sweeney/t12-station/internal/telemetry"
	"github.com/sweeney/t12-station/internal/web"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// simSpeed runs the thermal model faster than the wall clock. Higher values
// make the discrete loop unstable at the default gains.
const simSpeed = 5

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Modes.AODAfter = 0
	cfg.Modes.SleepAfter = 0
	cfg.Input.HandleDebounce = 1
	cfg.Defaults.ControlPeriodMs = 10
	cfg.Settings.Debounce = 50 * time.Millisecond
	cfg.Routines = config.RoutinesConfig{
		Input:     time.Millisecond,
		Display:   5 * time.Millisecond,
		Telemetry: 20 * time.Millisecond,
		Persist:   10 * time.Millisecond,
	}
	return cfg
}

type bench struct {
	cfg     *config.Config
	sim     *heater.Sim
	tracker *status.Tracker
	st      *station.Station
	store   *collector.Store
	web     string // status page base URL
}

// newBench wires a station against the thermal model, with telemetry posted
// to a collector and the status page served on a loopback port.
func newBench(t *testing.T, cfg *config.Config, samples []gpio.Sample, store settings.Store) *bench {
	t.Helper()
	start := time.Now()
	simClock := func() time.Time { return start.Add(time.Since(start) * simSpeed) }

	b := &bench{
		cfg:     cfg,
		sim:     heater.NewSim(heater.DefaultSimConfig, simClock),
		tracker: status.NewTracker(start, status.Config{HeaterOhms: cfg.Supply.HeaterOhms}),
		store:   &collector.Store{},
	}

	sink := httptest.NewServer(collector.Router(b.store, nil))
	t.Cleanup(sink.Close)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := web.New("", b.tracker)
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	b.web = "http://" + ln.Addr().String()

	sens := sensor.New(cfg.SensorConfig(), b.sim, b.sim, b.sim)
	b.st = station.New(station.Config{
		Logic:            cfg.Logic(),
		Control:          cfg.Control(),
		Input:            input.Config{LongPress: cfg.Input.LongPress, HandleDebounce: cfg.Input.HandleDebounce},
		Defaults:         cfg.DefaultSettings(),
		SettingsDebounce: cfg.Settings.Debounce,
		InputPeriod:      cfg.Routines.Input,
		DisplayPeriod:    cfg.Routines.Display,
		TelemetryPeriod:  cfg.Routines.Telemetry,
		PersistPeriod:    cfg.Routines.Persist,
		AmbientPeriod:    cfg.Sensor.AmbientInterval,
	}, station.Deps{
		GPIO:      gpio.NewFakeReader(samples),
		Heater:    b.sim,
		Sensor:    sens,
		Display:   &display.Fake{},
		Telemetry: telemetry.NewHTTPPublisher(sink.URL+"/post", nil),
		Store:     store,
		Tracker:   b.tracker,
	})
	return b
}

// start runs the station until the test ends.
func (b *bench) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := b.st.Run(ctx); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func near(got, want, tol int) bool {
	d := got - want
	return d >= -tol && d <= tol
}

func TestIntegrationHeatUpToTarget(t *testing.T) {
	b := newBench(t, testConfig(), []gpio.Sample{{Handle: true}}, &settings.MemStore{})
	b.start(t)

	// the cold-start boost holds a low drive for its window first
	waitFor(t, 8*time.Second, "tip to reach the target", func() bool {
		return near(b.tracker.Snapshot().Reading.Tip, 320, 25)
	})

	snap := b.tracker.Snapshot()
	if snap.Mode != "ACTIVE" {
		t.Errorf("mode: got %s, want ACTIVE", snap.Mode)
	}
	if snap.Reading.Fault {
		t.Error("unexpected fault")
	}
	if snap.Reading.Ambient != 22 {
		t.Errorf("ambient: got %d, want 22", snap.Reading.Ambient)
	}

	// telemetry reaches the collector
	waitFor(t, 2*time.Second, "telemetry at the collector", func() bool {
		p, _ := b.store.Latest()
		return p.Tip > 250
	})
	p, _ := b.store.Latest()
	if p.Status != "ACTIVE" {
		t.Errorf("collector status: got %q, want ACTIVE", p.Status)
	}
	if p.Voltage < 23.5 || p.Voltage > 24.5 {
		t.Errorf("collector voltage: got %.2f, want about 24", p.Voltage)
	}
	if p.Ambient != 22 {
		t.Errorf("collector ambient: got %.0f, want 22", p.Ambient)
	}
}

func TestIntegrationStatusPage(t *testing.T) {
	b := newBench(t, testConfig(), []gpio.Sample{{Handle: true}}, &settings.MemStore{})
	b.start(t)

	waitFor(t, 2*time.Second, "first control ticks", func() bool {
		return b.tracker.Snapshot().Ticks > 5
	})

	resp, err := http.Get(b.web + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sj.Status.State != "ACTIVE" {
		t.Errorf("state: got %q, want ACTIVE", sj.Status.State)
	}
	if sj.Status.Setpoint != 320 {
		t.Errorf("setpoint: got %d, want 320", sj.Status.Setpoint)
	}
	if !sj.Status.HandleActive {
		t.Error("expected handle active")
	}
	if sj.Status.Settings.FrequencyHz != 2000 {
		t.Errorf("freq: got %d, want 2000", sj.Status.Settings.FrequencyHz)
	}
}

func TestIntegrationTipRemovedFaults(t *testing.T) {
	b := newBench(t, testConfig(), []gpio.Sample{{Handle: true}}, &settings.MemStore{})
	b.start(t)

	waitFor(t, 2*time.Second, "heating", func() bool {
		return b.tracker.Snapshot().Drive > 0
	})

	b.sim.SetTipRemoved(true)
	waitFor(t, 2*time.Second, "fault", func() bool {
		return b.tracker.Snapshot().Status() == status.StatusFault
	})

	// every tick while faulted writes zero drive
	for i := 0; i < 5; i++ {
		snap := b.tracker.Snapshot()
		if snap.Reading.Fault && snap.Drive != 0 {
			t.Fatalf("drive %d while faulted", snap.Drive)
		}
		time.Sleep(10 * time.Millisecond)
	}

	b.sim.SetTipRemoved(false)
	waitFor(t, 2*time.Second, "recovery", func() bool {
		snap := b.tracker.Snapshot()
		return !snap.Reading.Fault && snap.Drive > 0
	})
}

func TestIntegrationSettingsSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	cfg := testConfig()

	store, err := settings.NewFileStore(path, cfg.Settings.Namespace, cfg.Bounds())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	// three clockwise detents in one sample: one slow and two fast steps
	b := newBench(t, cfg, []gpio.Sample{{Handle: true}, {Handle: true, Position: 3}}, store)
	b.start(t)

	waitFor(t, 2*time.Second, "settings file", func() bool {
		data, err := os.ReadFile(path)
		return err == nil && strings.Contains(string(data), "target: 375")
	})

	reopened, err := settings.NewFileStore(path, cfg.Settings.Namespace, cfg.Bounds())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	got, err := reopened.Load(cfg.DefaultSettings())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TargetTemperature != 375 {
		t.Errorf("target: got %d, want 375", got.TargetTemperature)
	}
	if got.PWMFrequencyHz != 2000 {
		t.Errorf("freq: got %d, want 2000", got.PWMFrequencyHz)
	}
}
