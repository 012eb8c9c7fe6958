// Command t12-station runs the soldering iron controller: it reads the
// encoder and handle lines, regulates the tip temperature, drives the OLED,
// and reports telemetry over MQTT and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/sweeney/t12-station/internal/bridge"
	"github.com/sweeney/t12-station/internal/config"
	"github.com/sweeney/t12-station/internal/display"
	"github.com/sweeney/t12-station/internal/gpio"
	"github.com/sweeney/t12-station/internal/heater"
	"github.com/sweeney/t12-station/internal/input"
	"github.com/sweeney/t12-station/internal/onewire"
	"github.com/sweeney/t12-station/internal/sensor"
	"github.com/sweeney/t12-station/internal/settings"
	"github.com/sweeney/t12-station/internal/station"
	"github.com/sweeney/t12-station/internal/status"
	"github.com/sweeney/t12-station/internal/telemetry"
	"github.com/sweeney/t12-station/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/t12-station/config.yaml", "Path to the YAML config file")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	broker := flag.String("broker", "", `MQTT broker address (overrides config, "off" disables)`)
	simulate := flag.Bool("simulate", false, "Run against a simulated tip instead of hardware")
	printState := flag.Bool("print-state", false, "Print the input line state and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	applyFlags(cfg, *httpAddr, *broker, *simulate)

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyFlags overrides config values with the operational flags. An empty
// flag keeps the config value; "off" clears it. -simulate prints the screen
// to the console.
func applyFlags(cfg *config.Config, httpAddr, broker string, simulate bool) {
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
	switch broker {
	case "":
	case "off":
		cfg.Telemetry.Broker = ""
	default:
		cfg.Telemetry.Broker = broker
	}
	if simulate {
		cfg.Hardware.Simulate = true
		cfg.Hardware.Display = "console"
	}
}

func run(cfg *config.Config, printState bool) error {
	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := hw.Close(); err != nil {
			log.Printf("close hardware: %v", err)
		}
	}()

	if printState {
		return printInputState(hw.gpio, os.Stdout)
	}

	store, err := settings.NewFileStore(cfg.Settings.Path, cfg.Settings.Namespace, cfg.Bounds())
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	pub := buildTelemetry(cfg)
	defer pub.Close()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	sens := sensor.New(cfg.SensorConfig(), hw.adc, hw.heater, hw.probe)
	st := station.New(stationConfig(cfg), station.Deps{
		GPIO:      hw.gpio,
		Heater:    hw.heater,
		Sensor:    sens,
		Display:   hw.display,
		Telemetry: pub,
		Store:     store,
		Tracker:   tracker,
	})

	publishLifecycle(pub, tracker, telemetry.EventStartup, "")

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: heater=%s display=%s simulate=%v broker=%q post=%q",
		cfg.Hardware.Heater, cfg.Hardware.Display, cfg.Hardware.Simulate,
		cfg.Telemetry.Broker, cfg.Telemetry.PostURL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return serve(context.Background(), st, tracker, pub, sigCh)
}

// serve runs the station until a signal arrives or the station enters deep
// sleep, then saves pending settings and publishes the shutdown event. Deep
// sleep is a clean exit.
func serve(ctx context.Context, st *station.Station, tracker *status.Tracker, pub telemetry.Publisher, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reasons := make(chan string, 1)
	go func() {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			reasons <- signalName(s)
			cancel()
		case <-ctx.Done():
		}
	}()

	err := st.Run(ctx)

	var reason string
	switch {
	case errors.Is(err, station.ErrDeepSleep):
		reason = "DEEP_SLEEP"
		err = nil
	case err != nil:
		reason = "ERROR"
	default:
		select {
		case reason = <-reasons:
		default:
			reason = "CANCELLED"
		}
	}

	if ferr := st.Flush(); ferr != nil {
		log.Printf("settings: flush on shutdown failed: %v", ferr)
	}
	publishLifecycle(pub, tracker, telemetry.EventShutdown, reason)
	return err
}

func publishLifecycle(pub telemetry.Publisher, tracker *status.Tracker, event, reason string) {
	if cs, ok := pub.(telemetry.ConnectionStatus); ok {
		tracker.SetMQTTConnected(cs.IsConnected())
	}
	ev := telemetry.SnapshotEvent(tracker.Snapshot(), event, reason)
	if err := pub.PublishSystem(ev); err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
		return
	}
	log.Printf("published %s event", event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// buildTelemetry fans out to every configured sink. With no sink configured
// telemetry is discarded.
func buildTelemetry(cfg *config.Config) telemetry.Publisher {
	var sinks telemetry.Multi
	t := cfg.Telemetry
	if t.Broker != "" {
		sinks = append(sinks, telemetry.NewMQTTPublisher(telemetry.MQTTConfig{
			Broker:      t.Broker,
			ClientID:    t.ClientID,
			Topic:       t.Topic,
			SystemTopic: t.SystemTopic,
		}))
	}
	if t.PostURL != "" {
		sinks = append(sinks, telemetry.NewHTTPPublisher(t.PostURL, nil))
	}
	switch len(sinks) {
	case 0:
		return telemetry.Nop{}
	case 1:
		return sinks[0]
	default:
		return sinks
	}
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		Broker:          cfg.Telemetry.Broker,
		PostURL:         cfg.Telemetry.PostURL,
		HTTPAddr:        cfg.HTTP.Addr,
		MinTemp:         cfg.Temperature.Min,
		MaxTemp:         cfg.Temperature.Max,
		SleepTemp:       cfg.Temperature.Sleep,
		LongPressPolicy: cfg.Modes.LongPressPolicy,
		HeaterOhms:      cfg.Supply.HeaterOhms,
	}
}

func stationConfig(cfg *config.Config) station.Config {
	return station.Config{
		Logic:   cfg.Logic(),
		Control: cfg.Control(),
		Input: input.Config{
			LongPress:      cfg.Input.LongPress,
			HandleDebounce: cfg.Input.HandleDebounce,
		},
		Defaults:         cfg.DefaultSettings(),
		SettingsDebounce: cfg.Settings.Debounce,
		InputPeriod:      cfg.Routines.Input,
		DisplayPeriod:    cfg.Routines.Display,
		TelemetryPeriod:  cfg.Routines.Telemetry,
		PersistPeriod:    cfg.Routines.Persist,
		AmbientPeriod:    cfg.Sensor.AmbientInterval,
	}
}

// hardware is the set of devices the station runs against.
type hardware struct {
	gpio    gpio.Reader
	heater  heater.Driver
	adc     sensor.ADC
	probe   sensor.Probe
	display display.Renderer
	closers []io.Closer
}

// Close releases the devices in reverse order of opening.
func (h *hardware) Close() error {
	var err error
	for i := len(h.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, h.closers[i].Close())
	}
	return err
}

// openHardware opens the input lines, the ADC and heater path, the ambient
// probe, and the display. A display that cannot be initialised is fatal. A
// missing ambient probe is not: the sensor keeps its initial ambient value
// and calibration is refused.
func openHardware(cfg *config.Config) (_ *hardware, err error) {
	h := &hardware{}
	defer func() {
		if err != nil {
			h.Close()
		}
	}()

	if cfg.Hardware.Simulate {
		openSim(cfg, h)
	} else if err := openDevices(cfg, h); err != nil {
		return nil, err
	}

	switch cfg.Hardware.Display {
	case "console":
		h.display = display.NewConsole(os.Stdout)
	default:
		oled, err := display.NewOLED(cfg.Hardware.I2CBus)
		if err != nil {
			return nil, fmt.Errorf("init display: %w", err)
		}
		h.display = oled
	}
	h.closers = append(h.closers, h.display)
	return h, nil
}

func openDevices(cfg *config.Config, h *hardware) error {
	hc := cfg.Hardware

	reader, err := gpio.NewRealReader(gpio.Pins{
		Chip:     hc.Chip,
		CLK:      hc.EncoderCLK,
		DT:       hc.EncoderDT,
		Button:   hc.Button,
		Handle:   hc.Handle,
		Debounce: cfg.Input.EncoderDebounce,
	})
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	h.gpio = reader
	h.closers = append(h.closers, reader)

	br, err := bridge.Open(hc.BridgePort, hc.BridgeBaud)
	if err != nil {
		return fmt.Errorf("init bridge: %w", err)
	}
	h.adc = br
	h.closers = append(h.closers, br)

	switch hc.Heater {
	case "bridge":
		h.heater = br
	default:
		pwm, err := heater.NewPWM(hc.HeaterPin, cfg.Defaults.FrequencyHz)
		if err != nil {
			return fmt.Errorf("init heater: %w", err)
		}
		h.heater = pwm
		h.closers = append(h.closers, pwm)
	}

	probe, err := onewire.Open(hc.OneWireDir, hc.OneWireDevice)
	if err != nil {
		log.Printf("ambient probe unavailable: %v", err)
	} else {
		log.Printf("ambient probe %s", probe.ID())
		h.probe = probe
	}
	return nil
}

// openSim wires the thermal model in place of the ADC, heater and probe. The
// simulated handle is always in contact.
func openSim(cfg *config.Config, h *hardware) {
	sc := heater.DefaultSimConfig
	sc.RawMax = cfg.Sensor.RawMax
	sc.TempAtZero = float64(cfg.Sensor.TempAtZero)
	sc.TempAtFull = float64(cfg.Sensor.TempAtFull)
	sc.VRef = cfg.Supply.VRef
	sc.R1 = cfg.Supply.R1
	sc.R2 = cfg.Supply.R2

	sim := heater.NewSim(sc, nil)
	h.heater = sim
	h.adc = sim
	h.probe = sim
	h.gpio = gpio.NewFakeReader([]gpio.Sample{{Handle: true}})
	h.closers = append(h.closers, sim, h.gpio)
}

func printInputState(r gpio.Reader, w io.Writer) error {
	s, err := r.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	fmt.Fprintf(w, "Encoder: %d, Button: %s, Handle: %s\n", s.Position, stateString(s.Button), stateString(s.Handle))
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
