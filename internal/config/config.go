// Package config holds the station configuration: every tunable constant
// of the controller, with its effect named, loaded from one YAML document.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/t12-station/internal/bridge"
	"github.com/sweeney/t12-station/internal/control"
	"github.com/sweeney/t12-station/internal/gpio"
	"github.com/sweeney/t12-station/internal/logic"
	"github.com/sweeney/t12-station/internal/onewire"
	"github.com/sweeney/t12-station/internal/sensor"
	"github.com/sweeney/t12-station/internal/settings"
)

// Config represents the application configuration.
type Config struct {
	Temperature TemperatureConfig `yaml:"temperature"`
	Modes       ModesConfig       `yaml:"modes"`
	Input       InputConfig       `yaml:"input"`
	PID         PIDConfig         `yaml:"pid"`
	Boost       BoostConfig       `yaml:"boost"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Supply      SupplyConfig      `yaml:"supply"`
	Defaults    DefaultsConfig    `yaml:"defaults"`
	Settings    SettingsConfig    `yaml:"settings"`
	Routines    RoutinesConfig    `yaml:"routines"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	HTTP        HTTPConfig        `yaml:"http"`
	Hardware    HardwareConfig    `yaml:"hardware"`
}

// TemperatureConfig bounds the user target and sets the idle setpoint.
type TemperatureConfig struct {
	Min        int           `yaml:"min"`
	Max        int           `yaml:"max"`
	Sleep      int           `yaml:"sleep"`       // setpoint in AOD and Sleep
	Step       int           `yaml:"step"`        // °C per detent
	FastStep   int           `yaml:"fast_step"`   // °C per detent when turning fast
	FastWindow time.Duration `yaml:"fast_window"` // detents closer than this are fast
}

// ModesConfig drives the idle modes and button interpretation.
type ModesConfig struct {
	AODAfter          time.Duration `yaml:"aod_after"`   // 0 disables AOD
	SleepAfter        time.Duration `yaml:"sleep_after"` // 0 disables Sleep
	LongPressPolicy   string        `yaml:"long_press_policy"`
	DoubleClickWindow time.Duration `yaml:"double_click_window"`
}

// InputConfig tunes input decoding.
type InputConfig struct {
	LongPress       time.Duration `yaml:"long_press"`
	HandleDebounce  int           `yaml:"handle_debounce"` // consecutive samples
	EncoderDebounce time.Duration `yaml:"encoder_debounce"`
}

// PIDConfig holds the loop gains and safety limits.
type PIDConfig struct {
	Kp            float32 `yaml:"kp"`
	Ki            float32 `yaml:"ki"`
	Kd            float32 `yaml:"kd"`
	IntegralLimit float32 `yaml:"integral_limit"`
	Ceiling       int     `yaml:"ceiling"` // tip above this forces the heater off
}

// BoostConfig tunes the reactivation boost.
type BoostConfig struct {
	ColdThreshold time.Duration `yaml:"cold_threshold"`
	ColdFactor    float32       `yaml:"cold_factor"`
	ColdWindow    time.Duration `yaml:"cold_window"`
	WarmFactor    float32       `yaml:"warm_factor"`
	MaxGap        int           `yaml:"max_gap"`
	MaxWindow     time.Duration `yaml:"max_window"`
}

// SensorConfig holds the tip and ambient sensing constants.
type SensorConfig struct {
	Samples          int           `yaml:"samples"`
	Settle           time.Duration `yaml:"settle"`
	RawMax           uint16        `yaml:"raw_max"`
	Saturation       uint16        `yaml:"saturation"`
	TempAtZero       int           `yaml:"temp_at_zero"`
	TempAtFull       int           `yaml:"temp_at_full"`
	FaultTemperature int           `yaml:"fault_temperature"`
	AmbientInterval  time.Duration `yaml:"ambient_interval"`
	AmbientMin       float64       `yaml:"ambient_min"`
	AmbientMax       float64       `yaml:"ambient_max"`
	InitialAmbient   int           `yaml:"initial_ambient"`
	CalibrationMin   int           `yaml:"calibration_min"`
	CalibrationMax   int           `yaml:"calibration_max"`
}

// SupplyConfig describes the supply divider and the heater element.
type SupplyConfig struct {
	R1         float64 `yaml:"r1"`
	R2         float64 `yaml:"r2"`
	VRef       float64 `yaml:"vref"`
	HeaterOhms float64 `yaml:"heater_ohms"`
}

// DefaultsConfig seeds the persisted settings on first start.
type DefaultsConfig struct {
	Target          int `yaml:"target"`
	PWM             int `yaml:"pwm"`
	FrequencyHz     int `yaml:"frequency_hz"`
	ControlPeriodMs int `yaml:"control_period_ms"`
}

// SettingsConfig locates the settings file.
type SettingsConfig struct {
	Path      string        `yaml:"path"`
	Namespace string        `yaml:"namespace"`
	Debounce  time.Duration `yaml:"debounce"`
}

// RoutinesConfig sets the period of each concurrent routine. The control
// period comes from the persisted settings.
type RoutinesConfig struct {
	Input     time.Duration `yaml:"input"`
	Display   time.Duration `yaml:"display"`
	Telemetry time.Duration `yaml:"telemetry"`
	Persist   time.Duration `yaml:"persist"`
}

// TelemetryConfig selects the telemetry sinks. Empty values disable a sink.
type TelemetryConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Topic       string `yaml:"topic"`
	SystemTopic string `yaml:"system_topic"`
	PostURL     string `yaml:"post_url"`
}

// HTTPConfig configures the local status page.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables
}

// HardwareConfig names the pins and ports.
type HardwareConfig struct {
	Simulate bool `yaml:"simulate"` // thermal model instead of hardware

	Chip       string `yaml:"chip"`
	EncoderCLK int    `yaml:"encoder_clk"`
	EncoderDT  int    `yaml:"encoder_dt"`
	Button     int    `yaml:"button"`
	Handle     int    `yaml:"handle"`

	Heater    string `yaml:"heater"`     // "pwm" or "bridge"
	HeaterPin string `yaml:"heater_pin"` // periph pin name for "pwm"

	BridgePort string `yaml:"bridge_port"`
	BridgeBaud int    `yaml:"bridge_baud"`

	OneWireDir    string `yaml:"onewire_dir"`
	OneWireDevice string `yaml:"onewire_device"` // empty picks the first 28-* device

	Display string `yaml:"display"` // "oled" (SSD1306 at 0x3C) or "console"
	I2CBus  string `yaml:"i2c_bus"` // empty picks the first bus
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Temperature: TemperatureConfig{
			Min:        150,
			Max:        450,
			Sleep:      150,
			Step:       5,
			FastStep:   25,
			FastWindow: 30 * time.Millisecond,
		},
		Modes: ModesConfig{
			AODAfter:          5 * time.Second,
			SleepAfter:        60 * time.Second,
			LongPressPolicy:   string(logic.LongPressMenu),
			DoubleClickWindow: 400 * time.Millisecond,
		},
		Input: InputConfig{
			LongPress:       800 * time.Millisecond,
			HandleDebounce:  3,
			EncoderDebounce: gpio.DefaultPins.Debounce,
		},
		PID: PIDConfig{
			Kp:            10,
			Ki:            0.05,
			Kd:            2,
			IntegralLimit: 255,
			Ceiling:       500,
		},
		Boost: BoostConfig{
			ColdThreshold: 5 * time.Minute,
			ColdFactor:    3,
			ColdWindow:    3 * time.Second,
			WarmFactor:    2.5,
			MaxGap:        300,
			MaxWindow:     4 * time.Second,
		},
		Sensor: SensorConfig{
			Samples:          20,
			Settle:           time.Millisecond,
			RawMax:           4095,
			Saturation:       4000,
			TempAtZero:       0,
			TempAtFull:       450,
			FaultTemperature: 999,
			AmbientInterval:  2 * time.Second,
			AmbientMin:       -50,
			AmbientMax:       120,
			InitialAmbient:   25,
			CalibrationMin:   0,
			CalibrationMax:   60,
		},
		Supply: SupplyConfig{
			R1:         10000,
			R2:         1500,
			VRef:       3.3,
			HeaterOhms: 8,
		},
		Defaults: DefaultsConfig{
			Target:          320,
			PWM:             30,
			FrequencyHz:     2000,
			ControlPeriodMs: 100,
		},
		Settings: SettingsConfig{
			Path:      "/var/lib/t12-station/settings.yaml",
			Namespace: settings.DefaultNamespace,
			Debounce:  2 * time.Second,
		},
		Routines: RoutinesConfig{
			Input:     5 * time.Millisecond,
			Display:   50 * time.Millisecond,
			Telemetry: 2 * time.Second,
			Persist:   250 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{
			ClientID:    "t12-station",
			Topic:       "t12/station/telemetry",
			SystemTopic: "t12/station/system",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Hardware: HardwareConfig{
			Chip:       gpio.DefaultPins.Chip,
			EncoderCLK: gpio.DefaultPins.CLK,
			EncoderDT:  gpio.DefaultPins.DT,
			Button:     gpio.DefaultPins.Button,
			Handle:     gpio.DefaultPins.Handle,
			Heater:     "pwm",
			HeaterPin:  "GPIO18",
			BridgePort: "/dev/ttyUSB0",
			BridgeBaud: bridge.DefaultBaudRate,
			OneWireDir: onewire.DefaultDir,
			Display:    "oled",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects combinations the controller cannot run with.
func (c *Config) Validate() error {
	if c.Temperature.Min >= c.Temperature.Max {
		return fmt.Errorf("temperature: min %d must be below max %d", c.Temperature.Min, c.Temperature.Max)
	}
	if c.Temperature.Max > c.PID.Ceiling {
		return fmt.Errorf("temperature: max %d exceeds ceiling %d", c.Temperature.Max, c.PID.Ceiling)
	}
	switch logic.LongPressPolicy(c.Modes.LongPressPolicy) {
	case logic.LongPressMenu, logic.LongPressMaintenance:
	default:
		return fmt.Errorf("modes: unknown long_press_policy %q", c.Modes.LongPressPolicy)
	}
	if c.Sensor.Saturation > c.Sensor.RawMax {
		return fmt.Errorf("sensor: saturation %d above raw_max %d", c.Sensor.Saturation, c.Sensor.RawMax)
	}
	switch c.Hardware.Heater {
	case "pwm", "bridge":
	default:
		return fmt.Errorf("hardware: unknown heater %q", c.Hardware.Heater)
	}
	switch c.Hardware.Display {
	case "oled", "console":
	default:
		return fmt.Errorf("hardware: unknown display %q", c.Hardware.Display)
	}
	return nil
}

// ensureDefaults fills zero fields that have no meaningful zero value.
// Idle timeouts are left alone: zero disables the mode.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Temperature.Min == 0 {
		c.Temperature.Min = def.Temperature.Min
	}
	if c.Temperature.Max == 0 {
		c.Temperature.Max = def.Temperature.Max
	}
	if c.Temperature.Step == 0 {
		c.Temperature.Step = def.Temperature.Step
	}
	if c.Modes.LongPressPolicy == "" {
		c.Modes.LongPressPolicy = def.Modes.LongPressPolicy
	}
	if c.Input.LongPress == 0 {
		c.Input.LongPress = def.Input.LongPress
	}
	if c.Input.HandleDebounce == 0 {
		c.Input.HandleDebounce = def.Input.HandleDebounce
	}
	if c.PID.IntegralLimit == 0 {
		c.PID.IntegralLimit = def.PID.IntegralLimit
	}
	if c.PID.Ceiling == 0 {
		c.PID.Ceiling = def.PID.Ceiling
	}
	if c.Sensor.Samples == 0 {
		c.Sensor.Samples = def.Sensor.Samples
	}
	if c.Sensor.RawMax == 0 {
		c.Sensor.RawMax = def.Sensor.RawMax
	}
	if c.Sensor.Saturation == 0 {
		c.Sensor.Saturation = def.Sensor.Saturation
	}
	if c.Sensor.FaultTemperature == 0 {
		c.Sensor.FaultTemperature = def.Sensor.FaultTemperature
	}
	if c.Sensor.AmbientInterval == 0 {
		c.Sensor.AmbientInterval = def.Sensor.AmbientInterval
	}
	if c.Sensor.AmbientMin == 0 && c.Sensor.AmbientMax == 0 {
		c.Sensor.AmbientMin = def.Sensor.AmbientMin
		c.Sensor.AmbientMax = def.Sensor.AmbientMax
	}
	if c.Supply.VRef == 0 {
		c.Supply.VRef = def.Supply.VRef
	}
	if c.Supply.HeaterOhms == 0 {
		c.Supply.HeaterOhms = def.Supply.HeaterOhms
	}
	if c.Defaults.Target == 0 {
		c.Defaults.Target = def.Defaults.Target
	}
	if c.Defaults.FrequencyHz == 0 {
		c.Defaults.FrequencyHz = def.Defaults.FrequencyHz
	}
	if c.Defaults.ControlPeriodMs == 0 {
		c.Defaults.ControlPeriodMs = def.Defaults.ControlPeriodMs
	}
	if c.Settings.Namespace == "" {
		c.Settings.Namespace = def.Settings.Namespace
	}
	if c.Settings.Debounce == 0 {
		c.Settings.Debounce = def.Settings.Debounce
	}
	if c.Routines.Input == 0 {
		c.Routines.Input = def.Routines.Input
	}
	if c.Routines.Display == 0 {
		c.Routines.Display = def.Routines.Display
	}
	if c.Routines.Telemetry == 0 {
		c.Routines.Telemetry = def.Routines.Telemetry
	}
	if c.Routines.Persist == 0 {
		c.Routines.Persist = def.Routines.Persist
	}
	if c.Hardware.Chip == "" {
		c.Hardware.Chip = def.Hardware.Chip
	}
	if c.Hardware.Heater == "" {
		c.Hardware.Heater = def.Hardware.Heater
	}
	if c.Hardware.BridgeBaud == 0 {
		c.Hardware.BridgeBaud = def.Hardware.BridgeBaud
	}
	if c.Hardware.OneWireDir == "" {
		c.Hardware.OneWireDir = def.Hardware.OneWireDir
	}
	if c.Hardware.Display == "" {
		c.Hardware.Display = def.Hardware.Display
	}
}

// Logic returns the mode machine configuration.
func (c *Config) Logic() logic.Config {
	return logic.Config{
		MinTemp:           c.Temperature.Min,
		MaxTemp:           c.Temperature.Max,
		SleepTemperature:  c.Temperature.Sleep,
		Step:              c.Temperature.Step,
		FastStep:          c.Temperature.FastStep,
		FastWindow:        c.Temperature.FastWindow,
		AODAfter:          c.Modes.AODAfter,
		SleepAfter:        c.Modes.SleepAfter,
		LongPress:         logic.LongPressPolicy(c.Modes.LongPressPolicy),
		DoubleClickWindow: c.Modes.DoubleClickWindow,
	}
}

// Control returns the control loop configuration.
func (c *Config) Control() control.Config {
	return control.Config{
		Gains:         control.Gains{Kp: c.PID.Kp, Ki: c.PID.Ki, Kd: c.PID.Kd},
		IntegralLimit: c.PID.IntegralLimit,
		Ceiling:       c.PID.Ceiling,
		Boost: control.BoostConfig{
			ColdThreshold: c.Boost.ColdThreshold,
			ColdFactor:    c.Boost.ColdFactor,
			ColdWindow:    c.Boost.ColdWindow,
			WarmFactor:    c.Boost.WarmFactor,
			MaxGap:        c.Boost.MaxGap,
			MaxWindow:     c.Boost.MaxWindow,
		},
	}
}

// SensorConfig returns the sensor configuration.
func (c *Config) SensorConfig() sensor.Config {
	s := c.Sensor
	return sensor.Config{
		Samples:          s.Samples,
		Settle:           s.Settle,
		RawMax:           s.RawMax,
		Saturation:       s.Saturation,
		TempAtZero:       s.TempAtZero,
		TempAtFull:       s.TempAtFull,
		FaultTemperature: s.FaultTemperature,
		AmbientMin:       s.AmbientMin,
		AmbientMax:       s.AmbientMax,
		InitialAmbient:   s.InitialAmbient,
		CalMin:           s.CalibrationMin,
		CalMax:           s.CalibrationMax,
		VRef:             c.Supply.VRef,
		R1:               c.Supply.R1,
		R2:               c.Supply.R2,
	}
}

// DefaultSettings returns the settings used when nothing is persisted.
func (c *Config) DefaultSettings() logic.Settings {
	return logic.Settings{
		TargetTemperature: c.Defaults.Target,
		PWMBaseline:       c.Defaults.PWM,
		PWMFrequencyHz:    c.Defaults.FrequencyHz,
		ControlPeriodMs:   c.Defaults.ControlPeriodMs,
	}
}

// Bounds returns the clamp bounds for persisted settings.
func (c *Config) Bounds() settings.Bounds {
	return settings.Bounds{MinTemp: c.Temperature.Min, MaxTemp: c.Temperature.Max}
}
