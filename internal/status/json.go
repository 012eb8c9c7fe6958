package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	Mode          string       `json:"mode"`
	Setpoint      int          `json:"setpoint"`
	Tip           int          `json:"tip"`
	Ambient       int          `json:"ambient"`
	Fault         bool         `json:"fault"`
	Voltage       float64      `json:"voltage"`
	Drive         int          `json:"pwm"`
	Power         float64      `json:"power"`
	HandleActive  bool         `json:"handle_active"`
	Boost         BoostJSON    `json:"boost"`
	PID           PIDJSON      `json:"pid"`
	Menu          MenuJSON     `json:"menu"`
	Settings      SettingsJSON `json:"settings"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// BoostJSON reports the boost window.
type BoostJSON struct {
	Active      bool   `json:"active"`
	Kind        string `json:"kind,omitempty"`
	Value       int    `json:"value"`
	RemainingMs int64  `json:"remaining_ms"`
}

// PIDJSON reports the PID terms of the last tick.
type PIDJSON struct {
	Error      float32 `json:"error"`
	Integral   float32 `json:"integral"`
	Derivative float32 `json:"derivative"`
}

// MenuJSON reports the menu state.
type MenuJSON struct {
	Open  bool   `json:"open"`
	Index int    `json:"index"`
	Item  string `json:"item"`
}

// SettingsJSON is the JSON representation of the persisted settings.
type SettingsJSON struct {
	Target            int `json:"target"`
	PWM               int `json:"pwm"`
	FrequencyHz       int `json:"freq"`
	ControlPeriodMs   int `json:"delay"`
	CalibrationOffset int `json:"offset"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker          string  `json:"broker"`
	PostURL         string  `json:"post_url,omitempty"`
	HTTPAddr        string  `json:"http_addr"`
	MinTemp         int     `json:"min_temp"`
	MaxTemp         int     `json:"max_temp"`
	SleepTemp       int     `json:"sleep_temp"`
	LongPressPolicy string  `json:"long_press_policy"`
	HeaterOhms      float64 `json:"heater_ohms"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func buildInner(snap Snapshot) StatusInner {
	mode := string(snap.Mode)
	if mode == "" {
		mode = "UNKNOWN"
	}

	boost := BoostJSON{}
	if snap.Boosting() {
		boost = BoostJSON{
			Active:      true,
			Kind:        string(snap.Loop.BoostKind),
			Value:       snap.Loop.BoostValue,
			RemainingMs: snap.Loop.BoostDeadline.Sub(snap.Now).Milliseconds(),
		}
	}

	s := snap.Settings
	return StatusInner{
		State:        snap.Status(),
		Mode:         mode,
		Setpoint:     snap.Setpoint,
		Tip:          snap.Reading.Tip,
		Ambient:      snap.Reading.Ambient,
		Fault:        snap.Reading.Fault,
		Voltage:      round2(snap.Reading.SupplyVolts),
		Drive:        snap.Drive,
		Power:        round2(snap.Power()),
		HandleActive: snap.HandleActive,
		Boost:        boost,
		PID: PIDJSON{
			Error:      snap.Loop.Error,
			Integral:   snap.Loop.Integral,
			Derivative: snap.Loop.Derivative,
		},
		Menu: MenuJSON{
			Open:  snap.Menu.Open,
			Index: snap.Menu.Index,
			Item:  snap.Menu.Selected().String(),
		},
		Settings: SettingsJSON{
			Target:            s.TargetTemperature,
			PWM:               s.PWMBaseline,
			FrequencyHz:       s.PWMFrequencyHz,
			ControlPeriodMs:   s.ControlPeriodMs,
			CalibrationOffset: s.CalibrationOffset,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Broker:          snap.Config.Broker,
			PostURL:         snap.Config.PostURL,
			HTTPAddr:        snap.Config.HTTPAddr,
			MinTemp:         snap.Config.MinTemp,
			MaxTemp:         snap.Config.MaxTemp,
			SleepTemp:       snap.Config.SleepTemp,
			LongPressPolicy: snap.Config.LongPressPolicy,
			HeaterOhms:      snap.Config.HeaterOhms,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
