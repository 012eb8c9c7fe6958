package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/t12-station/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"statusClass": func(s string) string {
		switch s {
		case status.StatusFault:
			return "fault"
		case "ACTIVE":
			return "heat"
		case "UNKNOWN":
			return "unknown"
		}
		return "idle"
	},
	"watts": func(w float64) string {
		return fmt.Sprintf("%.1f", w)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>T12 Station</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.heat { color: #c40; font-weight: bold; }
.idle { color: #888; }
.fault { color: red; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>T12 Station</h1>

<h2>Iron</h2>
<table>
<tr><th>Status</th><td id="state" class="{{statusClass .Status}}">{{.Status}}</td></tr>
<tr><th>Tip</th><td><span id="tip">{{.Reading.Tip}}</span> °C</td></tr>
<tr><th>Setpoint</th><td><span id="setpoint">{{.Setpoint}}</span> °C</td></tr>
<tr><th>Target</th><td>{{.Settings.TargetTemperature}} °C</td></tr>
<tr><th>Ambient</th><td><span id="ambient">{{.Reading.Ambient}}</span> °C</td></tr>
<tr><th>Drive</th><td><span id="pwm">{{.Drive}}</span> / 255{{if .Boosting}} (boost){{end}}</td></tr>
<tr><th>Power</th><td><span id="power">{{watts .Power}}</span> W</td></tr>
<tr><th>Supply</th><td>{{printf "%.2f" .Reading.SupplyVolts}} V</td></tr>
<tr><th>Handle</th><td>{{if .HandleActive}}in use{{else}}resting{{end}}</td></tr>
</table>

<h2>Settings</h2>
<table>
<tr><th>PWM baseline</th><td>{{.Settings.PWMBaseline}}</td></tr>
<tr><th>PWM frequency</th><td>{{.Settings.PWMFrequencyHz}} Hz</td></tr>
<tr><th>Control period</th><td>{{.Settings.ControlPeriodMs}} ms</td></tr>
<tr><th>Calibration offset</th><td>{{.Settings.CalibrationOffset}} °C</td></tr>
<tr><th>Range</th><td>{{.Config.MinTemp}}–{{.Config.MaxTemp}} °C, sleep {{.Config.SleepTemp}} °C</td></tr>
<tr><th>Long press</th><td>{{.Config.LongPressPolicy}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}off{{end}}</td></tr>
{{if .Config.PostURL}}<tr><th>Collector</th><td>{{.Config.PostURL}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var ids = ["tip", "setpoint", "ambient", "pwm"];
  function cls(s) {
    return s === "FAULT" ? "fault" : s === "ACTIVE" ? "heat" : s === "UNKNOWN" ? "unknown" : "idle";
  }
  function poll() {
    fetch("/index.json").then(function(r) { return r.json(); }).then(function(j) {
      var s = j.status;
      ids.forEach(function(id) { document.getElementById(id).textContent = s[id]; });
      document.getElementById("power").textContent = s.power.toFixed(1);
      var st = document.getElementById("state");
      st.textContent = s.state;
      st.className = cls(s.state);
    }).catch(function() {});
  }
  setInterval(poll, 1000);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
