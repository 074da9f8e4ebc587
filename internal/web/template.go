package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/venue-presence/internal/status"
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
	"nameOrID": func(v VenueJSON) string {
		if v.Name == "" {
			return v.ID
		}
		return v.Name
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Venue Presence</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.low { color: green; }
.moderate { color: #b8860b; }
.packed { color: orange; font-weight: bold; }
.over-packed { color: red; font-weight: bold; }
.unknown { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Venue Presence{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Venues</h2>
<table id="venues">
<tr><th>Venue</th><th>Here now</th><th>Crowd</th></tr>
{{range .Rows}}<tr data-venue="{{.ID}}"><td>{{nameOrID .}}</td><td class="count">{{.Count}}</td><td class="level {{.Level}}">{{.Level}}</td></tr>
{{else}}<tr><td colspan="3">no venues configured</td></tr>
{{end}}</table>
{{if .Occupancy}}<p>Counted at {{.Occupancy.At.UTC.Format "2006-01-02T15:04:05Z"}} (scan #{{.Occupancy.Seq}})</p>{{else}}<p>Waiting for the first count.</p>{{end}}

<h2>Tracking</h2>
<table>
<tr><th>Active devices</th><td>{{.ActiveSessions}}</td></tr>
<tr><th>Entries</th><td>{{.Transitions.Entries}}</td></tr>
<tr><th>Exits</th><td>{{.Transitions.Exits}}</td></tr>
<tr><th>Held by cooldown</th><td>{{.Transitions.ExitPending}} exit / {{.Transitions.EntryPending}} entry</td></tr>
<tr><th>Location failures</th><td>{{.Failures.LocationUnavailable}}</td></tr>
<tr><th>Store failures</th><td>{{.Failures.StoreUnreachable}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Locations</th><td>{{.Config.LocationTopic}}</td></tr>
<tr><th>Store</th><td>{{.Config.Store}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Radii</th><td>enter {{.Config.EntryRadius}}m / exit {{.Config.ExitRadius}}m</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Cooldown</th><td>{{.Config.CooldownMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{.Config.HeartbeatMs}}ms</td></tr>
<tr><th>Retention</th><td>{{.Config.RetentionMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">status JSON</a> · <a href="/occupancy.json">occupancy JSON</a></p>
{{if .Config.WSBroker}}
<script src="https://unpkg.com/mqtt@5.10.1/dist/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "presence/venues/occupancy";
  var dot = document.getElementById("live-dot");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (!msg.occupancy) return;
      var venues = msg.occupancy.venues;
      var rows = document.querySelectorAll("#venues tr[data-venue]");
      rows.forEach(function(row) {
        var v = venues[row.getAttribute("data-venue")];
        if (!v) return;
        row.querySelector(".count").textContent = v.count;
        var level = row.querySelector(".level");
        level.textContent = v.level;
        level.className = "level " + v.level;
      });
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, rows []VenueJSON) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Rows   []VenueJSON
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Rows:     rows,
	}
	indexTmpl.Execute(w, data)
}
