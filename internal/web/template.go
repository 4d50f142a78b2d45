package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/power-node/internal/relay"
	"github.com/sweeney/power-node/internal/status"
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
	"clock":   status.ClockString,
	"weekday": status.WeekdayString,
	"lower": func(s string) string {
		if s == "ON" {
			return "on"
		}
		return "off"
	},
	"resetCause": func(c uint8) string {
		switch c {
		case 1:
			return "power-on"
		case 3:
			return "software"
		}
		return fmt.Sprintf("unknown (%d)", c)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Power Node</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Power Node {{.Config.Address}}{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Relays</h2>
<table>
{{range .Relays}}<tr><th>Relay {{.Channel}}</th><td id="relay-{{.Channel}}" class="{{lower .State}}">{{.State}}</td><td>{{.Rules}} rules</td></tr>
{{end}}</table>

<h2>Link</h2>
<table>
<tr><th>State</th><td id="link-state" class="{{if eq .Node.Link "READY"}}connected{{else}}unknown{{end}}">{{if .Reported}}{{.Node.Link}}{{else}}UNKNOWN{{end}}</td></tr>
<tr><th>Channel</th><td>{{if .Node.Channel}}{{.Node.Channel}}{{else}}none{{end}}</td></tr>
<tr><th>Master</th><td>{{if .Node.Peer}}{{.Node.Peer}}{{else}}unknown{{end}}</td></tr>
<tr><th>Clock</th><td>{{if .Node.ClockValid}}{{weekday .Node.Now.Weekday}} {{clock .Node.Now.Minute}}{{else}}not synced{{end}}</td></tr>
<tr><th>Strategy</th><td>{{.Node.Strategy}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .BrokerUp}}connected{{else}}disconnected{{end}}">{{if .BrokerUp}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topics</th><td>{{.Config.TopicPrefix}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Packet Counts</h2>
<table>
<tr><th>Received</th><td>{{.Node.Counts.Received}}</td></tr>
<tr><th>Malformed</th><td>{{.Node.Counts.Malformed}}</td></tr>
<tr><th>Gated</th><td>{{.Node.Counts.Gated}}</td></tr>
<tr><th>Sent</th><td>{{.Node.Counts.Sent}}</td></tr>
<tr><th>Send errors</th><td>{{.Node.Counts.SendErrors}}</td></tr>
<tr><th>Rules fired</th><td>{{.Node.Counts.Fired}}</td></tr>
<tr><th>Queue drops</th><td>{{.Node.QueueDrops}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.Started.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Reset cause</th><td>{{resetCause .Node.ResetCause}}</td></tr>
<tr><th>Loop</th><td>{{.Config.LoopMs}}ms</td></tr>
<tr><th>Scan</th><td>{{.Config.ScanDwellMs}}ms dwell, {{.Config.ScanBudgetMs}}ms budget</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>State file</th><td>{{.Config.StateFile}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.Config.SystemTopic}}";
  var dot = document.getElementById("live-dot");
  var linkEl = document.getElementById("link-state");

  function setRelay(ch, state) {
    var el = document.getElementById("relay-" + ch);
    if (!el) return;
    el.textContent = state;
    el.className = state === "ON" ? "on" : "off";
  }

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
      if (!msg.status) return;
      (msg.status.relays || []).forEach(function(state, i) { setRelay(i + 1, state); });
      if (msg.status.link) {
        linkEl.textContent = msg.status.link.state;
        linkEl.className = msg.status.link.state === "READY" ? "connected" : "unknown";
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

type relayRow struct {
	Channel int
	State   string
	Rules   int
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Relays []relayRow
	}{
		Snapshot: snap,
		Uptime:   snap.Now.Sub(snap.Started),
	}
	for ch := 1; ch <= relay.NumRelays; ch++ {
		data.Relays = append(data.Relays, relayRow{
			Channel: ch,
			State:   relay.StateString(snap.Node.Mask.Get(ch)),
			Rules:   snap.Node.RuleCounts[ch-1],
		})
	}
	indexTmpl.Execute(w, data)
}
