package status

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/power-node/internal/relay"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Link          LinkJSON     `json:"link"`
	Relays        []string     `json:"relays"`
	RelayMask     uint8        `json:"relay_mask"`
	Clock         ClockJSON    `json:"clock"`
	Rules         []int        `json:"rules"`
	ResetCause    uint8        `json:"reset_cause"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"packet_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// LinkJSON reports the handshake state.
type LinkJSON struct {
	State   string `json:"state"`
	Channel int    `json:"channel"`
	Master  string `json:"master,omitempty"`
}

// ClockJSON reports the virtual clock. Time is "HH:MM" or empty when invalid.
type ClockJSON struct {
	Valid   bool   `json:"valid"`
	Time    string `json:"time,omitempty"`
	Weekday string `json:"weekday,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of packet counts.
type CountsJSON struct {
	Received   int    `json:"received"`
	Malformed  int    `json:"malformed"`
	Gated      int    `json:"gated"`
	Sent       int    `json:"sent"`
	SendErrors int    `json:"send_errors"`
	Errors     int    `json:"errors"`
	Fired      int    `json:"fired"`
	QueueDrops uint64 `json:"queue_drops"`
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
	Address      string `json:"address"`
	Strategy     string `json:"strategy"`
	LoopMs       int64  `json:"loop_ms"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	ScanDwellMs  int64  `json:"scan_dwell_ms"`
	ScanBudgetMs int64  `json:"scan_budget_ms"`
	Broker       string `json:"broker"`
	TopicPrefix  string `json:"topic_prefix"`
	HTTPAddr     string `json:"http_addr"`
	StateFile    string `json:"state_file"`
	WSBroker     string `json:"ws_broker,omitempty"`
}

var weekdays = [7]string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}

// ClockString renders a minute of day as "HH:MM".
func ClockString(minute uint16) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// WeekdayString renders 0..6 as MON..SUN.
func WeekdayString(weekday uint8) string {
	return weekdays[weekday%7]
}

func buildInner(snap Snapshot) StatusInner {
	r := snap.Node
	linkState := r.Link
	if !snap.Reported {
		linkState = "UNKNOWN"
	}

	relays := make([]string, relay.NumRelays)
	for ch := 1; ch <= relay.NumRelays; ch++ {
		relays[ch-1] = relay.StateString(r.Mask.Get(ch))
	}

	clock := ClockJSON{Valid: r.ClockValid}
	if r.ClockValid {
		clock.Time = ClockString(r.Now.Minute)
		clock.Weekday = WeekdayString(r.Now.Weekday)
	}

	return StatusInner{
		Link:          LinkJSON{State: linkState, Channel: r.Channel, Master: r.Peer},
		Relays:        relays,
		RelayMask:     uint8(r.Mask),
		Clock:         clock,
		Rules:         r.RuleCounts[:],
		ResetCause:    r.ResetCause,
		UptimeSeconds: int64(snap.Now.Sub(snap.Started).Truncate(time.Second).Seconds()),
		StartTime:     snap.Started.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.BrokerUp, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Received:   r.Counts.Received,
			Malformed:  r.Counts.Malformed,
			Gated:      r.Counts.Gated,
			Sent:       r.Counts.Sent,
			SendErrors: r.Counts.SendErrors,
			Errors:     r.Counts.Errors,
			Fired:      r.Counts.Fired,
			QueueDrops: r.QueueDrops,
		},
		Config: ConfigJSON{
			Address:      snap.Config.Address,
			Strategy:     r.Strategy,
			LoopMs:       snap.Config.LoopMs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			ScanDwellMs:  snap.Config.ScanDwellMs,
			ScanBudgetMs: snap.Config.ScanBudgetMs,
			Broker:       snap.Config.Broker,
			TopicPrefix:  snap.Config.TopicPrefix,
			HTTPAddr:     snap.Config.HTTPAddr,
			StateFile:    snap.Config.StateFile,
			WSBroker:     snap.Config.WSBroker,
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
