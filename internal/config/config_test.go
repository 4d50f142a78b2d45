package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/power-node/internal/radio"
)

const sampleYAML = `
node:
  address: "02:00:00:00:00:07"
  master: "24:6f:28:aa:bb:cc"
  state_file: /tmp/pn.cbor
mqtt:
  broker: tcp://broker:1883
  topic_prefix: test/link
relays:
  chip: gpiochip1
  pins: [5, 6, 13, 19]
  active_low: true
schedule:
  strategy: normalize
  notify_rule_executed: false
link:
  dwell_ms: 100
  budget_ms: 2000
  fallback_channel: 6
loop_ms: 50
heartbeat_ms: 0
http: ":8080"
ws_broker: "off"
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	Normalize(cfg)

	if cfg.Node.StateFile != "/tmp/pn.cbor" {
		t.Errorf("state_file: got %q", cfg.Node.StateFile)
	}
	if cfg.Pins() != [4]int{5, 6, 13, 19} || !cfg.Relays.ActiveLow || cfg.Relays.Chip != "gpiochip1" {
		t.Errorf("relays: got %+v", cfg.Relays)
	}
	if cfg.Schedule.Strategy != "normalize" || *cfg.Schedule.NotifyRuleExecuted {
		t.Errorf("schedule: got %+v", cfg.Schedule)
	}
	if cfg.Heartbeat() != 0 {
		t.Errorf("explicit heartbeat 0 should stay disabled, got %v", cfg.Heartbeat())
	}
	if cfg.HTTPAddr != ":8080" || cfg.WSBroker != "off" {
		t.Errorf("http: got %q ws_broker %q", cfg.HTTPAddr, cfg.WSBroker)
	}
	if cfg.Loop() != 50*time.Millisecond {
		t.Errorf("loop: got %v", cfg.Loop())
	}

	lc := cfg.LinkSettings()
	if lc.Dwell != 100*time.Millisecond || lc.Budget != 2*time.Second || lc.FallbackChannel != 6 {
		t.Errorf("link: got %+v", lc)
	}
	want, _ := radio.ParseAddr("24:6f:28:aa:bb:cc")
	if lc.FixedMaster != want {
		t.Errorf("fixed master: got %v", lc.FixedMaster)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("relays:\n  pinz: [1, 2, 3, 4]\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "pinz") {
		t.Errorf("error should name the key: %v", err)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("empty config should validate: %v", err)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{}
	Normalize(cfg)

	if cfg.Node.StateFile != DefaultStateFile {
		t.Errorf("state_file: got %q", cfg.Node.StateFile)
	}
	if cfg.MQTT.Broker != DefaultBroker || cfg.MQTT.TopicPrefix != radio.DefaultTopicPrefix {
		t.Errorf("mqtt: got %+v", cfg.MQTT)
	}
	if cfg.Pins() != [4]int{17, 27, 22, 23} {
		t.Errorf("pins: got %v", cfg.Pins())
	}
	if cfg.Schedule.Strategy != "exact" || !*cfg.Schedule.NotifyRuleExecuted {
		t.Errorf("schedule: got %+v", cfg.Schedule)
	}
	lc := cfg.LinkSettings()
	if lc.Dwell != 260*time.Millisecond || lc.Budget != 7*time.Second || lc.FallbackChannel != 1 {
		t.Errorf("link: got %+v", lc)
	}
	if !lc.FixedMaster.IsZero() {
		t.Error("no fixed master expected")
	}
	if cfg.Loop() != 20*time.Millisecond {
		t.Errorf("loop: got %v", cfg.Loop())
	}
	if cfg.Heartbeat() != 15*time.Minute {
		t.Errorf("heartbeat: got %v", cfg.Heartbeat())
	}
	if cfg.HTTPAddr != "" {
		t.Errorf("http should stay disabled, got %q", cfg.HTTPAddr)
	}
}

func TestNormalizeNil(t *testing.T) {
	Normalize(nil)
}

func TestValidate_Rejects(t *testing.T) {
	neg := -1
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"bad address", Config{Node: NodeConfig{Address: "nope"}}, "node.address"},
		{"zero address", Config{Node: NodeConfig{Address: "00:00:00:00:00:00"}}, "node.address"},
		{"bad master", Config{Node: NodeConfig{Master: "zz:00:00:00:00:01"}}, "node.master"},
		{"three pins", Config{Relays: RelayConfig{Pins: []int{1, 2, 3}}}, "relays.pins"},
		{"negative pin", Config{Relays: RelayConfig{Pins: []int{1, 2, -3, 4}}}, "negative"},
		{"duplicate pin", Config{Relays: RelayConfig{Pins: []int{1, 2, 2, 4}}}, "used by relays 2 and 3"},
		{"strategy", Config{Schedule: ScheduleConfig{Strategy: "fuzzy"}}, "schedule.strategy"},
		{"dwell", Config{Link: LinkConfig{DwellMs: -5}}, "link.dwell_ms"},
		{"budget", Config{Link: LinkConfig{BudgetMs: -5}}, "link.budget_ms"},
		{"fallback", Config{Link: LinkConfig{FallbackChannel: 14}}, "link.fallback_channel"},
		{"loop", Config{LoopMs: -1}, "loop_ms"},
		{"heartbeat", Config{HeartbeatMs: &neg}, "heartbeat_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := &Config{}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Node.StateFile != "" || cfg.LoopMs != 0 || cfg.HeartbeatMs != nil {
		t.Errorf("Validate mutated config: %+v", cfg)
	}
}
