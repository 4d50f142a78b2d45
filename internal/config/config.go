// Package config loads the power-node YAML configuration.
//
// Load parses a file, Validate checks it without mutating, and Normalize fills
// defaults afterwards. Command-line flags in main override individual fields.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Node     NodeConfig     `yaml:"node"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Relays   RelayConfig    `yaml:"relays"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Link     LinkConfig     `yaml:"link"`

	LoopMs      int    `yaml:"loop_ms"`
	HeartbeatMs *int   `yaml:"heartbeat_ms"` // 0 disables
	HTTPAddr    string `yaml:"http"`         // empty disables

	// WSBroker is the MQTT websocket URL the status page connects to for
	// live updates. Empty derives ws://<broker host>:9001, "off" disables.
	WSBroker string `yaml:"ws_broker"`
}

// ---- NODE ----

type NodeConfig struct {
	// Address is this node's link address. Empty means generate one on first
	// boot and keep it in the state file.
	Address string `yaml:"address"`

	// Master fixes the Master's address. Empty means learn it from the
	// first accepted packet.
	Master string `yaml:"master"`

	StateFile string `yaml:"state_file"`
}

// ---- TRANSPORT ----

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// ---- OUTPUTS ----

type RelayConfig struct {
	Chip      string `yaml:"chip"`
	Pins      []int  `yaml:"pins"` // BCM numbers, relay 1 first
	ActiveLow bool   `yaml:"active_low"`
}

// ---- SCHEDULE ----

type ScheduleConfig struct {
	Strategy           string `yaml:"strategy"` // "exact" or "normalize"
	NotifyRuleExecuted *bool  `yaml:"notify_rule_executed"`
}

// ---- LINK ----

type LinkConfig struct {
	DwellMs         int `yaml:"dwell_ms"`
	BudgetMs        int `yaml:"budget_ms"`
	FallbackChannel int `yaml:"fallback_channel"`
}

// Load reads and parses the YAML file at path. It does not validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML bytes. Unknown keys are rejected; an empty document is
// an empty config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
