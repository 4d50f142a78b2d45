package config

import (
	"time"

	"github.com/sweeney/power-node/internal/link"
	"github.com/sweeney/power-node/internal/radio"
	"github.com/sweeney/power-node/internal/relay"
	"github.com/sweeney/power-node/internal/schedule"
)

// Defaults applied by Normalize.
const (
	DefaultStateFile   = "/var/lib/power-node/state.cbor"
	DefaultBroker      = "tcp://localhost:1883"
	DefaultChip        = "gpiochip0"
	DefaultLoopMs      = 20
	DefaultHeartbeatMs = 15 * 60 * 1000
)

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Node.StateFile == "" {
		cfg.Node.StateFile = DefaultStateFile
	}

	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = DefaultBroker
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = radio.DefaultTopicPrefix
	}

	if cfg.Relays.Chip == "" {
		cfg.Relays.Chip = DefaultChip
	}
	if len(cfg.Relays.Pins) == 0 {
		cfg.Relays.Pins = append([]int(nil), relay.DefaultPins[:]...)
	}

	if cfg.Schedule.Strategy == "" {
		cfg.Schedule.Strategy = schedule.NameExactInstant
	}
	if cfg.Schedule.NotifyRuleExecuted == nil {
		on := true
		cfg.Schedule.NotifyRuleExecuted = &on
	}

	if cfg.Link.DwellMs == 0 {
		cfg.Link.DwellMs = int(link.DefaultDwell.Milliseconds())
	}
	if cfg.Link.BudgetMs == 0 {
		cfg.Link.BudgetMs = int(link.DefaultBudget.Milliseconds())
	}
	if cfg.Link.FallbackChannel == 0 {
		cfg.Link.FallbackChannel = link.DefaultFallbackChannel
	}

	if cfg.LoopMs == 0 {
		cfg.LoopMs = DefaultLoopMs
	}
	if cfg.HeartbeatMs == nil {
		hb := DefaultHeartbeatMs
		cfg.HeartbeatMs = &hb
	}
}

// Pins returns the relay pins, relay 1 first. Only meaningful after Normalize.
func (c *Config) Pins() [relay.NumRelays]int {
	var pins [relay.NumRelays]int
	copy(pins[:], c.Relays.Pins)
	return pins
}

// Loop returns the cooperative loop interval.
func (c *Config) Loop() time.Duration {
	return time.Duration(c.LoopMs) * time.Millisecond
}

// Heartbeat returns the heartbeat interval, 0 when disabled.
func (c *Config) Heartbeat() time.Duration {
	if c.HeartbeatMs == nil {
		return 0
	}
	return time.Duration(*c.HeartbeatMs) * time.Millisecond
}

// LinkSettings converts the link section. A malformed master address is
// ignored here; Validate reports it.
func (c *Config) LinkSettings() link.Config {
	lc := link.Config{
		Dwell:           time.Duration(c.Link.DwellMs) * time.Millisecond,
		Budget:          time.Duration(c.Link.BudgetMs) * time.Millisecond,
		FallbackChannel: c.Link.FallbackChannel,
	}
	if c.Node.Master != "" {
		if a, err := radio.ParseAddr(c.Node.Master); err == nil {
			lc.FixedMaster = a
		}
	}
	return lc
}
