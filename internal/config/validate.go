package config

import (
	"fmt"

	"github.com/sweeney/power-node/internal/radio"
	"github.com/sweeney/power-node/internal/relay"
	"github.com/sweeney/power-node/internal/schedule"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ---- addresses ----

	if cfg.Node.Address != "" {
		a, err := radio.ParseAddr(cfg.Node.Address)
		if err != nil {
			return fmt.Errorf("node.address: %w", err)
		}
		if a.IsZero() {
			return fmt.Errorf("node.address: must not be all zeros")
		}
	}
	if cfg.Node.Master != "" {
		a, err := radio.ParseAddr(cfg.Node.Master)
		if err != nil {
			return fmt.Errorf("node.master: %w", err)
		}
		if a.IsZero() {
			return fmt.Errorf("node.master: must not be all zeros")
		}
	}

	// ---- relay outputs ----

	if n := len(cfg.Relays.Pins); n != 0 && n != relay.NumRelays {
		return fmt.Errorf("relays.pins: want %d pins, got %d", relay.NumRelays, n)
	}
	seen := make(map[int]int)
	for i, pin := range cfg.Relays.Pins {
		if pin < 0 {
			return fmt.Errorf("relays.pins: relay %d has negative pin %d", i+1, pin)
		}
		if prev, ok := seen[pin]; ok {
			return fmt.Errorf("relays.pins: pin %d used by relays %d and %d", pin, prev, i+1)
		}
		seen[pin] = i + 1
	}

	// ---- schedule ----

	if _, err := schedule.ParseStrategy(cfg.Schedule.Strategy); err != nil {
		return fmt.Errorf("schedule.strategy: %w", err)
	}

	// ---- link ----

	if cfg.Link.DwellMs < 0 {
		return fmt.Errorf("link.dwell_ms: must not be negative")
	}
	if cfg.Link.BudgetMs < 0 {
		return fmt.Errorf("link.budget_ms: must not be negative")
	}
	if cfg.Link.FallbackChannel != 0 && !radio.ValidChannel(cfg.Link.FallbackChannel) {
		return fmt.Errorf("link.fallback_channel: %d outside %d..%d",
			cfg.Link.FallbackChannel, radio.MinChannel, radio.MaxChannel)
	}

	// ---- loop ----

	if cfg.LoopMs < 0 {
		return fmt.Errorf("loop_ms: must not be negative")
	}
	if cfg.HeartbeatMs != nil && *cfg.HeartbeatMs < 0 {
		return fmt.Errorf("heartbeat_ms: must not be negative")
	}

	return nil
}
