package schedule

import (
	"errors"

	"github.com/sweeney/power-node/internal/timebase"
)

// ErrChannel is returned for a relay channel outside 1..4.
var ErrChannel = errors.New("relay channel out of range")

// Engine stores up to MaxRules rules per relay channel.
type Engine struct {
	rules [NumRelays][]Rule
}

// NewEngine creates an engine with no rules.
func NewEngine() *Engine {
	return &Engine{}
}

// ValidChannel reports whether ch is a relay channel (1..4).
func ValidChannel(ch int) bool {
	return ch >= 1 && ch <= NumRelays
}

// Replace discards every rule of channel ch and installs rules in their
// place. More than MaxRules rules are truncated. An invalid channel is
// rejected before anything changes.
func (e *Engine) Replace(ch int, rules []Rule) error {
	if !ValidChannel(ch) {
		return ErrChannel
	}
	if len(rules) > MaxRules {
		rules = rules[:MaxRules]
	}
	e.rules[ch-1] = append([]Rule(nil), rules...)
	return nil
}

// Rules returns a copy of channel ch's rules, or nil for an invalid channel.
func (e *Engine) Rules(ch int) []Rule {
	if !ValidChannel(ch) {
		return nil
	}
	return append([]Rule(nil), e.rules[ch-1]...)
}

// Count returns the number of rules stored for channel ch.
func (e *Engine) Count(ch int) int {
	if !ValidChannel(ch) {
		return 0
	}
	return len(e.rules[ch-1])
}

// Evaluate runs strategy s over every channel at instant at and returns the
// relays whose desired state differs from mask (bit0 = relay 1).
func (e *Engine) Evaluate(s Strategy, at timebase.Instant, mask uint8) []Decision {
	var out []Decision
	for ch := 1; ch <= NumRelays; ch++ {
		on, found := s.Desired(e.rules[ch-1], at)
		if !found {
			continue
		}
		current := mask&(1<<(ch-1)) != 0
		if current != on {
			out = append(out, Decision{Channel: ch, On: on})
		}
	}
	return out
}
