// Package schedule contains the relay scheduling engine.
// This package has NO I/O: it decides which relays should change and leaves
// actuation, persistence and reporting to the caller.
package schedule

import "github.com/sweeney/power-node/internal/timebase"

const (
	NumRelays = 4
	MaxRules  = 10
	maxMinute = timebase.MinutesPerDay - 1
)

// Rule switches one relay at a minute of the day on selected weekdays.
type Rule struct {
	Minute uint16 // 0..1439; anything else is skipped
	On     bool
	Days   uint8 // bit0=Mon .. bit6=Sun
}

// Valid reports whether the rule can ever match.
func (r Rule) Valid() bool {
	return r.Minute <= maxMinute
}

// ActiveOn reports whether the rule is enabled on weekday. The weekday is
// reduced mod 7 first.
func (r Rule) ActiveOn(weekday uint8) bool {
	return (r.Days>>(weekday%timebase.DaysPerWeek))&0x01 != 0
}

// Decision is a relay that must be switched.
type Decision struct {
	Channel int // 1..4
	On      bool
}
