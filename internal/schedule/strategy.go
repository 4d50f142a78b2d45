package schedule

import (
	"fmt"

	"github.com/sweeney/power-node/internal/timebase"
)

// Strategy decides the desired state of one relay from its rule sequence.
// found is false when no rule applies, in which case the relay is left alone.
type Strategy interface {
	Name() string
	Desired(rules []Rule, at timebase.Instant) (on, found bool)
}

// Strategy names accepted by ParseStrategy.
const (
	NameExactInstant = "exact"
	NameNormalize    = "normalize"
)

// ExactInstant fires only rules whose minute equals the current minute on an
// enabled weekday. When several match, the last in stored order wins.
type ExactInstant struct{}

// Name returns "exact".
func (ExactInstant) Name() string { return NameExactInstant }

// Desired returns the state of the last rule matching at exactly.
func (ExactInstant) Desired(rules []Rule, at timebase.Instant) (bool, bool) {
	var on, found bool
	for _, r := range rules {
		if !r.Valid() || !r.ActiveOn(at.Weekday) {
			continue
		}
		if r.Minute == at.Minute {
			on = r.On
			found = true
		}
	}
	return on, found
}

// Normalize returns the state set by the most recent applicable rule, looking
// at today up to the current minute and at yesterday's rules after the current
// minute (fired before midnight and still in effect).
//
// Candidates are scored on one line: today's at Minute, yesterday's at
// Minute-1440. The highest score wins; equal scores go to the later candidate.
type Normalize struct{}

// Name returns "normalize".
func (Normalize) Name() string { return NameNormalize }

// Desired returns the state of the most recent applicable rule.
func (Normalize) Desired(rules []Rule, at timebase.Instant) (bool, bool) {
	today := at.Weekday % timebase.DaysPerWeek
	yesterday := (today + timebase.DaysPerWeek - 1) % timebase.DaysPerWeek

	var (
		best  int
		on    bool
		found bool
	)
	consider := func(score int, r Rule) {
		if !found || score >= best {
			best = score
			on = r.On
			found = true
		}
	}

	for _, r := range rules {
		if !r.Valid() {
			continue
		}
		if r.ActiveOn(today) && r.Minute <= at.Minute {
			consider(int(r.Minute), r)
		}
		if r.ActiveOn(yesterday) && r.Minute > at.Minute {
			consider(int(r.Minute)-timebase.MinutesPerDay, r)
		}
	}
	return on, found
}

// ParseStrategy returns the strategy with the given name.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case NameExactInstant, "":
		return ExactInstant{}, nil
	case NameNormalize:
		return Normalize{}, nil
	}
	return nil, fmt.Errorf("unknown schedule strategy %q", name)
}
