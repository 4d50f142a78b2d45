package node

import (
	"fmt"
	"log"
	"strconv"

	"github.com/sweeney/power-node/internal/link"
	"github.com/sweeney/power-node/internal/protocol"
	"github.com/sweeney/power-node/internal/radio"
	"github.com/sweeney/power-node/internal/relay"
	"github.com/sweeney/power-node/internal/schedule"
	"github.com/sweeney/power-node/internal/store"
)

// Store keys owned by the node. The link owns its own keys.
const (
	KeyRelayMask = "relayMask"
	KeyCleanStop = "cleanStop"
)

// Reset causes reported in PowerState.
const (
	ResetPowerOn  = 1
	ResetSoftware = 3
)

// ruleSetKey returns "rs<ch>", the stored rule set of a relay channel.
func ruleSetKey(ch int) string { return "rs" + strconv.Itoa(ch) }

// ruleSetSize is one stored rule set: a count byte followed by a fixed array
// of MaxRules records. A put replaces the whole set or nothing.
const ruleSetSize = 1 + protocol.MaxRules*protocol.RuleSize

// restoreRules loads every channel's rules. A missing or short record leaves
// that channel empty.
func restoreRules(s store.Store, e *schedule.Engine) {
	for ch := 1; ch <= schedule.NumRelays; ch++ {
		buf := make([]byte, ruleSetSize)
		n := s.GetBytes(ruleSetKey(ch), buf)
		if n == 0 {
			continue
		}
		if n != ruleSetSize {
			log.Printf("node: rules ch%d: read %d of %d bytes, starting empty", ch, n, ruleSetSize)
			continue
		}
		count := int(buf[0])
		if count > schedule.MaxRules {
			count = schedule.MaxRules
		}
		if count == 0 {
			continue
		}
		var recs [protocol.MaxRules]protocol.RuleRecord
		protocol.GetRules(recs[:], buf[1:])
		e.Replace(ch, fromRecords(recs[:count]))
		log.Printf("node: restored %d rules for ch%d", count, ch)
	}
}

// saveRules writes channel ch's rule set as one record. The write counts as
// committed only if every byte landed.
func saveRules(s store.Store, e *schedule.Engine, ch int) error {
	rules := e.Rules(ch)
	var recs [protocol.MaxRules]protocol.RuleRecord
	copy(recs[:], toRecords(rules))

	buf := make([]byte, ruleSetSize)
	buf[0] = byte(len(rules))
	protocol.PutRules(buf[1:], recs[:])

	key := ruleSetKey(ch)
	n, err := s.PutBytes(key, buf)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	if n != len(buf) {
		return fmt.Errorf("save %s: %w (%d of %d bytes)", key, store.ErrShortWrite, n, len(buf))
	}
	return nil
}

func restoreMask(s store.Store) relay.Mask {
	return relay.Mask(s.GetByte(KeyRelayMask, 0) & protocol.RelayNibble)
}

func saveMask(s store.Store, m relay.Mask) error {
	if err := s.PutByte(KeyRelayMask, byte(m)); err != nil {
		return fmt.Errorf("save %s: %w", KeyRelayMask, err)
	}
	return nil
}

// resetCause reads and clears the clean-stop marker left by Shutdown.
func resetCause(s store.Store) uint8 {
	cause := uint8(ResetPowerOn)
	if s.GetByte(KeyCleanStop, 0) == 1 {
		cause = ResetSoftware
	}
	if err := s.PutByte(KeyCleanStop, 0); err != nil {
		log.Printf("node: clear %s: %v", KeyCleanStop, err)
	}
	return cause
}

func fromRecords(recs []protocol.RuleRecord) []schedule.Rule {
	out := make([]schedule.Rule, len(recs))
	for i, r := range recs {
		out[i] = schedule.Rule{Minute: r.Minute, On: r.On == 1, Days: r.Days}
	}
	return out
}

func toRecords(rules []schedule.Rule) []protocol.RuleRecord {
	out := make([]protocol.RuleRecord, len(rules))
	for i, r := range rules {
		var on uint8
		if r.On {
			on = 1
		}
		out[i] = protocol.RuleRecord{Minute: r.Minute, On: on, Days: r.Days}
	}
	return out
}

// Stored is the node state as found in a store, without touching outputs.
type Stored struct {
	Mask       relay.Mask
	Channel    int // 0 = not locked
	Master     radio.Addr
	RuleCounts [schedule.NumRelays]int
	CleanStop  bool
}

// ReadStored inspects s read-only.
func ReadStored(s store.Store) Stored {
	st := Stored{
		Mask:      restoreMask(s),
		CleanStop: s.GetByte(KeyCleanStop, 0) == 1,
	}
	if ch := int(s.GetByte(link.KeyLockedChannel, 0)); radio.ValidChannel(ch) {
		st.Channel = ch
	}
	s.GetBytes(link.KeyMaster, st.Master[:])

	e := schedule.NewEngine()
	restoreRules(s, e)
	for ch := 1; ch <= schedule.NumRelays; ch++ {
		st.RuleCounts[ch-1] = e.Count(ch)
	}
	return st
}
