// Package node is the Power node: it owns the relay mask, rule engine, clock
// and link, dispatches inbound records and reports to the Master.
//
// A Node is not safe for concurrent use. The radio callback only enqueues
// frames (see Receiver); one loop calls Handle and Tick.
package node

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/sweeney/power-node/internal/link"
	"github.com/sweeney/power-node/internal/protocol"
	"github.com/sweeney/power-node/internal/radio"
	"github.com/sweeney/power-node/internal/relay"
	"github.com/sweeney/power-node/internal/schedule"
	"github.com/sweeney/power-node/internal/store"
	"github.com/sweeney/power-node/internal/timebase"
)

// maxCatchUp caps the minutes evaluated one by one after a stalled loop.
const maxCatchUp = timebase.MinutesPerDay

// Config tunes the node.
type Config struct {
	Link link.Config

	// TickStrategy is evaluated on every elapsed minute. Nil means
	// exact-instant.
	TickStrategy schedule.Strategy

	// NotifyRuleExecuted enables RuleExecuted reports from the tick.
	NotifyRuleExecuted bool
}

// Deps are the node's collaborators.
type Deps struct {
	Radio  radio.Radio
	Relays relay.Actuator
	Store  store.Store
	Mono   timebase.Monotonic

	// Sleep is the cooperative wait used while scanning. Nil means time.Sleep.
	Sleep func(time.Duration)
}

// Counts tracks protocol activity.
type Counts struct {
	Received   int // frames taken off the inbox
	Malformed  int // frames that failed to decode
	Gated      int // records refused before the handshake completed
	Sent       int
	SendErrors int
	Errors     int // Error records emitted
	Fired      int // relays switched by the tick
}

// Report is a point-in-time view of the node for status consumers.
type Report struct {
	Link        string
	Channel     int
	Peer        string
	Mask        relay.Mask
	ClockValid  bool
	Now         timebase.Instant
	ResetCause  uint8
	RuleCounts  [schedule.NumRelays]int
	Strategy    string
	Counts      Counts
	QueueDrops  uint64
	UptimeMilli uint32
}

// Node is the Power node state aggregate.
type Node struct {
	cfg    Config
	radio  radio.Radio
	relays relay.Actuator
	store  store.Store
	mono   timebase.Monotonic

	link   *link.Link
	engine *schedule.Engine
	clock  timebase.Clock

	mask       relay.Mask
	resetCause uint8
	counts     Counts

	// queueDrops is written by the radio callback.
	queueDrops atomic.Uint64
}

// fired is a relay switched by a scheduled rule.
type fired struct {
	channel int
	on      bool
	at      timebase.Instant
}

// New creates a node with an empty rule engine and an invalid clock.
func New(cfg Config, deps Deps) *Node {
	if cfg.TickStrategy == nil {
		cfg.TickStrategy = schedule.ExactInstant{}
	}
	return &Node{
		cfg:        cfg,
		radio:      deps.Radio,
		relays:     deps.Relays,
		store:      deps.Store,
		mono:       deps.Mono,
		link:       link.New(cfg.Link, deps.Radio, deps.Store, deps.Mono, deps.Sleep),
		engine:     schedule.NewEngine(),
		resetCause: ResetPowerOn,
	}
}

// Restore loads rules and the relay mask from the store, drives the outputs
// to the restored mask and determines the reset cause.
func (n *Node) Restore() {
	restoreRules(n.store, n.engine)
	n.mask = restoreMask(n.store)
	if err := relay.Apply(n.relays, n.mask); err != nil {
		log.Printf("node: restore outputs: %v", err)
	}
	n.resetCause = resetCause(n.store)
	log.Printf("node: restored relays=[%s] reset_cause=%d", n.mask, n.resetCause)
}

// Start brings the link up. Without a persisted channel it scans, reading
// frames from inbox, and processes the Hello that ended the scan. Otherwise,
// when the Master is already known, the current state is pushed to it.
func (n *Node) Start(inbox <-chan radio.Inbound) {
	n.link.Boot()
	if n.link.State() == link.Unlocked {
		in, err := n.link.Scan(inbox)
		if err != nil {
			log.Printf("node: %v", err)
		}
		if in != nil {
			n.Handle(*in)
			return
		}
	}
	if _, ok := n.link.Peer(); ok {
		n.sendPowerState()
	}
}

// Receiver returns a radio callback that copies frames into inbox, dropping
// them when it is full.
func (n *Node) Receiver(inbox chan<- radio.Inbound) func(radio.Addr, []byte) {
	return func(from radio.Addr, data []byte) {
		in := radio.Inbound{From: from, Data: append([]byte(nil), data...)}
		select {
		case inbox <- in:
		default:
			if n.queueDrops.Add(1)%100 == 1 {
				log.Printf("node: inbox full, dropping frames")
			}
		}
	}
}

// Handle decodes and dispatches one inbound frame. Malformed frames and
// records refused by the handshake gate have no effect and no reply.
func (n *Node) Handle(in radio.Inbound) {
	n.counts.Received++
	p, err := protocol.Decode(in.Data)
	if err != nil {
		n.counts.Malformed++
		return
	}
	if !n.link.Admit(p.Tag()) {
		n.counts.Gated++
		return
	}

	switch pkt := p.(type) {
	case *protocol.Hello:
		n.handleHello(in.From, pkt)
	case *protocol.RelayCommand:
		n.learn(in.From)
		n.handleRelayCommand(pkt)
	case *protocol.RuleUpload:
		n.learn(in.From)
		n.handleRuleUpload(pkt)
	case *protocol.TimeSync:
		n.learn(in.From)
		n.handleTimeSync(pkt)
	default:
		// Node-to-Master records echoed back to us.
	}
}

func (n *Node) learn(from radio.Addr) {
	if err := n.link.Learn(from); err != nil {
		log.Printf("node: %v", err)
		n.sendError(protocol.ErrCodeStorage, 0, 0)
	}
}

func (n *Node) handleHello(from radio.Addr, h *protocol.Hello) {
	ch := int(h.Channel)
	err := n.link.AcceptHello(from, ch)
	n.sendHelloAck(ch, true)
	if err != nil {
		log.Printf("node: %v", err)
		n.sendError(protocol.ErrCodeStorage, 0, 0)
	}
	n.sendPowerState()
}

func (n *Node) handleRelayCommand(cmd *protocol.RelayCommand) {
	touch := relay.Mask(cmd.Mask & protocol.RelayNibble)
	next := n.mask&^touch | relay.Mask(cmd.Value)&touch

	if next != n.mask {
		for ch := 1; ch <= relay.NumRelays; ch++ {
			if next.Get(ch) != n.mask.Get(ch) {
				n.actuate(ch, next.Get(ch))
			}
		}
		n.mask = next
		log.Printf("node: command relays=[%s]", n.mask)
		if err := saveMask(n.store, n.mask); err != nil {
			log.Printf("node: %v", err)
			n.sendError(protocol.ErrCodeStorage, 0, 0)
		}
	}
	n.sendPowerState()
}

func (n *Node) handleRuleUpload(up *protocol.RuleUpload) {
	ch := int(up.Channel)
	if !schedule.ValidChannel(ch) {
		log.Printf("node: rule upload for invalid channel %d", ch)
		n.sendRuleAck(up.Channel, false, 0)
		n.sendError(protocol.ErrCodeBadChannel, 0, up.Channel)
		n.sendPowerState()
		return
	}

	rules := fromRecords(up.Active())
	n.engine.Replace(ch, rules)
	log.Printf("node: installed %d rules for ch%d", len(rules), ch)

	if err := saveRules(n.store, n.engine, ch); err != nil {
		log.Printf("node: %v", err)
		n.sendRuleAck(up.Channel, false, len(rules))
		n.sendError(protocol.ErrCodeStorage, up.Channel, 0)
	} else {
		n.sendRuleAck(up.Channel, true, len(rules))
	}
	n.sendPowerState()
}

// handleTimeSync sets the clock and brings the relays in line with the
// schedule: exact-instant first, then normalize.
func (n *Node) handleTimeSync(ts *protocol.TimeSync) {
	n.clock.Sync(ts.Minute, ts.Weekday, ts.Valid, n.mono.NowMillis())
	if n.clock.Valid() {
		at := n.clock.Now()
		log.Printf("node: time sync minute=%d weekday=%d", at.Minute, at.Weekday)
		changed := len(n.evaluate(schedule.ExactInstant{}, at)) > 0
		if len(n.evaluate(schedule.Normalize{}, at)) > 0 {
			changed = true
		}
		if changed {
			n.persistMask()
		}
	} else {
		log.Printf("node: time sync invalid, schedule paused")
	}
	n.sendPowerState()
}

// Tick advances the clock and runs the tick strategy once for every whole
// minute elapsed. It is a no-op while the clock is invalid.
func (n *Node) Tick() {
	steps := n.clock.Advance(n.mono.NowMillis())
	if steps == 0 {
		return
	}
	if steps > maxCatchUp {
		log.Printf("node: clock %d minutes behind, evaluating the last %d", steps, maxCatchUp)
		n.clock.Skip(steps - maxCatchUp)
		steps = maxCatchUp
	}

	var all []fired
	for i := 0; i < steps; i++ {
		all = append(all, n.evaluate(n.cfg.TickStrategy, n.clock.Step())...)
	}
	if len(all) == 0 {
		return
	}
	n.counts.Fired += len(all)
	n.persistMask()

	if _, exact := n.cfg.TickStrategy.(schedule.ExactInstant); exact && n.cfg.NotifyRuleExecuted {
		for _, f := range all {
			n.sendRuleExecuted(f)
		}
		return
	}
	// Without RuleExecuted the Master still has to learn the new mask.
	n.sendPowerState()
}

// evaluate applies the decisions of s at instant at to the outputs and the
// in-memory mask. Persistence is left to the caller.
func (n *Node) evaluate(s schedule.Strategy, at timebase.Instant) []fired {
	var out []fired
	for _, d := range n.engine.Evaluate(s, at, uint8(n.mask)) {
		n.actuate(d.Channel, d.On)
		n.mask = n.mask.With(d.Channel, d.On)
		log.Printf("node: %s rule ch%d -> %s at minute=%d weekday=%d",
			s.Name(), d.Channel, relay.StateString(d.On), at.Minute, at.Weekday)
		out = append(out, fired{channel: d.Channel, on: d.On, at: at})
	}
	return out
}

func (n *Node) actuate(ch int, on bool) {
	if err := n.relays.SetRelay(ch, on); err != nil {
		log.Printf("node: set relay %d %s: %v", ch, relay.StateString(on), err)
	}
}

func (n *Node) persistMask() {
	if err := saveMask(n.store, n.mask); err != nil {
		log.Printf("node: %v", err)
		n.sendError(protocol.ErrCodeStorage, 0, 0)
	}
}

// Shutdown marks a clean stop so the next boot reports a software reset.
func (n *Node) Shutdown() error {
	return n.store.PutByte(KeyCleanStop, 1)
}

// Mask returns the commanded relay state.
func (n *Node) Mask() relay.Mask { return n.mask }

// LinkState returns the handshake state.
func (n *Node) LinkState() link.State { return n.link.State() }

// Report returns a snapshot of the node.
func (n *Node) Report() Report {
	r := Report{
		Link:        n.link.State().String(),
		Channel:     n.link.Channel(),
		Mask:        n.mask,
		ClockValid:  n.clock.Valid(),
		Now:         n.clock.Now(),
		ResetCause:  n.resetCause,
		Strategy:    n.cfg.TickStrategy.Name(),
		Counts:      n.counts,
		QueueDrops:  n.queueDrops.Load(),
		UptimeMilli: n.mono.NowMillis(),
	}
	if peer, ok := n.link.Peer(); ok {
		r.Peer = peer.String()
	}
	for ch := 1; ch <= schedule.NumRelays; ch++ {
		r.RuleCounts[ch-1] = n.engine.Count(ch)
	}
	return r
}
