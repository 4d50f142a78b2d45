// Package link acquires the Master's radio channel and gates traffic until the
// handshake completes.
//
// A node starts Unlocked (or Locked, when a channel survived from a previous
// session), scans for a Hello, locks the announced channel and becomes Ready
// once a Hello is accepted on the locked channel. Only Hello is admitted
// before Ready.
package link

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/power-node/internal/protocol"
	"github.com/sweeney/power-node/internal/radio"
	"github.com/sweeney/power-node/internal/store"
	"github.com/sweeney/power-node/internal/timebase"
)

// State is the handshake state.
type State int

const (
	Unlocked State = iota
	Scanning
	Locked
	Ready
)

func (s State) String() string {
	switch s {
	case Unlocked:
		return "UNLOCKED"
	case Scanning:
		return "SCANNING"
	case Locked:
		return "LOCKED"
	case Ready:
		return "READY"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Store keys owned by the link.
const (
	KeyLockedChannel = "lockedCh"
	KeyMaster        = "masterMac"
)

// Reference scan timing.
const (
	DefaultDwell           = 260 * time.Millisecond
	DefaultBudget          = 7000 * time.Millisecond
	DefaultPoll            = 5 * time.Millisecond
	DefaultFallbackChannel = 1
)

// ErrPersist wraps a failed write of link state. The in-memory state is
// still updated.
var ErrPersist = errors.New("link: persist failed")

// Config tunes the link.
type Config struct {
	// FixedMaster, when non-zero, is the Master address; nothing is learned.
	FixedMaster radio.Addr

	Dwell           time.Duration
	Budget          time.Duration
	Poll            time.Duration
	FallbackChannel int
}

func (c *Config) setDefaults() {
	if c.Dwell <= 0 {
		c.Dwell = DefaultDwell
	}
	if c.Budget <= 0 {
		c.Budget = DefaultBudget
	}
	if c.Poll <= 0 {
		c.Poll = DefaultPoll
	}
	if !radio.ValidChannel(c.FallbackChannel) {
		c.FallbackChannel = DefaultFallbackChannel
	}
}

// Link holds the handshake state, channel lock and Master identity.
// Not safe for concurrent use; the node loop owns it.
type Link struct {
	cfg   Config
	radio radio.Radio
	store store.Store
	mono  timebase.Monotonic
	sleep func(time.Duration)

	state   State
	channel int // 0 = not locked
	master  radio.Addr
}

// New creates an Unlocked link. sleep is the cooperative wait used while
// dwelling on a channel.
func New(cfg Config, r radio.Radio, s store.Store, mono timebase.Monotonic, sleep func(time.Duration)) *Link {
	cfg.setDefaults()
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Link{
		cfg:    cfg,
		radio:  r,
		store:  s,
		mono:   mono,
		sleep:  sleep,
		master: cfg.FixedMaster,
	}
}

// State returns the handshake state.
func (l *Link) State() State { return l.state }

// Channel returns the locked channel, or 0.
func (l *Link) Channel() int { return l.channel }

// Peer returns the Master address used for replies.
func (l *Link) Peer() (radio.Addr, bool) {
	return l.master, !l.master.IsZero()
}

// Boot restores the channel lock and learned Master from the store. A valid
// persisted channel starts the link Locked on it; otherwise it stays Unlocked
// and the caller must Scan.
func (l *Link) Boot() {
	if l.cfg.FixedMaster.IsZero() {
		var buf radio.Addr
		if n := l.store.GetBytes(KeyMaster, buf[:]); n == radio.AddrLen && !buf.IsZero() {
			l.master = buf
			log.Printf("link: restored master %s", l.master)
		}
	}

	ch := int(l.store.GetByte(KeyLockedChannel, 0))
	if !radio.ValidChannel(ch) {
		l.state = Unlocked
		return
	}
	l.channel = ch
	l.tune(ch)
	l.route()
	l.state = Locked
	log.Printf("link: using locked channel %d", ch)
}

// Admit reports whether a record with tag may be processed in the current
// state. Before Ready only Hello is admitted.
func (l *Link) Admit(tag byte) bool {
	if l.state == Ready {
		return true
	}
	return tag == protocol.TagHello && (l.state == Locked || l.state == Scanning)
}

// Scan sweeps channels 1..13, dwelling on each while draining inbox for a
// Hello, until one arrives or the budget runs out. The Hello's announced
// channel becomes the lock and its frame is returned for the caller to
// process. On timeout the fallback channel is locked and nil is returned.
// Non-Hello frames seen while scanning are dropped.
func (l *Link) Scan(inbox <-chan radio.Inbound) (*radio.Inbound, error) {
	l.state = Scanning
	log.Printf("link: scanning for hello")

	start := l.mono.NowMillis()
	budget := uint32(l.cfg.Budget.Milliseconds())

	for timebase.Elapsed(l.mono.NowMillis(), start) < budget {
		for ch := radio.MinChannel; ch <= radio.MaxChannel; ch++ {
			if timebase.Elapsed(l.mono.NowMillis(), start) >= budget {
				break
			}
			l.tune(ch)
			in, hello := l.dwell(inbox)
			if hello != nil {
				log.Printf("link: hello from %s on ch%d, locking ch%d", in.From, ch, hello.Channel)
				return in, l.lock(int(hello.Channel))
			}
		}
	}

	log.Printf("link: no hello within %v, falling back to ch%d", l.cfg.Budget, l.cfg.FallbackChannel)
	return nil, l.lock(l.cfg.FallbackChannel)
}

func (l *Link) dwell(inbox <-chan radio.Inbound) (*radio.Inbound, *protocol.Hello) {
	t0 := l.mono.NowMillis()
	window := uint32(l.cfg.Dwell.Milliseconds())

	for timebase.Elapsed(l.mono.NowMillis(), t0) < window {
		select {
		case in := <-inbox:
			p, err := protocol.Decode(in.Data)
			if err != nil {
				continue
			}
			if h, ok := p.(*protocol.Hello); ok {
				return &in, h
			}
		default:
			l.sleep(l.cfg.Poll)
		}
	}
	return nil, nil
}

// lock binds the radio to ch and persists it.
func (l *Link) lock(ch int) error {
	l.channel = ch
	l.tune(ch)
	l.route()
	l.state = Locked
	return l.persistChannel()
}

// AcceptHello completes (or repeats) the handshake for a Hello announcing ch
// from sender from: rebind the radio if the channel moved, learn the Master
// if none is known, rebuild the peer route and move to Ready. The returned
// error reports persistence failures only; the handshake still completes.
func (l *Link) AcceptHello(from radio.Addr, ch int) error {
	var errs []error

	if ch != l.channel {
		if l.channel != 0 {
			log.Printf("link: master moved ch%d -> ch%d", l.channel, ch)
		}
		l.channel = ch
		l.tune(ch)
		if err := l.persistChannel(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := l.learn(from); err != nil {
		errs = append(errs, err)
	}

	l.route()
	if l.state != Ready {
		log.Printf("link: %s -> %s on ch%d", l.state, Ready, ch)
	}
	l.state = Ready
	return errors.Join(errs...)
}

// Learn captures from as the Master identity if none is fixed or known, and
// routes replies to it.
func (l *Link) Learn(from radio.Addr) error {
	if !l.master.IsZero() {
		return nil
	}
	err := l.learn(from)
	l.route()
	return err
}

func (l *Link) learn(from radio.Addr) error {
	if !l.master.IsZero() || from.IsZero() {
		return nil
	}
	l.master = from
	log.Printf("link: learned master %s", from)

	if n, err := l.store.PutBytes(KeyMaster, from[:]); err != nil || n != radio.AddrLen {
		return fmt.Errorf("%w: %s", ErrPersist, KeyMaster)
	}
	return nil
}

// route rebuilds the single peer entry for the Master on the locked channel.
func (l *Link) route() {
	if l.master.IsZero() || l.channel == 0 {
		return
	}
	if err := l.radio.RemovePeer(l.master); err != nil {
		log.Printf("link: remove peer %s: %v", l.master, err)
	}
	if err := l.radio.RegisterPeer(l.master, l.channel); err != nil {
		log.Printf("link: register peer %s on ch%d: %v", l.master, l.channel, err)
	}
}

func (l *Link) tune(ch int) {
	if err := l.radio.SetChannel(ch); err != nil {
		log.Printf("link: set channel %d: %v", ch, err)
	}
}

func (l *Link) persistChannel() error {
	if err := l.store.PutByte(KeyLockedChannel, byte(l.channel)); err != nil {
		return fmt.Errorf("%w: %s", ErrPersist, KeyLockedChannel)
	}
	return nil
}
