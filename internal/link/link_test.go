package link

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/power-node/internal/protocol"
	"github.com/sweeney/power-node/internal/radio"
	"github.com/sweeney/power-node/internal/store"
	"github.com/sweeney/power-node/internal/timebase"
)

var master = radio.Addr{0x24, 0x6f, 0x28, 0x01, 0x02, 0x03}

type harness struct {
	radio *radio.FakeRadio
	store *store.FakeStore
	mono  *timebase.FakeMonotonic
	inbox chan radio.Inbound
	link  *Link

	// onSleep runs after every simulated sleep.
	onSleep func()
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		radio: radio.NewFakeRadio(),
		store: store.NewFakeStore(),
		mono:  timebase.NewFakeMonotonic(1000),
		inbox: make(chan radio.Inbound, 8),
	}
	sleep := func(d time.Duration) {
		h.mono.Advance(d)
		if h.onSleep != nil {
			h.onSleep()
		}
	}
	h.link = New(cfg, h.radio, h.store, h.mono, sleep)
	return h
}

func hello(ch uint8) []byte {
	return protocol.Encode(&protocol.Hello{Channel: ch})
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Unlocked:  "UNLOCKED",
		Scanning:  "SCANNING",
		Locked:    "LOCKED",
		Ready:     "READY",
		State(42): "State(42)",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("got %q, want %q", s.String(), want)
		}
	}
}

func TestBootWithoutLockIsUnlocked(t *testing.T) {
	h := newHarness(t, Config{})
	h.link.Boot()

	if h.link.State() != Unlocked {
		t.Errorf("state: got %s, want UNLOCKED", h.link.State())
	}
	if len(h.radio.Tunes) != 0 {
		t.Errorf("radio should not be tuned, got %v", h.radio.Tunes)
	}
}

func TestBootWithPersistedLock(t *testing.T) {
	h := newHarness(t, Config{})
	h.store.Entries[KeyLockedChannel] = []byte{6}
	h.store.Entries[KeyMaster] = master[:]
	h.link.Boot()

	if h.link.State() != Locked {
		t.Errorf("state: got %s, want LOCKED", h.link.State())
	}
	if h.link.Channel() != 6 || h.radio.Channel != 6 {
		t.Errorf("channel: link %d radio %d, want 6", h.link.Channel(), h.radio.Channel)
	}
	if ch, ok := h.radio.Peers[master]; !ok || ch != 6 {
		t.Errorf("peer route: got (%d, %v), want (6, true)", ch, ok)
	}
	if peer, ok := h.link.Peer(); !ok || peer != master {
		t.Errorf("Peer: got (%v, %v)", peer, ok)
	}
}

func TestBootIgnoresInvalidPersistedLock(t *testing.T) {
	h := newHarness(t, Config{})
	h.store.Entries[KeyLockedChannel] = []byte{0xFF} // erased
	h.link.Boot()

	if h.link.State() != Unlocked {
		t.Errorf("state: got %s, want UNLOCKED", h.link.State())
	}
}

func TestAdmitGatesNonHello(t *testing.T) {
	h := newHarness(t, Config{})

	tags := []byte{protocol.TagRelayCommand, protocol.TagTimeSync, protocol.TagRuleUpload}
	for _, state := range []State{Unlocked, Locked} {
		h.link.state = state
		for _, tag := range tags {
			if h.link.Admit(tag) {
				t.Errorf("%s admitted tag %d", state, tag)
			}
		}
	}

	h.link.state = Locked
	if !h.link.Admit(protocol.TagHello) {
		t.Error("LOCKED should admit Hello")
	}

	h.link.state = Ready
	for _, tag := range append(tags, protocol.TagHello) {
		if !h.link.Admit(tag) {
			t.Errorf("READY rejected tag %d", tag)
		}
	}
}

func TestScanFindsHelloOnChannel7(t *testing.T) {
	h := newHarness(t, Config{})
	start := h.mono.NowMillis()
	sent := false
	// The Master is on channel 7 and starts broadcasting 3 s into the scan.
	h.onSleep = func() {
		if !sent && h.radio.Channel == 7 && timebase.Elapsed(h.mono.NowMillis(), start) >= 3000 {
			h.inbox <- radio.Inbound{From: master, Data: hello(7)}
			sent = true
		}
	}

	h.link.Boot()
	in, err := h.link.Scan(h.inbox)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in == nil {
		t.Fatal("expected the hello frame")
	}
	if in.From != master {
		t.Errorf("from: got %v", in.From)
	}
	if h.link.State() != Locked {
		t.Errorf("state: got %s, want LOCKED", h.link.State())
	}
	if h.link.Channel() != 7 || h.radio.Channel != 7 {
		t.Errorf("channel: link %d radio %d, want 7", h.link.Channel(), h.radio.Channel)
	}
	if got := h.store.GetByte(KeyLockedChannel, 0); got != 7 {
		t.Errorf("persisted lock: got %d, want 7", got)
	}
	if el := timebase.Elapsed(h.mono.NowMillis(), start); el < 3000 || el > 7000 {
		t.Errorf("scan ended after %d ms", el)
	}
}

func TestScanDropsNonHello(t *testing.T) {
	h := newHarness(t, Config{})
	h.inbox <- radio.Inbound{From: master, Data: protocol.Encode(&protocol.RelayCommand{Mask: 1, Value: 1})}
	h.inbox <- radio.Inbound{From: master, Data: []byte{0xde, 0xad}}
	h.inbox <- radio.Inbound{From: master, Data: hello(3)}

	in, _ := h.link.Scan(h.inbox)
	if in == nil {
		t.Fatal("expected hello")
	}
	if in.Data[0] != protocol.TagHello {
		t.Errorf("returned frame tag %d", in.Data[0])
	}
	if h.link.Channel() != 3 {
		t.Errorf("channel: got %d, want 3", h.link.Channel())
	}
}

func TestScanTimeoutFallsBack(t *testing.T) {
	h := newHarness(t, Config{})
	start := h.mono.NowMillis()

	in, err := h.link.Scan(h.inbox)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in != nil {
		t.Fatal("expected no hello")
	}
	if h.link.State() != Locked || h.link.Channel() != 1 {
		t.Errorf("got %s ch%d, want LOCKED ch1", h.link.State(), h.link.Channel())
	}
	elapsed := timebase.Elapsed(h.mono.NowMillis(), start)
	if elapsed < 7000 || elapsed > 7000+260 {
		t.Errorf("scan took %d ms, want within [7000, 7260]", elapsed)
	}
	// Every channel visited at least once before falling back.
	seen := map[int]bool{}
	for _, ch := range h.radio.Tunes {
		seen[ch] = true
	}
	for ch := 1; ch <= 13; ch++ {
		if !seen[ch] {
			t.Errorf("channel %d never scanned", ch)
		}
	}
	if last := h.radio.Tunes[len(h.radio.Tunes)-1]; last != 1 {
		t.Errorf("final tune: got %d, want 1", last)
	}
}

func TestScanLockPersistFailure(t *testing.T) {
	h := newHarness(t, Config{Budget: 100 * time.Millisecond})
	h.store.FailKeys[KeyLockedChannel] = true

	_, err := h.link.Scan(h.inbox)
	if !errors.Is(err, ErrPersist) {
		t.Errorf("err = %v, want ErrPersist", err)
	}
	if h.link.State() != Locked {
		t.Errorf("state: got %s, want LOCKED", h.link.State())
	}
}

func TestAcceptHelloLearnsAndRoutes(t *testing.T) {
	h := newHarness(t, Config{})
	h.link.lock(7)

	if err := h.link.AcceptHello(master, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.link.State() != Ready {
		t.Errorf("state: got %s, want READY", h.link.State())
	}
	if ch, ok := h.radio.Peers[master]; !ok || ch != 7 {
		t.Errorf("peer route: got (%d, %v)", ch, ok)
	}
	buf := make([]byte, 6)
	if n := h.store.GetBytes(KeyMaster, buf); n != 6 || radio.Addr(buf) != master {
		t.Errorf("persisted master: got % x", buf[:n])
	}
}

func TestAcceptHelloRebindsChannel(t *testing.T) {
	h := newHarness(t, Config{})
	h.link.lock(7)
	h.link.AcceptHello(master, 7)

	if err := h.link.AcceptHello(master, 11); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.radio.Channel != 11 || h.link.Channel() != 11 {
		t.Errorf("channel: radio %d link %d, want 11", h.radio.Channel, h.link.Channel())
	}
	if h.radio.Peers[master] != 11 {
		t.Errorf("peer channel: got %d, want 11", h.radio.Peers[master])
	}
	if got := h.store.GetByte(KeyLockedChannel, 0); got != 11 {
		t.Errorf("persisted lock: got %d, want 11", got)
	}
	if h.link.State() != Ready {
		t.Errorf("state: got %s", h.link.State())
	}
}

func TestAcceptHelloKeepsFirstIdentity(t *testing.T) {
	h := newHarness(t, Config{})
	h.link.lock(7)
	h.link.AcceptHello(master, 7)

	other := radio.Addr{9, 9, 9, 9, 9, 9}
	h.link.AcceptHello(other, 7)

	if peer, _ := h.link.Peer(); peer != master {
		t.Errorf("peer: got %v, want %v", peer, master)
	}
	if _, ok := h.radio.Peers[other]; ok {
		t.Error("second sender should not get a route")
	}
}

func TestFixedMasterIsNotLearned(t *testing.T) {
	fixed := radio.Addr{0xaa, 0, 0, 0, 0, 1}
	h := newHarness(t, Config{FixedMaster: fixed})
	h.store.Entries[KeyMaster] = master[:]
	h.link.Boot()
	h.link.lock(2)
	h.link.AcceptHello(master, 2)

	if peer, _ := h.link.Peer(); peer != fixed {
		t.Errorf("peer: got %v, want %v", peer, fixed)
	}
	if h.store.Writes[KeyMaster] != 0 {
		t.Error("fixed master should not be persisted")
	}
	if _, ok := h.radio.Peers[fixed]; !ok {
		t.Error("fixed master should be routed")
	}
}

func TestAcceptHelloPersistFailureStillReady(t *testing.T) {
	h := newHarness(t, Config{})
	h.store.FailKeys[KeyMaster] = true
	h.link.lock(4)

	err := h.link.AcceptHello(master, 4)
	if !errors.Is(err, ErrPersist) {
		t.Errorf("err = %v, want ErrPersist", err)
	}
	if h.link.State() != Ready {
		t.Errorf("state: got %s, want READY", h.link.State())
	}
	if peer, ok := h.link.Peer(); !ok || peer != master {
		t.Errorf("master should be kept in RAM, got (%v, %v)", peer, ok)
	}
}

func TestLearnRoutesWhenLocked(t *testing.T) {
	h := newHarness(t, Config{})
	h.link.lock(5)

	if err := h.link.Learn(master); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.radio.Peers[master] != 5 {
		t.Errorf("peer: got %d, want 5", h.radio.Peers[master])
	}
	// A second learn is a no-op.
	writes := h.store.Writes[KeyMaster]
	h.link.Learn(radio.Addr{1})
	if h.store.Writes[KeyMaster] != writes {
		t.Error("identity re-learned")
	}
}
