package radio

import (
	"strconv"

	"github.com/sweeney/power-node/internal/protocol"
)

// Sent records a single SendUnicast call.
type Sent struct {
	To      Addr
	Channel int // peer channel used for the send
	Data    []byte
}

// FakeRadio records link traffic for test assertions.
type FakeRadio struct {
	// Channel is the currently tuned channel (0 = untuned).
	Channel int

	// Tunes contains every SetChannel call in order.
	Tunes []int

	// Peers maps registered peers to their channel.
	Peers map[Addr]int

	// PeerOps logs RegisterPeer/RemovePeer calls as "add <addr> <ch>" and
	// "del <addr>".
	PeerOps []string

	// Sent contains every accepted unicast frame.
	Sent []Sent

	// SendError, if set, will be returned by SendUnicast.
	SendError error

	// SystemEvents contains every published lifecycle event.
	SystemEvents []SystemEvent

	// Connected controls the return value of IsConnected.
	Connected bool

	// Closed tracks if Close was called.
	Closed bool

	recv func(from Addr, data []byte)
}

// NewFakeRadio creates an untuned FakeRadio.
func NewFakeRadio() *FakeRadio {
	return &FakeRadio{Peers: make(map[Addr]int)}
}

// SetChannel records the tune.
func (f *FakeRadio) SetChannel(ch int) error {
	if !ValidChannel(ch) {
		return ErrChannel
	}
	f.Channel = ch
	f.Tunes = append(f.Tunes, ch)
	return nil
}

// SendUnicast records the frame if to is a registered peer.
func (f *FakeRadio) SendUnicast(to Addr, data []byte) error {
	if f.SendError != nil {
		return f.SendError
	}
	ch, ok := f.Peers[to]
	if !ok {
		return ErrNoPeer
	}
	f.Sent = append(f.Sent, Sent{To: to, Channel: ch, Data: append([]byte(nil), data...)})
	return nil
}

// OnReceive installs the receive callback.
func (f *FakeRadio) OnReceive(fn func(from Addr, data []byte)) {
	f.recv = fn
}

// Deliver invokes the receive callback as if a frame arrived.
func (f *FakeRadio) Deliver(from Addr, data []byte) {
	if f.recv != nil {
		f.recv(from, data)
	}
}

// RegisterPeer records the peer.
func (f *FakeRadio) RegisterPeer(addr Addr, ch int) error {
	if !ValidChannel(ch) {
		return ErrChannel
	}
	f.Peers[addr] = ch
	f.PeerOps = append(f.PeerOps, "add "+addr.String()+" "+strconv.Itoa(ch))
	return nil
}

// RemovePeer forgets the peer.
func (f *FakeRadio) RemovePeer(addr Addr) error {
	delete(f.Peers, addr)
	f.PeerOps = append(f.PeerOps, "del "+addr.String())
	return nil
}

// PublishSystem records the lifecycle event.
func (f *FakeRadio) PublishSystem(event SystemEvent) error {
	f.SystemEvents = append(f.SystemEvents, event)
	return nil
}

// IsConnected reports whether the fake radio is "connected".
func (f *FakeRadio) IsConnected() bool {
	return f.Connected
}

// Close marks the radio as closed.
func (f *FakeRadio) Close() error {
	f.Closed = true
	return nil
}

// Packets decodes every sent frame. Frames that fail to decode are skipped.
func (f *FakeRadio) Packets() []protocol.Packet {
	var out []protocol.Packet
	for _, s := range f.Sent {
		p, err := protocol.Decode(s.Data)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Tags returns the tag byte of every sent frame in order.
func (f *FakeRadio) Tags() []byte {
	out := make([]byte, 0, len(f.Sent))
	for _, s := range f.Sent {
		if len(s.Data) > 0 {
			out = append(out, s.Data[0])
		}
	}
	return out
}

// ResetSent clears recorded frames.
func (f *FakeRadio) ResetSent() {
	f.Sent = nil
}
