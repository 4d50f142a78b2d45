// Package radio provides the connectionless link to the Master with
// abstraction for testing.
//
// The link behaves like a channelized link-layer radio: a node listens on one
// channel at a time, receives broadcasts and frames addressed to it, and can
// only unicast to registered peers. The shipped implementation carries frames
// over MQTT topics; the fake records traffic for assertions.
package radio

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

// AddrLen is the link address length in bytes.
const AddrLen = 6

// Addr is a link-layer (MAC-style) address.
type Addr [AddrLen]byte

// ErrNoPeer is returned when sending to an address that is not registered.
var ErrNoPeer = errors.New("radio: peer not registered")

// ErrChannel is returned for a channel outside 1..13.
var ErrChannel = errors.New("radio: channel out of range")

// Channel bounds.
const (
	MinChannel = 1
	MaxChannel = 13
)

// ParseAddr parses "aa:bb:cc:dd:ee:ff" (or any form net.ParseMAC accepts
// for a 48-bit address).
func ParseAddr(s string) (Addr, error) {
	var a Addr
	hw, err := net.ParseMAC(s)
	if err != nil {
		return a, fmt.Errorf("parse address %q: %w", s, err)
	}
	if len(hw) != AddrLen {
		return a, fmt.Errorf("parse address %q: want %d bytes, got %d", s, AddrLen, len(hw))
	}
	copy(a[:], hw)
	return a, nil
}

// NewAddr returns a random locally administered unicast address.
func NewAddr() Addr {
	u := uuid.New()
	var a Addr
	copy(a[:], u[:AddrLen])
	a[0] = (a[0] | 0x02) &^ 0x01
	return a
}

// String renders the address as lowercase colon-separated hex.
func (a Addr) String() string {
	return net.HardwareAddr(a[:]).String()
}

// Hex renders the address as 12 lowercase hex digits, for topic names.
func (a Addr) Hex() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is all zeros (unset).
func (a Addr) IsZero() bool {
	return a == Addr{}
}

// ValidChannel reports whether ch is a usable radio channel.
func ValidChannel(ch int) bool {
	return ch >= MinChannel && ch <= MaxChannel
}

// Inbound is a received frame.
type Inbound struct {
	From Addr
	Data []byte
}

// Radio is the link-layer transport.
type Radio interface {
	// SetChannel retunes the receiver to ch (1..13).
	SetChannel(ch int) error

	// SendUnicast queues data for transmission to a registered peer. A nil
	// error means the frame was accepted for transmission, not delivered.
	SendUnicast(to Addr, data []byte) error

	// OnReceive installs the receive callback. It may be invoked from a
	// different goroutine than the caller's.
	OnReceive(fn func(from Addr, data []byte))

	// RegisterPeer allows unicast to addr on channel ch.
	RegisterPeer(addr Addr, ch int) error

	// RemovePeer forgets addr. Removing an unknown peer is not an error.
	RemovePeer(addr Addr) error

	// Close shuts the transport down.
	Close() error
}

// ConnectionStatus reports whether the underlying transport is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemPublisher publishes node lifecycle events.
type SystemPublisher interface {
	PublishSystem(event SystemEvent) error
}

// SystemEvent represents a node lifecycle event (startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload is the JSON payload for simple system events (LWT) that don't
// carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Topic layout used by the MQTT link.
func broadcastTopic(prefix string, ch int) string {
	return fmt.Sprintf("%s/ch%d/all", prefix, ch)
}

func unicastTopic(prefix string, ch int, to Addr) string {
	return fmt.Sprintf("%s/ch%d/%s", prefix, ch, to.Hex())
}

// SystemTopic is where a node publishes its lifecycle events.
func SystemTopic(prefix string, self Addr) string {
	return fmt.Sprintf("%s/node/%s/system", prefix, self.Hex())
}

// encodeFrame prefixes data with the sender address.
func encodeFrame(from Addr, data []byte) []byte {
	out := make([]byte, AddrLen+len(data))
	copy(out, from[:])
	copy(out[AddrLen:], data)
	return out
}

// decodeFrame splits a frame into sender and record bytes.
func decodeFrame(frame []byte) (Addr, []byte, bool) {
	var from Addr
	if len(frame) <= AddrLen {
		return from, nil, false
	}
	copy(from[:], frame[:AddrLen])
	return from, frame[AddrLen:], true
}
