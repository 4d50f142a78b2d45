// Package relay drives the four relay outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package relay

// NumRelays is the fixed number of relay channels.
const NumRelays = 4

// Actuator switches relay outputs. Polarity is a property of the
// implementation and invisible to callers.
type Actuator interface {
	// SetRelay drives channel (1..4) to the logical on/off state.
	SetRelay(channel int, on bool) error

	// Close releases the outputs.
	Close() error
}

// Default output pins (BCM numbering).
var DefaultPins = [NumRelays]int{17, 27, 22, 23}

// Mask is the commanded state of all relays, bit0 = relay 1.
type Mask uint8

// Get reports whether channel (1..4) is on.
func (m Mask) Get(channel int) bool {
	return m&(1<<(channel-1)) != 0
}

// With returns the mask with channel set to on.
func (m Mask) With(channel int, on bool) Mask {
	if on {
		return m | 1<<(channel-1)
	}
	return m &^ (1 << (channel - 1))
}

// Apply drives every relay to the state in m.
func Apply(a Actuator, m Mask) error {
	for ch := 1; ch <= NumRelays; ch++ {
		if err := a.SetRelay(ch, m.Get(ch)); err != nil {
			return err
		}
	}
	return nil
}

// String renders the mask as relay states, relay 1 first, e.g. "ON OFF OFF ON".
func (m Mask) String() string {
	s := ""
	for ch := 1; ch <= NumRelays; ch++ {
		if ch > 1 {
			s += " "
		}
		s += StateString(m.Get(ch))
	}
	return s
}

// StateString returns "ON" or "OFF".
func StateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
