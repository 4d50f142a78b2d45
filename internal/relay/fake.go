package relay

import "fmt"

// Write records a single SetRelay call.
type Write struct {
	Channel int
	On      bool
}

// FakeActuator is a test double that records relay writes.
type FakeActuator struct {
	// Writes contains every SetRelay call in order.
	Writes []Write

	// State holds the last written state per channel (index 0 = relay 1).
	State [NumRelays]bool

	// SetError, if set, will be returned by SetRelay.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeActuator creates a FakeActuator with all relays off.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// SetRelay records the write.
func (f *FakeActuator) SetRelay(channel int, on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	if channel < 1 || channel > NumRelays {
		return fmt.Errorf("relay channel %d out of range", channel)
	}
	f.Writes = append(f.Writes, Write{Channel: channel, On: on})
	f.State[channel-1] = on
	return nil
}

// Close marks the actuator as closed.
func (f *FakeActuator) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded writes.
func (f *FakeActuator) Reset() {
	f.Writes = nil
	f.SetError = nil
	f.Closed = false
}
