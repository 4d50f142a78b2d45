//go:build !linux

package relay

import "errors"

// GPIOActuator is not available on non-Linux platforms.
type GPIOActuator struct{}

// NewGPIOActuator returns an error on non-Linux platforms.
func NewGPIOActuator(chipName string, pins [NumRelays]int, activeLow bool) (*GPIOActuator, error) {
	return nil, errors.New("relay: not supported on this platform (requires Linux)")
}

// SetRelay is not implemented on non-Linux platforms.
func (a *GPIOActuator) SetRelay(channel int, on bool) error {
	return errors.New("relay: not supported")
}

// Close is not implemented on non-Linux platforms.
func (a *GPIOActuator) Close() error {
	return nil
}
