//go:build linux

package relay

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOActuator drives relay coils from Linux GPIO character device lines.
type GPIOActuator struct {
	chip      *gpiocdev.Chip
	lines     [NumRelays]*gpiocdev.Line
	activeLow bool
}

// NewGPIOActuator requests the four pins as outputs with every relay off.
// activeLow inverts the electrical level, as on most opto-isolated relay
// boards.
func NewGPIOActuator(chipName string, pins [NumRelays]int, activeLow bool) (*GPIOActuator, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	a := &GPIOActuator{chip: chip, activeLow: activeLow}
	for i, pin := range pins {
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(a.level(false)))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("request relay %d pin %d: %w", i+1, pin, err)
		}
		a.lines[i] = line
	}
	return a, nil
}

func (a *GPIOActuator) level(on bool) int {
	if on != a.activeLow {
		return 1
	}
	return 0
}

// SetRelay drives channel (1..4) to the logical state.
func (a *GPIOActuator) SetRelay(channel int, on bool) error {
	if channel < 1 || channel > NumRelays {
		return fmt.Errorf("relay channel %d out of range", channel)
	}
	if err := a.lines[channel-1].SetValue(a.level(on)); err != nil {
		return fmt.Errorf("set relay %d: %w", channel, err)
	}
	return nil
}

// Close switches every relay off, then returns the pins to inputs with
// pull-down (matching Pi boot defaults) before releasing them.
func (a *GPIOActuator) Close() error {
	var errs []error

	for i, line := range a.lines {
		if line == nil {
			continue
		}
		if err := line.SetValue(a.level(false)); err != nil {
			errs = append(errs, fmt.Errorf("release relay %d: %w", i+1, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure relay %d: %w", i+1, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay %d: %w", i+1, err))
		}
		a.lines[i] = nil
	}
	if a.chip != nil {
		if err := a.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		a.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
