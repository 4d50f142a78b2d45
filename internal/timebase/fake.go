package timebase

import "time"

// FakeMonotonic is a manually driven counter for tests.
type FakeMonotonic struct {
	Millis uint32
}

// NewFakeMonotonic creates a counter starting at start.
func NewFakeMonotonic(start uint32) *FakeMonotonic {
	return &FakeMonotonic{Millis: start}
}

// NowMillis returns the current counter value.
func (f *FakeMonotonic) NowMillis() uint32 {
	return f.Millis
}

// Advance moves the counter forward by d, wrapping at 32 bits.
func (f *FakeMonotonic) Advance(d time.Duration) {
	f.Millis += uint32(d.Milliseconds())
}

// Sleep advances the counter; it satisfies the sleep hooks used by the scan.
func (f *FakeMonotonic) Sleep(d time.Duration) {
	f.Advance(d)
}
