// Package timebase provides the node's minute-resolution virtual clock.
//
// The clock is set by TimeSync messages and advanced between syncs from a
// monotonic millisecond counter. It never reads wall-clock time.
package timebase

import "time"

const (
	MinutesPerDay = 1440
	DaysPerWeek   = 7
	msPerMinute   = 60000
)

// Monotonic is a free-running millisecond counter. It wraps after ~49.7 days;
// callers compute elapsed time with unsigned subtraction.
type Monotonic interface {
	NowMillis() uint32
}

// SystemMonotonic counts milliseconds since it was created.
type SystemMonotonic struct {
	start time.Time
}

// NewSystemMonotonic starts a counter at zero.
func NewSystemMonotonic() *SystemMonotonic {
	return &SystemMonotonic{start: time.Now()}
}

// NowMillis returns the milliseconds since start, truncated to 32 bits.
func (m *SystemMonotonic) NowMillis() uint32 {
	return uint32(time.Since(m.start).Milliseconds())
}

// Elapsed returns now-since in milliseconds, tolerating counter wraparound.
func Elapsed(now, since uint32) uint32 {
	return now - since
}

// Instant is a position in the week at minute resolution.
type Instant struct {
	Minute  uint16 // 0..1439
	Weekday uint8  // 0=Mon .. 6=Sun
}

// Clock is the virtual time-of-week. The zero value is invalid.
type Clock struct {
	minute   uint16
	weekday  uint8
	valid    bool
	lastSync uint32
}

// Sync sets the clock from a TimeSync. An invalid sync only clears Valid.
func (c *Clock) Sync(minute uint16, weekday uint8, valid bool, now uint32) {
	c.valid = valid
	if !valid {
		return
	}
	c.minute = minute % MinutesPerDay
	c.weekday = weekday % DaysPerWeek
	c.lastSync = now
}

// Invalidate marks the clock as unsynchronized.
func (c *Clock) Invalidate() {
	c.valid = false
}

// Valid reports whether the clock has been synchronized.
func (c *Clock) Valid() bool {
	return c.valid
}

// Now returns the current instant. Meaningless unless Valid.
func (c *Clock) Now() Instant {
	return Instant{Minute: c.minute, Weekday: c.weekday}
}

// Advance returns the number of whole minutes elapsed since the last sync
// point and moves that point forward by exactly those minutes, so the
// remainder carries into the next call. It does not move the clock; callers
// Step once per returned minute.
func (c *Clock) Advance(now uint32) int {
	if !c.valid {
		return 0
	}
	elapsed := Elapsed(now, c.lastSync)
	if elapsed < msPerMinute {
		return 0
	}
	add := elapsed / msPerMinute
	c.lastSync += add * msPerMinute
	return int(add)
}

// Step moves the clock forward one minute, rolling the weekday at midnight.
func (c *Clock) Step() Instant {
	c.Skip(1)
	return c.Now()
}

// Skip moves the clock forward n minutes without reporting intermediate
// instants.
func (c *Clock) Skip(n int) {
	total := int(c.minute) + n
	c.weekday = uint8((int(c.weekday) + total/MinutesPerDay) % DaysPerWeek)
	c.minute = uint16(total % MinutesPerDay)
}
