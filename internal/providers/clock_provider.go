package providers

import "github.com/jonboulle/clockwork"

// NewClockProvider returns the wall clock used for activity timestamps.
// Tests substitute clockwork.NewFakeClock.
func NewClockProvider() clockwork.Clock {
	return clockwork.NewRealClock()
}
