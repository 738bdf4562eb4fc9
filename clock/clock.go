// Package clock abstracts time so the polling loops of the worker can be
// driven deterministically in tests.
package clock

import (
	"time"

	bclock "github.com/benbjohnson/clock"
)

// Clock is the subset of time used by the registrar and the fulfillment
// loop. Both benbjohnson clocks and FakeClock satisfy it.
type Clock interface {
	Now() time.Time

	// After delivers the current time once d has elapsed.
	After(d time.Duration) <-chan time.Time

	Sleep(d time.Duration)
}

// Real returns the wall clock.
func Real() Clock { return bclock.New() }
