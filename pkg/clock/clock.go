// Package clock provides the delay primitive used for pulse timing, readiness
// timeouts, inter-sample spacing and the report interval.
package clock

import (
	"sync"
	"time"
)

// spinBelow is the delay under which System busy-waits instead of sleeping.
// time.Sleep on Linux routinely overshoots by tens of microseconds, which is
// longer than the HX711 tolerates a clock line held high.
const spinBelow = 200 * time.Microsecond

type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

// System returns the monotonic wall clock.
func System() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if d >= spinBelow {
		time.Sleep(d)
		return
	}
	start := time.Now()
	for time.Since(start) < d {
	}
}

// Fake is a virtual clock. Sleep advances time by d plus Stretch and returns
// immediately, so timing behaviour can be tested without real delays.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	slept   time.Duration
	Stretch time.Duration
}

// NewFake returns a Fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d < 0 {
		d = 0
	}
	f.now = f.now.Add(d + f.Stretch)
	f.slept += d + f.Stretch
}

// Advance moves the clock forward without counting as sleep.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Slept reports the total virtual time spent in Sleep.
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}
