// Package clock supplies "now" for every lifecycle decision. Production
// code uses SimClock, which honors an administrator-set simulated instant;
// tests inject MockClock for deterministic behavior. No lifecycle code may
// call time.Now directly.
package clock

import "time"

// Clock provides the effective current instant.
type Clock interface {
	// Now returns the effective current time: the simulated instant if one
	// is configured, otherwise the real wall-clock time.
	Now() time.Time
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// NewRealClock creates a new RealClock.
func NewRealClock() *RealClock {
	return &RealClock{}
}

// Now implements Clock.Now using time.Now.
func (c *RealClock) Now() time.Time {
	return time.Now()
}
