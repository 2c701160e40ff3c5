// Package system provides a real clock implementation.
package system

import "time"

// Clock implements ecfr.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC. The date resolver derives its
// candidate as-of dates from this value.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
