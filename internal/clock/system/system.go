// Package system provides the wall clock the probing engine uses outside tests.
package system

import "time"

// Clock reads the wall clock in UTC. The zero value is ready to use.
type Clock struct{}

// New returns a wall Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
