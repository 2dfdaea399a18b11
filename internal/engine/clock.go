package engine

import "time"

// Clock supplies the current time for request stamps and staleness checks.
//
// Production uses SystemClock; tests and the harness use a manual clock so
// staleness windows can be crossed without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
