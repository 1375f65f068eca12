package fsm

import "time"

// Clock supplies the current time used for timeout arithmetic.
//
// Production code uses SystemClock. Tests inject a manual clock so that
// deadlines can be crossed without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}
