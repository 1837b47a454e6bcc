// Package activity turns raw interaction signals into a debounced activity
// pulse and arms the single abandonment countdown.
package activity

import "time"

// Timer is a cancellable countdown handle.
type Timer interface {
	// Stop cancels the timer; it reports false if the timer already fired.
	Stop() bool
}

// Clock abstracts time and timer arming so countdown behavior is testable
// without real timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// SystemClock returns a Clock backed by the runtime timers.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
