package dispatch

import "sync/atomic"

// boolFlag is a minimal atomic latch: get reads it, set flips it from
// false to true exactly once and reports whether this call was the one
// that did so. Used for the Dispatcher's stopped flag, which external
// goroutines must be able to read without going through the reactor.
type boolFlag struct {
	v atomic.Bool
}

func (f *boolFlag) get() bool { return f.v.Load() }

// set flips the flag to true and returns true if this call performed
// the transition, false if it was already set.
func (f *boolFlag) set() bool { return f.v.CompareAndSwap(false, true) }
