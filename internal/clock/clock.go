// Package clock supplies wall-clock time in epoch milliseconds.
package clock

import "time"

// Clock returns the current time as epoch milliseconds.
type Clock interface {
	NowMillis() int64
}

// System reads the host clock.
type System struct{}

// NowMillis implements Clock.
func (System) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Func adapts a function to Clock.
type Func func() int64

// NowMillis implements Clock.
func (f Func) NowMillis() int64 {
	return f()
}
