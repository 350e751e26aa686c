package ledger

import "time"

// Clock is the time source an operation settles against, in unix
// seconds. Readings are not required to be monotonic.
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to a Clock.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// FixedClock always reports the same time. Used for block time and tests.
type FixedClock int64

func (c FixedClock) Now() int64 { return int64(c) }

// SystemClock reads the wall clock.
func SystemClock() Clock {
	return ClockFunc(func() int64 { return time.Now().Unix() })
}
