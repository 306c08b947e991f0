package engine

import "time"

// Clock stamps scheme and entry writes with unix epoch seconds.
//
// Production code uses SystemClock; tests inject a deterministic clock so
// golden traces stay byte-identical across runs.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current unix time in seconds.
func (SystemClock) Now() int64 {
	return time.Now().Unix()
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

// Now calls f.
func (f ClockFunc) Now() int64 {
	return f()
}
