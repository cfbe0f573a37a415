package jitterbuf

import "errors"

// Error kinds, coarse-grained per the buffer's error handling design:
// invalid configuration/arguments surface from New; timeouts surface from
// Write/Reset/Start/Stop when the internal bounded wait expires; ErrClosed
// is returned by Start and Stop once the consumer goroutine has exited
// (Write, Reset and Stats do not check for it). Overrun and malformed-frame conditions are never
// returned as errors — they are recovered locally, counted, and logged.
var (
	ErrInvalidArgument = errors.New("jitterbuf: invalid argument")
	ErrTimeout         = errors.New("jitterbuf: timed out waiting for lock")
	ErrClosed          = errors.New("jitterbuf: buffer is closed")
)
