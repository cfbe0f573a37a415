// Package jitterbuf implements a jitter buffer for real-time media or event
// streams: a bounded ring of bytes fronted by a high/low water-mark state
// machine, smoothing producer jitter and handing frames to a downstream
// output sink at a fixed cadence.
//
// A Buffer owns a byte ring, a Framer (fixed-size or length-prefixed), a
// BUFFERING/PLAYING/UNDERRUN state machine, and a single consumer goroutine
// that wakes on an absolute-deadline schedule every FrameInterval. Producers
// call Write from any goroutine; the consumer goroutine is the only reader
// and the only caller of the configured OutputSink.
package jitterbuf
