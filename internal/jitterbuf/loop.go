package jitterbuf

import "time"

// controlSignal is one of the three requests the host can make of the
// consumer loop. At most one of start/stop is ever pending; exit is
// terminal. Modeled as a small closed enum over a channel rather than the
// spec's bitset/event-group handshake, since an unbuffered request channel
// plus a single unbuffered ack channel gives the same synchronous, one-at-a-time
// semantics with native Go primitives (grounded in the teacher's
// EventBatcher request/ack channel pair, internal/disruptor/batcher.go).
type controlSignal int

const (
	sigStart controlSignal = iota
	sigStop
	sigExit
)

// worker is the consumer loop's entry point, run as the single long-lived
// goroutine created at construction (Buffer.New). It sits in an outer wait
// for START or EXIT, then runs an absolute-deadline tick loop until STOP or
// EXIT is observed, acknowledging every signal synchronously before acting
// on it or, for STOP/EXIT, after.
func (b *Buffer) worker() {
	defer close(b.workerDone)
	for {
		if !b.waitForStart() {
			return
		}
		if !b.runTicking() {
			return
		}
		// STOP observed: fall back to the outer wait.
	}
}

// waitForStart blocks until START arrives (acks and returns true) or EXIT
// arrives (acks and returns false). STOP while already idle is a no-op
// ack: the outer wait is already where STOP would leave the loop.
func (b *Buffer) waitForStart() bool {
	for {
		switch <-b.reqCh {
		case sigStart:
			b.ackCh <- struct{}{}
			return true
		case sigStop:
			b.ackCh <- struct{}{}
		case sigExit:
			b.ackCh <- struct{}{}
			return false
		}
	}
}

// runTicking drives the frame_interval cadence on an absolute-deadline
// schedule: each deadline is reference + k*interval, not
// sleep(interval)-then-work, so a slow tick never drifts the long-run
// rate (spec.md §4.4). It returns true if STOP was observed (the outer
// loop should wait for a new START), or false if EXIT was observed (the
// worker should terminate).
func (b *Buffer) runTicking() bool {
	reference := time.Now()
	next := reference.Add(b.cfg.FrameInterval)
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			b.processOnce()
			next = next.Add(b.cfg.FrameInterval)
			if d := time.Until(next); d > 0 {
				timer.Reset(d)
			} else {
				timer.Reset(0)
			}

		case sig := <-b.reqCh:
			switch sig {
			case sigStart:
				// Idempotent: ack without disrupting cadence.
				b.ackCh <- struct{}{}
			case sigStop:
				b.ackCh <- struct{}{}
				return true
			case sigExit:
				b.ackCh <- struct{}{}
				return false
			}
		}
	}
}
