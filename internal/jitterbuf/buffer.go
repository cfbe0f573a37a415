package jitterbuf

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// writeReadLockTimeout bounds how long Write waits to acquire the
	// buffer's mutex, per spec.md §5 ("~50 ms on write/read").
	writeReadLockTimeout = 50 * time.Millisecond
	// resetLockTimeout bounds how long Reset waits to acquire the mutex
	// ("~500 ms on reset").
	resetLockTimeout = 500 * time.Millisecond
	// ackTimeout bounds how long Start/Stop/Close wait for the worker's
	// acknowledgement before giving up and returning success anyway.
	ackTimeout = 500 * time.Millisecond
	// eventPostTimeout bounds a single EventSink post.
	eventPostTimeout = 100 * time.Millisecond
)

// Buffer is a jitter buffer: a ring fronted by a framer and a
// BUFFERING/PLAYING/UNDERRUN state machine, with a dedicated consumer
// goroutine that emits frames to Config.OutputSink on a fixed cadence.
//
// A Buffer exclusively owns its ring bytes, scratch bytes, mutex, control
// channels, and worker goroutine. OutputSink and EventSink are borrowed
// capabilities: invoked, never owned.
type Buffer struct {
	cfg     Config
	log     *zap.Logger
	mu      *timedMutex
	ring    *ring
	framer  framer
	state   *stateMachine
	scratch []byte

	reqCh      chan controlSignal
	ackCh      chan struct{}
	workerDone chan struct{}

	closeOnce sync.Once
}

// New validates cfg, allocates the ring and scratch buffer, and starts the
// consumer goroutine (idle, waiting for Start). It returns
// ErrInvalidArgument if cfg is invalid.
func New(cfg Config) (*Buffer, error) {
	requestedBufferSize := cfg.BufferSize
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger.With(zap.String("jitterbuf", cfg.Name))
	if cfg.BufferSize != requestedBufferSize {
		log.Warn("buffer_size raised to accommodate with_header framing",
			zap.Int("requested_buffer_size", requestedBufferSize),
			zap.Int("effective_buffer_size", cfg.BufferSize))
	}

	b := &Buffer{
		cfg:        cfg,
		log:        log,
		mu:         newTimedMutex(),
		ring:       newRing(cfg.BufferSize),
		framer:     newFramer(cfg),
		state:      newStateMachine(cfg.Name, cfg.HighWater, cfg.LowWater),
		scratch:    make([]byte, cfg.FrameSize),
		reqCh:      make(chan controlSignal),
		ackCh:      make(chan struct{}),
		workerDone: make(chan struct{}),
	}

	go b.worker()

	return b, nil
}

// Start transitions IDLE->BUFFERING and signals the consumer goroutine to
// begin ticking. Repeating Start while already running is idempotent: it
// re-acknowledges without disrupting the cadence.
func (b *Buffer) Start(ctx context.Context) error {
	if err := b.mu.lock(writeReadLockTimeout); err != nil {
		return err
	}
	ev, emitted := b.state.start()
	b.mu.unlock()

	if emitted {
		b.postEvent(ev)
	}
	return b.signalAndAwaitAck(ctx, sigStart)
}

// Stop moves the state machine to IDLE under the mutex (no event is posted
// for this transition) and then signals the consumer goroutine to return
// to its outer wait.
func (b *Buffer) Stop(ctx context.Context) error {
	if err := b.mu.lock(writeReadLockTimeout); err != nil {
		return err
	}
	b.state.stop()
	b.mu.unlock()

	return b.signalAndAwaitAck(ctx, sigStop)
}

// signalAndAwaitAck sends sig to the worker and waits up to ackTimeout for
// the acknowledgement. A timed-out ack is treated as success per spec.md
// §5: "if ACK times out they return success ... and the host may retry".
func (b *Buffer) signalAndAwaitAck(ctx context.Context, sig controlSignal) error {
	select {
	case b.reqCh <- sig:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.workerDone:
		return ErrClosed
	}

	select {
	case <-b.ackCh:
		return nil
	case <-time.After(ackTimeout):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset clears the ring (cursors and occupancy only; lifetime counters are
// untouched) and returns to BUFFERING.
func (b *Buffer) Reset() error {
	if err := b.mu.lock(resetLockTimeout); err != nil {
		return err
	}
	b.ring.reset()
	ev, emitted := b.state.reset()
	b.mu.unlock()

	if emitted {
		b.postEvent(ev)
	}
	return nil
}

// Write enqueues one frame. With Config.WithHeader, data is the payload;
// the 2-byte length header is added internally. Overrun never fails the
// call: excess data is dropped (whole frames when with_header) and
// counted, per spec.md §7.
func (b *Buffer) Write(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty write", ErrInvalidArgument)
	}

	if err := b.mu.lock(writeReadLockTimeout); err != nil {
		return err
	}
	info := b.framer.write(b.ring, data)
	frameCount := b.framer.frameCount(b.ring)
	ev, emitted := b.state.checkProducerPath(frameCount)
	b.mu.unlock()

	if info.occurred {
		if info.alignmentLost {
			b.log.Warn("overrun: alignment lost, fell back to byte-level discard",
				zap.Int("bytes_dropped", info.bytesDropped))
		} else {
			b.log.Debug("overrun: dropped whole frames to admit write",
				zap.Int("frames_dropped", info.framesDropped),
				zap.Int("bytes_dropped", info.bytesDropped))
		}
	}
	if emitted {
		b.postEvent(ev)
	}
	return nil
}

// Close signals EXIT, waits up to ackTimeout for the worker to
// acknowledge, and returns. The worker goroutine terminates regardless of
// whether the ack was observed in time: Close never leaves it running.
func (b *Buffer) Close() error {
	b.closeOnce.Do(func() {
		select {
		case b.reqCh <- sigExit:
		case <-time.After(ackTimeout):
		case <-b.workerDone:
		}
		select {
		case <-b.ackCh:
		case <-time.After(ackTimeout):
		case <-b.workerDone:
		}
	})
	return nil
}

// Stats returns a snapshot of the ring's lifetime counters and current
// state, read under the mutex.
func (b *Buffer) Stats() Stats {
	if err := b.mu.lock(resetLockTimeout); err != nil {
		return Stats{}
	}
	defer b.mu.unlock()
	return Stats{
		TotalWritten:   b.ring.totalWritten,
		TotalRead:      b.ring.totalRead,
		OverrunCount:   b.ring.overrunCount,
		UnderrunCount:  b.ring.underrunCount,
		MalformedCount: b.ring.malformedCount,
		DataSize:       b.ring.dataSize,
		State:          b.state.current(),
	}
}

// processOnce is invoked once per tick by the consumer goroutine. It
// re-evaluates the state machine, reads at most one frame while PLAYING,
// and (outside the mutex) hands the frame — or silence, or nothing — to
// the output sink.
func (b *Buffer) processOnce() {
	if err := b.mu.lock(writeReadLockTimeout); err != nil {
		// Producers are mid-critical-section; skip this tick rather than
		// block the consumer goroutine indefinitely.
		return
	}

	frameCount := b.framer.frameCount(b.ring)
	events := b.state.checkConsumerPath(frameCount)

	var (
		n            int
		gotFrame     bool
		wasMalformed bool
	)
	if b.state.current() == StatePlaying {
		n, gotFrame, wasMalformed = b.framer.read(b.ring, b.scratch)
	}
	underrunJustStarted := false
	for _, ev := range events {
		if ev.To == StateUnderrun {
			underrunJustStarted = true
		}
	}
	if underrunJustStarted {
		b.ring.underrunCount++
	}

	b.mu.unlock()

	for _, ev := range events {
		b.postEvent(ev)
	}
	if wasMalformed {
		b.log.Debug("malformed frame dropped on read")
	}

	switch {
	case gotFrame:
		b.cfg.OutputSink(b.scratch[:n])
	case b.cfg.OutputSilenceOnEmpty:
		for i := range b.scratch {
			b.scratch[i] = 0
		}
		b.cfg.OutputSink(b.scratch[:b.cfg.FrameSize])
	default:
		// Nothing to emit this tick.
	}
}

// postEvent posts ev to the configured EventSink outside the buffer's
// mutex, best-effort: a failed or slow post is logged and ignored, never
// propagated (spec.md §6).
func (b *Buffer) postEvent(ev StateEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), eventPostTimeout)
	defer cancel()
	if err := b.cfg.EventSink.PostStateEvent(ctx, ev); err != nil {
		b.log.Warn("event sink post failed",
			zap.String("from", ev.From.String()),
			zap.String("to", ev.To.String()),
			zap.Error(err))
	}
}
