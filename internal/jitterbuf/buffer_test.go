package jitterbuf

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingSink collects emitted frames and posted events under a mutex, for
// assertions from the test goroutine.
type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
	events []StateEvent
}

func (s *recordingSink) output(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.frames = append(s.frames, cp)
}

func (s *recordingSink) PostStateEvent(_ context.Context, ev StateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) snapshotFrames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

func (s *recordingSink) snapshotEvents() []StateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StateEvent, len(s.events))
	copy(out, s.events)
	return out
}

func testConfig(sink *recordingSink) Config {
	cfg := DefaultConfig()
	cfg.Name = "test"
	cfg.BufferSize = 256
	cfg.FrameSize = 4
	cfg.FrameInterval = 5 * time.Millisecond
	cfg.HighWater = 3
	cfg.LowWater = 1
	cfg.OutputSink = sink.output
	cfg.EventSink = sink
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestBufferBuffersThenPlays(t *testing.T) {
	sink := &recordingSink{}
	cfg := testConfig(sink)
	buf, err := New(cfg)
	require.NoError(t, err)
	defer buf.Close()

	ctx := context.Background()
	require.NoError(t, buf.Start(ctx))

	// Below high water: buffer should not emit PLAYING yet.
	require.NoError(t, buf.Write([]byte{0, 0, 0, 1}))
	require.NoError(t, buf.Write([]byte{0, 0, 0, 2}))
	require.Equal(t, StateBuffering, buf.Stats().State)

	// Crossing high water (3 frames) transitions to PLAYING immediately,
	// on the write path, without waiting for the next tick.
	require.NoError(t, buf.Write([]byte{0, 0, 0, 3}))
	require.Equal(t, StatePlaying, buf.Stats().State)

	waitFor(t, time.Second, func() bool {
		return len(sink.snapshotFrames()) >= 1
	})

	frames := sink.snapshotFrames()
	require.Equal(t, []byte{0, 0, 0, 1}, frames[0], "frames must be emitted in write order")
}

func TestBufferStartIsIdempotentAcrossHost(t *testing.T) {
	sink := &recordingSink{}
	cfg := testConfig(sink)
	buf, err := New(cfg)
	require.NoError(t, err)
	defer buf.Close()

	ctx := context.Background()
	require.NoError(t, buf.Start(ctx))
	require.NoError(t, buf.Start(ctx))
	require.NoError(t, buf.Start(ctx))

	events := sink.snapshotEvents()
	bufferingCount := 0
	for _, ev := range events {
		if ev.To == StateBuffering {
			bufferingCount++
		}
	}
	require.Equal(t, 1, bufferingCount, "repeated Start must only emit one BUFFERING event")
}

func TestBufferUnderrunAfterStarvedConsumption(t *testing.T) {
	sink := &recordingSink{}
	cfg := testConfig(sink)
	buf, err := New(cfg)
	require.NoError(t, err)
	defer buf.Close()

	ctx := context.Background()
	require.NoError(t, buf.Start(ctx))

	for i := 0; i < 3; i++ {
		require.NoError(t, buf.Write([]byte{0, 0, 0, byte(i)}))
	}
	require.Equal(t, StatePlaying, buf.Stats().State)

	// No further writes: the consumer drains below low_water and must
	// transition to UNDERRUN.
	waitFor(t, time.Second, func() bool {
		return buf.Stats().State == StateUnderrun
	})
	require.GreaterOrEqual(t, buf.Stats().UnderrunCount, uint64(1))
}

func TestBufferStopThenResetReturnsToBuffering(t *testing.T) {
	sink := &recordingSink{}
	cfg := testConfig(sink)
	buf, err := New(cfg)
	require.NoError(t, err)
	defer buf.Close()

	ctx := context.Background()
	require.NoError(t, buf.Start(ctx))
	for i := 0; i < 3; i++ {
		require.NoError(t, buf.Write([]byte{0, 0, 0, byte(i)}))
	}
	require.Equal(t, StatePlaying, buf.Stats().State)

	require.NoError(t, buf.Stop(ctx))
	require.Equal(t, StateIdle, buf.Stats().State)

	require.NoError(t, buf.Reset())
	require.Equal(t, StateBuffering, buf.Stats().State)
	require.Equal(t, 0, buf.Stats().DataSize, "reset must clear occupancy")
}

func TestBufferWriteNeverFailsOnOverrun(t *testing.T) {
	sink := &recordingSink{}
	cfg := testConfig(sink)
	cfg.BufferSize = 8 // tiny: two frames of 4 bytes
	buf, err := New(cfg)
	require.NoError(t, err)
	defer buf.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, buf.Write([]byte{0, 0, 0, byte(i)}), "overrun must be absorbed, never returned as an error")
	}
	require.Greater(t, buf.Stats().OverrunCount, uint64(0))
}

func TestBufferCloseIsIdempotent(t *testing.T) {
	sink := &recordingSink{}
	cfg := testConfig(sink)
	buf, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, buf.Close())
	require.NoError(t, buf.Close())
}
