package jitterbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateMachineStartIsIdempotent(t *testing.T) {
	m := newStateMachine("test", 10, 5)

	ev, emitted := m.start()
	require.True(t, emitted)
	require.Equal(t, StateIdle, ev.From)
	require.Equal(t, StateBuffering, ev.To)
	require.Equal(t, StateBuffering, m.current())

	// A second Start while already BUFFERING must ack without emitting a
	// second event.
	_, emitted = m.start()
	require.False(t, emitted)
	require.Equal(t, StateBuffering, m.current())
}

func TestStateMachineProducerPathCrossesHighWater(t *testing.T) {
	m := newStateMachine("test", 10, 5)
	m.start()

	ev, emitted := m.checkProducerPath(9)
	require.False(t, emitted)

	ev, emitted = m.checkProducerPath(10)
	require.True(t, emitted)
	require.Equal(t, StatePlaying, ev.To)
	require.Equal(t, StatePlaying, m.current())
}

func TestStateMachineConsumerPathUnderrunThenRecovery(t *testing.T) {
	m := newStateMachine("test", 10, 5)
	m.start()
	m.checkProducerPath(10) // -> PLAYING

	events := m.checkConsumerPath(4) // below low water
	require.Len(t, events, 1)
	require.Equal(t, StateUnderrun, events[0].To)
	require.Equal(t, StateUnderrun, m.current())

	// Below high water: stays in UNDERRUN, no event.
	events = m.checkConsumerPath(6)
	require.Empty(t, events)

	// Crosses high water again: resumes PLAYING.
	events = m.checkConsumerPath(10)
	require.Len(t, events, 1)
	require.Equal(t, StatePlaying, events[0].To)
	require.Equal(t, StatePlaying, m.current())
}

func TestStateMachineStopNeverEmits(t *testing.T) {
	m := newStateMachine("test", 10, 5)
	m.start()
	m.checkProducerPath(10)
	require.Equal(t, StatePlaying, m.current())

	m.stop()
	require.Equal(t, StateIdle, m.current())
}

func TestStateMachineResetReturnsToBuffering(t *testing.T) {
	m := newStateMachine("test", 10, 5)
	m.start()
	m.checkProducerPath(10)

	ev, emitted := m.reset()
	require.True(t, emitted)
	require.Equal(t, StateBuffering, ev.To)
	require.Equal(t, StateBuffering, m.current())
}

func TestStateMachineHysteresisNoEventBetweenWatermarks(t *testing.T) {
	m := newStateMachine("test", 10, 5)
	m.start()
	m.checkProducerPath(10) // PLAYING

	// Frame count dips but stays at/above low water: no UNDERRUN.
	events := m.checkConsumerPath(5)
	require.Empty(t, events)
	require.Equal(t, StatePlaying, m.current())
}
