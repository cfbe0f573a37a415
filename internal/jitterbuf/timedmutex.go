package jitterbuf

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// timedMutex is a mutual-exclusion lock that can be acquired with a bound
// on how long the caller is willing to wait, which sync.Mutex does not
// support directly. It is built on a weighted semaphore of size 1, the
// idiomatic Go substitute used in place of the spec's "mutex with
// timeout" (see SPEC_FULL.md's DOMAIN STACK).
type timedMutex struct {
	sem *semaphore.Weighted
}

func newTimedMutex() *timedMutex {
	return &timedMutex{sem: semaphore.NewWeighted(1)}
}

// lock blocks until the lock is acquired or timeout elapses, whichever
// comes first, returning ErrTimeout on expiry.
func (m *timedMutex) lock(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return ErrTimeout
	}
	return nil
}

func (m *timedMutex) unlock() {
	m.sem.Release(1)
}
