/*
 *
 * Copyright 2025 nxtvepg authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package shm

import (
	"math"
	"os"
	"sync/atomic"
	"time"
)

// lockWaitSlice bounds a single futex wait while contending for the
// structure mutex. After each slice the owner is checked for liveness.
const lockWaitSlice = 50 * time.Millisecond

// sharedMutex is the structure mutex. The lock word lives in the mapping and
// holds the owner's pid, or zero when free. A lock held by a process that
// no longer exists is taken over by the next contender.
type sharedMutex struct {
	word *uint32
	self uint32
}

func newSharedMutex(word *uint32) *sharedMutex {
	return &sharedMutex{word: word, self: uint32(os.Getpid())}
}

func (m *sharedMutex) lock() error {
	for {
		if atomic.CompareAndSwapUint32(m.word, 0, m.self) {
			return nil
		}
		owner := atomic.LoadUint32(m.word)
		if owner == 0 {
			continue
		}
		err := futexWaitTimeout(m.word, owner, lockWaitSlice)
		switch {
		case err == ErrFutexTimeout:
			if owner != m.self && !ProcessAlive(owner) &&
				atomic.CompareAndSwapUint32(m.word, owner, m.self) {
				return nil
			}
		case err != nil:
			return err
		}
	}
}

func (m *sharedMutex) unlock() {
	atomic.StoreUint32(m.word, 0)
	futexWake(m.word, 1)
}

// Event is one of the two event objects of the region: a sequence word
// that the signalling side increments and the waiting side blocks on.
// Signals between two waits collapse into one wakeup.
type Event struct {
	word *uint32
}

// Sequence returns the current signal count.
func (e *Event) Sequence() uint32 {
	return atomic.LoadUint32(e.word)
}

// Signal bumps the sequence and wakes every waiter.
func (e *Event) Signal() error {
	atomic.AddUint32(e.word, 1)
	_, err := futexWake(e.word, math.MaxInt32)
	return err
}

// Wait blocks until the sequence differs from seen. Spurious returns are
// possible; callers compare Sequence against seen afterwards.
func (e *Event) Wait(seen uint32) error {
	return futexWait(e.word, seen)
}

// WaitTimeout is Wait bounded by timeout; it returns ErrFutexTimeout when
// nothing was signalled in time.
func (e *Event) WaitTimeout(seen uint32, timeout time.Duration) error {
	return futexWaitTimeout(e.word, seen, timeout)
}
