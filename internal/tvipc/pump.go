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

package tvipc

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomzox/nxtvepg-sub005/internal/transport/shm"
)

type pumpState int32

const (
	pumpIdle pumpState = iota
	pumpWaiting
	pumpTriggered
	pumpDispatching
	pumpStopping
	pumpStopped
)

func (s pumpState) String() string {
	switch s {
	case pumpIdle:
		return "idle"
	case pumpWaiting:
		return "waiting"
	case pumpTriggered:
		return "triggered"
	case pumpDispatching:
		return "dispatching"
	case pumpStopping:
		return "stopping"
	case pumpStopped:
		return "stopped"
	}
	return fmt.Sprintf("pumpState(%d)", int32(s))
}

// eventPump blocks on the participant's inbound event on a dedicated OS
// thread and forwards wakeups into a single-slot channel. It never touches
// the shared structure, so the owner does all polling on its own goroutine.
type eventPump struct {
	ev   *shm.Event
	wake chan<- struct{}
	log  *slog.Logger

	state    atomic.Int32
	stopping atomic.Bool
	done     chan struct{}

	mu  sync.Mutex
	err error
}

func startEventPump(ev *shm.Event, wake chan<- struct{}, log *slog.Logger) *eventPump {
	p := &eventPump{
		ev:   ev,
		wake: wake,
		log:  log,
		done: make(chan struct{}),
	}
	p.state.Store(int32(pumpIdle))
	seen := ev.Sequence()
	go p.run(seen)
	return p
}

func (p *eventPump) run(seen uint32) {
	// The blocking futex wait holds the thread; keep it off the scheduler's
	// shared threads.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(p.done)
	defer p.state.Store(int32(pumpStopped))

	p.state.CompareAndSwap(int32(pumpIdle), int32(pumpWaiting))
	for {
		if err := p.ev.Wait(seen); err != nil {
			p.log.Error("tvipc: event wait failed, event pump exiting", "error", err)
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			return
		}
		if p.stopping.Load() {
			return
		}
		cur := p.ev.Sequence()
		if cur == seen {
			continue
		}
		seen = cur

		p.transition(pumpTriggered)
		select {
		case p.wake <- struct{}{}:
		default:
			// A wakeup is already pending; one poll covers both.
		}
	}
}

// transition moves to state unless the pump is shutting down.
func (p *eventPump) transition(to pumpState) {
	for {
		cur := pumpState(p.state.Load())
		if cur == pumpStopping || cur == pumpStopped {
			return
		}
		if p.state.CompareAndSwap(int32(cur), int32(to)) {
			return
		}
	}
}

// beginDispatch and endDispatch bracket an owner poll cycle.
func (p *eventPump) beginDispatch() {
	p.state.CompareAndSwap(int32(pumpTriggered), int32(pumpDispatching))
}

func (p *eventPump) endDispatch() {
	p.state.CompareAndSwap(int32(pumpDispatching), int32(pumpWaiting))
}

func (p *eventPump) currentState() pumpState {
	return pumpState(p.state.Load())
}

// Err returns the wait failure that ended the pump, if any.
func (p *eventPump) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// stop ends the pump and waits up to timeout for it to exit. It reports
// whether the goroutine finished; if not, the mapping holding the event
// word must not be unmapped.
func (p *eventPump) stop(timeout time.Duration) bool {
	p.state.Store(int32(pumpStopping))
	p.stopping.Store(true)
	if err := p.ev.Signal(); err != nil {
		p.log.Warn("tvipc: failed to signal event pump", "error", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		p.state.Store(int32(pumpStopped))
		return true
	case <-timer.C:
		return false
	}
}
