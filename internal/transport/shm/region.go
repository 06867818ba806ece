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
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Names are the named OS objects of one region. They are the whole
// addressing scheme: two implementations interoperate iff they derive the
// same names.
type Names struct {
	Mapping string // file backing the shared structure
	Lock    string // flock(2) target acting as the creation mutex
}

// NamesFor derives the object names for a base name such as "tvapp".
func NamesFor(base string) Names {
	path := regionPath(base)
	return Names{Mapping: path, Lock: path + ".lock"}
}

// regionPath returns the file backing the named region.
func regionPath(name string) string {
	// Prefer /dev/shm, fall back to the temporary directory.
	if isDevShmAvailable() {
		return filepath.Join("/dev/shm", "nxtvepg_"+name)
	}
	return filepath.Join(os.TempDir(), "nxtvepg_"+name)
}

// isDevShmAvailable checks if /dev/shm is available
func isDevShmAvailable() bool {
	info, err := os.Stat("/dev/shm")
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Options tune region creation and validation.
type Options struct {
	// Version is the compiled-in protocol version. Zero means
	// ProtocolVersion; tests override it to provoke mismatches.
	Version Version
}

func (o *Options) version() Version {
	if o == nil || o.Version == 0 {
		return ProtocolVersion
	}
	return o.Version
}

// Region is one participant's view of the mapped shared structure together
// with its synchronization objects. All methods are safe on a nil or
// closed Region where documented.
type Region struct {
	names  Names
	side   Side
	file   *os.File
	lock   *os.File // creation lock, held by the server only
	mem    []byte
	shared *Shared
	mu     *sharedMutex
	vbi    *VbiRing

	closeOnce sync.Once
	closeErr  error
	goneOnce  sync.Once
	closed    atomic.Bool
	leak      atomic.Bool
}

func newRegion(names Names, side Side, file, lock *os.File, mem []byte) *Region {
	s := (*Shared)(unsafe.Pointer(&mem[0]))
	return &Region{
		names:  names,
		side:   side,
		file:   file,
		lock:   lock,
		mem:    mem,
		shared: s,
		mu:     newSharedMutex(&s.lockWord),
		vbi:    newVbiRing(&s.vbi),
	}
}

// Side returns which participant owns this view.
func (r *Region) Side() Side {
	return r.side
}

// Names returns the OS object names of the region.
func (r *Region) Names() Names {
	return r.names
}

// Locked runs fn with the structure mutex held. The mutex is released on
// every exit path of fn, panics included. fn must not block or call back
// into application code.
func (r *Region) Locked(fn func(s *Shared) error) error {
	if r == nil || r.closed.Load() {
		return ErrRegionClosed
	}
	if err := r.mu.lock(); err != nil {
		return resourceErr("lock shared structure", err)
	}
	defer r.mu.unlock()
	return fn(r.shared)
}

// Event returns the inbound event object of side.
func (r *Region) Event(side Side) *Event {
	return &Event{word: r.shared.event(side)}
}

// SignalPeer wakes the other participant's event pump.
func (r *Region) SignalPeer() error {
	if r == nil || r.closed.Load() {
		return ErrRegionClosed
	}
	if err := r.Event(r.side.Peer()).Signal(); err != nil {
		return resourceErr("signal peer event", err)
	}
	return nil
}

// Shared returns the mapped structure. Apart from the header and the
// liveness flags, fields are accessed through Locked.
func (r *Region) Shared() *Shared {
	return r.shared
}

// Vbi returns the embedded VBI ring.
func (r *Region) Vbi() *VbiRing {
	return r.vbi
}

// MarkGone clears the caller's liveness flag and wakes the peer so it can
// observe the departure. Further calls are no-ops.
func (r *Region) MarkGone() {
	if r == nil || r.closed.Load() {
		return
	}
	r.goneOnce.Do(func() {
		if err := r.Locked(func(s *Shared) error {
			s.SetAlive(r.side, false)
			return nil
		}); err != nil {
			// Departure must be visible even if the lock is unusable.
			r.shared.SetAlive(r.side, false)
		}
		r.SignalPeer()
	})
}

// Leak makes Close keep the memory mapped. It is used when a goroutine may
// still be blocked on an event word inside the mapping.
func (r *Region) Leak() {
	if r != nil {
		r.leak.Store(true)
	}
}

// Close marks the caller gone, signals the peer, unmaps the structure and
// closes all handles. The server also removes the mapping and releases the
// creation lock. Close is idempotent and safe on a nil Region.
func (r *Region) Close() error {
	if r == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		r.MarkGone()
		r.closed.Store(true)
		r.closeErr = r.release()
	})
	return r.closeErr
}
