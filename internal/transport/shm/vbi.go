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
	"context"
	"errors"
	"io"
	"math"
	"sync/atomic"
	"time"
)

var (
	// ErrVbiFull is returned by VbiRing.Write when the record does not fit.
	ErrVbiFull = errors.New("shm: VBI ring full")

	// ErrRingClosed indicates that the ring has been closed for writing
	ErrRingClosed = errors.New("shm: VBI ring closed")
)

// RingHeaderSize is the size of RingHeader.
const RingHeaderSize = 64

// RingHeader is the header of the embedded VBI ring. The producer owns widx
// and dataSeq, the consumer owns ridx and spaceSeq.
type RingHeader struct {
	capacity uint64   // 0x00: power-of-two capacity in bytes
	widx     uint64   // 0x08: monotonic write index (producer)
	ridx     uint64   // 0x10: monotonic read index (consumer)
	dataSeq  uint32   // 0x18: data sequence for futex (producer increments)
	spaceSeq uint32   // 0x1C: space sequence for futex (consumer increments)
	closed   uint32   // 0x20: closed flag (producer sets to 1)
	pad      uint32   // 0x24: padding
	reserved [24]byte // 0x28-0x3F: reserved/padding to 64B
}

// Capacity returns the ring capacity
func (r *RingHeader) Capacity() uint64 {
	return atomic.LoadUint64(&r.capacity)
}

// WriteIndex returns the monotonic write index (producer)
func (r *RingHeader) WriteIndex() uint64 {
	return atomic.LoadUint64(&r.widx)
}

// ReadIndex returns the monotonic read index (consumer)
func (r *RingHeader) ReadIndex() uint64 {
	return atomic.LoadUint64(&r.ridx)
}

// Used returns the number of bytes currently used in the ring
func (r *RingHeader) Used() uint64 {
	return atomic.LoadUint64(&r.widx) - atomic.LoadUint64(&r.ridx)
}

// Available returns the number of bytes available for writing
func (r *RingHeader) Available() uint64 {
	return r.Capacity() - r.Used()
}

// Closed returns the closed flag
func (r *RingHeader) Closed() bool {
	return atomic.LoadUint32(&r.closed) != 0
}

func (r *RingHeader) init(capacity uint64) {
	atomic.StoreUint64(&r.widx, 0)
	atomic.StoreUint64(&r.ridx, 0)
	atomic.StoreUint32(&r.closed, 0)
	atomic.StoreUint64(&r.capacity, capacity)
}

// RingState is a snapshot of ring state for diagnostics.
type RingState struct {
	Capacity uint64 // Total ring capacity in bytes
	Widx     uint64 // Current write index (monotonic)
	Ridx     uint64 // Current read index (monotonic)
	Used     uint64 // Bytes currently in ring (Widx - Ridx)
	DataSeq  uint32 // Data availability sequence number
	SpaceSeq uint32 // Space availability sequence number
	Closed   bool
}

// VbiRing is the single-producer single-consumer byte ring embedded in the
// region. The TV application produces raw VBI data, the EPG side's teletext
// decoder consumes it. The ring is used without the structure mutex; its
// content is opaque to this package.
type VbiRing struct {
	hdr  *RingHeader
	data []byte
	mask uint64
}

func newVbiRing(area *vbiArea) *VbiRing {
	return &VbiRing{
		hdr:  &area.hdr,
		data: area.data[:],
		mask: uint64(len(area.data)) - 1,
	}
}

// Capacity returns the ring capacity
func (r *VbiRing) Capacity() uint64 {
	return uint64(len(r.data))
}

// DebugState returns a snapshot of the ring indices and sequences.
func (r *VbiRing) DebugState() RingState {
	widx := r.hdr.WriteIndex()
	ridx := r.hdr.ReadIndex()
	return RingState{
		Capacity: r.Capacity(),
		Widx:     widx,
		Ridx:     ridx,
		Used:     widx - ridx,
		DataSeq:  atomic.LoadUint32(&r.hdr.dataSeq),
		SpaceSeq: atomic.LoadUint32(&r.hdr.spaceSeq),
		Closed:   r.hdr.Closed(),
	}
}

// Write appends p as a whole or not at all. The producer never blocks: a
// full ring returns ErrVbiFull and the data is dropped by the caller.
func (r *VbiRing) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if uint64(len(p)) > r.Capacity() {
		return ErrVbiFull
	}
	if r.hdr.Closed() {
		return ErrRingClosed
	}

	writeIdx := r.hdr.WriteIndex()
	usedBefore := writeIdx - r.hdr.ReadIndex()
	if r.Capacity()-usedBefore < uint64(len(p)) {
		return ErrVbiFull
	}

	pos := writeIdx & r.mask
	n := copy(r.data[pos:], p)
	copy(r.data, p[n:])

	atomic.StoreUint64(&r.hdr.widx, writeIdx+uint64(len(p)))

	// Only wake the reader on the empty -> non-empty transition.
	if usedBefore == 0 {
		atomic.AddUint32(&r.hdr.dataSeq, 1)
		futexWake(&r.hdr.dataSeq, 1)
	}
	return nil
}

// Read copies up to len(buf) bytes without blocking. It returns 0, nil on
// an empty open ring and 0, io.EOF on an empty closed one.
func (r *VbiRing) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	writeIdx := r.hdr.WriteIndex()
	readIdx := r.hdr.ReadIndex()
	used := writeIdx - readIdx
	if used == 0 {
		if r.hdr.Closed() {
			return 0, io.EOF
		}
		return 0, nil
	}
	if used > r.Capacity() {
		// Indices written by an untrusted producer; resynchronize.
		r.Reset()
		return 0, nil
	}

	toRead := min(uint64(len(buf)), used)
	pos := readIdx & r.mask
	n := copy(buf[:toRead], r.data[pos:])
	n += copy(buf[n:toRead], r.data)

	atomic.StoreUint64(&r.hdr.ridx, readIdx+uint64(n))

	// Only wake the writer on the full -> not-full transition.
	if used == r.Capacity() {
		atomic.AddUint32(&r.hdr.spaceSeq, 1)
		futexWake(&r.hdr.spaceSeq, 1)
	}
	return n, nil
}

// ReadContext blocks until data is available, the ring is closed or ctx is
// done.
func (r *VbiRing) ReadContext(ctx context.Context, buf []byte) (int, error) {
	for {
		seq := atomic.LoadUint32(&r.hdr.dataSeq)
		n, err := r.Read(buf)
		if n > 0 || err != nil || len(buf) == 0 {
			return n, err
		}

		var timeout time.Duration
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
			if timeout <= 0 {
				return 0, context.DeadlineExceeded
			}
		}
		// Bound each wait so cancellation without a deadline is noticed.
		if timeout == 0 || timeout > lockWaitSlice {
			timeout = lockWaitSlice
		}
		if err := futexWaitTimeout(&r.hdr.dataSeq, seq, timeout); err != nil && err != ErrFutexTimeout {
			return 0, err
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
	}
}

// Reset discards unread data. Only the consumer may call it.
func (r *VbiRing) Reset() {
	atomic.StoreUint64(&r.hdr.ridx, r.hdr.WriteIndex())
	atomic.AddUint32(&r.hdr.spaceSeq, 1)
	futexWake(&r.hdr.spaceSeq, 1)
}

// Close closes the ring for writing. Readers drain the remaining data and
// then see io.EOF.
func (r *VbiRing) Close() error {
	atomic.StoreUint32(&r.hdr.closed, 1)
	atomic.AddUint32(&r.hdr.dataSeq, 1)
	futexWake(&r.hdr.dataSeq, math.MaxInt32)
	futexWake(&r.hdr.spaceSeq, math.MaxInt32)
	return nil
}

