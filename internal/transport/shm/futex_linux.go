//go:build linux

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
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux futex operations. The region is mapped MAP_SHARED by two processes,
// so the private variants must not be used here.
const (
	futexWaitOp = 0 // FUTEX_WAIT
	futexWakeOp = 1 // FUTEX_WAKE
)

// futexWait waits for the value at addr to change from val.
// It returns when either:
//   - The value at addr is no longer equal to val
//   - Another thread or process calls futexWake on the same address
//   - The system call is interrupted
//
// Always re-check the condition after this returns due to possible
// spurious wakeups.
func futexWait(addr *uint32, val uint32) error {
	// Re-check before entering the syscall so a wake that raced with our
	// snapshot is not lost.
	if atomic.LoadUint32(addr) != val {
		return nil
	}

	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWaitOp,
		uintptr(val),
		0, // no timeout
		0,
		0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	}
	return fmt.Errorf("futex wait failed: %w", errno)
}

// futexWaitTimeout is futexWait bounded by timeout. It returns
// ErrFutexTimeout when the timeout elapses first.
func futexWaitTimeout(addr *uint32, val uint32, timeout time.Duration) error {
	if timeout <= 0 {
		return futexWait(addr, val)
	}
	if atomic.LoadUint32(addr) != val {
		return nil
	}

	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWaitOp,
		uintptr(val),
		uintptr(unsafe.Pointer(&ts)),
		0,
		0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	case unix.ETIMEDOUT:
		return ErrFutexTimeout
	}
	return fmt.Errorf("futex wait failed: %w", errno)
}

// futexWake wakes up to n waiters on addr and returns how many were woken.
func futexWake(addr *uint32, n int) (int, error) {
	r1, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWakeOp,
		uintptr(n),
		0,
		0,
		0,
	)
	if errno != 0 {
		return 0, fmt.Errorf("futex wake failed: %w", errno)
	}
	return int(r1), nil
}

// ProcessAlive reports whether a process with the given pid exists.
// A pid of zero is never alive.
func ProcessAlive(pid uint32) bool {
	if pid == 0 {
		return false
	}
	err := unix.Kill(int(pid), 0)
	return err == nil || err == unix.EPERM
}
