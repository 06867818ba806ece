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
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrAlreadyRunning is returned by CreateRegion when another server
	// holds the creation lock.
	ErrAlreadyRunning = errors.New("shm: another EPG server is already running")

	// ErrNoServer is returned by OpenRegion when no server holds the
	// creation lock. It means "not yet", not failure.
	ErrNoServer = errors.New("shm: no EPG server present")

	// ErrUnsupported is returned on platforms without futex support.
	ErrUnsupported = errors.New("shm: shared memory IPC not supported on this platform")

	// ErrFutexTimeout is returned by futexWaitTimeout when the wait times out.
	ErrFutexTimeout = errors.New("futex timeout")

	// ErrRegionClosed is returned by accessors on a closed region.
	ErrRegionClosed = errors.New("shm: region closed")
)

// VersionMismatchError reports a caller whose compiled-in protocol version
// differs from the one the server published in the region.
type VersionMismatchError struct {
	Expected Version // published in the region by the server
	Found    Version // compiled into the caller
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("incompatible TV application interface version: EPG server expects %s, this application has %s", e.Expected, e.Found)
}

// SizeMismatchError reports a caller whose compiled-in structure size
// differs from the size of the mapped region.
type SizeMismatchError struct {
	Expected int64 // published in the region, or the mapping's length
	Found    int64 // compiled into the caller
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("incompatible TV application interface: shared structure has %d bytes, this application uses %d", e.Expected, e.Found)
}

// ResourceError wraps a failing OS call together with the stage it
// happened in, so that callers can log something meaningful.
type ResourceError struct {
	Stage string
	Err   error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("shm: %s: %v", e.Stage, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// Code returns the OS error number behind the failure, or 0.
func (e *ResourceError) Code() int {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return int(errno)
	}
	return 0
}

func resourceErr(stage string, err error) error {
	return &ResourceError{Stage: stage, Err: err}
}
