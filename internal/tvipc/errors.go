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
	"errors"

	"github.com/tomzox/nxtvepg-sub005/internal/transport/shm"
)

var (
	// ErrNotAttached is returned by operations that need a peer while
	// none is attached.
	ErrNotAttached = errors.New("tvipc: not attached")

	// ErrBusy is returned by SendCommand while the previous command has
	// not been acknowledged. The caller retries later.
	ErrBusy = errors.New("tvipc: previous command not yet acknowledged")

	// ErrTooLong is returned by SendCommand when the encoded arguments do
	// not fit the command buffer. Nothing is written.
	ErrTooLong = errors.New("tvipc: command exceeds buffer size")

	// ErrStale is returned by ReplyEpgInfo when the client changed channel
	// after the request the reply answers.
	ErrStale = errors.New("tvipc: EPG info addresses an outdated channel")

	// ErrNoCommand is returned by ReceiveCommand when nothing is pending.
	ErrNoCommand = errors.New("tvipc: no pending command")

	// ErrInvalidCommand reports an argument vector that cannot be encoded,
	// or a received one that does not decode.
	ErrInvalidCommand = errors.New("tvipc: invalid command vector")
)

// Errors of the shared region, re-exported so that applications need not
// import package shm to match them.
var (
	ErrAlreadyRunning = shm.ErrAlreadyRunning
	ErrNoServer       = shm.ErrNoServer
	ErrUnsupported    = shm.ErrUnsupported
)

type (
	VersionMismatchError = shm.VersionMismatchError
	SizeMismatchError    = shm.SizeMismatchError
	ResourceError        = shm.ResourceError
)
