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
	"bytes"
	"fmt"
	"strings"

	"github.com/tomzox/nxtvepg-sub005/internal/transport/shm"
)

// Command vectors travel as argc NUL-terminated strings back to back. The
// total length is carried separately in the record, so bytes after the
// last terminator are ignored rather than parsed.

// encodeCommand serializes args. It fails before anything is written to
// the region.
func encodeCommand(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: no arguments", ErrInvalidCommand)
	}
	n := 0
	for i, a := range args {
		if strings.IndexByte(a, 0) >= 0 {
			return nil, fmt.Errorf("%w: argument %d contains NUL", ErrInvalidCommand, i)
		}
		n += len(a) + 1
	}
	if n > shm.CommandBufferSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLong, n, shm.CommandBufferSize)
	}

	buf := make([]byte, 0, n)
	for _, a := range args {
		buf = append(buf, a...)
		buf = append(buf, 0)
	}
	return buf, nil
}

// decodeCommand parses a payload written by the peer. argc and the payload
// are untrusted.
func decodeCommand(payload []byte, argc uint32) ([]string, error) {
	if argc == 0 {
		return nil, fmt.Errorf("%w: argc is zero", ErrInvalidCommand)
	}
	// Every argument takes at least its terminator.
	if argc > uint32(len(payload)) {
		return nil, fmt.Errorf("%w: argc %d exceeds length %d", ErrInvalidCommand, argc, len(payload))
	}

	args := make([]string, 0, argc)
	rest := payload
	for i := uint32(0); i < argc; i++ {
		end := bytes.IndexByte(rest, 0)
		if end < 0 {
			return nil, fmt.Errorf("%w: argument %d not terminated", ErrInvalidCommand, i)
		}
		args = append(args, string(rest[:end]))
		rest = rest[end+1:]
	}
	return args, nil
}
