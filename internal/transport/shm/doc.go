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

// Package shm implements the shared-memory region that connects the EPG
// application (server) with a TV viewer application (client) running on the
// same machine.
//
// The region is a single fixed-layout structure mapped from a file under
// /dev/shm. It carries protocol metadata, per-side liveness and identity,
// the channel-change, EPG-info and command sub-records, and an embedded VBI
// ring buffer. Access to everything except the VBI ring is serialized by a
// futex-based mutex living inside the mapping; two futex sequence words act
// as the "wake the server" and "wake the client" event objects. An flock(2)
// on a companion lock file is the creation mutex that keeps a second server
// from starting.
//
// The package only moves bytes and flags. Interpreting changes is the job
// of package tvipc.
package shm
