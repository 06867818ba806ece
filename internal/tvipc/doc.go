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

// Package tvipc implements the attach lifecycle and message channels of
// the EPG/TV-application interface on top of the shared region of package
// shm.
//
// A Server (the EPG application) creates the region; a Client (the TV
// viewer) attaches to it. Each participant owns one event pump goroutine
// that blocks on the participant's inbound event and hands wakeups to the
// owner goroutine, which polls the region and invokes the Handler. Nothing
// is queued: every sub-record is last-write-wins, and commands wait for an
// acknowledgment before the next one may be sent.
package tvipc
