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

	"github.com/google/uuid"

	"github.com/tomzox/nxtvepg-sub005/internal/transport/shm"
)

// Protocol value types shared with package shm.
type (
	ChannelInfo   = shm.Channel
	ProgrammeInfo = shm.ProgrammeInfo
	Tuning        = shm.Tuning
	Identity      = shm.Identity
	Feature       = shm.Feature
	Version       = shm.Version
)

const (
	FeatureVbiForward    = shm.FeatureVbiForward
	FeatureChannelNotify = shm.FeatureChannelNotify
	FeatureEpgInfo       = shm.FeatureEpgInfo
	FeatureCommands      = shm.FeatureCommands
	FeatureTunerGrant    = shm.FeatureTunerGrant
)

// ProtocolVersion is the interface version this package implements.
const ProtocolVersion = shm.ProtocolVersion

// State is the attach state of a participant.
type State int32

const (
	StateDetached State = iota
	StateAttaching
	StateAttached
	StateError
)

func (s State) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// PeerInfo describes the attached peer.
type PeerInfo struct {
	Identity
	PID     uint32
	Session uuid.UUID // id of the server instance that created the region
	Version Version
}
