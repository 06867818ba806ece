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

import "fmt"

// EventKind classifies a change detected by a poll.
type EventKind int

const (
	EventAttached EventKind = iota
	EventDetached
	EventCardChanged
	EventChannelChanged
	EventTunerGrantChanged
	EventEpgInfo
	EventCommand
	EventTunerRequest
	EventError
)

var eventNames = [...]string{
	EventAttached:          "attached",
	EventDetached:          "detached",
	EventCardChanged:       "card-changed",
	EventChannelChanged:    "channel-changed",
	EventTunerGrantChanged: "tuner-grant-changed",
	EventEpgInfo:           "epg-info",
	EventCommand:           "command",
	EventTunerRequest:      "tuner-request",
	EventError:             "error",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one semantic change. Only the field matching Kind is set.
type Event struct {
	Kind    EventKind
	Card    uint32
	Channel ChannelInfo
	Index   uint32 // channel_index of a channel change
	Granted bool
	Info    ProgrammeInfo
	Tuning  Tuning
	Err     error
}
