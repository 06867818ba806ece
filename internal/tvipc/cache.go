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
	"log/slog"

	"github.com/tomzox/nxtvepg-sub005/internal/transport/shm"
)

// noCard never matches a real card index, so the peer's first card index
// is always reported.
const noCard = ^uint32(0)

// changeCache holds the last observed value of every peer-owned field and
// turns differences into events.
type changeCache struct {
	side shm.Side
	log  *slog.Logger

	peerAlive   bool
	peerPID     uint32
	peerCard    uint32
	peerGranted bool
	peerReq     shm.Tuning
	peerReqOK   bool
	channelIdx  uint32 // server: last channel_index observed
	progInfoIdx uint32 // client: last programme_info_index observed
	commandIdx  uint32 // command_index of the record addressed to us
}

func newChangeCache(side shm.Side, log *slog.Logger) changeCache {
	c := changeCache{side: side, log: log}
	c.resetPeer()
	return c
}

// resetPeer forgets the per-peer state fields. The last seen counters are
// kept: they only ever grow, and a new peer continues from the values its
// predecessor left.
func (c *changeCache) resetPeer() {
	c.peerPID = 0
	c.peerCard = noCard
	c.peerGranted = false
	c.peerReq, c.peerReqOK = shm.Tuning{}, false
}

// attachClient baselines the cache of a client that has just attached to
// a running server. Replies and commands sent before the attach are not
// reported.
func (c *changeCache) attachClient(s *shm.Shared) {
	c.resetPeer()
	c.peerAlive = true
	c.peerPID = s.PID(shm.SideServer)
	c.progInfoIdx = s.ProgInfoIndex()
	c.commandIdx = s.CommandIndex(shm.SideClient)
}

// poll compares the region against the cache in fixed priority order and
// returns the changes. It must be called with the structure mutex held.
func (c *changeCache) poll(s *shm.Shared) []Event {
	peer := c.side.Peer()

	// A peer that died without clearing its flag is detected by its pid;
	// a restarted peer shows up as a new pid.
	pid := s.PID(peer)
	alive := s.Alive(peer) && shm.ProcessAlive(pid)
	if alive && c.peerAlive && pid != c.peerPID {
		alive = false
	}
	if alive != c.peerAlive {
		c.peerAlive = alive
		c.resetPeer()
		if alive {
			c.peerPID = pid
			return []Event{{Kind: EventAttached}}
		}
		return []Event{{Kind: EventDetached}}
	}
	if !alive {
		return nil
	}

	var events []Event

	if card := s.CardIndex(peer); card != c.peerCard {
		c.peerCard = card
		events = append(events, Event{Kind: EventCardChanged, Card: card})
	}

	if c.side == shm.SideServer {
		if ch, idx := s.Channel(); idx != c.channelIdx {
			c.channelIdx = idx
			events = append(events, Event{Kind: EventChannelChanged, Channel: ch, Index: idx})
		}
	}

	if granted := s.Granted(peer); granted != c.peerGranted {
		c.peerGranted = granted
		events = append(events, Event{Kind: EventTunerGrantChanged, Granted: granted})
	}

	if c.side == shm.SideClient {
		if idx := s.ProgInfoIndex(); idx != c.progInfoIdx {
			c.progInfoIdx = idx
			info := s.ProgrammeInfo()
			if cur := s.ChannelIndex(); info.ChannelIndex == cur {
				events = append(events, Event{Kind: EventEpgInfo, Info: info})
			} else {
				c.log.Debug("tvipc: dropping stale EPG info",
					"reply_channel_index", info.ChannelIndex, "channel_index", cur)
			}
		}
	}

	if idx := s.CommandIndex(c.side); idx != c.commandIdx {
		c.commandIdx = idx
		if s.CommandPending(c.side) {
			events = append(events, Event{Kind: EventCommand})
		}
	}

	// Requests stay latched in the region while we do not grant the tuner.
	if s.Granted(c.side) {
		req, ok := s.TunerRequest(peer)
		if ok != c.peerReqOK || req != c.peerReq {
			c.peerReq, c.peerReqOK = req, ok
			if ok {
				events = append(events, Event{Kind: EventTunerRequest, Tuning: req})
			}
		}
	}

	return events
}
