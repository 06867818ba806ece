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

// Server is the EPG application's side. It creates the region and waits
// for TV applications to attach; clients may come and go while it runs.
type Server struct {
	*participant
}

// NewServer returns a detached server. Connect creates the region.
func NewServer(opts Options) *Server {
	return &Server{participant: newParticipant(shm.SideServer, opts)}
}

// Connect creates the region, publishes identity and pending state and
// starts the event pump. The server is Attaching until a client appears.
// Errors are also reported to Handler.OnAttachFailed.
func (s *Server) Connect() error {
	s.mu.Lock()
	if s.region != nil {
		s.mu.Unlock()
		return nil
	}
	s.state = StateAttaching

	region, err := shm.CreateRegion(s.opts.Base, &shm.Options{Version: s.opts.Version})
	if err == nil {
		err = region.Locked(func(sh *shm.Shared) error {
			sh.SetIdentity(shm.SideServer, s.identity())
			s.desired.flush(sh, shm.SideServer)
			sh.SetAlive(shm.SideServer, true)
			return nil
		})
		if err != nil {
			region.Close()
		}
	}
	if err != nil {
		s.state = StateError
		s.mu.Unlock()
		s.log.Warn("tvipc: failed to create region", "error", err)
		s.handler.OnAttachFailed(err)
		return err
	}

	s.cache = newChangeCache(shm.SideServer, s.log)
	s.attachedLocked(region)
	s.mu.Unlock()

	s.log.Info("tvipc: EPG server ready",
		"session", region.Shared().Session(), "version", s.opts.Version)
	s.schedulePoll()
	return nil
}

// ReplyEpgInfo answers the channel change last reported through
// OnChannelChanged. If the client has changed channel since, nothing is
// written and ErrStale is returned.
func (s *Server) ReplyEpgInfo(info ProgrammeInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAttached || s.region == nil {
		return ErrNotAttached
	}

	observed := s.cache.channelIdx
	err := s.region.Locked(func(sh *shm.Shared) error {
		if cur := sh.ChannelIndex(); cur != observed {
			return ErrStale
		}
		sh.WriteProgrammeInfo(observed, info)
		return nil
	})
	if errors.Is(err, ErrStale) {
		s.log.Debug("tvipc: dropping stale EPG info reply", "channel_index", observed)
		return err
	}
	if err != nil {
		return err
	}
	return s.region.SignalPeer()
}
