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
	"context"
	"errors"
	"os"

	"github.com/tomzox/nxtvepg-sub005/internal/transport/shm"
)

// Client is the TV application's side. It attaches to a running server
// and, under Run, reattaches when a server appears again.
type Client struct {
	*participant
}

// NewClient returns a detached client.
func NewClient(opts Options) *Client {
	c := &Client{participant: newParticipant(shm.SideClient, opts)}
	c.onTick = c.reconnect
	return c
}

// Connect attaches to the server. ErrNoServer means no server is running
// yet; the client stays Detached and the handler is not called. Any other
// error leaves the client in StateError and is reported to
// Handler.OnAttachFailed.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.region != nil {
		c.mu.Unlock()
		return nil
	}
	c.state = StateAttaching

	region, err := c.open()
	if errors.Is(err, shm.ErrNoServer) {
		c.state = StateDetached
		c.mu.Unlock()
		c.log.Debug("tvipc: no EPG server present")
		return err
	}
	if err != nil {
		c.state = StateError
		c.mu.Unlock()
		c.log.Warn("tvipc: failed to attach", "error", err)
		c.handler.OnAttachFailed(err)
		return err
	}

	var server Identity
	pid := uint32(os.Getpid())
	err = region.Locked(func(s *shm.Shared) error {
		// Counters only ever grow; this client continues from the values
		// its predecessor left. A command left for it is discarded.
		if s.CommandPending(shm.SideClient) {
			s.AckCommand(shm.SideClient)
		}
		s.SetPID(shm.SideClient, pid)
		s.SetIdentity(shm.SideClient, c.identity())
		c.desired.flush(s, shm.SideClient)
		c.cache.attachClient(s)
		s.SetAlive(shm.SideClient, true)
		server = s.Identity(shm.SideServer)
		return nil
	})
	if err != nil {
		region.Close()
		c.state = StateError
		c.mu.Unlock()
		c.log.Warn("tvipc: failed to attach", "error", err)
		c.handler.OnAttachFailed(err)
		return err
	}

	c.attachedLocked(region)
	c.state = StateAttached
	c.mu.Unlock()

	if err := region.SignalPeer(); err != nil {
		c.log.Warn("tvipc: failed to signal server", "error", err)
	}
	c.log.Info("tvipc: attached to EPG server",
		"server", server.Name, "session", region.Shared().Session())
	c.handler.OnAttach(true)
	c.schedulePoll()
	return nil
}

// open opens the region and waits briefly for a server that has created
// it but not yet set its liveness flag.
func (c *Client) open() (*shm.Region, error) {
	region, err := shm.OpenRegion(c.opts.Base, &shm.Options{Version: c.opts.Version})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	defer cancel()
	if err := region.WaitPeer(ctx); err != nil {
		region.Close()
		return nil, shm.ErrNoServer
	}
	return region, nil
}

// reconnect retries Connect from Run's timer while detached. A refused
// attach (StateError) is not retried until Connect is called again.
func (c *Client) reconnect() {
	if c.State() != StateDetached {
		return
	}
	if err := c.Connect(); err != nil && !errors.Is(err, shm.ErrNoServer) {
		c.log.Debug("tvipc: reconnect failed", "error", err)
	}
}

// NotifyChannel reports a channel change to the server. With IsTuner set,
// the tuning is also published as the current tuning. Only the latest
// change is visible to the server.
func (c *Client) NotifyChannel(ch ChannelInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAttached || c.region == nil {
		return ErrNotAttached
	}

	if ch.IsTuner {
		c.desired.current = ch.Tuning
	}
	if err := c.region.Locked(func(s *shm.Shared) error {
		s.WriteChannel(ch)
		if ch.IsTuner {
			s.SetCurrentTuning(shm.SideClient, ch.Tuning)
		}
		return nil
	}); err != nil {
		return err
	}
	return c.region.SignalPeer()
}
