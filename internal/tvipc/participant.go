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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tomzox/nxtvepg-sub005/internal/transport/shm"
)

// desiredState is what the application set for its own side record. It is
// kept while detached and flushed into the region on attach.
type desiredState struct {
	card      uint32
	granted   bool
	hasDriver bool
	request   *Tuning
	current   Tuning
}

func (d *desiredState) flush(s *shm.Shared, side shm.Side) {
	s.SetCardIndex(side, d.card)
	s.SetGranted(side, d.granted)
	s.SetHasDriver(side, d.hasDriver)
	s.SetCurrentTuning(side, d.current)
	if d.request != nil {
		s.SetTunerRequest(side, *d.request)
	} else {
		s.ClearTunerRequest(side)
	}
}

// participant is the part common to Server and Client.
type participant struct {
	side    shm.Side
	opts    Options
	handler Handler
	log     *slog.Logger
	wake    chan struct{}

	// onTick runs on every timer poll of Run before polling.
	onTick func()

	mu      sync.Mutex
	state   State
	region  *shm.Region
	pump    *eventPump
	cache   changeCache
	desired desiredState
}

func newParticipant(side shm.Side, opts Options) *participant {
	opts = opts.withDefaults()
	log := opts.Logger.With("side", side.String(), "base", opts.Base)
	return &participant{
		side:    side,
		opts:    opts,
		handler: opts.Handler,
		log:     log,
		wake:    make(chan struct{}, 1),
		state:   StateDetached,
		cache:   newChangeCache(side, log),
		desired: desiredState{card: opts.CardIndex},
	}
}

func (p *participant) identity() Identity {
	return Identity{
		Name:      p.opts.AppName,
		Features:  p.opts.Features,
		CardIndex: p.desired.card,
	}
}

// schedulePoll makes the next Run iteration poll without waiting for the
// peer or the timer.
func (p *participant) schedulePoll() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Wakeups returns the channel the event pump posts to. An application with
// its own event loop selects on it and calls Poll; Run does the same.
func (p *participant) Wakeups() <-chan struct{} {
	return p.wake
}

// State returns the attach state.
func (p *participant) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Peer describes the attached peer.
func (p *participant) Peer() (PeerInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateAttached || p.region == nil {
		return PeerInfo{}, ErrNotAttached
	}
	var info PeerInfo
	peer := p.side.Peer()
	err := p.region.Locked(func(s *shm.Shared) error {
		info = PeerInfo{
			Identity: s.Identity(peer),
			PID:      s.PID(peer),
			Session:  s.Session(),
			Version:  s.ProtocolVersion(),
		}
		return nil
	})
	return info, err
}

// VbiBuffer returns the VBI ring embedded in the region. It stays valid
// until the participant detaches.
func (p *participant) VbiBuffer() (*shm.VbiRing, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.region == nil {
		return nil, ErrNotAttached
	}
	return p.region.Vbi(), nil
}

// Poll drains all changes of the region and dispatches them to the
// handler. It must only be called from the owner goroutine.
func (p *participant) Poll() {
	for {
		events := p.collect()
		if len(events) == 0 {
			return
		}
		for _, ev := range events {
			p.dispatch(ev)
		}
	}
}

// collect runs one poll cycle and applies lifecycle transitions.
func (p *participant) collect() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.region == nil {
		return nil
	}
	if err := p.pump.Err(); err != nil {
		return p.failLocked(fmt.Errorf("event pump: %w", err))
	}
	p.pump.beginDispatch()

	var events []Event
	err := p.region.Locked(func(s *shm.Shared) error {
		events = p.cache.poll(s)
		return nil
	})
	if err != nil {
		return p.failLocked(err)
	}
	if len(events) == 0 {
		p.pump.endDispatch()
		return nil
	}

	switch events[0].Kind {
	case EventAttached:
		p.state = StateAttached
		p.log.Info("tvipc: peer attached")
	case EventDetached:
		p.log.Info("tvipc: peer detached")
		p.state = StateDetached
		if p.side == shm.SideClient {
			// The server is gone; its region cannot be reused.
			if err := p.teardownLocked(); err != nil {
				p.log.Warn("tvipc: failed to release region", "error", err)
			}
		}
	}
	return events
}

// failLocked turns a failure of the event pump or the structure mutex into
// an error event and an implicit detach.
func (p *participant) failLocked(err error) []Event {
	p.log.Error("tvipc: detaching after failure", "error", err)
	wasAttached := p.state == StateAttached
	if terr := p.teardownLocked(); terr != nil {
		p.log.Warn("tvipc: failed to release region", "error", terr)
	}
	p.state = StateDetached
	events := []Event{{Kind: EventError, Err: err}}
	if wasAttached {
		events = append(events, Event{Kind: EventDetached})
	}
	return events
}

func (p *participant) dispatch(ev Event) {
	h := p.handler
	switch ev.Kind {
	case EventAttached:
		h.OnAttach(true)
	case EventDetached:
		h.OnAttach(false)
	case EventCardChanged:
		h.OnCardChanged(ev.Card)
	case EventChannelChanged:
		h.OnChannelChanged(ev.Channel)
	case EventTunerGrantChanged:
		h.OnTunerGrantChanged(ev.Granted)
	case EventEpgInfo:
		h.OnEpgInfo(ev.Info)
	case EventCommand:
		args, err := p.ReceiveCommand()
		switch {
		case errors.Is(err, ErrNoCommand), errors.Is(err, ErrNotAttached):
			// Taken by an explicit ReceiveCommand or lost with the peer.
		case err != nil:
			h.OnError(err)
		default:
			h.OnCommand(args)
		}
	case EventTunerRequest:
		h.OnTunerRequested(ev.Tuning)
	case EventError:
		h.OnError(ev.Err)
	}
}

// Run polls on every pump wakeup and every PollInterval until ctx is done.
// It does not close the participant.
func (p *participant) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	p.Poll()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.wake:
			p.Poll()
		case <-ticker.C:
			if p.onTick != nil {
				p.onTick()
			}
			p.Poll()
		}
	}
}

// Close detaches from the peer and releases the region. It can be called
// in any state and more than once.
func (p *participant) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.teardownLocked()
	p.state = StateDetached
	return err
}

// teardownLocked marks this side gone, stops the pump and closes the
// region. The region is leaked rather than unmapped under a pump that did
// not exit.
func (p *participant) teardownLocked() error {
	if p.region == nil {
		return nil
	}
	p.region.MarkGone()
	if p.pump != nil {
		if !p.pump.stop(p.opts.StopTimeout) {
			p.log.Warn("tvipc: event pump did not stop, leaking mapping", "timeout", p.opts.StopTimeout)
			p.region.Leak()
		}
		p.pump = nil
	}
	err := p.region.Close()
	p.region = nil
	p.cache = newChangeCache(p.side, p.log)
	return err
}

// attachedLocked starts the pump on a region whose identity is written.
func (p *participant) attachedLocked(region *shm.Region) {
	p.region = region
	p.pump = startEventPump(region.Event(p.side), p.wake, p.log)
}

// update records a change of the own side record and writes it into the
// region if one is mapped. While detached the change is flushed on attach.
func (p *participant) update(apply func(d *desiredState), write func(s *shm.Shared)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	apply(&p.desired)
	if p.region == nil {
		return nil
	}
	if err := p.region.Locked(func(s *shm.Shared) error {
		write(s)
		return nil
	}); err != nil {
		return err
	}
	return p.region.SignalPeer()
}

// GrantTuner lets the peer control the tuner, or revokes it. A request
// the peer latched while not granted is reported by the next poll.
func (p *participant) GrantTuner(granted bool) error {
	err := p.update(
		func(d *desiredState) { d.granted = granted },
		func(s *shm.Shared) { s.SetGranted(p.side, granted) },
	)
	if granted {
		p.schedulePoll()
	}
	return err
}

// RequestTuner asks the peer to tune. The peer only acts on it while it
// grants the tuner.
func (p *participant) RequestTuner(t Tuning) error {
	return p.update(
		func(d *desiredState) { d.request = &t },
		func(s *shm.Shared) { s.SetTunerRequest(p.side, t) },
	)
}

// CancelTunerRequest withdraws a request made by RequestTuner.
func (p *participant) CancelTunerRequest() error {
	return p.update(
		func(d *desiredState) { d.request = nil },
		func(s *shm.Shared) { s.ClearTunerRequest(p.side) },
	)
}

// SetCurrentTuning publishes what this side's tuner is set to.
func (p *participant) SetCurrentTuning(t Tuning) error {
	return p.update(
		func(d *desiredState) { d.current = t },
		func(s *shm.Shared) { s.SetCurrentTuning(p.side, t) },
	)
}

// SetCardIndex publishes the hardware card this side uses.
func (p *participant) SetCardIndex(card uint32) error {
	return p.update(
		func(d *desiredState) { d.card = card },
		func(s *shm.Shared) { s.SetCardIndex(p.side, card) },
	)
}

// SetHardwareDriver publishes whether this side has the capture driver
// loaded.
func (p *participant) SetHardwareDriver(loaded bool) error {
	return p.update(
		func(d *desiredState) { d.hasDriver = loaded },
		func(s *shm.Shared) { s.SetHasDriver(p.side, loaded) },
	)
}

// SendCommand sends a command vector to the peer. It returns ErrTooLong or
// ErrInvalidCommand without touching the region, and ErrBusy while the
// previous command is unacknowledged.
func (p *participant) SendCommand(args []string) error {
	payload, err := encodeCommand(args)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateAttached || p.region == nil {
		return ErrNotAttached
	}
	to := p.side.Peer()
	err = p.region.Locked(func(s *shm.Shared) error {
		if s.CommandPending(to) {
			return ErrBusy
		}
		_, err := s.WriteCommand(to, payload, uint32(len(args)))
		return err
	})
	if err != nil {
		return err
	}
	return p.region.SignalPeer()
}

// ReceiveCommand takes the pending command addressed to this side and
// acknowledges it. Poll calls it for every command event; applications
// only need it when they poll the region by other means. A command that
// does not decode is acknowledged too, so the sender is not blocked.
func (p *participant) ReceiveCommand() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.region == nil {
		return nil, ErrNotAttached
	}

	var (
		payload []byte
		argc    uint32
	)
	err := p.region.Locked(func(s *shm.Shared) error {
		if !s.CommandPending(p.side) {
			return ErrNoCommand
		}
		payload, argc = s.ReadCommand(p.side)
		s.AckCommand(p.side)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := p.region.SignalPeer(); err != nil {
		p.log.Warn("tvipc: failed to signal command acknowledgment", "error", err)
	}
	return decodeCommand(payload, argc)
}
