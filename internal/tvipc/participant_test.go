//go:build linux

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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tomzox/nxtvepg-sub005/internal/transport/shm"
)

// recorder is a Handler that keeps every callback as an Event.
type recorder struct {
	mu       sync.Mutex
	events   []Event
	commands [][]string
	failed   []error
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) OnAttach(attached bool) {
	if attached {
		r.add(Event{Kind: EventAttached})
	} else {
		r.add(Event{Kind: EventDetached})
	}
}

func (r *recorder) OnAttachFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, err)
}

func (r *recorder) OnError(err error) { r.add(Event{Kind: EventError, Err: err}) }
func (r *recorder) OnChannelChanged(ch ChannelInfo) { r.add(Event{Kind: EventChannelChanged, Channel: ch}) }
func (r *recorder) OnEpgInfo(info ProgrammeInfo) { r.add(Event{Kind: EventEpgInfo, Info: info}) }
func (r *recorder) OnTunerGrantChanged(g bool) { r.add(Event{Kind: EventTunerGrantChanged, Granted: g}) }
func (r *recorder) OnTunerRequested(t Tuning) { r.add(Event{Kind: EventTunerRequest, Tuning: t}) }
func (r *recorder) OnCardChanged(card uint32) { r.add(Event{Kind: EventCardChanged, Card: card}) }

func (r *recorder) OnCommand(args []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: EventCommand})
	r.commands = append(r.commands, args)
}

// take returns and forgets the recorded events.
func (r *recorder) take() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.events
	r.events = nil
	return events
}

func (r *recorder) ofKind(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.failed...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func uniqueBase(t *testing.T) string {
	t.Helper()
	base := fmt.Sprintf("tvipc_test_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		names := shm.NamesFor(base)
		os.Remove(names.Mapping)
		os.Remove(names.Lock)
	})
	return base
}

func testOptions(base, name string, h Handler) Options {
	return Options{
		Base:         base,
		AppName:      name,
		Features:     FeatureChannelNotify | FeatureCommands | FeatureTunerGrant,
		Handler:      h,
		Logger:       discardLogger(),
		PollInterval: 10 * time.Millisecond,
		StopTimeout:  2 * time.Second,
	}
}

func newTestServer(t *testing.T, base string) (*Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := NewServer(testOptions(base, "nxtvepg", rec))
	if err := srv.Connect(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, rec
}

func newTestClient(t *testing.T, base string) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	cli := NewClient(testOptions(base, "tvviewer", rec))
	if err := cli.Connect(); err != nil {
		t.Fatalf("Failed to attach client: %v", err)
	}
	t.Cleanup(func() { cli.Close() })
	return cli, rec
}

// attachedPair returns a server and client that have seen each other, with
// the attach callbacks already consumed.
func attachedPair(t *testing.T) (*Server, *recorder, *Client, *recorder) {
	t.Helper()
	base := uniqueBase(t)
	srv, srec := newTestServer(t, base)
	cli, crec := newTestClient(t, base)
	srv.Poll()
	cli.Poll()
	if srv.State() != StateAttached || cli.State() != StateAttached {
		t.Fatalf("states after attach: server %v, client %v", srv.State(), cli.State())
	}
	srec.take()
	crec.take()
	return srv, srec, cli, crec
}

func TestAttachAndDetach(t *testing.T) {
	base := uniqueBase(t)
	srv, srec := newTestServer(t, base)
	if got := srv.State(); got != StateAttaching {
		t.Fatalf("server state before client = %v, want attaching", got)
	}

	cli, crec := newTestClient(t, base)
	if got := crec.ofKind(EventAttached); len(got) != 1 {
		t.Errorf("client attach callbacks = %d, want 1", len(got))
	}

	srv.Poll()
	if got := srec.ofKind(EventAttached); len(got) != 1 {
		t.Fatalf("server attach callbacks = %d, want 1", len(got))
	}
	peer, err := srv.Peer()
	if err != nil {
		t.Fatalf("Peer() error = %v", err)
	}
	if peer.Name != "tvviewer" || peer.PID != uint32(os.Getpid()) || peer.Version != ProtocolVersion {
		t.Errorf("Peer() = %+v", peer)
	}
	cpeer, err := cli.Peer()
	if err != nil {
		t.Fatalf("client Peer() error = %v", err)
	}
	if cpeer.Name != "nxtvepg" || cpeer.Session != peer.Session {
		t.Errorf("client Peer() = %+v", cpeer)
	}

	srec.take()
	if err := cli.Close(); err != nil {
		t.Fatalf("client Close() error = %v", err)
	}
	srv.Poll()
	if got := srec.ofKind(EventDetached); len(got) != 1 {
		t.Fatalf("server detach callbacks = %d, want 1", len(got))
	}
	if got := srv.State(); got != StateDetached {
		t.Errorf("server state after client left = %v, want detached", got)
	}

	// The region survives; the next client attaches to it.
	newTestClient(t, base)
	srv.Poll()
	if srv.State() != StateAttached {
		t.Errorf("server state after second client = %v", srv.State())
	}
}

func TestServerExitDetachesClient(t *testing.T) {
	srv, _, cli, crec := attachedPair(t)

	if err := srv.Close(); err != nil {
		t.Fatalf("server Close() error = %v", err)
	}
	cli.Poll()
	if got := crec.ofKind(EventDetached); len(got) != 1 {
		t.Fatalf("client detach callbacks = %d, want 1", len(got))
	}
	if cli.State() != StateDetached {
		t.Errorf("client state = %v, want detached", cli.State())
	}
	if _, err := cli.VbiBuffer(); !errors.Is(err, ErrNotAttached) {
		t.Errorf("VbiBuffer() after detach error = %v, want ErrNotAttached", err)
	}
}

func TestClientWithoutServer(t *testing.T) {
	rec := &recorder{}
	cli := NewClient(testOptions(uniqueBase(t), "tvviewer", rec))
	defer cli.Close()

	if err := cli.Connect(); !errors.Is(err, ErrNoServer) {
		t.Fatalf("Connect() error = %v, want ErrNoServer", err)
	}
	if cli.State() != StateDetached {
		t.Errorf("state = %v, want detached", cli.State())
	}
	if len(rec.failures()) != 0 {
		t.Errorf("OnAttachFailed called for a missing server: %v", rec.failures())
	}
	if err := cli.NotifyChannel(ChannelInfo{Name: "ARD"}); !errors.Is(err, ErrNotAttached) {
		t.Errorf("NotifyChannel() while detached error = %v, want ErrNotAttached", err)
	}
}

func TestSecondServerRefused(t *testing.T) {
	base := uniqueBase(t)
	newTestServer(t, base)

	rec := &recorder{}
	second := NewServer(testOptions(base, "nxtvepg", rec))
	defer second.Close()
	if err := second.Connect(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Connect() error = %v, want ErrAlreadyRunning", err)
	}
	if second.State() != StateError {
		t.Errorf("state = %v, want error", second.State())
	}
	if f := rec.failures(); len(f) != 1 || !errors.Is(f[0], ErrAlreadyRunning) {
		t.Errorf("OnAttachFailed calls = %v", f)
	}
}

func TestVersionMismatchRefusesAttach(t *testing.T) {
	base := uniqueBase(t)
	srec := &recorder{}
	sopts := testOptions(base, "nxtvepg", srec)
	sopts.Version = shm.MakeVersion(2, 0, 0)
	srv := NewServer(sopts)
	if err := srv.Connect(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer srv.Close()

	crec := &recorder{}
	cli := NewClient(testOptions(base, "tvviewer", crec))
	defer cli.Close()

	err := cli.Connect()
	var vm *VersionMismatchError
	if !errors.As(err, &vm) {
		t.Fatalf("Connect() error = %v, want *VersionMismatchError", err)
	}
	if vm.Expected != shm.MakeVersion(2, 0, 0) || vm.Found != shm.MakeVersion(2, 1, 0) {
		t.Errorf("mismatch = found %s expected %s", vm.Found, vm.Expected)
	}
	if cli.State() != StateError {
		t.Errorf("client state = %v, want error", cli.State())
	}
	if f := crec.failures(); len(f) != 1 {
		t.Errorf("OnAttachFailed calls = %d, want 1", len(f))
	}

	srv.Poll()
	if got := srec.ofKind(EventAttached); len(got) != 0 {
		t.Errorf("server saw a refused client attach")
	}
}

func TestNotifyChannel(t *testing.T) {
	srv, srec, cli, _ := attachedPair(t)

	bbc := ChannelInfo{
		Name:       "BBC1",
		Identifier: 7,
		IsTuner:    true,
		Tuning:     Tuning{Frequency: 471250, Norm: shm.NormPAL},
	}
	if err := cli.NotifyChannel(bbc); err != nil {
		t.Fatalf("NotifyChannel() error = %v", err)
	}
	srv.Poll()
	got := srec.ofKind(EventChannelChanged)
	if len(got) != 1 {
		t.Fatalf("channel change callbacks = %d, want 1", len(got))
	}
	if got[0].Channel != bbc {
		t.Errorf("channel = %+v, want %+v", got[0].Channel, bbc)
	}

	srec.take()
	srv.Poll()
	if events := srec.take(); len(events) != 0 {
		t.Errorf("poll without changes produced %v", kindsOf(events))
	}
}

func TestNotifyChannelLastWriteWins(t *testing.T) {
	srv, srec, cli, _ := attachedPair(t)

	for _, name := range []string{"ARD", "ZDF", "arte"} {
		if err := cli.NotifyChannel(ChannelInfo{Name: name}); err != nil {
			t.Fatalf("NotifyChannel(%q) error = %v", name, err)
		}
	}
	srv.Poll()
	got := srec.ofKind(EventChannelChanged)
	if len(got) != 1 || got[0].Channel.Name != "arte" {
		t.Fatalf("channel changes = %+v, want only arte", got)
	}
}

func TestEpgInfoReply(t *testing.T) {
	srv, _, cli, crec := attachedPair(t)

	cli.NotifyChannel(ChannelInfo{Name: "BBC1"})
	srv.Poll()

	info := ProgrammeInfo{
		Title:  "Newsnight",
		Start:  time.Unix(1700000000, 0),
		Stop:   time.Unix(1700003600, 0),
		Themes: []uint8{0x10, 0x20},
	}
	if err := srv.ReplyEpgInfo(info); err != nil {
		t.Fatalf("ReplyEpgInfo() error = %v", err)
	}
	cli.Poll()
	got := crec.ofKind(EventEpgInfo)
	if len(got) != 1 {
		t.Fatalf("EPG info callbacks = %d, want 1", len(got))
	}
	if got[0].Info.Title != "Newsnight" || !reflect.DeepEqual(got[0].Info.Themes, info.Themes) {
		t.Errorf("EPG info = %+v", got[0].Info)
	}
}

func TestStaleEpgInfoReplyDropped(t *testing.T) {
	srv, _, cli, crec := attachedPair(t)

	cli.NotifyChannel(ChannelInfo{Name: "BBC1"})
	srv.Poll()
	// The viewer zaps on before the server answers.
	cli.NotifyChannel(ChannelInfo{Name: "BBC2"})

	if err := srv.ReplyEpgInfo(ProgrammeInfo{Title: "old"}); !errors.Is(err, ErrStale) {
		t.Fatalf("ReplyEpgInfo() error = %v, want ErrStale", err)
	}

	// A reply that reaches the region anyway is filtered by the client.
	srv.mu.Lock()
	srv.region.Locked(func(s *shm.Shared) error {
		s.WriteProgrammeInfo(s.ChannelIndex()-1, ProgrammeInfo{Title: "old"})
		return nil
	})
	srv.mu.Unlock()

	cli.Poll()
	if got := crec.ofKind(EventEpgInfo); len(got) != 0 {
		t.Fatalf("stale reply delivered: %+v", got)
	}

	srv.Poll()
	if err := srv.ReplyEpgInfo(ProgrammeInfo{Title: "current"}); err != nil {
		t.Fatalf("ReplyEpgInfo() error = %v", err)
	}
	cli.Poll()
	got := crec.ofKind(EventEpgInfo)
	if len(got) != 1 || got[0].Info.Title != "current" {
		t.Errorf("EPG info after resync = %+v", got)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	srv, _, cli, _ := attachedPair(t)

	args := []string{"record", "20240101120000"}
	if err := cli.SendCommand(args); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if err := cli.SendCommand(args); !errors.Is(err, ErrBusy) {
		t.Fatalf("second SendCommand() error = %v, want ErrBusy", err)
	}

	got, err := srv.ReceiveCommand()
	if err != nil {
		t.Fatalf("ReceiveCommand() error = %v", err)
	}
	if !reflect.DeepEqual(got, args) {
		t.Errorf("ReceiveCommand() = %q, want %q", got, args)
	}
	if _, err := srv.ReceiveCommand(); !errors.Is(err, ErrNoCommand) {
		t.Errorf("ReceiveCommand() after ack error = %v, want ErrNoCommand", err)
	}

	if err := cli.SendCommand([]string{"stop"}); err != nil {
		t.Errorf("SendCommand() after ack error = %v", err)
	}
}

func TestSendCommandBusyLeavesBufferUnchanged(t *testing.T) {
	srv, _, cli, _ := attachedPair(t)

	if err := cli.SendCommand([]string{"first"}); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if err := cli.SendCommand([]string{"second", "x"}); !errors.Is(err, ErrBusy) {
		t.Fatalf("SendCommand() error = %v, want ErrBusy", err)
	}
	got, err := srv.ReceiveCommand()
	if err != nil || !reflect.DeepEqual(got, []string{"first"}) {
		t.Errorf("ReceiveCommand() = %q, %v; want [first]", got, err)
	}
}

func TestSendCommandTooLong(t *testing.T) {
	srv, _, cli, _ := attachedPair(t)

	long := make([]byte, shm.CommandBufferSize)
	for i := range long {
		long[i] = 'x'
	}
	if err := cli.SendCommand([]string{string(long)}); !errors.Is(err, ErrTooLong) {
		t.Fatalf("SendCommand() error = %v, want ErrTooLong", err)
	}
	srv.mu.Lock()
	idx := srv.region.Shared().CommandIndex(shm.SideServer)
	srv.mu.Unlock()
	if idx != 0 {
		t.Errorf("command_index = %d after rejected command", idx)
	}
}

func TestPollDeliversCommands(t *testing.T) {
	srv, srec, cli, crec := attachedPair(t)

	if err := cli.SendCommand([]string{"record", "20240101120000"}); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	srv.Poll()
	if len(srec.commands) != 1 || !reflect.DeepEqual(srec.commands[0], []string{"record", "20240101120000"}) {
		t.Fatalf("server commands = %q", srec.commands)
	}

	// Commands run the other way too.
	if err := srv.SendCommand([]string{"popup", "ARD"}); err != nil {
		t.Fatalf("server SendCommand() error = %v", err)
	}
	cli.Poll()
	if len(crec.commands) != 1 || crec.commands[0][0] != "popup" {
		t.Errorf("client commands = %q", crec.commands)
	}
}

func TestTunerRequestLatchedUntilGrant(t *testing.T) {
	srv, srec, cli, _ := attachedPair(t)

	if err := srv.GrantTuner(false); err != nil {
		t.Fatalf("GrantTuner(false) error = %v", err)
	}
	req := Tuning{Input: 0, Frequency: 503250, Norm: shm.NormPAL}
	if err := cli.RequestTuner(req); err != nil {
		t.Fatalf("RequestTuner() error = %v", err)
	}
	srv.Poll()
	srv.Poll()
	if got := srec.ofKind(EventTunerRequest); len(got) != 0 {
		t.Fatalf("request delivered while not granted: %+v", got)
	}

	if err := srv.GrantTuner(true); err != nil {
		t.Fatalf("GrantTuner(true) error = %v", err)
	}
	srv.Poll()
	srv.Poll()
	got := srec.ofKind(EventTunerRequest)
	if len(got) != 1 {
		t.Fatalf("tuner request callbacks = %d, want 1", len(got))
	}
	if got[0].Tuning != req {
		t.Errorf("tuning = %+v, want %+v", got[0].Tuning, req)
	}
}

func TestTunerGrantChange(t *testing.T) {
	srv, _, cli, crec := attachedPair(t)

	srv.GrantTuner(true)
	cli.Poll()
	srv.GrantTuner(false)
	cli.Poll()

	got := crec.ofKind(EventTunerGrantChanged)
	if len(got) != 2 || !got[0].Granted || got[1].Granted {
		t.Errorf("grant changes = %+v, want [true false]", got)
	}
}

func TestPendingStateFlushedOnAttach(t *testing.T) {
	base := uniqueBase(t)
	srv, srec := newTestServer(t, base)

	crec := &recorder{}
	cli := NewClient(testOptions(base, "tvviewer", crec))
	defer cli.Close()
	// Set while detached.
	cli.SetCardIndex(2)
	cli.GrantTuner(true)
	cli.SetHardwareDriver(true)
	cli.SetCurrentTuning(Tuning{Input: 1, Frequency: 210250})

	if err := cli.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	srv.Poll()

	if got := srec.ofKind(EventCardChanged); len(got) != 1 || got[0].Card != 2 {
		t.Errorf("card changes = %+v, want [2]", got)
	}
	if got := srec.ofKind(EventTunerGrantChanged); len(got) != 1 || !got[0].Granted {
		t.Errorf("grant changes = %+v, want [true]", got)
	}
	srv.mu.Lock()
	s := srv.region.Shared()
	driver, cur := s.HasDriver(shm.SideClient), s.CurrentTuning(shm.SideClient)
	srv.mu.Unlock()
	if !driver || cur.Frequency != 210250 {
		t.Errorf("client record: driver %v tuning %+v", driver, cur)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv, _, cli, _ := attachedPair(t)

	for i := 0; i < 2; i++ {
		if err := cli.Close(); err != nil {
			t.Errorf("client Close() #%d error = %v", i+1, err)
		}
		if err := srv.Close(); err != nil {
			t.Errorf("server Close() #%d error = %v", i+1, err)
		}
	}
	if srv.State() != StateDetached || cli.State() != StateDetached {
		t.Errorf("states after Close: %v %v", srv.State(), cli.State())
	}

	never := NewClient(Options{Logger: discardLogger()})
	if err := never.Close(); err != nil {
		t.Errorf("Close() on never-connected client error = %v", err)
	}
}

func TestPumpFailureDetaches(t *testing.T) {
	srv, srec, _, _ := attachedPair(t)

	srv.mu.Lock()
	srv.pump.mu.Lock()
	srv.pump.err = errors.New("futex wait failed: EFAULT")
	srv.pump.mu.Unlock()
	srv.mu.Unlock()

	srv.Poll()
	if got := srec.ofKind(EventError); len(got) != 1 {
		t.Fatalf("error callbacks = %d, want 1", len(got))
	}
	if got := srec.ofKind(EventDetached); len(got) != 1 {
		t.Errorf("detach callbacks = %d, want 1", len(got))
	}
	if srv.State() != StateDetached {
		t.Errorf("state = %v, want detached", srv.State())
	}
}

func TestVbiBufferShared(t *testing.T) {
	srv, _, cli, _ := attachedPair(t)

	producer, err := cli.VbiBuffer()
	if err != nil {
		t.Fatalf("client VbiBuffer() error = %v", err)
	}
	consumer, err := srv.VbiBuffer()
	if err != nil {
		t.Fatalf("server VbiBuffer() error = %v", err)
	}
	if err := producer.Write([]byte("packet 8/30")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	buf := make([]byte, 32)
	n, err := consumer.Read(buf)
	if err != nil || string(buf[:n]) != "packet 8/30" {
		t.Errorf("Read() = %q, %v", buf[:n], err)
	}
}

func TestRunDispatchesWakeups(t *testing.T) {
	srv, srec, cli, _ := attachedPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	if err := cli.NotifyChannel(ChannelInfo{Name: "3sat"}); err != nil {
		t.Fatalf("NotifyChannel() error = %v", err)
	}
	waitFor(t, "channel change", func() bool {
		return len(srec.ofKind(EventChannelChanged)) == 1
	})

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReconnectsClient(t *testing.T) {
	base := uniqueBase(t)
	crec := &recorder{}
	cli := NewClient(testOptions(base, "tvviewer", crec))
	defer cli.Close()
	if err := cli.Connect(); !errors.Is(err, ErrNoServer) {
		t.Fatalf("Connect() error = %v, want ErrNoServer", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		cli.Run(ctx)
		close(done)
	}()

	newTestServer(t, base)
	waitFor(t, "client attach", func() bool {
		return len(crec.ofKind(EventAttached)) == 1
	})
	cancel()
	<-done
}

func TestClientReattachBeforeServerPolls(t *testing.T) {
	srv, srec, cli, _ := attachedPair(t)

	if err := cli.NotifyChannel(ChannelInfo{Name: "ARD", Identifier: 0x1d1}); err != nil {
		t.Fatalf("NotifyChannel() error = %v", err)
	}
	if err := cli.SendCommand([]string{"a"}); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	srv.Poll()
	srec.take()

	// The server does not poll between the detach and the new attach.
	if err := cli.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := cli.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := cli.NotifyChannel(ChannelInfo{Name: "BBC1", Identifier: 7}); err != nil {
		t.Fatalf("NotifyChannel() after reattach error = %v", err)
	}
	if err := cli.SendCommand([]string{"b"}); err != nil {
		t.Fatalf("SendCommand() after reattach error = %v", err)
	}
	srv.Poll()

	got := srec.ofKind(EventChannelChanged)
	if len(got) != 1 || got[0].Channel.Name != "BBC1" {
		t.Fatalf("server channel events after reattach = %+v, want one BBC1", got)
	}
	if len(srec.commands) != 2 || !reflect.DeepEqual(srec.commands[1], []string{"b"}) {
		t.Fatalf("server commands = %q, want [a] then [b]", srec.commands)
	}
	if err := cli.SendCommand([]string{"c"}); err != nil {
		t.Errorf("SendCommand() after acknowledged reattach command error = %v", err)
	}

	srv.mu.Lock()
	idx := srv.region.Shared().ChannelIndex()
	srv.mu.Unlock()
	if idx != 2 {
		t.Errorf("channel_index = %d after two changes, want 2", idx)
	}
}

func TestReconnectLogsFailure(t *testing.T) {
	base := uniqueBase(t)
	sopts := testOptions(base, "nxtvepg", &recorder{})
	sopts.Version = shm.MakeVersion(2, 0, 0)
	srv := NewServer(sopts)
	if err := srv.Connect(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer srv.Close()

	var buf bytes.Buffer
	copts := testOptions(base, "tvviewer", &recorder{})
	copts.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cli := NewClient(copts)
	defer cli.Close()

	cli.reconnect()
	if cli.State() != StateError {
		t.Fatalf("client state = %v, want error", cli.State())
	}
	if !bytes.Contains(buf.Bytes(), []byte("tvipc: reconnect failed")) {
		t.Errorf("reconnect failure not logged: %q", buf.String())
	}
}
