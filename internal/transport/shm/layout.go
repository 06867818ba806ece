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

package shm

import (
	"errors"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/uuid"
)

// Shared is the layout of the mapped region. Offsets are part of the
// protocol and are pinned by TestSharedFieldOffsets.
//
// Fields written by one side are only read by the other. Except for the
// event words, the mutex word and the VBI ring, every field is accessed
// with the structure mutex held (see Region.Locked).
type Shared struct {
	structSize      uint32           // 0x000: total size of Shared
	protocolVersion uint32           // 0x004: packed Version
	lockWord        uint32           // 0x008: structure mutex, owner pid or 0
	serverEvent     uint32           // 0x00C: "wake the server" sequence
	clientEvent     uint32           // 0x010: "wake the client" sequence
	reserved0       uint32           // 0x014
	session         [16]byte         // 0x018: server session UUID
	sides           [2]sideRecord    // 0x028: indexed by Side
	channel         channelRecord    // 0x128: written by the client
	progInfo        progInfoRecord   // 0x188: written by the server
	commands        [2]commandRecord // 0x230: indexed by receiving Side
	reserved1       [32]byte         // 0xA20: pads the VBI area to 64 bytes
	vbi             vbiArea          // 0xA40
}

// sideRecord is written only by its own side.
type sideRecord struct {
	alive     uint32            // 0x00
	pid       uint32            // 0x04
	features  uint32            // 0x08
	cardIdx   uint32            // 0x0C
	nameLen   uint32            // 0x10
	granted   uint32            // 0x14: this side lets the peer use the tuner
	hasDriver uint32            // 0x18
	reqValid  uint32            // 0x1C
	reqInput  uint32            // 0x20
	reqFreq   uint32            // 0x24
	reqNorm   uint32            // 0x28
	curInput  uint32            // 0x2C
	curFreq   uint32            // 0x30
	curNorm   uint32            // 0x34
	reserved  [2]uint32         // 0x38
	name      [AppNameSize]byte // 0x40
}

type channelRecord struct {
	index      uint32                // 0x00: channel_index, bumped per change
	identifier uint32                // 0x04
	isTuner    uint32                // 0x08
	input      uint32                // 0x0C
	freq       uint32                // 0x10
	norm       uint32                // 0x14
	nameLen    uint32                // 0x18
	pad        uint32                // 0x1C
	name       [ChannelNameSize]byte // 0x20
}

type progInfoRecord struct {
	index      uint32               // 0x00: programme_info_index
	chanIndex  uint32               // 0x04: channel_index this reply answers
	start      int64                // 0x08: unix seconds
	stop       int64                // 0x10: unix seconds
	themeCount uint32               // 0x18
	titleLen   uint32               // 0x1C
	themes     [MaxThemes + 1]uint8 // 0x20
	title      [TitleSize]byte      // 0x28
}

type commandRecord struct {
	index    uint32                  // 0x00: bumped by the sender
	ackIndex uint32                  // 0x04: bumped by the receiver
	argc     uint32                  // 0x08
	length   uint32                  // 0x0C
	buf      [CommandBufferSize]byte // 0x10
}

type vbiArea struct {
	hdr  RingHeader
	data [VbiRingCapacity]byte
}

// StructSize is the compiled-in size of the shared structure.
const StructSize = uint32(unsafe.Sizeof(Shared{}))

// headerSize covers struct_size and protocol_version, the only fields
// trusted before validation.
const headerSize = 8

var errCommandTooLong = errors.New("shm: command payload exceeds buffer")

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Header

// StructSize returns the struct_size field.
func (s *Shared) StructSize() uint32 {
	return atomic.LoadUint32(&s.structSize)
}

// ProtocolVersion returns the protocol_version field.
func (s *Shared) ProtocolVersion() Version {
	return Version(atomic.LoadUint32(&s.protocolVersion))
}

// Session returns the id the server generated when creating the region.
func (s *Shared) Session() uuid.UUID {
	return uuid.UUID(s.session)
}

func (s *Shared) initHeader(size uint32, version Version, session uuid.UUID) {
	s.session = session
	atomic.StoreUint32(&s.protocolVersion, uint32(version))
	atomic.StoreUint32(&s.structSize, size)
}

// Liveness and identity

// Alive returns the side's liveness flag.
func (s *Shared) Alive(side Side) bool {
	return atomic.LoadUint32(&s.sides[side].alive) != 0
}

// SetAlive sets the side's liveness flag.
func (s *Shared) SetAlive(side Side, alive bool) {
	atomic.StoreUint32(&s.sides[side].alive, b2u(alive))
}

// PID returns the process id the side registered.
func (s *Shared) PID(side Side) uint32 {
	return atomic.LoadUint32(&s.sides[side].pid)
}

// SetPID records the side's process id.
func (s *Shared) SetPID(side Side, pid uint32) {
	atomic.StoreUint32(&s.sides[side].pid, pid)
}

// Identity returns the name, features and card index of a side.
func (s *Shared) Identity(side Side) Identity {
	r := &s.sides[side]
	return Identity{
		Name:      loadString(r.name[:], r.nameLen),
		Features:  Feature(atomic.LoadUint32(&r.features)),
		CardIndex: atomic.LoadUint32(&r.cardIdx),
	}
}

// SetIdentity writes the side's identity.
func (s *Shared) SetIdentity(side Side, id Identity) {
	r := &s.sides[side]
	storeString(r.name[:], &r.nameLen, id.Name)
	atomic.StoreUint32(&r.features, uint32(id.Features))
	atomic.StoreUint32(&r.cardIdx, id.CardIndex)
}

// CardIndex returns the hardware card index a side uses or requests.
func (s *Shared) CardIndex(side Side) uint32 {
	return atomic.LoadUint32(&s.sides[side].cardIdx)
}

// SetCardIndex updates the side's card index.
func (s *Shared) SetCardIndex(side Side, idx uint32) {
	atomic.StoreUint32(&s.sides[side].cardIdx, idx)
}

// Tuner arbitration

// Granted reports whether side lets its peer control the tuner.
func (s *Shared) Granted(side Side) bool {
	return atomic.LoadUint32(&s.sides[side].granted) != 0
}

// SetGranted updates the side's tuner grant.
func (s *Shared) SetGranted(side Side, granted bool) {
	atomic.StoreUint32(&s.sides[side].granted, b2u(granted))
}

// HasDriver reports whether side has the hardware driver loaded.
func (s *Shared) HasDriver(side Side) bool {
	return atomic.LoadUint32(&s.sides[side].hasDriver) != 0
}

// SetHasDriver updates the side's hardware driver flag.
func (s *Shared) SetHasDriver(side Side, loaded bool) {
	atomic.StoreUint32(&s.sides[side].hasDriver, b2u(loaded))
}

// TunerRequest returns the tuning side asks its peer for. ok is false when
// side never made a request.
func (s *Shared) TunerRequest(side Side) (t Tuning, ok bool) {
	r := &s.sides[side]
	if atomic.LoadUint32(&r.reqValid) == 0 {
		return Tuning{}, false
	}
	return Tuning{
		Input:     atomic.LoadUint32(&r.reqInput),
		Frequency: atomic.LoadUint32(&r.reqFreq),
		Norm:      Norm(atomic.LoadUint32(&r.reqNorm)),
	}, true
}

// SetTunerRequest latches a tuner request of side.
func (s *Shared) SetTunerRequest(side Side, t Tuning) {
	r := &s.sides[side]
	atomic.StoreUint32(&r.reqInput, t.Input)
	atomic.StoreUint32(&r.reqFreq, t.Frequency)
	atomic.StoreUint32(&r.reqNorm, uint32(t.Norm))
	atomic.StoreUint32(&r.reqValid, 1)
}

// ClearTunerRequest withdraws the side's tuner request.
func (s *Shared) ClearTunerRequest(side Side) {
	r := &s.sides[side]
	atomic.StoreUint32(&r.reqValid, 0)
	r.reqInput, r.reqFreq, r.reqNorm = 0, 0, 0
}

// CurrentTuning returns what side's tuner is currently set to.
func (s *Shared) CurrentTuning(side Side) Tuning {
	r := &s.sides[side]
	return Tuning{
		Input:     atomic.LoadUint32(&r.curInput),
		Frequency: atomic.LoadUint32(&r.curFreq),
		Norm:      Norm(atomic.LoadUint32(&r.curNorm)),
	}
}

// SetCurrentTuning records the side's current tuner setting.
func (s *Shared) SetCurrentTuning(side Side, t Tuning) {
	r := &s.sides[side]
	atomic.StoreUint32(&r.curInput, t.Input)
	atomic.StoreUint32(&r.curFreq, t.Frequency)
	atomic.StoreUint32(&r.curNorm, uint32(t.Norm))
}

// Channel-change sub-record

// ChannelIndex returns channel_index.
func (s *Shared) ChannelIndex() uint32 {
	return atomic.LoadUint32(&s.channel.index)
}

// Channel returns the channel-change record and its index.
func (s *Shared) Channel() (Channel, uint32) {
	c := &s.channel
	return Channel{
		Name:       loadString(c.name[:], c.nameLen),
		Identifier: atomic.LoadUint32(&c.identifier),
		IsTuner:    atomic.LoadUint32(&c.isTuner) != 0,
		Tuning: Tuning{
			Input:     atomic.LoadUint32(&c.input),
			Frequency: atomic.LoadUint32(&c.freq),
			Norm:      Norm(atomic.LoadUint32(&c.norm)),
		},
	}, atomic.LoadUint32(&c.index)
}

// WriteChannel overwrites the channel-change record and bumps
// channel_index. It returns the new index.
func (s *Shared) WriteChannel(ch Channel) uint32 {
	c := &s.channel
	storeString(c.name[:], &c.nameLen, ch.Name)
	atomic.StoreUint32(&c.identifier, ch.Identifier)
	atomic.StoreUint32(&c.isTuner, b2u(ch.IsTuner))
	atomic.StoreUint32(&c.input, ch.Tuning.Input)
	atomic.StoreUint32(&c.freq, ch.Tuning.Frequency)
	atomic.StoreUint32(&c.norm, uint32(ch.Tuning.Norm))
	return atomic.AddUint32(&c.index, 1)
}

// EPG-info sub-record

// ProgInfoIndex returns programme_info_index.
func (s *Shared) ProgInfoIndex() uint32 {
	return atomic.LoadUint32(&s.progInfo.index)
}

// ProgrammeInfo returns the EPG-info reply record.
func (s *Shared) ProgrammeInfo() ProgrammeInfo {
	p := &s.progInfo
	n := atomic.LoadUint32(&p.themeCount)
	if n > MaxThemes {
		n = MaxThemes
	}
	themes := make([]uint8, n)
	copy(themes, p.themes[:n])
	return ProgrammeInfo{
		ChannelIndex: atomic.LoadUint32(&p.chanIndex),
		Title:        loadString(p.title[:], p.titleLen),
		Start:        time.Unix(atomic.LoadInt64(&p.start), 0),
		Stop:         time.Unix(atomic.LoadInt64(&p.stop), 0),
		Themes:       themes,
	}
}

// WriteProgrammeInfo overwrites the reply record, addressed to chanIndex,
// and bumps programme_info_index. Themes beyond MaxThemes are dropped.
func (s *Shared) WriteProgrammeInfo(chanIndex uint32, info ProgrammeInfo) uint32 {
	p := &s.progInfo
	themes := info.Themes
	if len(themes) > MaxThemes {
		themes = themes[:MaxThemes]
	}
	clear(p.themes[:])
	copy(p.themes[:], themes)
	atomic.StoreUint32(&p.themeCount, uint32(len(themes)))
	storeString(p.title[:], &p.titleLen, info.Title)
	atomic.StoreInt64(&p.start, info.Start.Unix())
	atomic.StoreInt64(&p.stop, info.Stop.Unix())
	atomic.StoreUint32(&p.chanIndex, chanIndex)
	return atomic.AddUint32(&p.index, 1)
}

// Command-vector sub-records, indexed by the receiving side

// CommandIndex returns command_index of the record addressed to side.
func (s *Shared) CommandIndex(to Side) uint32 {
	return atomic.LoadUint32(&s.commands[to].index)
}

// CommandAck returns command_ack_index of the record addressed to side.
func (s *Shared) CommandAck(to Side) uint32 {
	return atomic.LoadUint32(&s.commands[to].ackIndex)
}

// CommandPending reports an unacknowledged command addressed to side.
func (s *Shared) CommandPending(to Side) bool {
	return s.CommandIndex(to) != s.CommandAck(to)
}

// WriteCommand stores an encoded argument vector for side and bumps
// command_index. The caller checks CommandPending first.
func (s *Shared) WriteCommand(to Side, payload []byte, argc uint32) (uint32, error) {
	if len(payload) > CommandBufferSize {
		return 0, errCommandTooLong
	}
	c := &s.commands[to]
	copy(c.buf[:], payload)
	clear(c.buf[len(payload):])
	atomic.StoreUint32(&c.length, uint32(len(payload)))
	atomic.StoreUint32(&c.argc, argc)
	return atomic.AddUint32(&c.index, 1), nil
}

// ReadCommand copies out the command addressed to side. The length is
// clamped to the buffer; argc is returned as written by the peer.
func (s *Shared) ReadCommand(to Side) (payload []byte, argc uint32) {
	c := &s.commands[to]
	n := atomic.LoadUint32(&c.length)
	if n > CommandBufferSize {
		n = CommandBufferSize
	}
	payload = make([]byte, n)
	copy(payload, c.buf[:n])
	return payload, atomic.LoadUint32(&c.argc)
}

// AckCommand marks the command addressed to side as processed.
func (s *Shared) AckCommand(to Side) {
	c := &s.commands[to]
	atomic.StoreUint32(&c.ackIndex, atomic.LoadUint32(&c.index))
}

// event returns the inbound event word of side.
func (s *Shared) event(side Side) *uint32 {
	if side == SideServer {
		return &s.serverEvent
	}
	return &s.clientEvent
}

// FieldOffset describes one top-level field of the layout.
type FieldOffset struct {
	Name   string
	Offset uintptr
	Size   uintptr
}

// Layout lists the top-level fields of Shared in wire order.
func Layout() []FieldOffset {
	s := &Shared{}
	return []FieldOffset{
		{"struct_size", unsafe.Offsetof(s.structSize), unsafe.Sizeof(s.structSize)},
		{"protocol_version", unsafe.Offsetof(s.protocolVersion), unsafe.Sizeof(s.protocolVersion)},
		{"mutex", unsafe.Offsetof(s.lockWord), unsafe.Sizeof(s.lockWord)},
		{"server_event", unsafe.Offsetof(s.serverEvent), unsafe.Sizeof(s.serverEvent)},
		{"client_event", unsafe.Offsetof(s.clientEvent), unsafe.Sizeof(s.clientEvent)},
		{"session", unsafe.Offsetof(s.session), unsafe.Sizeof(s.session)},
		{"side_server", unsafe.Offsetof(s.sides), unsafe.Sizeof(s.sides[0])},
		{"side_client", unsafe.Offsetof(s.sides) + unsafe.Sizeof(s.sides[0]), unsafe.Sizeof(s.sides[1])},
		{"channel", unsafe.Offsetof(s.channel), unsafe.Sizeof(s.channel)},
		{"programme_info", unsafe.Offsetof(s.progInfo), unsafe.Sizeof(s.progInfo)},
		{"command_to_server", unsafe.Offsetof(s.commands), unsafe.Sizeof(s.commands[0])},
		{"command_to_client", unsafe.Offsetof(s.commands) + unsafe.Sizeof(s.commands[0]), unsafe.Sizeof(s.commands[1])},
		{"vbi_ring", unsafe.Offsetof(s.vbi), unsafe.Sizeof(s.vbi)},
	}
}
