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
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Version is a protocol version packed as major<<16 | minor<<8 | patch.
type Version uint32

// MakeVersion packs a protocol version.
func MakeVersion(major, minor, patch uint8) Version {
	return Version(uint32(major)<<16 | uint32(minor)<<8 | uint32(patch))
}

// ProtocolVersion is the version compiled into this implementation.
const ProtocolVersion Version = 2<<16 | 1<<8 | 0

func (v Version) Major() uint8 { return uint8(v >> 16) }
func (v Version) Minor() uint8 { return uint8(v >> 8) }
func (v Version) Patch() uint8 { return uint8(v) }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch())
}

// Side identifies one of the two participants.
type Side int

const (
	SideServer Side = iota // EPG application, creates the region
	SideClient             // TV application, opens the region
)

// Peer returns the other side.
func (s Side) Peer() Side {
	if s == SideServer {
		return SideClient
	}
	return SideServer
}

func (s Side) String() string {
	switch s {
	case SideServer:
		return "server"
	case SideClient:
		return "client"
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

// Norm is the analog video norm of a tuner request.
type Norm uint32

const (
	NormPAL Norm = iota
	NormSECAM
	NormNTSC
)

func (n Norm) String() string {
	switch n {
	case NormPAL:
		return "PAL"
	case NormSECAM:
		return "SECAM"
	case NormNTSC:
		return "NTSC"
	}
	return fmt.Sprintf("Norm(%d)", uint32(n))
}

// Feature is the capability bitfield each side publishes at attach time.
type Feature uint32

const (
	FeatureVbiForward    Feature = 1 << iota // client forwards VBI data into the ring
	FeatureChannelNotify                     // client reports channel changes
	FeatureEpgInfo                           // client displays EPG-info replies
	FeatureCommands                          // side executes command vectors
	FeatureTunerGrant                        // side takes part in tuner arbitration
)

var featureNames = []struct {
	f    Feature
	name string
}{
	{FeatureVbiForward, "vbi-forward"},
	{FeatureChannelNotify, "channel-notify"},
	{FeatureEpgInfo, "epg-info"},
	{FeatureCommands, "commands"},
	{FeatureTunerGrant, "tuner-grant"},
}

// Has reports whether all bits of f are set.
func (fs Feature) Has(f Feature) bool {
	return fs&f == f
}

func (fs Feature) String() string {
	if fs == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range featureNames {
		if fs.Has(fn.f) {
			parts = append(parts, fn.name)
			fs &^= fn.f
		}
	}
	if fs != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(fs)))
	}
	return strings.Join(parts, "|")
}

// ParseFeature returns the feature bit for a name as printed by String.
func ParseFeature(name string) (Feature, error) {
	for _, fn := range featureNames {
		if fn.name == name {
			return fn.f, nil
		}
	}
	return 0, fmt.Errorf("unknown feature %q", name)
}

// Tuning describes a tuner setting: video input, frequency in kHz, norm.
type Tuning struct {
	Input     uint32
	Frequency uint32
	Norm      Norm
}

// Identity is what each side publishes about itself at attach time.
type Identity struct {
	Name      string
	Features  Feature
	CardIndex uint32
}

// Channel is the content of the channel-change sub-record.
type Channel struct {
	Name       string
	Identifier uint32 // CNI, 0 if unknown
	IsTuner    bool
	Tuning     Tuning
}

// ProgrammeInfo is the content of the EPG-info reply sub-record.
type ProgrammeInfo struct {
	ChannelIndex uint32 // channel_index the reply addresses
	Title        string
	Start        time.Time
	Stop         time.Time
	Themes       []uint8
}

// Buffer bounds of the wire layout.
const (
	AppNameSize       = 64
	ChannelNameSize   = 64
	TitleSize         = 128
	MaxThemes         = 7
	CommandBufferSize = 1000
	VbiRingCapacity   = 32 * 1024
)

// storeString copies s into dst, truncated on a UTF-8 boundary, zero-fills
// the remainder and records the length.
func storeString(dst []byte, n *uint32, s string) {
	if len(s) > len(dst) {
		s = truncateUTF8(s, len(dst))
	}
	copy(dst, s)
	clear(dst[len(s):])
	*n = uint32(len(s))
}

// loadString reads a length-prefixed string. The length comes from the
// peer and is clamped to the buffer.
func loadString(src []byte, n uint32) string {
	if n > uint32(len(src)) {
		n = uint32(len(src))
	}
	return string(src[:n])
}

func truncateUTF8(s string, max int) string {
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
