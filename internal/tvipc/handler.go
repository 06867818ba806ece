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

// Handler receives the callbacks of a participant. All methods are called
// on the goroutine that calls Poll or Run, never with a lock held, so they
// may call back into the participant.
type Handler interface {
	// OnAttach reports the peer attaching (true) or departing (false).
	OnAttach(attached bool)
	// OnAttachFailed reports a Connect that was refused. err is ready for
	// display, e.g. a *VersionMismatchError naming both versions.
	OnAttachFailed(err error)
	// OnError reports a failure after attaching, such as a broken event
	// pump or a malformed command from the peer.
	OnError(err error)
	// OnChannelChanged is called on the server for each observed channel
	// change of the client.
	OnChannelChanged(ch ChannelInfo)
	// OnEpgInfo is called on the client for a reply matching its current
	// channel.
	OnEpgInfo(info ProgrammeInfo)
	// OnTunerGrantChanged reports the peer granting or revoking the tuner.
	OnTunerGrantChanged(granted bool)
	// OnTunerRequested reports a tuner request of the peer. It is only
	// delivered while this side grants the tuner.
	OnTunerRequested(t Tuning)
	// OnCardChanged reports a new hardware card index of the peer.
	OnCardChanged(card uint32)
	// OnCommand delivers a received and acknowledged command vector.
	OnCommand(args []string)
}

// NopHandler ignores all callbacks. Embed it to implement a subset.
type NopHandler struct{}

func (NopHandler) OnAttach(bool) {}
func (NopHandler) OnAttachFailed(error) {}
func (NopHandler) OnError(error) {}
func (NopHandler) OnChannelChanged(ChannelInfo) {}
func (NopHandler) OnEpgInfo(ProgrammeInfo) {}
func (NopHandler) OnTunerGrantChanged(bool) {}
func (NopHandler) OnTunerRequested(Tuning) {}
func (NopHandler) OnCardChanged(uint32) {}
func (NopHandler) OnCommand([]string) {}
