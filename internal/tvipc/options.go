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
	"time"
)

const (
	// DefaultBase is the region base name both applications use unless
	// configured otherwise.
	DefaultBase = "tvapp"

	defaultPollInterval   = time.Second
	defaultStopTimeout    = 500 * time.Millisecond
	defaultConnectTimeout = 200 * time.Millisecond
)

// Options configure a Server or Client.
type Options struct {
	// Base names the region; both sides must agree. Default DefaultBase.
	Base string
	// AppName is published to the peer, truncated to 63 bytes.
	AppName string
	// Features is the capability set published to the peer.
	Features Feature
	// CardIndex is the initial hardware card index.
	CardIndex uint32
	// Handler receives callbacks; nil ignores them.
	Handler Handler
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// PollInterval is the period of the timer poll in Run, which detects
	// crashed peers and lets a client reconnect.
	PollInterval time.Duration
	// StopTimeout bounds the wait for the event pump on Close.
	StopTimeout time.Duration
	// ConnectTimeout bounds the wait of a client for a server that has
	// created the region but not yet announced itself.
	ConnectTimeout time.Duration
	// Version overrides the compiled-in protocol version; used in tests.
	Version Version
}

func (o Options) withDefaults() Options {
	if o.Base == "" {
		o.Base = DefaultBase
	}
	if o.Handler == nil {
		o.Handler = NopHandler{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = defaultStopTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.Version == 0 {
		o.Version = ProtocolVersion
	}
	return o
}
