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

package config

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/tomzox/nxtvepg-sub005/internal/transport/shm"
)

// The base name becomes part of a file name under /dev/shm.
var basePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	if cfg.Role != "server" && cfg.Role != "client" {
		return fmt.Errorf("role must be server or client, got %q", cfg.Role)
	}

	if cfg.Base == "" {
		return fmt.Errorf("base is required")
	}
	if !basePattern.MatchString(cfg.Base) {
		return fmt.Errorf("base must match pattern [A-Za-z0-9_-]+")
	}

	if len(cfg.AppName) >= shm.AppNameSize {
		return fmt.Errorf("app_name must be shorter than %d bytes", shm.AppNameSize)
	}

	if _, err := cfg.FeatureSet(); err != nil {
		return fmt.Errorf("features: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	if cfg.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("poll_interval must be at least 10ms")
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 500 * time.Millisecond // default
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 200 * time.Millisecond // default
	}

	switch cfg.Probe.Channel.Norm {
	case "", "PAL", "pal", "SECAM", "secam", "NTSC", "ntsc":
	default:
		return fmt.Errorf("probe.channel.norm must be PAL, SECAM or NTSC")
	}

	size := 0
	for _, arg := range cfg.Probe.Command {
		size += len(arg) + 1
	}
	if size > shm.CommandBufferSize {
		return fmt.Errorf("probe.command exceeds %d bytes", shm.CommandBufferSize)
	}

	return nil
}
