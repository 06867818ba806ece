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

// Package config loads the YAML configuration of the tvipc probe.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tomzox/nxtvepg-sub005/internal/transport/shm"
)

// Config is the complete probe configuration
type Config struct {
	Role           string        `yaml:"role"`            // server or client
	Base           string        `yaml:"base"`            // region base name, shared by both sides
	AppName        string        `yaml:"app_name"`        // published to the peer
	Features       []string      `yaml:"features"`        // vbi-forward, channel-notify, epg-info, commands, tuner-grant
	CardIndex      uint32        `yaml:"card_index"`      // initial hardware card index
	LogLevel       string        `yaml:"log_level"`       // debug, info, warn, error
	PollInterval   time.Duration `yaml:"poll_interval"`   // timer poll, e.g. "1s"
	StopTimeout    time.Duration `yaml:"stop_timeout"`    // event pump join bound
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // client wait for a starting server
	Probe          ProbeConfig   `yaml:"probe"`
}

// ProbeConfig contains what the probe does once attached
type ProbeConfig struct {
	GrantTuner bool          `yaml:"grant_tuner"`
	Channel    ChannelConfig `yaml:"channel"`     // client: announced after attach
	Command    []string      `yaml:"command"`     // sent once after attach
	ReplyTitle string        `yaml:"reply_title"` // server: answers every channel change
	VbiDump    bool          `yaml:"vbi_dump"`    // server: log VBI ring traffic
}

// ChannelConfig describes a channel change the client announces
type ChannelConfig struct {
	Name       string `yaml:"name"`
	Identifier uint32 `yaml:"identifier"`
	IsTuner    bool   `yaml:"is_tuner"`
	Input      uint32 `yaml:"input"`
	Frequency  uint32 `yaml:"frequency"` // kHz
	Norm       string `yaml:"norm"`      // PAL, SECAM, NTSC
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Role:           "client",
		Base:           "tvapp",
		AppName:        "tvipc-probe",
		Features:       []string{"channel-notify", "epg-info", "commands", "tuner-grant"},
		LogLevel:       "info",
		PollInterval:   time.Second,
		StopTimeout:    500 * time.Millisecond,
		ConnectTimeout: 200 * time.Millisecond,
	}
}

// Load reads and parses a YAML configuration file. Keys missing from the
// file keep their Default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// FeatureSet converts the feature names to the published bitfield.
func (c *Config) FeatureSet() (shm.Feature, error) {
	var fs shm.Feature
	for _, name := range c.Features {
		f, err := shm.ParseFeature(name)
		if err != nil {
			return 0, err
		}
		fs |= f
	}
	return fs, nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Tuning returns the configured channel's tuner setting.
func (c ChannelConfig) Tuning() shm.Tuning {
	return shm.Tuning{Input: c.Input, Frequency: c.Frequency, Norm: parseNorm(c.Norm)}
}

func parseNorm(s string) shm.Norm {
	switch s {
	case "SECAM", "secam":
		return shm.NormSECAM
	case "NTSC", "ntsc":
		return shm.NormNTSC
	}
	return shm.NormPAL
}
