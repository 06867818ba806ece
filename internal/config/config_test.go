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
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomzox/nxtvepg-sub005/internal/transport/shm"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "probe.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Validate(Default()) error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
role: server
base: nxtvepg_test
app_name: nxtvepg
features: [epg-info, tuner-grant]
log_level: debug
poll_interval: 250ms
probe:
  grant_tuner: true
  reply_title: Tagesschau
  channel:
    name: ARD
    frequency: 471250
    norm: SECAM
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Role != "server" || cfg.Base != "nxtvepg_test" || cfg.AppName != "nxtvepg" {
		t.Errorf("Load() = %+v", cfg)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.PollInterval)
	}
	// Not in the file, so the default is kept.
	if cfg.StopTimeout != 500*time.Millisecond {
		t.Errorf("StopTimeout = %v, want default 500ms", cfg.StopTimeout)
	}
	fs, err := cfg.FeatureSet()
	if err != nil || fs != shm.FeatureEpgInfo|shm.FeatureTunerGrant {
		t.Errorf("FeatureSet() = %v, %v", fs, err)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}
	if tn := cfg.Probe.Channel.Tuning(); tn.Frequency != 471250 || tn.Norm != shm.NormSECAM {
		t.Errorf("Tuning() = %+v", tn)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad role", "role: viewer\n", "role"},
		{"bad base", "base: ../etc\n", "base"},
		{"unknown feature", "features: [teletext]\n", "features"},
		{"bad level", "log_level: loud\n", "log_level"},
		{"short poll", "poll_interval: 1ms\n", "poll_interval"},
		{"bad norm", "probe:\n  channel:\n    norm: HDTV\n", "norm"},
		{"long command", "probe:\n  command: [" + strings.Repeat("x", shm.CommandBufferSize) + "]\n", "command"},
		{"bad yaml", "role: [\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() of a missing file succeeded")
	}
}
