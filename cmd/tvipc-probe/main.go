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

// Command tvipc-probe runs one side of the EPG/TV-application interface
// and logs everything it observes. Run it as server in place of the EPG
// application or as client in place of a TV viewer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomzox/nxtvepg-sub005/internal/config"
	"github.com/tomzox/nxtvepg-sub005/internal/tvipc"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		role       = flag.String("role", "", "override role: server or client")
		base       = flag.String("base", "", "override region base name")
		name       = flag.String("name", "", "override published application name")
		verbose    = flag.Bool("v", false, "enable debug logging")
		duration   = flag.Duration("duration", 0, "exit after this long; 0 runs until interrupted")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "tvipc-probe: %v\n", err)
			os.Exit(2)
		}
	}
	if *role != "" {
		cfg.Role = *role
	}
	if *base != "" {
		cfg.Base = *base
	}
	if *name != "" {
		cfg.AppName = *name
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "tvipc-probe: invalid configuration: %v\n", err)
		os.Exit(2)
	}

	level := cfg.Level()
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger, *duration); err != nil {
		logger.Error("tvipc-probe: exiting", "error", err)
		os.Exit(1)
	}
}

// participant is what run needs of a Server or Client.
type participant interface {
	Run(ctx context.Context) error
	Close() error
	GrantTuner(granted bool) error
}

func run(cfg *config.Config, logger *slog.Logger, duration time.Duration) error {
	features, err := cfg.FeatureSet()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	p := &probe{cfg: cfg, log: logger}
	opts := tvipc.Options{
		Base:           cfg.Base,
		AppName:        cfg.AppName,
		Features:       features,
		CardIndex:      cfg.CardIndex,
		Handler:        p,
		Logger:         logger,
		PollInterval:   cfg.PollInterval,
		StopTimeout:    cfg.StopTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
	}

	var part participant
	switch cfg.Role {
	case "server":
		p.server = tvipc.NewServer(opts)
		part = p.server
	default:
		p.client = tvipc.NewClient(opts)
		part = p.client
	}
	// Set before attaching; flushed into the region on attach.
	if err := part.GrantTuner(cfg.Probe.GrantTuner); err != nil {
		return err
	}

	if p.server != nil {
		if err := p.server.Connect(); err != nil {
			return err
		}
	} else if err := p.client.Connect(); errors.Is(err, tvipc.ErrNoServer) {
		logger.Info("tvipc-probe: waiting for EPG server", "base", cfg.Base)
	} else if err != nil {
		return err
	}
	// Close only after every goroutine using the region has returned.
	defer part.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := part.Run(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})
	if p.server != nil && cfg.Probe.VbiDump {
		g.Go(func() error {
			return p.dumpVbi(ctx)
		})
	}
	return g.Wait()
}

// probe logs every callback and answers the way the configuration says.
type probe struct {
	cfg    *config.Config
	log    *slog.Logger
	server *tvipc.Server
	client *tvipc.Client
}

func (p *probe) OnAttach(attached bool) {
	p.log.Info("tvipc-probe: attach", "attached", attached)
	if !attached || p.client == nil {
		return
	}

	if ch := p.cfg.Probe.Channel; ch.Name != "" {
		info := tvipc.ChannelInfo{
			Name:       ch.Name,
			Identifier: ch.Identifier,
			IsTuner:    ch.IsTuner,
			Tuning:     ch.Tuning(),
		}
		if err := p.client.NotifyChannel(info); err != nil {
			p.log.Warn("tvipc-probe: failed to announce channel", "error", err)
		}
	}
	if len(p.cfg.Probe.Command) > 0 {
		if err := p.client.SendCommand(p.cfg.Probe.Command); err != nil {
			p.log.Warn("tvipc-probe: failed to send command", "error", err)
		}
	}
}

func (p *probe) OnAttachFailed(err error) {
	p.log.Error("tvipc-probe: attach failed", "error", err)
}

func (p *probe) OnError(err error) {
	p.log.Error("tvipc-probe: error", "error", err)
}

func (p *probe) OnChannelChanged(ch tvipc.ChannelInfo) {
	p.log.Info("tvipc-probe: channel changed",
		"name", ch.Name, "cni", fmt.Sprintf("0x%04X", ch.Identifier),
		"tuner", ch.IsTuner, "freq", ch.Tuning.Frequency, "norm", ch.Tuning.Norm)
	if p.server == nil || p.cfg.Probe.ReplyTitle == "" {
		return
	}

	now := time.Now()
	err := p.server.ReplyEpgInfo(tvipc.ProgrammeInfo{
		Title: p.cfg.Probe.ReplyTitle,
		Start: now.Truncate(time.Hour),
		Stop:  now.Truncate(time.Hour).Add(time.Hour),
	})
	switch {
	case errors.Is(err, tvipc.ErrStale):
		// The next channel change gets its own reply.
	case err != nil:
		p.log.Warn("tvipc-probe: failed to reply EPG info", "error", err)
	}
}

func (p *probe) OnEpgInfo(info tvipc.ProgrammeInfo) {
	p.log.Info("tvipc-probe: EPG info",
		"title", info.Title, "start", info.Start.Format(time.Kitchen),
		"stop", info.Stop.Format(time.Kitchen), "themes", info.Themes)
}

func (p *probe) OnTunerGrantChanged(granted bool) {
	p.log.Info("tvipc-probe: tuner grant changed", "granted", granted)
}

func (p *probe) OnTunerRequested(t tvipc.Tuning) {
	p.log.Info("tvipc-probe: tuner requested",
		"input", t.Input, "freq", t.Frequency, "norm", t.Norm)
}

func (p *probe) OnCardChanged(card uint32) {
	p.log.Info("tvipc-probe: card changed", "card", card)
}

func (p *probe) OnCommand(args []string) {
	p.log.Info("tvipc-probe: command", "args", args)
}

// dumpVbi drains the VBI ring while a client is attached and logs how much
// data arrives.
func (p *probe) dumpVbi(ctx context.Context) error {
	buf := make([]byte, 4096)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ring, err := p.server.VbiBuffer()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				continue
			}
		}

		rctx, cancel := context.WithTimeout(ctx, p.cfg.PollInterval)
		n, err := ring.ReadContext(rctx, buf)
		cancel()
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, context.DeadlineExceeded):
		case errors.Is(err, io.EOF):
			p.log.Info("tvipc-probe: VBI ring closed by producer")
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		case err != nil:
			return fmt.Errorf("read VBI ring: %w", err)
		default:
			state := ring.DebugState()
			p.log.Debug("tvipc-probe: VBI data", "bytes", n, "used", state.Used, "widx", state.Widx)
		}
	}
}
