/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"hdxstem/internal/device"
	"hdxstem/internal/logutil"
	"hdxstem/pkg/audioengine"
	"hdxstem/pkg/spec"

	"github.com/jessevdk/go-flags"
)

const (
	app_name           = "HDX-Bounce"
	developer_title    = "Developer Hardiyanto"
	developer_subtitle = "Stem Edition"
)

type config struct {
	Output     string   `short:"o" long:"output" required:"true" description:"Destination wav file"`
	BitDepth   int      `long:"bits" choice:"16" choice:"24" description:"Output bit depth"`
	Start      float64  `long:"start" description:"Start position in seconds"`
	Mute       []int    `short:"m" long:"mute" description:"Mute stem n (1-based, repeatable)"`
	Solo       int      `long:"solo" description:"Solo stem n (1-based)"`
	Gain       []string `short:"g" long:"gain" description:"Stem gain as n=gain (repeatable)"`
	Workers    int      `short:"w" long:"workers" description:"Parallel stem decoders"`
	DebugLevel string   `short:"d" long:"debuglevel" description:"Log level: level or subsys=level,..."`
	Args       struct {
		Stems []string `positional-arg-name:"stem" required:"1"`
	} `positional-args:"yes"`
}

// parseGain parses "n=gain" with a 1-based stem number.
func parseGain(s string) (int, float64, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok {
		return 0, 0, fmt.Errorf("gain %q is not n=gain", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(k))
	if err != nil {
		return 0, 0, fmt.Errorf("gain %q: %w", s, err)
	}
	g, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("gain %q: %w", s, err)
	}
	return n - 1, g, nil
}

// applyMix sets mutes, gains and solo on a freshly loaded player.
func applyMix(p *audioengine.Player, cfg *config) error {
	for _, n := range cfg.Mute {
		if err := p.SetMute(n-1, true); err != nil {
			return fmt.Errorf("mute %d: %w", n, err)
		}
	}
	for _, s := range cfg.Gain {
		i, g, err := parseGain(s)
		if err != nil {
			return err
		}
		if err := p.SetVolume(i, g); err != nil {
			return fmt.Errorf("gain %d: %w", i+1, err)
		}
	}
	if cfg.Solo > 0 {
		if err := p.EnterSolo(cfg.Solo - 1); err != nil {
			return fmt.Errorf("solo %d: %w", cfg.Solo, err)
		}
	}
	return nil
}

// bounce renders the mix into the output device and waits for the end.
func bounce(ctx context.Context, p *audioengine.Player, start float64) error {
	if err := p.Seek(start); err != nil {
		return err
	}
	if err := p.Play(); err != nil {
		return err
	}
	defer p.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-p.Events():
			switch e.Kind {
			case audioengine.EventEnded:
				return nil
			case audioengine.EventDegraded:
				return errors.New("output write failed")
			}
		}
	}
}

func run(cfg *config) error {
	logBknd, err := logutil.NewBackend("", cfg.DebugLevel, os.Stderr)
	if err != nil {
		return err
	}
	defer logBknd.Close()

	dev := &device.WAVFile{Path: cfg.Output, BitDepth: cfg.BitDepth}
	p := audioengine.NewPlayer(audioengine.Config{
		Device:     dev,
		Workers:    cfg.Workers,
		Log:        logBknd.Logger(spec.LogSubsysEngine),
		SessionLog: logBknd.Logger(spec.LogSubsysSession),
		TracksLog:  logBknd.Logger(spec.LogSubsysTracks),
	})
	defer p.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("[Batch] Decoding %d stems with %d workers...\n", len(cfg.Args.Stems), cfg.Workers)
	for _, err := range p.Load(ctx, cfg.Args.Stems) {
		fmt.Printf("[Error] %v\n", err)
	}
	if len(p.Tracks()) == 0 {
		return audioengine.ErrNoTracks
	}
	if err := applyMix(p, cfg); err != nil {
		return err
	}

	f := p.Format()
	fmt.Printf("[Process] Bouncing %.2fs at %d Hz, %d ch to %s\n", p.Duration(),
		f.SampleRate, f.Channels, cfg.Output)
	if err := bounce(ctx, p, cfg.Start); err != nil {
		return err
	}
	fmt.Println("[Success] Bounce complete.")
	return nil
}

func main() {
	cfg := &config{BitDepth: 16, Workers: spec.DecodeWorkers, DebugLevel: "warn"}
	if _, err := flags.Parse(cfg); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Printf("%s version %d.%d\n", app_name, spec.VersionMajor, spec.VersionMinor)
			fmt.Printf("%s - %s\n", developer_title, developer_subtitle)
			return
		}
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		fmt.Printf("[Error] %v\n", err)
		os.Exit(1)
	}
}
