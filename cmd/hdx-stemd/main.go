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
	"syscall"

	"hdxstem/internal/device"
	"hdxstem/internal/logutil"
	"hdxstem/pkg/audioengine"
	"hdxstem/pkg/spec"

	"github.com/jessevdk/go-flags"
)

type config struct {
	Socket       string `short:"s" long:"socket" env:"HDX_STEM_SOCKET" description:"Unix socket to listen on"`
	Device       string `short:"o" long:"device" description:"Output device (null, wav:<path>, beep, malgo)"`
	BufferFrames int    `short:"b" long:"buffer" description:"Device buffer size in frames"`
	Channels     int    `short:"c" long:"channels" description:"Force the output channel count"`
	Workers      int    `short:"w" long:"workers" description:"Parallel stem decoders"`
	Loop         bool   `short:"l" long:"loop" description:"Loop playback at the end"`
	MailboxSeek  bool   `long:"mailboxseek" description:"Apply seeks at the next buffer instead of restarting the session"`
	LogFile      string `long:"logfile" description:"Rotated log file"`
	DebugLevel   string `short:"d" long:"debuglevel" description:"Log level: level or subsys=level,..."`
	ShowVersion  bool   `short:"V" long:"version" description:"Show version and exit"`
	Args         struct {
		Stems []string `positional-arg-name:"stem"`
	} `positional-args:"yes"`
}

func loadConfig() (*config, error) {
	cfg := &config{
		Socket:       spec.SocketFile,
		Device:       device.DefaultName(),
		BufferFrames: spec.BufferFrames,
		Workers:      spec.DecodeWorkers,
		DebugLevel:   "info",
	}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func realMain() error {
	cfg, err := loadConfig()
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return nil
		}
		return err
	}
	if cfg.ShowVersion {
		fmt.Printf("%s V.%d.%d\n", spec.ServerName, spec.VersionMajor, spec.VersionMinor)
		return nil
	}

	logBknd, err := logutil.NewBackend(cfg.LogFile, cfg.DebugLevel, os.Stdout)
	if err != nil {
		return err
	}
	defer logBknd.Close()
	log := logBknd.Logger(spec.LogSubsysEngine)

	dev, err := device.ByName(cfg.Device, logBknd.Logger(spec.LogSubsysDevice))
	if err != nil {
		return err
	}

	seekMode := audioengine.SeekRestart
	if cfg.MailboxSeek {
		seekMode = audioengine.SeekMailbox
	}
	player := audioengine.NewPlayer(audioengine.Config{
		Device:       dev,
		BufferFrames: cfg.BufferFrames,
		Channels:     cfg.Channels,
		Workers:      cfg.Workers,
		SeekMode:     seekMode,
		Loop:         cfg.Loop,
		Log:          log,
		SessionLog:   logBknd.Logger(spec.LogSubsysSession),
		TracksLog:    logBknd.Logger(spec.LogSubsysTracks),
	})
	defer player.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if len(cfg.Args.Stems) > 0 {
		player.Load(ctx, cfg.Args.Stems)
	}

	srv := newServer(player, logBknd.Logger(spec.LogSubsysIPC))
	log.Infof("%s V.%d.%d using %s output", spec.ServerName, spec.VersionMajor,
		spec.VersionMinor, cfg.Device)
	return srv.run(ctx, cfg.Socket)
}

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
