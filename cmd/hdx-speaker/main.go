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
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hdxstem/internal/device"
	"hdxstem/internal/logutil"
	"hdxstem/pkg/audioengine"
	"hdxstem/pkg/spec"

	"github.com/jessevdk/go-flags"
)

type config struct {
	Device       string        `short:"o" long:"device" description:"Output device (null, wav:<path>, beep, malgo)"`
	List         bool          `long:"list" description:"List output devices and exit"`
	Freq         float64       `short:"f" long:"freq" description:"Tone frequency in Hz"`
	Duration     time.Duration `short:"t" long:"duration" description:"Tone length"`
	SampleRate   int           `short:"r" long:"rate" description:"Sample rate"`
	Channels     int           `short:"c" long:"channels" description:"Output channels"`
	BufferFrames int           `short:"b" long:"buffer" description:"Device buffer size in frames"`
	DebugLevel   string        `short:"d" long:"debuglevel" description:"Log level: level or subsys=level,..."`
}

// tone renders a sine on every channel for a fixed number of frames.
type tone struct {
	step   float64
	phase  float64
	frames int
	left   int
	ch     int
}

func newTone(freq float64, rate, channels int, d time.Duration) *tone {
	n := int(d.Seconds() * float64(rate))
	return &tone{
		step:   2 * math.Pi * freq / float64(rate),
		frames: n,
		left:   n,
		ch:     channels,
	}
}

func (t *tone) render(out []float32, xrun bool) device.Status {
	if xrun {
		return device.StatusUnderrun
	}
	clear(out)
	n := min(len(out)/t.ch, t.left)
	for i := 0; i < n; i++ {
		v := float32(0.25 * math.Sin(t.phase))
		t.phase += t.step
		for c := 0; c < t.ch; c++ {
			out[i*t.ch+c] = v
		}
	}
	t.left -= n
	if t.left == 0 {
		return device.StatusStop
	}
	return device.StatusContinue
}

func run(cfg *config) error {
	if cfg.List {
		for _, name := range device.Names() {
			fmt.Println(name)
		}
		return nil
	}

	logBknd, err := logutil.NewBackend("", cfg.DebugLevel, os.Stdout)
	if err != nil {
		return err
	}
	defer logBknd.Close()

	dev, err := device.ByName(cfg.Device, logBknd.Logger(spec.LogSubsysDevice))
	if err != nil {
		return err
	}
	sess := audioengine.NewSession(dev, logBknd.Logger(spec.LogSubsysSession))

	ended := make(chan device.Status, 1)
	t := newTone(cfg.Freq, cfg.SampleRate, cfg.Channels, cfg.Duration)
	format := device.Format{
		Channels:     cfg.Channels,
		SampleRate:   cfg.SampleRate,
		BufferFrames: cfg.BufferFrames,
	}
	err = sess.Start(format, t.render, func(st device.Status, _ bool) {
		ended <- st
	})
	if err != nil {
		return err
	}
	defer sess.Stop()

	fmt.Printf("Playing %.0f Hz on %s for %v...\n", cfg.Freq, cfg.Device, cfg.Duration)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	select {
	case <-ctx.Done():
		return nil
	case st := <-ended:
		if st == device.StatusUnderrun {
			return errors.New("output underrun")
		}
	}
	fmt.Println("Device OK")
	return nil
}

func main() {
	cfg := &config{
		Device:       device.DefaultName(),
		Freq:         440,
		Duration:     2 * time.Second,
		SampleRate:   spec.SampleRate,
		Channels:     spec.Channels,
		BufferFrames: spec.BufferFrames,
		DebugLevel:   "info",
	}
	if _, err := flags.Parse(cfg); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		fmt.Printf("[!] %v\n", err)
		os.Exit(1)
	}
}
