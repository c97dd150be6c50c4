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
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hdxstem/internal/device"
	"hdxstem/internal/logutil"
	"hdxstem/pkg/audioengine"
	"hdxstem/pkg/spec"

	"github.com/jessevdk/go-flags"
)

type config struct {
	Device       string `short:"o" long:"device" description:"Output device (null, wav:<path>, beep, malgo)"`
	BufferFrames int    `short:"b" long:"buffer" description:"Device buffer size in frames"`
	Loop         bool   `short:"l" long:"loop" description:"Start with loop on"`
	LogFile      string `long:"logfile" description:"Log file; the terminal is used by the player"`
	DebugLevel   string `short:"d" long:"debuglevel" description:"Log level: level or subsys=level,..."`
	Args         struct {
		Stems []string `positional-arg-name:"stem" required:"1"`
	} `positional-args:"yes"`
}

func main() {
	cfg := &config{
		Device:       device.DefaultName(),
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
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config) error {
	// Logs never go to the terminal while the player owns it.
	logBknd, err := logutil.NewBackend(cfg.LogFile, cfg.DebugLevel, nil)
	if err != nil {
		return err
	}
	defer logBknd.Close()

	dev, err := device.ByName(cfg.Device, logBknd.Logger(spec.LogSubsysDevice))
	if err != nil {
		return err
	}
	player := audioengine.NewPlayer(audioengine.Config{
		Device:       dev,
		BufferFrames: cfg.BufferFrames,
		Loop:         cfg.Loop,
		Log:          logBknd.Logger(spec.LogSubsysEngine),
		SessionLog:   logBknd.Logger(spec.LogSubsysSession),
		TracksLog:    logBknd.Logger(spec.LogSubsysTracks),
	})
	defer player.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("Decoding %d stems...\n", len(cfg.Args.Stems))
	for _, err := range player.Load(ctx, cfg.Args.Stems) {
		fmt.Printf("[!] %v\n", err)
	}
	if len(player.Tracks()) == 0 {
		return audioengine.ErrNoTracks
	}

	InitTerminal()
	defer CleanupTerminal()

	ui := &playerUI{player: player, selected: 0}
	return ui.loop(ctx, os.Stdin)
}

// === KEYBOARD PLAYER ===

type playerUI struct {
	player   *audioengine.Player
	selected int
	drag     *audioengine.VolumeDrag
	delta    float64
	soloNext bool
	message  string
}

func readKeys(r io.Reader, keys chan<- byte) {
	b := make([]byte, 1)
	for {
		n, err := r.Read(b)
		if n > 0 {
			keys <- b[0]
		}
		if err != nil && !errors.Is(err, io.EOF) {
			close(keys)
			return
		}
		if n == 0 {
			// cbreak with min 0 returns immediately without input.
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (ui *playerUI) loop(ctx context.Context, in io.Reader) error {
	keys := make(chan byte)
	go readKeys(in, keys)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	ui.draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-ui.player.Events():
			switch e.Kind {
			case audioengine.EventEnded:
				ui.message = "End of stems"
			case audioengine.EventDegraded:
				ui.message = "Playback degraded: output underrun"
			}
		case <-ticker.C:
		case k, ok := <-keys:
			if !ok || k == 'q' || k == 'Q' {
				return nil
			}
			ui.handleKey(k)
		}
		ui.draw()
	}
}

func (ui *playerUI) handleKey(k byte) {
	p := ui.player
	var err error
	switch {
	case k == ' ':
		err = p.Toggle()
	case k >= '1' && k <= '9':
		i := int(k - '1')
		if ui.soloNext {
			ui.soloNext = false
			err = p.EnterSolo(i)
			break
		}
		muted := p.Muted()
		if i >= len(muted) {
			err = audioengine.ErrBadTrack
			break
		}
		if err = p.SetMute(i, !muted[i]); err == nil {
			ui.selected = i
			ui.drag = nil
		}
	case k == 's':
		ui.soloNext = true
		ui.message = "Solo which stem?"
		return
	case k == 'u':
		p.ExitSolo()
	case k == '[':
		err = p.Seek(p.Position() - spec.SeekStep.Seconds())
	case k == ']':
		err = p.Seek(p.Position() + spec.SeekStep.Seconds())
	case k == '+' || k == '=':
		err = ui.nudge(spec.GainStep)
	case k == '-':
		err = ui.nudge(-spec.GainStep)
	case k == 'l':
		p.SetLoop(!p.Loop())
	default:
		return
	}
	ui.message = ""
	if err != nil {
		ui.message = err.Error()
	}
}

// nudge moves the selected stem's gain through one drag per selection, so
// repeated presses add up relative to where the drag began.
func (ui *playerUI) nudge(step float64) error {
	if ui.drag == nil {
		d, err := ui.player.BeginVolumeDrag(ui.selected)
		if err != nil {
			return err
		}
		ui.drag = d
		ui.delta = 0
	}
	// Keep the offset inside the gain range so a press in the other
	// direction takes effect at once.
	ref := ui.drag.Reference()
	ui.delta = max(spec.MinGain, min(spec.MaxGain, ref+ui.delta+step)) - ref
	return ui.drag.Update(ui.delta)
}

func clock(sec float64) string {
	s := int(sec)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

func bar(frac float64, width int) string {
	n := int(frac * float64(width))
	n = max(0, min(width, n))
	return strings.Repeat("#", n) + strings.Repeat("-", width-n)
}

func (ui *playerUI) draw() {
	p := ui.player
	pos, dur := p.Position(), p.Duration()
	frac := 0.0
	if dur > 0 {
		frac = pos / dur
	}

	var b strings.Builder
	b.WriteString("\033[H\033[2J")
	b.WriteString("=== HDX STEM PLAYER ===\n")
	status := "STOPPED"
	if p.IsPlaying() {
		status = "PLAYING"
	}
	loop := ""
	if p.Loop() {
		loop = " [LOOP]"
	}
	fmt.Fprintf(&b, "%s%s  %s / %s  [%s]\n", status, loop, clock(pos), clock(dur), bar(frac, 30))
	fmt.Fprintf(&b, "Level [%s]\n", bar(p.Peak(), 30))
	b.WriteString("-------------------------------------------\n")
	for _, t := range p.Tracks() {
		cursor := "  "
		if t.Index == ui.selected {
			cursor = "> "
		}
		tag := ""
		switch {
		case t.Soloed:
			tag = "SOLO"
		case t.Muted:
			tag = "MUTE"
		}
		fmt.Fprintf(&b, "%s%d %-4s %-24s vol %3.0f%% %s\n", cursor, t.Index+1, tag,
			t.Label, t.Gain*100, clock(t.Seconds))
	}
	b.WriteString("-------------------------------------------\n")
	b.WriteString("[SPACE] Play/Stop [1-9] Mute [S]+n Solo [U] Unsolo\n")
	b.WriteString("[ [ ] ] Seek [+/-] Volume [L] Loop [Q] Quit\n")
	if ui.message != "" {
		fmt.Fprintf(&b, "\n%s\n", ui.message)
	}
	fmt.Print(b.String())
}

// --- CORE UTILS ---

func InitTerminal() {
	exec.Command("stty", "-F", "/dev/tty", "cbreak", "min", "0", "-echo").Run()
	fmt.Print("\033[?25l")
}

func CleanupTerminal() {
	exec.Command("stty", "-F", "/dev/tty", "sane").Run()
	fmt.Print("\033[?25h")
}
