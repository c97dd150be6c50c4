/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"testing"

	"hdxstem/internal/assert"
	"hdxstem/internal/device"
	"hdxstem/internal/testutils"
	"hdxstem/pkg/audioengine"
)

func TestHandleKey(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		testutils.WriteWAV(t, dir, "a.wav", 8000, 1, testutils.Constant(800, 1, 0.1)),
		testutils.WriteWAV(t, dir, "b.wav", 8000, 1, testutils.Constant(800, 1, 0.1)),
	}
	p := audioengine.NewPlayer(audioengine.Config{Device: &device.Null{}})
	defer p.Close()
	assert.DeepEqual(t, len(p.Load(t.Context(), paths)), 0)

	ui := &playerUI{player: p}
	press := func(keys string) {
		for i := 0; i < len(keys); i++ {
			ui.handleKey(keys[i])
		}
	}

	press("2")
	assert.DeepEqual(t, p.Muted(), []bool{false, true})
	assert.DeepEqual(t, ui.selected, 1)

	press("s1")
	assert.DeepEqual(t, p.Muted(), []bool{false, true})
	press("2")
	assert.DeepEqual(t, ui.message, audioengine.ErrSoloLocked.Error())
	press("u")
	assert.DeepEqual(t, p.Muted(), []bool{false, true})

	// At full gain a press up is absorbed and a press down applies.
	press("++-")
	g, _ := p.Gain(1)
	assert.Near(t, g, 0.95, 1e-6)
	press("--")
	g, _ = p.Gain(1)
	assert.Near(t, g, 0.85, 1e-6)

	press("]")
	assert.Near(t, p.Position(), 0.1, 1e-9)
	press("[")
	assert.DeepEqual(t, p.Position(), 0.0)

	press("l")
	assert.BoolIs(t, p.Loop(), true)
	press("9")
	assert.DeepEqual(t, ui.message, audioengine.ErrBadTrack.Error())
}

func TestBar(t *testing.T) {
	assert.DeepEqual(t, bar(0.5, 4), "##--")
	assert.DeepEqual(t, bar(3, 4), "####")
	assert.DeepEqual(t, bar(-1, 4), "----")
	assert.DeepEqual(t, clock(125.7), "02:05")
}
