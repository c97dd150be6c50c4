/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"hdxstem/internal/device"
	"hdxstem/pkg/audioengine"
	"hdxstem/pkg/spec"
)

const (
	errArg           = "ERR ARG"
	errUnknown       = "ERR UNKNOWN"
	errControlLocked = "ERR CONTROL_LOCKED"
	errNoDrag        = "ERR NO_DRAG"
)

// errReply maps engine errors to protocol error codes.
func errReply(err error) string {
	switch {
	case errors.Is(err, audioengine.ErrNoTracks):
		return "ERR NO_TRACKS"
	case errors.Is(err, audioengine.ErrEmptyTracks):
		return "ERR EMPTY_TRACKS"
	case errors.Is(err, audioengine.ErrBadTrack):
		return "ERR TRACK_RANGE"
	case errors.Is(err, audioengine.ErrSoloLocked):
		return "ERR SOLO_LOCKED"
	case errors.Is(err, audioengine.ErrSessionActive):
		return "ERR SESSION_ACTIVE"
	case errors.Is(err, device.ErrUnsupportedFormat):
		return "ERR DEVICE_FORMAT"
	default:
		return "ERR DEVICE"
	}
}

func jsonLine(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "ERR INTERNAL"
	}
	return string(b)
}

func argInt(arg string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(arg))
	return v, err == nil
}

func argFloat(arg string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
	return v, err == nil
}

// splitPaths splits LOAD arguments on whitespace. Double quotes group a path
// containing spaces.
func splitPaths(arg string) ([]string, bool) {
	var (
		res    []string
		cur    strings.Builder
		quoted bool
		inArg  bool
	)
	for _, r := range arg {
		switch {
		case r == '"':
			quoted = !quoted
			inArg = true
		case !quoted && (r == ' ' || r == '\t'):
			if inArg {
				res = append(res, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quoted {
		return nil, false
	}
	if inArg {
		res = append(res, cur.String())
	}
	return res, len(res) > 0
}

type statusReply struct {
	State    audioengine.TransportState `json:"state"`
	Playing  bool                       `json:"playing"`
	Position float64                    `json:"position"`
	Duration float64                    `json:"duration"`
	Loop     bool                       `json:"loop"`
	Solo     int                        `json:"solo"`
	Peak     float64                    `json:"peak"`
	Tracks   int                        `json:"tracks"`
	Rate     int                        `json:"sample_rate"`
	Channels int                        `json:"channels"`
}

func (s *server) status() statusReply {
	p := s.player
	f := p.Format()
	solo, ok := p.Soloed()
	if !ok {
		solo = -1
	}
	return statusReply{
		State:    p.State(),
		Playing:  p.IsPlaying(),
		Position: p.Position(),
		Duration: p.Duration(),
		Loop:     p.Loop(),
		Solo:     solo,
		Peak:     p.Peak(),
		Tracks:   len(p.Tracks()),
		Rate:     f.SampleRate,
		Channels: f.Channels,
	}
}

type loadFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type loadReply struct {
	Loaded int           `json:"loaded"`
	Failed []loadFailure `json:"failed,omitempty"`
}

func (s *server) cmdLoad(ctx context.Context, arg string) string {
	paths, ok := splitPaths(arg)
	if !ok {
		return errArg
	}
	errs := s.player.Load(ctx, paths)

	s.mtx.Lock()
	s.drag = nil
	s.mtx.Unlock()

	reply := loadReply{Loaded: len(s.player.Tracks())}
	for _, err := range errs {
		var lerr *audioengine.LoadError
		if errors.As(err, &lerr) {
			reply.Failed = append(reply.Failed, loadFailure{lerr.Path, lerr.Err.Error()})
		}
	}
	return jsonLine(reply)
}

func (s *server) cmdSeek(arg string) string {
	sec, ok := argFloat(arg)
	if !ok {
		return errArg
	}
	if err := s.player.Seek(sec); err != nil {
		return errReply(err)
	}
	return fmt.Sprintf("Position %.3f", s.player.Position())
}

func (s *server) cmdMute(arg string, muted bool) string {
	i, ok := argInt(arg)
	if !ok {
		return errArg
	}
	if err := s.player.SetMute(i, muted); err != nil {
		return errReply(err)
	}
	if muted {
		return "Muted"
	}
	return "Unmuted"
}

func (s *server) cmdVolume(arg string) string {
	args := strings.Fields(arg)
	if len(args) != 2 {
		return errArg
	}
	i, ok1 := argInt(args[0])
	gain, ok2 := argFloat(args[1])
	if !ok1 || !ok2 {
		return errArg
	}
	if err := s.player.SetVolume(i, gain); err != nil {
		return errReply(err)
	}
	g, _ := s.player.Gain(i)
	return fmt.Sprintf("Volume %.2f", g)
}

func (s *server) cmdDragBegin(arg string) string {
	i, ok := argInt(arg)
	if !ok {
		return errArg
	}
	d, err := s.player.BeginVolumeDrag(i)
	if err != nil {
		return errReply(err)
	}
	s.mtx.Lock()
	s.drag = d
	s.mtx.Unlock()
	return fmt.Sprintf("Drag %d from %.2f", i, d.Reference())
}

func (s *server) cmdDrag(arg string) string {
	delta, ok := argFloat(arg)
	if !ok {
		return errArg
	}
	s.mtx.Lock()
	d := s.drag
	s.mtx.Unlock()
	if d == nil {
		return errNoDrag
	}
	if err := d.Update(delta); err != nil {
		return errReply(err)
	}
	g, _ := s.player.Gain(d.Track())
	return fmt.Sprintf("Volume %.2f", g)
}

func (s *server) cmdDragEnd() string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.drag == nil {
		return errNoDrag
	}
	s.drag = nil
	return "Drag Ended"
}

func (s *server) cmdSolo(arg string) string {
	i, ok := argInt(arg)
	if !ok {
		return errArg
	}
	if err := s.player.EnterSolo(i); err != nil {
		return errReply(err)
	}
	return "Solo"
}

func (s *server) cmdLoop(arg string) string {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "on", "1", "true":
		s.player.SetLoop(true)
		return "Loop On"
	case "off", "0", "false":
		s.player.SetLoop(false)
		return "Loop Off"
	}
	return errArg
}

// dispatch runs one protocol line for c and returns the reply.
func (s *server) dispatch(ctx context.Context, c *client, line string) string {
	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToUpper(parts[0])
	arg := ""
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}

	// Read-only commands.
	switch cmd {
	case "ABOUT":
		return fmt.Sprintf("%s V.%d.%d", spec.ServerName, spec.VersionMajor, spec.VersionMinor)
	case "PING":
		return "Pong"
	case "WHOAMI":
		if s.isOwner(c) {
			return "OWNER"
		}
		return "OBSERVER"
	case "STATUS":
		return jsonLine(s.status())
	case "TRACKS":
		tracks := s.player.Tracks()
		if len(tracks) == 0 {
			return "NO TRACKS YET"
		}
		return jsonLine(tracks)
	}

	// Control commands.
	if !s.claimOwner(c) {
		return errControlLocked
	}

	switch cmd {
	case "LOAD":
		return s.cmdLoad(ctx, arg)
	case "PLAY":
		if err := s.player.Play(); err != nil {
			return errReply(err)
		}
		return "Playing"
	case "STOP":
		s.player.Stop()
		return "Stopped"
	case "TOGGLE":
		if err := s.player.Toggle(); err != nil {
			return errReply(err)
		}
		if s.player.IsPlaying() {
			return "Playing"
		}
		return "Stopped"
	case "SEEK":
		return s.cmdSeek(arg)
	case "MUTE":
		return s.cmdMute(arg, true)
	case "UNMUTE":
		return s.cmdMute(arg, false)
	case "VOLUME":
		return s.cmdVolume(arg)
	case "DRAG-BEGIN":
		return s.cmdDragBegin(arg)
	case "DRAG":
		return s.cmdDrag(arg)
	case "DRAG-END":
		return s.cmdDragEnd()
	case "SOLO":
		return s.cmdSolo(arg)
	case "UNSOLO":
		s.player.ExitSolo()
		return "Unsolo"
	case "LOOP":
		return s.cmdLoop(arg)
	}
	return errUnknown
}
