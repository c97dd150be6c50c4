/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"sync"

	"hdxstem/pkg/audioengine"

	"github.com/decred/slog"
)

// client is one socket connection.
type client struct {
	id    int
	write func(line string) error
}

// server holds everything the IPC handlers share. Only the control owner may
// change the transport; everybody may read.
type server struct {
	player *audioengine.Player
	log    slog.Logger

	mtx    sync.Mutex
	owner  *client
	drag   *audioengine.VolumeDrag
	nextID int
}

func newServer(player *audioengine.Player, log slog.Logger) *server {
	return &server{player: player, log: log}
}

func (s *server) newClient(write func(string) error) *client {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.nextID++
	return &client{id: s.nextID, write: write}
}

func (s *server) isOwner(c *client) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.owner == c
}

func (s *server) claimOwner(c *client) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.owner == nil {
		s.owner = c
		s.log.Infof("Client %d took control", c.id)
		return true
	}
	return s.owner == c
}

// releaseOwner drops control when the owner goes away and stops playback.
func (s *server) releaseOwner(c *client) {
	s.mtx.Lock()
	if s.owner != c {
		s.mtx.Unlock()
		return
	}
	s.owner = nil
	s.drag = nil
	s.mtx.Unlock()

	s.log.Infof("Client %d released control", c.id)
	s.player.Stop()
}
