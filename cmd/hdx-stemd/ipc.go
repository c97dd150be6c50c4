/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"sync"
)

// ===============================
// IPC Server
// ===============================

func (s *server) run(ctx context.Context, socket string) error {
	_ = os.Remove(socket)
	ln, err := net.Listen("unix", socket)
	if err != nil {
		return err
	}
	defer os.Remove(socket)
	s.log.Infof("Listening on %s", socket)
	return s.serve(ctx, ln)
}

// serve accepts connections until ctx is done.
func (s *server) serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go s.forwardEvents(ctx)

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warnf("Accept: %v", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, c)
		}()
	}
}

// forwardEvents sends transport events to the control owner as
// "EVENT {json}" lines.
func (s *server) forwardEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.player.Events():
			s.mtx.Lock()
			owner := s.owner
			s.mtx.Unlock()
			if owner == nil {
				continue
			}
			if err := owner.write("EVENT " + jsonLine(e)); err != nil {
				s.log.Debugf("Dropping event for client %d: %v", owner.id, err)
			}
		}
	}
}

func (s *server) handleConn(ctx context.Context, conn net.Conn) {
	var wmtx sync.Mutex
	c := s.newClient(func(line string) error {
		wmtx.Lock()
		defer wmtx.Unlock()
		_, err := conn.Write([]byte(line + "\n"))
		return err
	})
	s.log.Debugf("Client %d connected", c.id)

	// Unblock the scanner on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		s.releaseOwner(c)
		conn.Close()
		s.log.Debugf("Client %d disconnected", c.id)
	}()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		reply := s.dispatch(ctx, c, line)
		if err := c.write(reply); err != nil {
			return
		}
	}
}
