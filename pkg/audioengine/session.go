package audioengine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"hdxstem/internal/device"

	"github.com/decred/slog"
)

// EndFunc is called from the session driver when a run ends. requested is
// true when the run ended through Stop. It must not block on anything that
// may be waiting for Stop.
type EndFunc func(status device.Status, requested bool)

// Session owns the render side: at most one device stream and the goroutine
// driving it.
type Session struct {
	dev device.Device
	log slog.Logger

	mtx sync.Mutex
	run *run
}

type run struct {
	stream   device.Stream
	stopping atomic.Bool
	stopReq  chan struct{}
	done     chan struct{}
}

func (r *run) alive() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// NewSession returns a session rendering into dev.
func NewSession(dev device.Device, log slog.Logger) *Session {
	if log == nil {
		log = slog.Disabled
	}
	return &Session{dev: dev, log: log}
}

// Active reports whether a run is alive.
func (s *Session) Active() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.run != nil && s.run.alive()
}

// Start opens a stream with format f bound to render and starts it. It
// fails with ErrSessionActive while a previous run is alive; callers Stop
// first. onEnd may be nil.
func (s *Session) Start(f device.Format, render device.Callback, onEnd EndFunc) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.run != nil && s.run.alive() {
		return ErrSessionActive
	}

	r := &run{
		stopReq: make(chan struct{}),
		done:    make(chan struct{}),
	}
	cb := func(out []float32, xrun bool) device.Status {
		if r.stopping.Load() {
			clear(out)
			return device.StatusStop
		}
		return render(out, xrun)
	}

	stream, err := s.dev.Open(f, cb)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start output: %w", err)
	}
	r.stream = stream
	s.run = r

	s.log.Debugf("Session started: %d ch, %d Hz, %d frames", f.Channels,
		f.SampleRate, f.BufferFrames)
	go s.drive(r, onEnd)
	return nil
}

func (s *Session) drive(r *run, onEnd EndFunc) {
	var status device.Status
	select {
	case <-r.stream.Done():
		status = r.stream.Status()
	case <-r.stopReq:
		status = device.StatusStop
	}

	if err := r.stream.Close(); err != nil {
		s.log.Warnf("Closing output stream: %v", err)
	}

	requested := r.stopping.Load()
	switch {
	case requested:
		s.log.Debugf("Session stopped")
	case status == device.StatusUnderrun:
		s.log.Warnf("Session aborted: output underrun")
	default:
		s.log.Debugf("Session ended: %v", status)
	}
	if onEnd != nil {
		onEnd(status, requested)
	}
	close(r.done)
}

// Stop ends the current run, if any, and blocks until the callback stopped
// and the stream is closed. It is safe to call any number of times.
func (s *Session) Stop() {
	s.mtx.Lock()
	r := s.run
	s.mtx.Unlock()
	if r == nil {
		return
	}
	if r.stopping.CompareAndSwap(false, true) {
		close(r.stopReq)
	}
	<-r.done
}
