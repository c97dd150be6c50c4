package device

import (
	"sync"
	"time"
)

// Null is an output device with no audio hardware behind it. By default it
// paces callbacks in real time, one buffer every BufferFrames/SampleRate, and
// reports an xrun when the render goroutine falls more than one period behind.
type Null struct {
	// Unpaced renders buffers back to back instead of in real time.
	Unpaced bool

	// Sink, if set, receives every rendered buffer on the render goroutine.
	// A sink error aborts the stream with StatusUnderrun.
	Sink func(buf []float32) error
}

func (d *Null) Open(f Format, cb Callback) (Stream, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	s := &nullStream{
		dev:    d,
		format: f,
		cb:     cb,
		buf:    make([]float32, f.BufferFrames*f.Channels),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	s.finisher.init()
	return s, nil
}

type nullStream struct {
	finisher

	dev    *Null
	format Format
	cb     Callback
	buf    []float32

	mtx     sync.Mutex
	started bool
	closed  bool
	quit    chan struct{}
	exited  chan struct{}
}

func (s *nullStream) Start() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closed {
		return ErrDeviceClosed
	}
	if s.started {
		return nil
	}
	s.started = true
	go s.run()
	return nil
}

func (s *nullStream) run() {
	defer close(s.exited)

	period := time.Duration(s.format.BufferFrames) * time.Second /
		time.Duration(s.format.SampleRate)
	var timer *time.Timer
	if !s.dev.Unpaced {
		timer = time.NewTimer(period)
		defer timer.Stop()
	}
	next := time.Now().Add(period)

	for {
		xrun := false
		if timer != nil {
			select {
			case <-s.quit:
				return
			case <-timer.C:
			}
			now := time.Now()
			if now.Sub(next) > period {
				xrun = true
				next = now
			}
			next = next.Add(period)
			timer.Reset(time.Until(next))
		} else {
			select {
			case <-s.quit:
				return
			default:
			}
		}

		st := s.cb(s.buf, xrun)
		if s.dev.Sink != nil {
			if err := s.dev.Sink(s.buf); err != nil {
				s.finish(StatusUnderrun)
				return
			}
		}
		if st != StatusContinue {
			s.finish(st)
			return
		}
	}
}

func (s *nullStream) Close() error {
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mtx.Unlock()

	if started {
		close(s.quit)
		<-s.exited
	}
	s.finish(StatusStop)
	return nil
}
