//go:build cgo && !noaudio

package device

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/decred/slog"
	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

func init() {
	backends["beep"] = func(slog.Logger) Device { return &Beep{} }
}

// Beep plays through the beep speaker. The speaker is a process wide
// resource, so at most one Beep stream may be open at a time.
type Beep struct{}

func (d *Beep) Open(f Format, cb Callback) (Stream, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if f.Channels > 2 {
		return nil, fmt.Errorf("%w: beep speaker is stereo, got %d channels",
			ErrUnsupportedFormat, f.Channels)
	}

	sr := beep.SampleRate(f.SampleRate)
	if err := speaker.Init(sr, f.BufferFrames); err != nil {
		return nil, fmt.Errorf("cannot init speaker: %w", err)
	}

	s := &beepStream{
		format: f,
		cb:     cb,
		buf:    make([]float32, f.BufferFrames*f.Channels),
	}
	s.finisher.init()
	return s, nil
}

type beepStream struct {
	finisher

	format   Format
	cb       Callback
	buf      []float32
	finished atomic.Bool

	mtx     sync.Mutex
	started bool
	closed  bool
}

// Stream implements beep.Streamer on the speaker goroutine.
func (s *beepStream) Stream(samples [][2]float64) (int, bool) {
	if s.finished.Load() {
		return 0, false
	}

	ch := s.format.Channels
	chunk := s.format.BufferFrames
	filled := 0
	for filled < len(samples) {
		n := len(samples) - filled
		if n > chunk {
			n = chunk
		}
		out := s.buf[:n*ch]
		st := s.cb(out, false)

		for i := 0; i < n; i++ {
			l := float64(out[i*ch])
			r := l
			if ch > 1 {
				r = float64(out[i*ch+1])
			}
			samples[filled+i] = [2]float64{l, r}
		}
		filled += n

		if st != StatusContinue {
			s.finished.Store(true)
			s.finish(st)
			return filled, false
		}
	}
	return filled, true
}

func (s *beepStream) Err() error { return nil }

func (s *beepStream) Start() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closed {
		return ErrDeviceClosed
	}
	if !s.started {
		s.started = true
		speaker.Play(s)
	}
	return nil
}

func (s *beepStream) Close() error {
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return nil
	}
	s.closed = true
	s.mtx.Unlock()

	s.finished.Store(true)
	speaker.Clear()
	speaker.Close()
	s.finish(StatusStop)
	return nil
}
