package audioengine

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"hdxstem/internal/assert"
	"hdxstem/internal/codec"
	"hdxstem/internal/device"
)

// fakeDevice hands every opened stream to the test, which drives the
// callback by hand.
type fakeDevice struct {
	openErr error
	opened  atomic.Int32
	streams chan *fakeStream
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{streams: make(chan *fakeStream, 16)}
}

func (d *fakeDevice) Open(f device.Format, cb device.Callback) (device.Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.opened.Add(1)
	s := &fakeStream{format: f, cb: cb, done: make(chan struct{})}
	d.streams <- s
	return s, nil
}

type fakeStream struct {
	format device.Format
	cb     device.Callback

	mtx    sync.Mutex
	closed bool

	once   sync.Once
	done   chan struct{}
	status device.Status
}

func (s *fakeStream) finish(st device.Status) {
	s.once.Do(func() {
		s.status = st
		close(s.done)
	})
}

// render invokes the callback once. It returns StatusStop without calling
// the callback when the stream was closed.
func (s *fakeStream) render(xrun bool) ([]float32, device.Status) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closed {
		return nil, device.StatusStop
	}
	buf := make([]float32, s.format.BufferFrames*s.format.Channels)
	for i := range buf {
		// Garbage the mixer must overwrite.
		buf[i] = 7
	}
	st := s.cb(buf, xrun)
	if st != device.StatusContinue {
		s.finish(st)
	}
	return buf, st
}

func (s *fakeStream) isClosed() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.closed
}

func (s *fakeStream) Start() error          { return nil }
func (s *fakeStream) Done() <-chan struct{} { return s.done }
func (s *fakeStream) Status() device.Status { return s.status }

func (s *fakeStream) Close() error {
	s.mtx.Lock()
	s.closed = true
	s.mtx.Unlock()
	s.finish(device.StatusStop)
	return nil
}

var errBoom = errors.New("boom")

// constPCM returns frames of v on every channel.
func constPCM(frames, channels, rate int, v float32) *codec.PCM {
	samples := make([]float32, frames*channels)
	for i := range samples {
		samples[i] = v
	}
	return &codec.PCM{Samples: samples, Channels: channels, SampleRate: rate}
}

// stubDecode serves PCM from a map; unknown paths fail with errBoom.
func stubDecode(files map[string]*codec.PCM) DecodeFunc {
	return func(path string) (*codec.PCM, error) {
		pcm, ok := files[path]
		if !ok {
			return nil, errBoom
		}
		return pcm, nil
	}
}

type testTrack struct {
	path string
	pcm  *codec.PCM
}

// newTestPlayer loads tracks into a player backed by a fake device.
func newTestPlayer(t *testing.T, cfg Config, tracks ...testTrack) (*Player, *fakeDevice) {
	t.Helper()

	files := make(map[string]*codec.PCM)
	paths := make([]string, len(tracks))
	for i, tr := range tracks {
		files[tr.path] = tr.pcm
		paths[i] = tr.path
	}

	dev := newFakeDevice()
	cfg.Device = dev
	cfg.Decode = stubDecode(files)
	if cfg.BufferFrames == 0 {
		cfg.BufferFrames = 8
	}
	p := NewPlayer(cfg)
	t.Cleanup(p.Close)

	if len(paths) > 0 {
		errs := p.Load(t.Context(), paths)
		if len(errs) > 0 {
			t.Fatalf("load: %v", errs)
		}
		waitEvent(t, p, EventLoaded)
	}
	return p, dev
}

// waitEvent reads events until one of kind arrives.
func waitEvent(t *testing.T, p *Player, kind EventKind) Event {
	t.Helper()
	for {
		e := assert.ChanWritten(t, p.Events())
		if e.Kind == kind {
			return e
		}
	}
}

func nextStream(t *testing.T, d *fakeDevice) *fakeStream {
	t.Helper()
	return assert.ChanWritten(t, (<-chan *fakeStream)(d.streams))
}
