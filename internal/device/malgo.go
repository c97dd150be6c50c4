//go:build cgo && !noaudio

package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/decred/slog"
	"github.com/gen2brain/malgo"
)

func init() {
	backends["malgo"] = func(log slog.Logger) Device { return &Malgo{Log: log} }
}

// Malgo plays through miniaudio. The device invokes the callback from its
// own audio thread with whatever frame count the backend chose; the stream
// splits it into BufferFrames sized chunks.
type Malgo struct {
	Log slog.Logger
}

func (d *Malgo) Open(f Format, cb Callback) (Stream, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	log := d.Log
	if log == nil {
		log = slog.Disabled
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		log.Debugf("malgo: %s", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("cannot init malgo context: %w", err)
	}

	s := &malgoStream{
		ctx:    malgoCtx,
		format: f,
		cb:     cb,
		buf:    make([]float32, f.BufferFrames*f.Channels),
		log:    log,
	}
	s.finisher.init()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(f.Channels)
	deviceConfig.SampleRate = uint32(f.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(f.BufferFrames)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: s.data,
		Stop: s.stopped,
	}
	dev, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, fmt.Errorf("cannot init playback device: %w", err)
	}
	s.dev = dev
	return s, nil
}

type malgoStream struct {
	finisher

	ctx    *malgo.AllocatedContext
	dev    *malgo.Device
	format Format
	cb     Callback
	buf    []float32
	log    slog.Logger

	finished atomic.Bool
	closing  atomic.Bool

	mtx    sync.Mutex
	closed bool
}

func (s *malgoStream) data(pOutput, _ []byte, frameCount uint32) {
	if s.finished.Load() {
		clear(pOutput)
		return
	}

	ch := s.format.Channels
	frames := int(frameCount)
	off := 0
	for frames > 0 {
		n := frames
		if n > s.format.BufferFrames {
			n = s.format.BufferFrames
		}
		out := s.buf[:n*ch]
		st := s.cb(out, false)
		for _, v := range out {
			binary.LittleEndian.PutUint32(pOutput[off:], math.Float32bits(v))
			off += 4
		}
		frames -= n

		if st != StatusContinue {
			s.finished.Store(true)
			clear(pOutput[off:])
			s.finish(st)
			return
		}
	}
}

// stopped is called by miniaudio whenever the device stops. Unless we asked
// for it, the backend lost the device.
func (s *malgoStream) stopped() {
	if s.closing.Load() || s.finished.Load() {
		return
	}
	s.finished.Store(true)
	s.finish(StatusUnderrun)
}

func (s *malgoStream) Start() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closed {
		return ErrDeviceClosed
	}
	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("cannot start playback device: %w", err)
	}
	return nil
}

func (s *malgoStream) Close() error {
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return nil
	}
	s.closed = true
	s.mtx.Unlock()

	s.closing.Store(true)
	s.dev.Uninit()
	err := s.ctx.Uninit()
	s.ctx.Free()
	s.finish(StatusStop)
	if err != nil {
		s.log.Warnf("malgo context uninit: %v", err)
	}
	return nil
}
