package audioengine

import (
	"testing"

	"hdxstem/internal/assert"
	"hdxstem/internal/device"
	"hdxstem/internal/testutils"
)

type endCall struct {
	status    device.Status
	requested bool
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	dev := newFakeDevice()
	sess := NewSession(dev, testutils.TestLoggerSys(t, "SESS"))
	format := device.Format{Channels: 1, SampleRate: 100, BufferFrames: 4}
	ends := make(chan endCall, 4)
	onEnd := func(st device.Status, requested bool) {
		ends <- endCall{st, requested}
	}
	silence := func(out []float32, _ bool) device.Status {
		clear(out)
		return device.StatusContinue
	}

	assert.DoesNotBlock(t, sess.Stop)
	assert.BoolIs(t, sess.Active(), false)

	assert.NilErr(t, sess.Start(format, silence, onEnd))
	assert.BoolIs(t, sess.Active(), true)
	assert.ErrorIs(t, sess.Start(format, silence, onEnd), ErrSessionActive)

	s := nextStream(t, dev)
	_, st := s.render(false)
	assert.DeepEqual(t, st, device.StatusContinue)

	assert.DoesNotBlock(t, sess.Stop)
	assert.DeepEqual(t, assert.ChanWritten(t, ends), endCall{device.StatusStop, true})
	assert.BoolIs(t, sess.Active(), false)
	assert.BoolIs(t, s.isClosed(), true)
	assert.DoesNotBlock(t, sess.Stop)

	// A run that ends by itself reports the callback status.
	assert.NilErr(t, sess.Start(format, func([]float32, bool) device.Status {
		return device.StatusStop
	}, onEnd))
	s = nextStream(t, dev)
	s.render(false)
	assert.DeepEqual(t, assert.ChanWritten(t, ends), endCall{device.StatusStop, false})
	assert.DoesNotBlock(t, sess.Stop)
	assert.BoolIs(t, sess.Active(), false)
}

func TestSessionStopFlagSilences(t *testing.T) {
	t.Parallel()

	dev := newFakeDevice()
	sess := NewSession(dev, nil)
	format := device.Format{Channels: 2, SampleRate: 100, BufferFrames: 4}
	loud := func(out []float32, _ bool) device.Status {
		for i := range out {
			out[i] = 1
		}
		return device.StatusContinue
	}
	assert.NilErr(t, sess.Start(format, loud, nil))
	s := nextStream(t, dev)

	// Raise the flag without closing the stream, as if the device thread
	// were already inside its next period.
	sess.mtx.Lock()
	sess.run.stopping.Store(true)
	sess.mtx.Unlock()

	out, st := s.render(false)
	assert.DeepEqual(t, st, device.StatusStop)
	assert.DeepEqual(t, out, make([]float32, 8))
	assert.DoesNotBlock(t, sess.Stop)
}

func TestSessionOpenFailure(t *testing.T) {
	t.Parallel()

	dev := newFakeDevice()
	dev.openErr = device.ErrUnsupportedFormat
	sess := NewSession(dev, nil)

	err := sess.Start(device.Format{Channels: 1, SampleRate: 1, BufferFrames: 1},
		func([]float32, bool) device.Status { return device.StatusContinue }, nil)
	assert.ErrorIs(t, err, device.ErrUnsupportedFormat)
	assert.BoolIs(t, sess.Active(), false)
	assert.DoesNotBlock(t, sess.Stop)
}
