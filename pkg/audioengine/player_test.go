package audioengine

import (
	"context"
	"errors"
	"math"
	"testing"

	"hdxstem/internal/assert"
	"hdxstem/internal/codec"
	"hdxstem/internal/device"
	"hdxstem/internal/testutils"
)

func TestPlayerIdle(t *testing.T) {
	t.Parallel()

	p, dev := newTestPlayer(t, Config{})
	assert.DeepEqual(t, p.State(), StateIdle)
	assert.ErrorIs(t, p.Play(), ErrNoTracks)
	assert.ErrorIs(t, p.Seek(1), ErrNoTracks)
	assert.ErrorIs(t, p.SetMute(0, true), ErrBadTrack)
	assert.DeepEqual(t, p.Duration(), 0.0)
	assert.DeepEqual(t, dev.opened.Load(), int32(0))
	assert.DoesNotBlock(t, p.Stop)
}

func TestLoadPartialFailure(t *testing.T) {
	t.Parallel()

	dev := newFakeDevice()
	p := NewPlayer(Config{
		Device: dev,
		Decode: stubDecode(map[string]*codec.PCM{
			"bass.wav":  constPCM(441, 1, 44100, 0.1),
			"drums.wav": constPCM(960, 2, 48000, 0.2),
		}),
		TracksLog: testutils.TestLoggerSys(t, "TRKS"),
	})

	errs := p.Load(t.Context(), []string{"broken.wav", "bass.wav", "drums.wav"})
	assert.DeepEqual(t, len(errs), 1)
	var lerr *LoadError
	if !errors.As(errs[0], &lerr) {
		t.Fatalf("unexpected error type %T", errs[0])
	}
	assert.DeepEqual(t, lerr.Path, "broken.wav")
	assert.ErrorIs(t, errs[0], errBoom)

	tracks := p.Tracks()
	assert.DeepEqual(t, len(tracks), 2)
	assert.DeepEqual(t, tracks[0].Label, "bass.wav")
	assert.DeepEqual(t, tracks[1].Label, "drums.wav")

	// The rate comes from the first decoded file, the channel count from
	// the widest one.
	f := p.Format()
	assert.DeepEqual(t, f.SampleRate, 44100)
	assert.DeepEqual(t, f.Channels, 2)
	assert.DeepEqual(t, p.State(), StateStopped)
	assert.Near(t, p.Duration(), 960.0/44100, 1e-9)
}

func TestLoadExpandsMono(t *testing.T) {
	t.Parallel()

	pcm := &codec.PCM{Samples: []float32{0.1, 0.2, 0.3}, Channels: 1, SampleRate: 10}
	store, errs := LoadTracks(t.Context(), []string{"m"}, LoadOptions{
		Decode:   stubDecode(map[string]*codec.PCM{"m": pcm}),
		Channels: 2,
	})
	assert.DeepEqual(t, len(errs), 0)
	assert.DeepEqual(t, store.Tracks[0].Samples, []float32{0.1, 0.1, 0.2, 0.2, 0.3, 0.3})
	assert.DeepEqual(t, store.Tracks[0].Frames, 3)
}

func TestLoadCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	store, errs := LoadTracks(ctx, []string{"a", "b"}, LoadOptions{
		Decode: stubDecode(map[string]*codec.PCM{"a": constPCM(4, 1, 10, 0)}),
	})
	assert.DeepEqual(t, store.Len(), 0)
	assert.DeepEqual(t, len(errs), 2)
	assert.ErrorIs(t, errs[0], context.Canceled)
}

func TestSeekClamps(t *testing.T) {
	t.Parallel()

	p, dev := newTestPlayer(t, Config{SeekMode: SeekMailbox},
		testTrack{"a", constPCM(5*44100, 1, 44100, 0.1)})
	assert.DeepEqual(t, p.Duration(), 5.0)

	tests := []struct {
		seek, want float64
	}{
		{-3, 0},
		{2.5, 2.5},
		{1.234, 1.234},
		{2.71828, 2.71828},
		{4.99999, 4.99999},
		{5, 5},
		{99, 5},
		{math.NaN(), 0},
	}
	for _, tc := range tests {
		assert.NilErr(t, p.Seek(tc.seek))
		assert.DeepEqual(t, p.Position(), tc.want)
	}

	// A seek posted while playing reads back exactly until the callback
	// moves past it.
	assert.NilErr(t, p.Play())
	s := nextStream(t, dev)
	assert.NilErr(t, p.Seek(1.234))
	assert.DeepEqual(t, p.Position(), 1.234)
	s.render(false)
	assert.DeepEqual(t, p.Position(), float64(54419+8)/44100)
	p.Stop()

	assert.NilErr(t, p.Seek(3.14159))
	assert.DeepEqual(t, p.Position(), 3.14159)
}

func TestEmptyTracksAreNotIdle(t *testing.T) {
	t.Parallel()

	p, dev := newTestPlayer(t, Config{},
		testTrack{"silence.wav", constPCM(0, 2, 48000, 0)})

	assert.DeepEqual(t, len(p.Tracks()), 1)
	assert.DeepEqual(t, p.State(), StateStopped)
	assert.DeepEqual(t, p.Duration(), 0.0)
	assert.ErrorIs(t, p.Play(), ErrEmptyTracks)
	assert.DeepEqual(t, dev.opened.Load(), int32(0))
	assert.NilErr(t, p.Seek(2))
	assert.DeepEqual(t, p.Position(), 0.0)
	assert.NilErr(t, p.SetMute(0, true))
}

func TestPlayStopIdempotent(t *testing.T) {
	t.Parallel()

	p, dev := newTestPlayer(t, Config{},
		testTrack{"a", constPCM(500, 2, 100, 0.1)})

	assert.DoesNotBlock(t, p.Stop)
	assert.NilErr(t, p.Play())
	assert.BoolIs(t, p.IsPlaying(), true)
	s := nextStream(t, dev)
	s.render(false)

	assert.DoesNotBlock(t, p.Stop)
	assert.BoolIs(t, s.isClosed(), true)
	assert.BoolIs(t, p.IsPlaying(), false)
	assert.DoesNotBlock(t, p.Stop)
	assert.Near(t, p.Position(), 0.08, 1e-9)
}

func TestPlayWhilePlayingRejected(t *testing.T) {
	t.Parallel()

	p, dev := newTestPlayer(t, Config{},
		testTrack{"a", constPCM(500, 2, 100, 0.1)})

	assert.NilErr(t, p.Play())
	assert.ErrorIs(t, p.Play(), ErrSessionActive)
	assert.DeepEqual(t, dev.opened.Load(), int32(1))

	// The session itself refuses a second run.
	err := p.sess.Start(p.Format(), p.mixer.Render, nil)
	assert.ErrorIs(t, err, ErrSessionActive)
	assert.DeepEqual(t, dev.opened.Load(), int32(1))
}

func TestToggle(t *testing.T) {
	t.Parallel()

	p, _ := newTestPlayer(t, Config{},
		testTrack{"a", constPCM(500, 2, 100, 0.1)})

	assert.NilErr(t, p.Toggle())
	assert.DeepEqual(t, waitEvent(t, p, EventState).State, StatePlaying)
	assert.NilErr(t, p.Toggle())
	assert.DeepEqual(t, waitEvent(t, p, EventState).State, StateStopped)
}

func TestAutoStopAtEnd(t *testing.T) {
	t.Parallel()

	p, dev := newTestPlayer(t, Config{BufferFrames: 8},
		testTrack{"a", constPCM(20, 1, 100, 0.5)})

	assert.NilErr(t, p.Play())
	s := nextStream(t, dev)
	for _, want := range []device.Status{device.StatusContinue,
		device.StatusContinue, device.StatusStop} {
		_, st := s.render(false)
		assert.DeepEqual(t, st, want)
	}

	e := waitEvent(t, p, EventEnded)
	assert.DeepEqual(t, e.State, StateStopped)
	assert.Near(t, e.Position, 0.2, 1e-9)
	assert.BoolIs(t, p.IsPlaying(), false)
	assert.DeepEqual(t, p.Position(), p.Duration())

	// Playing again from the end starts over.
	assert.NilErr(t, p.Play())
	assert.DeepEqual(t, p.Position(), 0.0)
	assert.DeepEqual(t, dev.opened.Load(), int32(2))
}

func TestUnderrunDegrades(t *testing.T) {
	t.Parallel()

	p, dev := newTestPlayer(t, Config{},
		testTrack{"a", constPCM(500, 2, 100, 0.1)})

	assert.NilErr(t, p.Play())
	s := nextStream(t, dev)
	s.render(false)
	_, st := s.render(true)
	assert.DeepEqual(t, st, device.StatusUnderrun)

	e := waitEvent(t, p, EventDegraded)
	assert.DeepEqual(t, e.State, StateStopped)
	assert.BoolIs(t, p.IsPlaying(), false)
	assert.BoolIs(t, s.isClosed(), true)
}

func TestDeviceOpenFailure(t *testing.T) {
	t.Parallel()

	p, dev := newTestPlayer(t, Config{},
		testTrack{"a", constPCM(500, 2, 100, 0.1)})
	dev.openErr = device.ErrUnsupportedFormat

	assert.ErrorIs(t, p.Play(), device.ErrUnsupportedFormat)
	assert.DeepEqual(t, p.State(), StateStopped)

	dev.openErr = nil
	assert.NilErr(t, p.Play())
}

func TestSeekRestartsSession(t *testing.T) {
	t.Parallel()

	p, dev := newTestPlayer(t, Config{},
		testTrack{"a", constPCM(500, 2, 100, 0.1)})

	assert.NilErr(t, p.Play())
	first := nextStream(t, dev)
	first.render(false)

	assert.NilErr(t, p.Seek(3))
	assert.BoolIs(t, first.isClosed(), true)
	assert.BoolIs(t, p.IsPlaying(), true)
	assert.Near(t, p.Position(), 3, 1e-9)

	second := nextStream(t, dev)
	second.render(false)
	assert.Near(t, p.Position(), 3.08, 1e-9)

	// Seeking to the end while playing stops there.
	assert.NilErr(t, p.Seek(10))
	assert.BoolIs(t, p.IsPlaying(), false)
	assert.Near(t, p.Position(), 5, 1e-9)
}

func TestSeekMailbox(t *testing.T) {
	t.Parallel()

	p, dev := newTestPlayer(t, Config{SeekMode: SeekMailbox},
		testTrack{"a", constPCM(500, 2, 100, 0.1)})

	assert.NilErr(t, p.Play())
	s := nextStream(t, dev)
	s.render(false)

	assert.NilErr(t, p.Seek(2))
	assert.Near(t, p.Position(), 2, 1e-9)
	assert.BoolIs(t, s.isClosed(), false)

	s.render(false)
	assert.Near(t, p.Position(), 2.08, 1e-9)
	assert.DeepEqual(t, dev.opened.Load(), int32(1))
}

func TestSoloRestoresMutes(t *testing.T) {
	t.Parallel()

	p, _ := newTestPlayer(t, Config{},
		testTrack{"a", constPCM(10, 1, 100, 0.1)},
		testTrack{"b", constPCM(10, 1, 100, 0.1)},
		testTrack{"c", constPCM(10, 1, 100, 0.1)},
	)
	assert.NilErr(t, p.SetMute(1, true))
	before := p.Muted()

	assert.NilErr(t, p.EnterSolo(0))
	assert.DeepEqual(t, p.Muted(), []bool{false, true, true})

	// Edits on other tracks are locked while soloed.
	assert.ErrorIs(t, p.SetMute(1, false), ErrSoloLocked)
	assert.ErrorIs(t, p.SetMute(2, false), ErrSoloLocked)
	assert.ErrorIs(t, p.SetVolume(2, 0.2), ErrSoloLocked)
	_, err := p.BeginVolumeDrag(1)
	assert.ErrorIs(t, err, ErrSoloLocked)

	// Moving the solo keeps the original snapshot.
	assert.NilErr(t, p.EnterSolo(2))
	assert.DeepEqual(t, p.Muted(), []bool{true, true, false})
	solo, ok := p.Soloed()
	assert.BoolIs(t, ok, true)
	assert.DeepEqual(t, solo, 2)

	p.ExitSolo()
	assert.DeepEqual(t, p.Muted(), before)
	_, ok = p.Soloed()
	assert.BoolIs(t, ok, false)

	// Exiting again is a no-op.
	p.ExitSolo()
	assert.DeepEqual(t, p.Muted(), before)
	assert.ErrorIs(t, p.EnterSolo(3), ErrBadTrack)
}

func TestSetVolumeClamps(t *testing.T) {
	t.Parallel()

	p, _ := newTestPlayer(t, Config{},
		testTrack{"a", constPCM(10, 1, 100, 0.1)})

	tests := []struct {
		gain, want float64
	}{
		{0.3, 0.3},
		{-1, 0},
		{1.7, 1},
	}
	for _, tc := range tests {
		assert.NilErr(t, p.SetVolume(0, tc.gain))
		g, err := p.Gain(0)
		assert.NilErr(t, err)
		assert.Near(t, g, tc.want, 1e-6)
	}
	assert.ErrorIs(t, p.SetVolume(1, 0.5), ErrBadTrack)
}

func TestVolumeDragIsRelative(t *testing.T) {
	t.Parallel()

	p, _ := newTestPlayer(t, Config{},
		testTrack{"a", constPCM(10, 1, 100, 0.1)})
	assert.NilErr(t, p.SetVolume(0, 0.5))

	d, err := p.BeginVolumeDrag(0)
	assert.NilErr(t, err)
	assert.Near(t, d.Reference(), 0.5, 1e-6)

	assert.NilErr(t, d.Update(0.2))
	g, _ := p.Gain(0)
	assert.Near(t, g, 0.7, 1e-6)

	assert.NilErr(t, d.Update(-0.1))
	g, _ = p.Gain(0)
	assert.Near(t, g, 0.4, 1e-6)

	// A new drag starts from where the last one left the gain.
	d, err = p.BeginVolumeDrag(0)
	assert.NilErr(t, err)
	assert.Near(t, d.Reference(), 0.4, 1e-6)
	assert.NilErr(t, d.Update(1))
	g, _ = p.Gain(0)
	assert.Near(t, g, 1.0, 1e-6)
}

func TestLoadStopsPlayback(t *testing.T) {
	t.Parallel()

	p, dev := newTestPlayer(t, Config{},
		testTrack{"a", constPCM(500, 2, 100, 0.1)})
	assert.NilErr(t, p.Play())
	s := nextStream(t, dev)
	assert.NilErr(t, p.EnterSolo(0))

	errs := p.Load(t.Context(), []string{"a"})
	assert.DeepEqual(t, len(errs), 0)
	assert.BoolIs(t, s.isClosed(), true)
	assert.DeepEqual(t, p.State(), StateStopped)
	assert.DeepEqual(t, p.Position(), 0.0)
	_, soloed := p.Soloed()
	assert.BoolIs(t, soloed, false)
}

func TestPlayerWithNullDevice(t *testing.T) {
	t.Parallel()

	var frames int
	dev := &device.Null{Unpaced: true, Sink: func(buf []float32) error {
		frames += len(buf) / 2
		return nil
	}}
	p := NewPlayer(Config{
		Device:       dev,
		BufferFrames: 64,
		Decode: stubDecode(map[string]*codec.PCM{
			"a": constPCM(1000, 2, 8000, 0.3),
			"b": constPCM(700, 1, 8000, 0.3),
		}),
		Log:        testutils.TestLoggerSys(t, "ENGN"),
		SessionLog: testutils.TestLoggerSys(t, "SESS"),
	})
	defer p.Close()

	assert.DeepEqual(t, len(p.Load(t.Context(), []string{"a", "b"})), 0)
	assert.NilErr(t, p.Play())

	e := waitEvent(t, p, EventEnded)
	assert.Near(t, e.Position, 1000.0/8000, 1e-9)
	assert.BoolIs(t, p.IsPlaying(), false)
	p.Stop()
	// 1000 frames in buffers of 64.
	assert.DeepEqual(t, frames, 16*64)
}

func TestLoopKeepsPlaying(t *testing.T) {
	t.Parallel()

	p, dev := newTestPlayer(t, Config{Loop: true, BufferFrames: 8},
		testTrack{"a", constPCM(12, 1, 100, 0.5)})
	assert.BoolIs(t, p.Loop(), true)

	assert.NilErr(t, p.Play())
	s := nextStream(t, dev)
	for i := 0; i < 5; i++ {
		_, st := s.render(false)
		assert.DeepEqual(t, st, device.StatusContinue)
	}
	assert.BoolIs(t, p.IsPlaying(), true)
	assert.Near(t, p.Position(), 0.04, 1e-9)

	p.SetLoop(false)
	assert.BoolIs(t, p.Loop(), false)
}
