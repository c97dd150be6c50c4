package audioengine

import (
	"math"
	"sync/atomic"

	"hdxstem/internal/device"

	"github.com/viterin/vek/vek32"
)

// Mixer renders the tracks of one store into device buffers. Render is the
// device callback: it never blocks beyond the control table lock and never
// allocates.
type Mixer struct {
	store *TrackStore
	ctl   *ControlChannel
	clock *TransportClock

	gains   []float32
	muted   []bool
	scratch []float32

	peak atomic.Uint32
}

// newMixer binds a mixer to a store, its control channel and clock.
// bufferFrames sizes the scratch buffer; larger device buffers are mixed in
// chunks.
func newMixer(store *TrackStore, ctl *ControlChannel, clock *TransportClock, bufferFrames int) *Mixer {
	if bufferFrames < 1 {
		bufferFrames = 1
	}
	return &Mixer{
		store:   store,
		ctl:     ctl,
		clock:   clock,
		gains:   make([]float32, store.Len()),
		muted:   make([]bool, store.Len()),
		scratch: make([]float32, bufferFrames*store.Channels),
	}
}

// Peak returns the absolute peak of the last rendered buffer before
// limiting.
func (m *Mixer) Peak() float32 {
	return math.Float32frombits(m.peak.Load())
}

// Render fills out with the next buffer of the mix.
func (m *Mixer) Render(out []float32, xrun bool) device.Status {
	if xrun {
		clear(out)
		return device.StatusUnderrun
	}

	if f, ok := m.ctl.takeSeek(); ok {
		m.clock.setFrame(f)
	}
	m.ctl.snapshot(m.gains, m.muted)
	clear(out)

	ch := int64(m.store.Channels)
	n := int64(len(out)) / ch
	total := m.clock.Frames()
	pos := m.clock.Frame()

	// Frames left before the end of the longest track.
	head := min(n, total-pos)
	m.mix(out[:head*ch], pos)

	next := pos + head
	status := device.StatusContinue
	if head < n || next >= total {
		if m.ctl.loop.Load() && total > 0 {
			next = m.wrap(out[head*ch:], n-head)
		} else {
			next = total
			status = device.StatusStop
		}
	}

	m.limit(out)
	m.clock.setFrame(next)
	return status
}

// wrap restarts from frame 0 into the rest of the buffer, looping as many
// times as needed for very short stores.
func (m *Mixer) wrap(out []float32, n int64) int64 {
	ch := int64(m.store.Channels)
	total := m.clock.Frames()
	var pos int64
	for n > 0 {
		k := min(n, total)
		m.mix(out[:k*ch], 0)
		out = out[k*ch:]
		n -= k
		pos = k
	}
	if pos >= total {
		pos = 0
	}
	return pos
}

// mix accumulates gain scaled samples of every unmuted track at frame pos
// into out. Tracks that ended contribute silence.
func (m *Mixer) mix(out []float32, pos int64) {
	if len(out) == 0 {
		return
	}
	ch := int64(m.store.Channels)
	n := int64(len(out)) / ch
	for i, t := range m.store.Tracks {
		if m.muted[i] || m.gains[i] == 0 {
			continue
		}
		avail := min(n, int64(t.Frames)-pos)
		if avail <= 0 {
			continue
		}
		src := t.Samples[pos*ch : (pos+avail)*ch]
		dst := out[:avail*ch]
		if g := m.gains[i]; g == 1 {
			vek32.Add_Inplace(dst, src)
		} else {
			m.accumulate(dst, src, g)
		}
	}
}

func (m *Mixer) accumulate(dst, src []float32, gain float32) {
	for len(src) > 0 {
		k := min(len(src), len(m.scratch))
		tmp := vek32.MulNumber_Into(m.scratch[:k], src[:k], gain)
		vek32.Add_Inplace(dst[:k], tmp)
		dst, src = dst[k:], src[k:]
	}
}

// limit scales the whole buffer by 1/peak when the mix clips. Each buffer
// is limited on its own, so gain jumps at buffer boundaries are audible on
// loud material.
func (m *Mixer) limit(out []float32) {
	if len(out) == 0 {
		m.peak.Store(0)
		return
	}
	peak := max(vek32.Max(out), -vek32.Min(out))
	m.peak.Store(math.Float32bits(peak))
	if peak > 1 {
		vek32.MulNumber_Inplace(out, 1/peak)
	}
}
