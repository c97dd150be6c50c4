package audioengine

import (
	"math"
	"sync/atomic"
)

// TransportState is the play/stop state of the transport.
type TransportState int32

const (
	StateIdle TransportState = iota
	StateStopped
	StatePlaying
)

func (s TransportState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// TransportClock is the playhead shared by all tracks. Position is kept in
// frames at the store rate. It is written by the render callback and read by
// the control side, so every field that changes is atomic.
//
// A seek also records the requested seconds next to the frame it rounded
// to. Position reports those seconds until the playhead leaves that frame.
type TransportClock struct {
	rate   int
	frames int64

	pos   atomic.Int64
	state atomic.Int32

	markSec   atomic.Uint64
	markFrame atomic.Int64
}

// newTransportClock returns a clock for a store holding tracks tracks. The
// clock is Idle only when nothing is loaded; a set of empty tracks is
// Stopped with zero duration.
func newTransportClock(rate int, frames int64, tracks int) *TransportClock {
	c := &TransportClock{rate: rate, frames: frames}
	c.markFrame.Store(-1)
	if tracks > 0 {
		c.state.Store(int32(StateStopped))
	}
	return c
}

// State returns the transport state.
func (c *TransportClock) State() TransportState {
	return TransportState(c.state.Load())
}

func (c *TransportClock) setState(s TransportState) {
	c.state.Store(int32(s))
}

func (c *TransportClock) swapState(from, to TransportState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// Frame returns the position in frames.
func (c *TransportClock) Frame() int64 {
	return c.pos.Load()
}

func (c *TransportClock) setFrame(f int64) {
	c.pos.Store(f)
}

// mark ties sec to frame f without moving the playhead.
func (c *TransportClock) mark(f int64, sec float64) {
	c.markSec.Store(math.Float64bits(sec))
	c.markFrame.Store(f)
}

// seekTo moves the playhead to f, which is sec rounded to a frame.
func (c *TransportClock) seekTo(f int64, sec float64) {
	c.mark(f, sec)
	c.pos.Store(f)
}

// Frames returns the duration in frames.
func (c *TransportClock) Frames() int64 {
	return c.frames
}

// Position returns the position in seconds.
func (c *TransportClock) Position() float64 {
	return c.secondsAt(c.pos.Load())
}

// Duration returns the duration in seconds.
func (c *TransportClock) Duration() float64 {
	return c.seconds(c.frames)
}

func (c *TransportClock) seconds(f int64) float64 {
	if c.rate == 0 {
		return 0
	}
	return float64(f) / float64(c.rate)
}

// secondsAt converts frame f to seconds, preferring the seconds a seek asked
// for when f is the frame that seek landed on.
func (c *TransportClock) secondsAt(f int64) float64 {
	if c.markFrame.Load() == f {
		return math.Float64frombits(c.markSec.Load())
	}
	return c.seconds(f)
}

// clampSeconds limits sec to [0, duration].
func (c *TransportClock) clampSeconds(sec float64) float64 {
	if math.IsNaN(sec) || sec <= 0 {
		return 0
	}
	if d := c.Duration(); sec >= d {
		return d
	}
	return sec
}

// clampFrame converts seconds to a frame inside [0, duration].
func (c *TransportClock) clampFrame(sec float64) int64 {
	if math.IsNaN(sec) || sec <= 0 {
		return 0
	}
	f := math.Round(sec * float64(c.rate))
	if f >= float64(c.frames) {
		return c.frames
	}
	return int64(f)
}
