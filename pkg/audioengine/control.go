package audioengine

import (
	"sync"
	"sync/atomic"
)

const noSeek = -1

// ControlChannel carries control intents from the control side to the render
// callback.
//
// Seeks go through a single slot mailbox, last write wins. Mute and gain
// live in a table guarded by a mutex that is only ever held for O(tracks)
// work.
type ControlChannel struct {
	seek atomic.Int64
	loop atomic.Bool

	mtx   sync.Mutex
	gains []float32
	muted []bool
	solo  int
	saved []bool
}

func newControlChannel(tracks int) *ControlChannel {
	c := &ControlChannel{
		gains: make([]float32, tracks),
		muted: make([]bool, tracks),
		saved: make([]bool, tracks),
		solo:  -1,
	}
	for i := range c.gains {
		c.gains[i] = 1
	}
	c.seek.Store(noSeek)
	return c
}

// postSeek replaces any pending seek.
func (c *ControlChannel) postSeek(frame int64) {
	c.seek.Store(frame)
}

// takeSeek atomically takes and clears the pending seek.
func (c *ControlChannel) takeSeek() (int64, bool) {
	f := c.seek.Swap(noSeek)
	return f, f != noSeek
}

func (c *ControlChannel) pendingSeek() (int64, bool) {
	f := c.seek.Load()
	return f, f != noSeek
}

func (c *ControlChannel) valid(i int) bool {
	return i >= 0 && i < len(c.gains)
}

func (c *ControlChannel) setMute(i int, muted bool) error {
	if !c.valid(i) {
		return ErrBadTrack
	}
	c.mtx.Lock()
	c.muted[i] = muted
	c.mtx.Unlock()
	return nil
}

func (c *ControlChannel) setGain(i int, gain float32) error {
	if !c.valid(i) {
		return ErrBadTrack
	}
	c.mtx.Lock()
	c.gains[i] = gain
	c.mtx.Unlock()
	return nil
}

func (c *ControlChannel) gain(i int) float32 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.gains[i]
}

func (c *ControlChannel) isMuted(i int) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.muted[i]
}

// soloed returns the soloed track, if any.
func (c *ControlChannel) soloed() (int, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.solo, c.solo >= 0
}

// enterSolo mutes every track except i. The mute vector is saved only when
// entering solo from the unsoloed state, so switching the soloed track keeps
// the original vector for exitSolo.
func (c *ControlChannel) enterSolo(i int) error {
	if !c.valid(i) {
		return ErrBadTrack
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.solo < 0 {
		copy(c.saved, c.muted)
	}
	c.solo = i
	for j := range c.muted {
		c.muted[j] = j != i
	}
	return nil
}

// exitSolo restores the mute vector saved by enterSolo. It is a no-op when
// not soloed.
func (c *ControlChannel) exitSolo() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.solo < 0 {
		return
	}
	copy(c.muted, c.saved)
	c.solo = -1
}

// muteVector returns a copy of the active mute flags.
func (c *ControlChannel) muteVector() []bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]bool(nil), c.muted...)
}

// snapshot copies the table into caller owned slices of the same length.
// It runs on the render callback and must not allocate.
func (c *ControlChannel) snapshot(gains []float32, muted []bool) {
	c.mtx.Lock()
	copy(gains, c.gains)
	copy(muted, c.muted)
	c.mtx.Unlock()
}
