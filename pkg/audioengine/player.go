package audioengine

import (
	"context"
	"math"
	"sync"

	"hdxstem/internal/codec"
	"hdxstem/internal/device"
	"hdxstem/pkg/spec"

	"github.com/decred/slog"
)

// SeekMode selects how a seek is applied while playing.
type SeekMode int

const (
	// SeekRestart stops the running session and starts a new one at the
	// target, so no buffer mixes audio from both sides of the jump.
	SeekRestart SeekMode = iota
	// SeekMailbox posts the target to the control channel; the callback
	// applies it at the next buffer boundary.
	SeekMailbox
)

// Config configures a Player.
type Config struct {
	Device device.Device

	// Decode defaults to codec.Decode.
	Decode DecodeFunc

	// BufferFrames is the device buffer size. Defaults to spec.BufferFrames.
	BufferFrames int

	// Channels forces the output channel count. Zero follows the tracks.
	Channels int

	// Workers bounds parallel decoding on Load.
	Workers int

	SeekMode SeekMode
	Loop     bool

	Log        slog.Logger
	SessionLog slog.Logger
	TracksLog  slog.Logger
}

// TrackInfo describes a loaded track and its control state.
type TrackInfo struct {
	Index      int     `json:"index"`
	Label      string  `json:"label"`
	Path       string  `json:"path"`
	Channels   int     `json:"channels"`
	SampleRate int     `json:"sample_rate"`
	Seconds    float64 `json:"seconds"`
	Muted      bool    `json:"muted"`
	Gain       float64 `json:"gain"`
	Soloed     bool    `json:"soloed"`
}

// Player is the control surface of the engine. All methods are safe for
// concurrent use; transport changes are serialized.
type Player struct {
	cfg    Config
	log    slog.Logger
	sess   *Session
	events chan Event

	mu    sync.Mutex
	store *TrackStore
	ctl   *ControlChannel
	clock *TransportClock
	mixer *Mixer
}

// NewPlayer returns an idle player.
func NewPlayer(cfg Config) *Player {
	if cfg.Decode == nil {
		cfg.Decode = codec.Decode
	}
	if cfg.BufferFrames < 1 {
		cfg.BufferFrames = spec.BufferFrames
	}
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	if cfg.TracksLog == nil {
		cfg.TracksLog = cfg.Log
	}
	if cfg.SessionLog == nil {
		cfg.SessionLog = cfg.Log
	}

	p := &Player{
		cfg:    cfg,
		log:    cfg.Log,
		sess:   NewSession(cfg.Device, cfg.SessionLog),
		events: make(chan Event, eventBuffer),
	}
	p.install(emptyStore(cfg.Channels))
	p.ctl.loop.Store(cfg.Loop)
	return p
}

// install swaps in a new store with fresh control state. Called with no
// session running.
func (p *Player) install(store *TrackStore) {
	ctl := newControlChannel(store.Len())
	if p.ctl != nil {
		ctl.loop.Store(p.ctl.loop.Load())
	}
	p.store = store
	p.ctl = ctl
	p.clock = newTransportClock(store.SampleRate, int64(store.Frames), store.Len())
	p.mixer = newMixer(store, ctl, p.clock, p.cfg.BufferFrames)
}

// Events returns the channel of transport events. Events are dropped when
// nobody reads.
func (p *Player) Events() <-chan Event {
	return p.events
}

// Load decodes paths and replaces the loaded set. Any running session is
// stopped first. Files that fail to decode are skipped and returned as
// *LoadError values.
func (p *Player) Load(ctx context.Context, paths []string) []error {
	store, errs := LoadTracks(ctx, paths, LoadOptions{
		Decode:   p.cfg.Decode,
		Channels: p.cfg.Channels,
		Workers:  p.cfg.Workers,
		Log:      p.cfg.TracksLog,
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sess.Stop()
	p.install(store)
	p.log.Infof("Loaded %d of %d stems, %.2fs at %d Hz, %d ch", store.Len(),
		len(paths), store.Duration(), store.SampleRate, store.Channels)
	p.emitState(EventLoaded)
	return errs
}

// Play starts rendering from the current position. A transport parked at
// the end rewinds to the start.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playLocked()
}

func (p *Player) playLocked() error {
	switch p.clock.State() {
	case StateIdle:
		return ErrNoTracks
	case StatePlaying:
		return ErrSessionActive
	}
	if p.clock.Frames() == 0 {
		return ErrEmptyTracks
	}

	// Join a run that ended by itself before starting the next one.
	p.sess.Stop()

	if f, ok := p.ctl.takeSeek(); ok {
		p.clock.setFrame(f)
	}
	if p.clock.Frame() >= p.clock.Frames() {
		p.clock.seekTo(0, 0)
	}

	format := device.Format{
		Channels:     p.store.Channels,
		SampleRate:   p.store.SampleRate,
		BufferFrames: p.cfg.BufferFrames,
	}
	clock := p.clock
	p.clock.setState(StatePlaying)
	if err := p.sess.Start(format, p.mixer.Render, p.onEnd(clock)); err != nil {
		p.clock.setState(StateStopped)
		p.log.Errorf("Unable to start playback: %v", err)
		return err
	}
	p.emitState(EventState)
	return nil
}

// onEnd runs on the session driver. It only touches atomics and the event
// channel, since Stop may hold p.mu while waiting for it.
func (p *Player) onEnd(clock *TransportClock) EndFunc {
	return func(status device.Status, requested bool) {
		if requested || !clock.swapState(StatePlaying, StateStopped) {
			return
		}
		e := Event{
			Kind:     EventEnded,
			State:    StateStopped,
			Position: clock.Position(),
			Duration: clock.Duration(),
		}
		if status == device.StatusUnderrun {
			e.Kind = EventDegraded
		}
		p.emit(e)
	}
}

// Stop stops playback and waits for the render side to exit. Stopping a
// stopped player is a no-op.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	p.sess.Stop()
	if p.clock.swapState(StatePlaying, StateStopped) {
		if f, ok := p.ctl.takeSeek(); ok {
			p.clock.setFrame(f)
		}
		p.emitState(EventState)
	}
}

// Toggle plays when stopped and stops when playing.
func (p *Player) Toggle() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clock.State() == StatePlaying {
		p.stopLocked()
		return nil
	}
	return p.playLocked()
}

// Seek moves the playhead to sec, clamped to [0, duration].
func (p *Player) Seek(sec float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clock.State() == StateIdle {
		return ErrNoTracks
	}
	sec = p.clock.clampSeconds(sec)
	target := p.clock.clampFrame(sec)

	if p.clock.State() != StatePlaying {
		p.ctl.takeSeek()
		p.clock.seekTo(target, sec)
		p.emitState(EventSeek)
		return nil
	}

	if p.cfg.SeekMode == SeekMailbox {
		p.clock.mark(target, sec)
		p.ctl.postSeek(target)
		p.emitState(EventSeek)
		return nil
	}

	p.sess.Stop()
	p.clock.seekTo(target, sec)
	if target >= p.clock.Frames() {
		p.clock.setState(StateStopped)
		p.emitState(EventEnded)
		return nil
	}
	p.clock.setState(StateStopped)
	return p.playLocked()
}

// SetMute mutes or unmutes track i.
func (p *Player) SetMute(i int, muted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.editable(i); err != nil {
		return err
	}
	return p.ctl.setMute(i, muted)
}

// SetVolume sets the gain of track i, clamped to [0, 1].
func (p *Player) SetVolume(i int, gain float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.editable(i); err != nil {
		return err
	}
	return p.ctl.setGain(i, clampGain(gain))
}

// editable applies the solo lock: while soloed only the soloed track may
// change, which keeps the mute vector restored by ExitSolo meaningful.
func (p *Player) editable(i int) error {
	if !p.ctl.valid(i) {
		return ErrBadTrack
	}
	if s, ok := p.ctl.soloed(); ok && s != i {
		return ErrSoloLocked
	}
	return nil
}

// EnterSolo mutes every track but i. Soloing another track while soloed
// keeps the mute state from before the first EnterSolo.
func (p *Player) EnterSolo(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctl.enterSolo(i)
}

// ExitSolo restores the mute state from before EnterSolo.
func (p *Player) ExitSolo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctl.exitSolo()
}

// Soloed returns the soloed track, if any.
func (p *Player) Soloed() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctl.soloed()
}

// Muted reports the active mute flags.
func (p *Player) Muted() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctl.muteVector()
}

// Gain returns the gain of track i.
func (p *Player) Gain(i int) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ctl.valid(i) {
		return 0, ErrBadTrack
	}
	return float64(p.ctl.gain(i)), nil
}

// SetLoop enables wrapping to the start instead of stopping at the end.
func (p *Player) SetLoop(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctl.loop.Store(on)
}

// Loop reports whether loop mode is on.
func (p *Player) Loop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctl.loop.Load()
}

// Position returns the playhead in seconds, including a seek that was posted
// but not yet applied by the callback.
func (p *Player) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.ctl.pendingSeek(); ok {
		return p.clock.secondsAt(f)
	}
	return p.clock.Position()
}

// Duration returns the length of the longest track in seconds.
func (p *Player) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clock.Duration()
}

// IsPlaying reports whether a render session is running.
func (p *Player) IsPlaying() bool {
	return p.State() == StatePlaying
}

// State returns the transport state.
func (p *Player) State() TransportState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clock.State()
}

// Peak returns the peak of the last rendered buffer before limiting.
func (p *Player) Peak() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(p.mixer.Peak())
}

// Format returns the output format of the loaded set.
func (p *Player) Format() device.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return device.Format{
		Channels:     p.store.Channels,
		SampleRate:   p.store.SampleRate,
		BufferFrames: p.cfg.BufferFrames,
	}
}

// Tracks describes the loaded tracks.
func (p *Player) Tracks() []TrackInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	solo, soloed := p.ctl.soloed()
	res := make([]TrackInfo, p.store.Len())
	for i, t := range p.store.Tracks {
		res[i] = TrackInfo{
			Index:      i,
			Label:      t.Label,
			Path:       t.Path,
			Channels:   t.SourceChannels,
			SampleRate: t.SampleRate,
			Seconds:    t.Seconds(),
			Muted:      p.ctl.isMuted(i),
			Gain:       float64(p.ctl.gain(i)),
			Soloed:     soloed && solo == i,
		}
	}
	return res
}

// Close stops playback. The player stays usable.
func (p *Player) Close() {
	p.Stop()
}

func clampGain(g float64) float32 {
	switch {
	case math.IsNaN(g), g < spec.MinGain:
		return spec.MinGain
	case g > spec.MaxGain:
		return spec.MaxGain
	}
	return float32(g)
}
