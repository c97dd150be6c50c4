package audioengine

// VolumeDrag adjusts one track's gain relative to the gain it had when the
// drag began, so a new drag never jumps to wherever the previous one ended.
type VolumeDrag struct {
	p     *Player
	track int
	ref   float64
}

// BeginVolumeDrag starts a drag on track i.
func (p *Player) BeginVolumeDrag(i int) (*VolumeDrag, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.editable(i); err != nil {
		return nil, err
	}
	return &VolumeDrag{p: p, track: i, ref: float64(p.ctl.gain(i))}, nil
}

// Track returns the dragged track.
func (d *VolumeDrag) Track() int {
	return d.track
}

// Reference returns the gain recorded when the drag began.
func (d *VolumeDrag) Reference() float64 {
	return d.ref
}

// Update sets the gain to the reference plus delta, clamped to [0, 1].
func (d *VolumeDrag) Update(delta float64) error {
	return d.p.SetVolume(d.track, d.ref+delta)
}
