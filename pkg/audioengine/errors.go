package audioengine

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionActive is returned when starting playback while a render
	// session is still alive.
	ErrSessionActive = errors.New("playback session already active")

	// ErrNoTracks is returned by transport operations while nothing
	// playable is loaded.
	ErrNoTracks = errors.New("no tracks loaded")

	// ErrEmptyTracks is returned by Play when the loaded tracks hold no
	// audio at all.
	ErrEmptyTracks = errors.New("loaded tracks are empty")

	// ErrBadTrack is returned for a track index outside the loaded set.
	ErrBadTrack = errors.New("no such track")

	// ErrSoloLocked is returned for mute or volume edits on a track other
	// than the soloed one.
	ErrSoloLocked = errors.New("track locked by solo")
)

// LoadError reports a stem that could not be decoded. The rest of the batch
// is loaded regardless.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
