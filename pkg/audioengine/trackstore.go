package audioengine

import (
	"context"
	"path/filepath"

	"hdxstem/internal/codec"
	"hdxstem/pkg/spec"

	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"
)

// DecodeFunc fully decodes one stem file.
type DecodeFunc func(path string) (*codec.PCM, error)

// Track is one decoded stem. Samples are immutable once the track is part of
// a TrackStore.
type Track struct {
	Path  string
	Label string

	// Samples is interleaved at the store's channel count.
	Samples []float32
	Frames  int

	SourceChannels int
	SampleRate     int
}

// Seconds is the track length at its own sample rate.
func (t *Track) Seconds() float64 {
	if t.SampleRate == 0 {
		return 0
	}
	return float64(t.Frames) / float64(t.SampleRate)
}

// TrackStore is the set of stems loaded together. A new load builds a new
// store, it is never modified in place.
type TrackStore struct {
	Tracks     []*Track
	Channels   int
	SampleRate int

	// Frames is the longest track, in frames at SampleRate. Every track
	// is played at SampleRate, so this is the real playback length even for
	// a track whose native rate differs.
	Frames int
}

// Len returns the number of tracks.
func (s *TrackStore) Len() int {
	return len(s.Tracks)
}

// Duration returns the store length in seconds.
func (s *TrackStore) Duration() float64 {
	return float64(s.Frames) / float64(s.SampleRate)
}

func emptyStore(channels int) *TrackStore {
	if channels < 1 {
		channels = spec.Channels
	}
	return &TrackStore{Channels: channels, SampleRate: spec.SampleRate}
}

// LoadOptions configures LoadTracks.
type LoadOptions struct {
	// Decode defaults to codec.Decode.
	Decode DecodeFunc

	// Channels forces the output channel count. Zero uses the widest
	// decoded track.
	Channels int

	// Workers bounds parallel decoding. Zero uses spec.DecodeWorkers.
	Workers int

	Log slog.Logger
}

// LoadTracks decodes paths in parallel. Files that fail to decode are
// reported as *LoadError and skipped; the store holds the remaining tracks
// in path order.
//
// The shared sample rate is the rate of the first decoded file. Tracks with
// another native rate are kept and will play at the wrong speed.
func LoadTracks(ctx context.Context, paths []string, opts LoadOptions) (*TrackStore, []error) {
	decode := opts.Decode
	if decode == nil {
		decode = codec.Decode
	}
	workers := opts.Workers
	if workers < 1 {
		workers = spec.DecodeWorkers
	}
	log := opts.Log
	if log == nil {
		log = slog.Disabled
	}

	pcms := make([]*codec.PCM, len(paths))
	errs := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = &LoadError{Path: path, Err: err}
				return nil
			}
			pcm, err := decode(path)
			if err != nil {
				errs[i] = &LoadError{Path: path, Err: err}
				return nil
			}
			pcms[i] = pcm
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			log.Warnf("Skipping stem: %v", err)
			failed = append(failed, err)
		}
	}

	channels := opts.Channels
	if channels < 1 {
		for _, pcm := range pcms {
			if pcm != nil && pcm.Channels > channels {
				channels = pcm.Channels
			}
		}
	}
	store := emptyStore(channels)

	rateSet := false
	for i, pcm := range pcms {
		if pcm == nil {
			continue
		}
		if !rateSet {
			store.SampleRate = pcm.SampleRate
			rateSet = true
		} else if pcm.SampleRate != store.SampleRate {
			log.Warnf("%s is %d Hz, session runs at %d Hz; it will play "+
				"at the wrong speed", paths[i], pcm.SampleRate, store.SampleRate)
		}

		t := &Track{
			Path:           paths[i],
			Label:          filepath.Base(paths[i]),
			Samples:        expandChannels(pcm.Samples, pcm.Channels, store.Channels),
			Frames:         pcm.Frames(),
			SourceChannels: pcm.Channels,
			SampleRate:     pcm.SampleRate,
		}
		store.Tracks = append(store.Tracks, t)
		if t.Frames > store.Frames {
			store.Frames = t.Frames
		}
		log.Debugf("Loaded %s: %d frames, %d ch, %d Hz", t.Label, t.Frames,
			t.SourceChannels, t.SampleRate)
	}

	return store, failed
}

// expandChannels maps src (srcCh interleaved) onto dstCh channels. Output
// channel c reads source channel c%srcCh, so mono is duplicated and extra
// source channels are dropped.
func expandChannels(src []float32, srcCh, dstCh int) []float32 {
	if srcCh == dstCh {
		return src
	}
	frames := len(src) / srcCh
	dst := make([]float32, frames*dstCh)
	for f := 0; f < frames; f++ {
		in := src[f*srcCh : (f+1)*srcCh]
		out := dst[f*dstCh : (f+1)*dstCh]
		for c := range out {
			out[c] = in[c%srcCh]
		}
	}
	return dst
}
