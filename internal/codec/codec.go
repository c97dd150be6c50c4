package codec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for files whose container or sample format has
// no decoder.
var ErrUnsupported = errors.New("unsupported audio format")

// PCM is a fully decoded stem: interleaved float32 samples in [-1, 1].
type PCM struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames.
func (p *PCM) Frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Seconds returns the duration at the native sample rate.
func (p *PCM) Seconds() float64 {
	if p.SampleRate == 0 {
		return 0
	}
	return float64(p.Frames()) / float64(p.SampleRate)
}

// Decode decodes the whole file at path, picking the decoder by extension.
func Decode(path string) (*PCM, error) {
	var (
		pcm *PCM
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		pcm, err = decodeWAV(path)
	case ".mp3", ".flac", ".ogg", ".oga":
		pcm, err = decodeBeep(path, ext)
	case ".opus":
		pcm, err = decodeOpus(path)
	default:
		err = fmt.Errorf("%w: extension %q", ErrUnsupported, ext)
	}
	if err != nil {
		return nil, err
	}
	if pcm.Channels < 1 || pcm.SampleRate < 1 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrUnsupported,
			pcm.Channels, pcm.SampleRate)
	}
	return pcm, nil
}
