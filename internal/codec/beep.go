package codec

import (
	"fmt"
	"os"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
)

// decodeBeep decodes the compressed formats through beep's decoders, which
// always stream stereo frames; mono files keep only the left channel.
func decodeBeep(path, ext string) (*PCM, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	// mp3 and vorbis close the file through s.Close, flac does not.
	defer file.Close()

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch ext {
	case ".mp3":
		s, format, err = mp3.Decode(file)
	case ".flac":
		s, format, err = flac.Decode(file)
	default:
		s, format, err = vorbis.Decode(file)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot decode %s: %w", path, err)
	}
	defer s.Close()

	ch := format.NumChannels
	if ch != 1 {
		ch = 2
	}
	samples := make([]float32, 0, s.Len()*ch)
	chunk := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(chunk)
		for _, frame := range chunk[:n] {
			samples = append(samples, float32(frame[0]))
			if ch == 2 {
				samples = append(samples, float32(frame[1]))
			}
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("cannot decode %s: %w", path, err)
	}

	return &PCM{
		Samples:    samples,
		Channels:   ch,
		SampleRate: int(format.SampleRate),
	}, nil
}
