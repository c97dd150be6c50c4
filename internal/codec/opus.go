//go:build cgo && !nolibopusfile

package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hraban/opus"
)

// Ogg Opus always decodes at 48 kHz regardless of the input rate stored in
// the header.
const opusRate = 48000

// opusMaxFrame is the largest opus frame (120 ms at 48 kHz).
const opusMaxFrame = 5760

func decodeOpus(path string) (*PCM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ch, err := opusHeadChannels(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	s, err := opus.NewStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cannot open opus stream %s: %w", path, err)
	}
	defer s.Close()

	var samples []float32
	buf := make([]float32, opusMaxFrame*ch)
	for {
		n, err := s.ReadFloat32(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cannot decode %s: %w", path, err)
		}
		if n == 0 {
			break
		}
		samples = append(samples, buf[:n*ch]...)
	}

	return &PCM{Samples: samples, Channels: ch, SampleRate: opusRate}, nil
}
