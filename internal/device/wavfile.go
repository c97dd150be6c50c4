package device

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVFile renders streams as fast as possible into a PCM wav file. Each
// Open truncates the file; Close finalizes the header.
type WAVFile struct {
	Path     string
	BitDepth int // 16 or 24, defaults to 16
}

func (d *WAVFile) Open(f Format, cb Callback) (Stream, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	depth := d.BitDepth
	if depth == 0 {
		depth = 16
	}
	if depth != 16 && depth != 24 {
		return nil, fmt.Errorf("%w: %d bit wav", ErrUnsupportedFormat, depth)
	}

	file, err := os.Create(d.Path)
	if err != nil {
		return nil, fmt.Errorf("cannot create %s: %w", d.Path, err)
	}

	w := &wavWriter{
		file:  file,
		enc:   wav.NewEncoder(file, f.SampleRate, depth, f.Channels, 1),
		scale: float64(int(1)<<(depth-1)) - 1,
		buf: &audio.IntBuffer{
			Data:           make([]int, f.BufferFrames*f.Channels),
			Format:         &audio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
			SourceBitDepth: depth,
		},
	}
	null := &Null{Unpaced: true, Sink: w.write}
	inner, err := null.Open(f, cb)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &wavStream{Stream: inner, w: w}, nil
}

type wavWriter struct {
	file  *os.File
	enc   *wav.Encoder
	scale float64
	buf   *audio.IntBuffer
}

func (w *wavWriter) write(samples []float32) error {
	data := w.buf.Data[:len(samples)]
	for i, v := range samples {
		x := math.Max(-1, math.Min(1, float64(v)))
		data[i] = int(math.Round(x * w.scale))
	}
	w.buf.Data = data
	return w.enc.Write(w.buf)
}

type wavStream struct {
	Stream
	w *wavWriter
}

func (s *wavStream) Close() error {
	if err := s.Stream.Close(); err != nil {
		return err
	}
	if s.w.file == nil {
		return nil
	}
	err := s.w.enc.Close()
	if cerr := s.w.file.Close(); err == nil {
		err = cerr
	}
	s.w.file = nil
	return err
}
