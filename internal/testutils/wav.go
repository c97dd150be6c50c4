package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes a 16-bit PCM wav file named name inside dir. samples is
// interleaved with the given channel count and holds values in [-1, 1].
// Returns the full path of the file.
func WriteWAV(t testing.TB, dir, name string, rate, channels int, samples []float64) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s * 32767)
	}

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// Constant returns frames*channels copies of v.
func Constant(frames, channels int, v float64) []float64 {
	res := make([]float64, frames*channels)
	for i := range res {
		res[i] = v
	}
	return res
}
