package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	// analysisFFT is the FFT window used for the spectral figures.
	analysisFFT = 1024
	// WaveformPoints is the resolution of the waveform overview.
	WaveformPoints = 1000
)

// Summary holds per-stem figures shown by hdx-stemmeta and the TRACKS
// command.
type Summary struct {
	Peak     float64 // absolute sample peak, 0..1
	RMS      float64 // RMS over all channels
	Centroid float64 // mean spectral centroid in Hz
	Waveform []byte  // RMS overview, one byte per point
}

// Analyze computes the summary of a decoded stem.
func Analyze(pcm *PCM) Summary {
	var s Summary
	if pcm == nil || len(pcm.Samples) == 0 {
		return s
	}

	var sum float64
	for _, v := range pcm.Samples {
		f := float64(v)
		if a := math.Abs(f); a > s.Peak {
			s.Peak = a
		}
		sum += f * f
	}
	s.RMS = math.Sqrt(sum / float64(len(pcm.Samples)))
	s.Waveform = waveform(pcm.Samples, WaveformPoints)
	s.Centroid = centroid(downmix(pcm), pcm.SampleRate)
	return s
}

// downmix folds interleaved frames into one mono channel.
func downmix(pcm *PCM) []float64 {
	frames := pcm.Frames()
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var acc float64
		for c := 0; c < pcm.Channels; c++ {
			acc += float64(pcm.Samples[i*pcm.Channels+c])
		}
		mono[i] = acc / float64(pcm.Channels)
	}
	return mono
}

// centroid averages the power weighted spectral centroid of Hann windowed
// blocks, skipping silent blocks.
func centroid(mono []float64, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	binHz := float64(rate) / analysisFFT
	block := make([]float64, analysisFFT)

	var total float64
	var n int
	for start := 0; start+analysisFFT <= len(mono); start += analysisFFT {
		copy(block, mono[start:start+analysisFFT])
		window.Apply(block, window.Hann)
		coeffs := fft.FFTReal(block)

		var weighted, energy float64
		for k := 1; k < analysisFFT/2; k++ {
			mag := cmplx.Abs(coeffs[k])
			p := mag * mag
			weighted += p * float64(k) * binHz
			energy += p
		}
		if energy < 1e-12 {
			continue
		}
		total += weighted / energy
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// waveform reduces samples to points RMS bytes (0-255).
func waveform(samples []float32, points int) []byte {
	step := len(samples) / points
	if step == 0 {
		step = 1
	}

	out := make([]byte, 0, points)
	for i := 0; i < len(samples); i += step {
		var sum float64
		count := 0
		for j := 0; j < step && i+j < len(samples); j++ {
			v := float64(samples[i+j])
			sum += v * v
			count++
		}
		rms := math.Sqrt(sum / float64(count))
		out = append(out, uint8(math.Min(rms*255, 255)))
	}
	return out
}

// Spectrogram renders a width x height PNG of the stem's mono downmix, low
// frequencies at the bottom.
func Spectrogram(pcm *PCM, width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	mono := downmix(pcm)

	step := len(mono) / width
	if step < analysisFFT {
		step = analysisFFT
	}

	block := make([]float64, analysisFFT)
	for x := 0; x < width; x++ {
		start := x * step
		if start+analysisFFT > len(mono) {
			break
		}
		copy(block, mono[start:start+analysisFFT])
		window.Apply(block, window.Hann)
		coeffs := fft.FFTReal(block)

		for y := 0; y < height; y++ {
			idx := (height - 1 - y) * (analysisFFT / 2) / height
			mag := cmplx.Abs(coeffs[idx])
			// 0 dB at full scale, floor at -96 dB.
			db := 20 * math.Log10(mag/(analysisFFT/4)+1e-12)
			level := (db + 96) / 96
			level = math.Max(0, math.Min(1, level))
			intensity := uint8(level * 255)
			img.Set(x, y, color.RGBA{R: intensity / 2, G: intensity, B: intensity / 2, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
