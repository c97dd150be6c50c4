/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"hdxstem/internal/codec"
	"hdxstem/pkg/spec"

	"github.com/jessevdk/go-flags"
	"golang.org/x/sync/errgroup"
)

const (
	app_name           = "HDX-StemMeta"
	developer_title    = "Developer Hardiyanto"
	developer_subtitle = "Stem Edition"
)

type config struct {
	JSONDump    bool   `short:"j" long:"jsondump" description:"Dump the analysis as JSON"`
	Spectrogram string `short:"g" long:"spectrogram" description:"Write one spectrogram PNG per stem into this directory"`
	Workers     int    `short:"w" long:"workers" description:"Parallel decoders"`
	Args        struct {
		Stems []string `positional-arg-name:"stem" required:"1"`
	} `positional-args:"yes"`
}

type stemInfo struct {
	Path       string  `json:"path"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Seconds    float64 `json:"seconds"`
	Size       int64   `json:"size"`
	PeakDB     float64 `json:"peak_dbfs"`
	RMSDB      float64 `json:"rms_dbfs"`
	Centroid   float64 `json:"centroid_hz"`
	Waveform   []byte  `json:"-"`
	Error      string  `json:"error,omitempty"`

	pcm *codec.PCM
}

func dbfs(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}

func analyze(paths []string, workers int) []*stemInfo {
	infos := make([]*stemInfo, len(paths))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			info := &stemInfo{Path: path}
			infos[i] = info
			if st, err := os.Stat(path); err == nil {
				info.Size = st.Size()
			}
			pcm, err := codec.Decode(path)
			if err != nil {
				info.Error = err.Error()
				return nil
			}
			sum := codec.Analyze(pcm)
			info.SampleRate = pcm.SampleRate
			info.Channels = pcm.Channels
			info.Seconds = pcm.Seconds()
			info.PeakDB = dbfs(sum.Peak)
			info.RMSDB = dbfs(sum.RMS)
			info.Centroid = sum.Centroid
			info.Waveform = sum.Waveform
			info.pcm = pcm
			return nil
		})
	}
	_ = g.Wait()
	return infos
}

var sparks = []rune("▁▂▃▄▅▆▇█")

// sparkline squeezes a waveform overview into width runes.
func sparkline(wave []byte, width int) string {
	if len(wave) == 0 {
		return ""
	}
	var b strings.Builder
	for x := 0; x < width; x++ {
		start := x * len(wave) / width
		end := max((x+1)*len(wave)/width, start+1)
		var peak byte
		for _, v := range wave[start:min(end, len(wave))] {
			peak = max(peak, v)
		}
		b.WriteRune(sparks[int(peak)*(len(sparks)-1)/255])
	}
	return b.String()
}

func formatSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	if exp == 0 {
		return fmt.Sprintf("%.2f Kb", float64(b)/float64(unit))
	}
	return fmt.Sprintf("%.2f Mb", float64(b)/float64(div))
}

func printTable(w io.Writer, infos []*stemInfo) {
	fmt.Fprintln(w, strings.Repeat("=", 96))
	fmt.Fprintf(w, " %-3s | %-26s | %-6s | %-2s | %-8s | %-9s | %-7s | %-7s | %-8s\n",
		"NO", "STEM", "RATE", "CH", "DURATION", "SIZE", "PEAK", "RMS", "CENTROID")
	fmt.Fprintln(w, strings.Repeat("-", 96))

	rate := 0
	for i, s := range infos {
		name := filepath.Base(s.Path)
		if s.Error != "" {
			fmt.Fprintf(w, " %2d  | %-26s | [!] %s\n", i+1, name, s.Error)
			continue
		}
		fmt.Fprintf(w, " %2d  | %-26s | %6d | %2d | %02d:%02d    | %-9s | %7.1f | %7.1f | %6.0fHz\n",
			i+1, name, s.SampleRate, s.Channels, int(s.Seconds)/60, int(s.Seconds)%60,
			formatSize(s.Size), s.PeakDB, s.RMSDB, s.Centroid)
		fmt.Fprintf(w, "     | %s\n", sparkline(s.Waveform, 60))

		if rate == 0 {
			rate = s.SampleRate
		} else if s.SampleRate != rate {
			fmt.Fprintf(w, "     | [!] %d Hz differs from %d Hz, will play at the wrong speed\n",
				s.SampleRate, rate)
		}
	}
	fmt.Fprintln(w, strings.Repeat("=", 96))
}

func writeSpectrograms(dir string, infos []*stemInfo) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, s := range infos {
		if s.pcm == nil {
			continue
		}
		img, err := codec.Spectrogram(s.pcm, 800, 200)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(s.Path), filepath.Ext(s.Path)) + ".png"
		if err := os.WriteFile(filepath.Join(dir, name), img, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	cfg := &config{Workers: spec.DecodeWorkers}
	if _, err := flags.Parse(cfg); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Printf("\n%s %d.%d\n", app_name, spec.VersionMajor, spec.VersionMinor)
			fmt.Printf("%s %s\n", developer_title, developer_subtitle)
			return
		}
		os.Exit(1)
	}

	infos := analyze(cfg.Args.Stems, max(cfg.Workers, 1))
	printTable(os.Stdout, infos)

	if cfg.Spectrogram != "" {
		if err := writeSpectrograms(cfg.Spectrogram, infos); err != nil {
			fmt.Printf("[!] spectrogram: %v\n", err)
			os.Exit(1)
		}
	}

	if cfg.JSONDump {
		for _, s := range infos {
			// JSON has no -Inf.
			if math.IsInf(s.PeakDB, -1) {
				s.PeakDB = -999
			}
			if math.IsInf(s.RMSDB, -1) {
				s.RMSDB = -999
			}
		}
		out, _ := json.MarshalIndent(infos, "", "  ")
		fmt.Println(string(out))
		fmt.Println("=== [END DUMP] ===")
	}
}
