// Package sound synthesises the game's sound effects into WAV files served
// alongside the web client.
package sound

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

const (
	DefaultSampleRate beep.SampleRate = 44100

	startGain = 0.3
	endGain   = 0.001
)

// Effect describes one synthesised tone.
type Effect struct {
	File     string
	Freq     float64
	Duration time.Duration
	Wave     WaveType
}

// Effects are the sounds the client plays: plink on every peg hit, win and
// lose once per resolved round. The client detunes plink per hit across
// 600-800 Hz via playback rate.
var Effects = []Effect{
	{File: "plink.wav", Freq: 700, Duration: 100 * time.Millisecond, Wave: WaveTriangle},
	{File: "win.wav", Freq: 800, Duration: time.Second, Wave: WaveSine},
	{File: "lose.wav", Freq: 200, Duration: 800 * time.Millisecond, Wave: WaveSaw},
}

// Streamer builds the shaped tone for e.
func (e Effect) Streamer(rate beep.SampleRate) beep.Streamer {
	osc := NewOscillator(e.Freq, e.Duration, e.Wave, rate)
	return NewDecay(osc, e.Duration, startGain, endGain, rate)
}

// Format is the PCM layout every effect is encoded with: mono, 16-bit.
func Format(rate beep.SampleRate) beep.Format {
	return beep.Format{SampleRate: rate, NumChannels: 1, Precision: 2}
}

// Encode writes e as a WAV stream.
func Encode(w io.WriteSeeker, e Effect, rate beep.SampleRate) error {
	if err := wav.Encode(w, e.Streamer(rate), Format(rate)); err != nil {
		return fmt.Errorf("encode %s: %w", e.File, err)
	}
	return nil
}

// Render writes every effect into dir and returns the written paths.
// Existing files are overwritten.
func Render(dir string, rate beep.SampleRate) ([]string, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", rate)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sound dir: %w", err)
	}

	paths := make([]string, 0, len(Effects))
	for _, e := range Effects {
		path := filepath.Join(dir, e.File)
		if err := renderFile(path, e, rate); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func renderFile(path string, e Effect, rate beep.SampleRate) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Encode(f, e, rate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
