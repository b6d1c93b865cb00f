// Package chordwav renders chords of pure sine tones into mono PCM WAVE files.
//
// The heavy lifting lives in the pkg/ tree: note resolves note names, mixer
// synthesizes PCM sequentially or with one goroutine per voice, container
// writes the RIFF/WAVE header and patches its sizes, render ties them together.
package chordwav

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hiway/chordwav/pkg/config"
	"github.com/hiway/chordwav/pkg/mixer"
	"github.com/hiway/chordwav/pkg/render"
)

const (
	// SampleRate is the default number of samples per second
	SampleRate = 44100
	// BitsPerSample is the default sample width
	BitsPerSample = 16
	// Amplitude is the default linear volume
	Amplitude = 0.5
	// Duration is the default chord length in seconds
	Duration = 2
)

// DefaultParams returns 16-bit 44.1 kHz parameters at half volume for two seconds.
func DefaultParams() mixer.Params {
	return mixer.Params{
		BitsPerSample: BitsPerSample,
		SampleRate:    SampleRate,
		Amplitude:     Amplitude,
		Duration:      Duration,
	}
}

// RenderChord writes a single chord such as "F4 A4 C5" to path using the named
// mixer mode and returns the size of the file.
func RenderChord(ctx context.Context, path, chord string, p mixer.Params, mode string, log zerolog.Logger) (int64, error) {
	cfg := &config.Config{
		Render: config.Render{
			BitsPerSample: p.BitsPerSample,
			SampleRate:    p.SampleRate,
			Amplitude:     p.Amplitude,
			Duration:      p.Duration,
			Mode:          mode,
			ChannelBuffer: mixer.DefaultChannelBuffer,
		},
		Chords: []config.Chord{{Notes: chord}},
	}

	r, err := render.New(cfg, log)
	if err != nil {
		return 0, err
	}
	return r.RenderFile(ctx, path)
}
