// Package mixer renders chords into quantized mono PCM by additive sine synthesis.
//
// Two implementations share one contract: Sequential computes every sample on the
// calling goroutine, Concurrent fans out one producer per voice and fans the values
// back in on the calling goroutine, which is the only writer of the output stream.
package mixer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/rs/zerolog"

	"github.com/hiway/chordwav/pkg/note"
	"github.com/hiway/chordwav/pkg/sample"
)

// Mode names accepted by New.
const (
	ModeSequential = "sequential"
	ModeConcurrent = "concurrent"
)

var (
	// ErrInvalidParams is wrapped by every parameter or voice validation failure.
	ErrInvalidParams = errors.New("invalid render parameters")
	// ErrProtocolViolation marks a producer/aggregator contract bug in the concurrent mixer.
	ErrProtocolViolation = errors.New("concurrency protocol violation")
)

// Mixer appends the PCM body of one chord to w and reports the bytes written.
type Mixer interface {
	Mix(ctx context.Context, w io.Writer, voices []note.Hz, p Params) (int64, error)
	Name() string
}

// New returns the mixer registered under mode.
func New(mode string, log zerolog.Logger) (Mixer, error) {
	switch mode {
	case ModeSequential:
		return NewSequential(log), nil
	case "", ModeConcurrent:
		return NewConcurrent(log), nil
	}
	return nil, fmt.Errorf("unknown mixer mode %q", mode)
}

// Params are the render parameters of a single chord.
type Params struct {
	BitsPerSample int
	SampleRate    int
	// Amplitude is a linear scale in [0, 1].
	Amplitude float64
	// Duration in whole seconds.
	Duration int
}

// Validate checks the parameters before any byte is written.
func (p Params) Validate() error {
	if err := p.Format().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if p.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidParams, p.SampleRate)
	}
	if math.IsNaN(p.Amplitude) || p.Amplitude < 0 || p.Amplitude > 1 {
		return fmt.Errorf("%w: amplitude must be between 0.0 and 1.0, got %f", ErrInvalidParams, p.Amplitude)
	}
	if p.Duration < 1 {
		return fmt.Errorf("%w: duration must be at least 1 second, got %d", ErrInvalidParams, p.Duration)
	}
	return nil
}

// Format is the sample encoding implied by BitsPerSample.
func (p Params) Format() sample.Format {
	return sample.Format{BitsPerSample: p.BitsPerSample}
}

// Ticks is the number of samples one chord occupies.
func (p Params) Ticks() int {
	return p.SampleRate * p.Duration
}

// Bytes is the PCM body size of one chord.
func (p Params) Bytes() int64 {
	return int64(p.Ticks()) * int64(p.Format().Width())
}

func validate(voices []note.Hz, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if len(voices) == 0 {
		return fmt.Errorf("%w: chord has no voices", ErrInvalidParams)
	}
	for i, f := range voices {
		if f <= 0 || math.IsInf(float64(f), 0) || math.IsNaN(float64(f)) {
			return fmt.Errorf("%w: voice %d has frequency %v", ErrInvalidParams, i, f)
		}
	}
	return nil
}

// phase is the sine argument of voice f at tick i.
func phase(i int, f note.Hz, rate int) float64 {
	return 2 * math.Pi * float64(i) * float64(f) / float64(rate)
}
