package mixer

import (
	"context"
	"io"
	"math"

	"github.com/rs/zerolog"

	"github.com/hiway/chordwav/pkg/note"
	"github.com/hiway/chordwav/pkg/sample"
)

// Sequential mixes every voice on the calling goroutine.
type Sequential struct {
	log zerolog.Logger
}

// NewSequential creates a single-threaded mixer.
func NewSequential(log zerolog.Logger) *Sequential {
	return &Sequential{log: log.With().Str("mixer", ModeSequential).Logger()}
}

// Name implements Mixer.
func (m *Sequential) Name() string { return ModeSequential }

// Mix writes SampleRate*Duration samples, each the voice sum scaled by
// maxAmplitude*Amplitude/len(voices) and truncated to the sample width.
func (m *Sequential) Mix(ctx context.Context, w io.Writer, voices []note.Hz, p Params) (int64, error) {
	if err := validate(voices, p); err != nil {
		return 0, err
	}

	ticks := p.Ticks()
	f := p.Format()
	scale := f.MaxAmplitude() * p.Amplitude / float64(len(voices))
	sw := sample.NewWriter(w, f)

	m.log.Debug().
		Int("voices", len(voices)).
		Int("ticks", ticks).
		Float64("amplitude", p.Amplitude).
		Msg("Mixing chord")

	for i := 0; i < ticks; i++ {
		// cancellation is checked once per second of audio
		if i%p.SampleRate == 0 {
			if err := ctx.Err(); err != nil {
				return sw.Written(), err
			}
		}

		var sum float64
		for _, v := range voices {
			sum += math.Sin(phase(i, v, p.SampleRate))
		}
		if err := sw.Write(sample.Quantize(sum*scale, f.MaxAmplitude())); err != nil {
			m.log.Error().Err(err).Int("tick", i).Msg("Aborting mix")
			return sw.Written(), err
		}
	}

	m.log.Trace().Int64("bytes", sw.Written()).Msg("Chord mixed")
	return sw.Written(), nil
}
