package render

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/hiway/chordwav/pkg/config"
	"github.com/hiway/chordwav/pkg/container"
	"github.com/hiway/chordwav/pkg/mixer"
	"github.com/hiway/chordwav/pkg/note"
	"github.com/hiway/chordwav/pkg/sample"
)

// Renderer turns a configured chord progression into a single container.
type Renderer struct {
	cfg    *config.Config
	mixer  mixer.Mixer
	writer *container.Writer
	log    zerolog.Logger
}

// entry is a resolved chord ready to mix.
type entry struct {
	notes  string
	voices []note.Hz
	params mixer.Params
}

// New creates a Renderer for cfg, choosing the mixer named by cfg.Render.Mode.
func New(cfg *config.Config, log zerolog.Logger) (*Renderer, error) {
	log = log.With().Str("component", "render").Logger()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	m, err := mixer.New(cfg.Render.Mode, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create mixer: %w", err)
	}
	if c, ok := m.(*mixer.Concurrent); ok {
		c.ChannelBuffer = cfg.Render.ChannelBuffer
	}

	return &Renderer{
		cfg:    cfg,
		mixer:  m,
		writer: container.NewWriter(log),
		log:    log,
	}, nil
}

// resolve looks up every chord and validates its parameters. It runs before
// anything is written so lookup errors never leave a partial file behind.
func (r *Renderer) resolve() ([]entry, error) {
	entries := make([]entry, 0, len(r.cfg.Chords))
	for i := range r.cfg.Chords {
		ch := &r.cfg.Chords[i]
		voices, err := note.ParseChord(ch.Notes)
		if err != nil {
			return nil, fmt.Errorf("chord %d (%q): %w", i, ch.Notes, err)
		}
		p := ch.Params(r.cfg.Render)
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("chord %d (%q): %w", i, ch.Notes, err)
		}
		entries = append(entries, entry{notes: ch.Notes, voices: voices, params: p})
	}
	return entries, nil
}

// RenderFile writes the progression to path. Lookup and parameter errors are
// reported before the file is created. Once writing has begun any error is
// fatal and the partial file is left as is.
func (r *Renderer) RenderFile(ctx context.Context, path string) (int64, error) {
	entries, err := r.resolve()
	if err != nil {
		return 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, &sample.IOError{Op: "create " + path, Err: err}
	}

	n, err := r.write(ctx, f, entries)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = &sample.IOError{Op: "close " + path, Err: closeErr}
	}
	if err != nil {
		r.log.Error().Err(err).Str("path", path).Msg("Render failed")
		return n, err
	}

	r.log.Info().Str("path", path).Int64("bytes", n).Int("chords", len(entries)).Msg("Render complete")
	return n, nil
}

// Render writes the progression to a caller-owned stream.
func (r *Renderer) Render(ctx context.Context, ws io.WriteSeeker) (int64, error) {
	entries, err := r.resolve()
	if err != nil {
		return 0, err
	}
	return r.write(ctx, ws, entries)
}

func (r *Renderer) write(ctx context.Context, ws io.WriteSeeker, entries []entry) (int64, error) {
	format := container.Format{
		SampleRate:    r.cfg.Render.SampleRate,
		BitsPerSample: r.cfg.Render.BitsPerSample,
	}

	return r.writer.Write(ws, format, func(w io.Writer) (int64, error) {
		var total int64
		for i, e := range entries {
			r.log.Debug().
				Int("chord", i).
				Str("notes", e.notes).
				Float64("amplitude", e.params.Amplitude).
				Int("duration", e.params.Duration).
				Str("mixer", r.mixer.Name()).
				Msg("Rendering chord")

			n, err := r.mixer.Mix(ctx, w, e.voices, e.params)
			total += n
			if err != nil {
				return total, fmt.Errorf("chord %d (%q): %w", i, e.notes, err)
			}
		}
		return total, nil
	})
}
