package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/hiway/chordwav/pkg/mixer"
	"github.com/hiway/chordwav/pkg/note"
)

// Render holds the parameters shared by every chord in a file.
type Render struct {
	BitsPerSample int     `toml:"bits_per_sample"`
	SampleRate    int     `toml:"sample_rate"`
	Amplitude     float64 `toml:"amplitude"` // Default amplitude (0.0 to 1.0)
	Duration      int     `toml:"duration"`  // Default duration in seconds
	Mode          string  `toml:"mode"`      // "sequential" or "concurrent"; empty means concurrent
	ChannelBuffer int     `toml:"channel_buffer"`
}

// Validate checks the render section.
func (r *Render) Validate() error {
	if err := r.Params().Validate(); err != nil {
		return err
	}
	switch r.Mode {
	case "", mixer.ModeSequential, mixer.ModeConcurrent:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", mixer.ModeSequential, mixer.ModeConcurrent, r.Mode)
	}
	if r.ChannelBuffer < 0 {
		return fmt.Errorf("channel_buffer cannot be negative")
	}
	return nil
}

// Params returns the default per-chord parameters.
func (r *Render) Params() mixer.Params {
	return mixer.Params{
		BitsPerSample: r.BitsPerSample,
		SampleRate:    r.SampleRate,
		Amplitude:     r.Amplitude,
		Duration:      r.Duration,
	}
}

// Chord is one entry of the progression. An unset amplitude or a zero duration
// falls back to the render defaults.
type Chord struct {
	Notes     string   `toml:"notes"`
	Amplitude *float64 `toml:"amplitude"`
	Duration  int      `toml:"duration"`
}

// Validate checks that every note resolves.
func (c *Chord) Validate() error {
	if _, err := note.ParseChord(c.Notes); err != nil {
		return err
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration cannot be negative")
	}
	return nil
}

// Params merges the chord's overrides into the render defaults.
func (c *Chord) Params(r Render) mixer.Params {
	p := r.Params()
	if c.Amplitude != nil {
		p.Amplitude = *c.Amplitude
	}
	if c.Duration > 0 {
		p.Duration = c.Duration
	}
	return p
}

// Config holds the complete chordwav configuration.
type Config struct {
	Render Render  `toml:"render"`
	Chords []Chord `toml:"chords"`
}

// Validate checks every section and names the first offending one.
func (c *Config) Validate() error {
	if err := c.Render.Validate(); err != nil {
		return fmt.Errorf("invalid render section: %w", err)
	}
	if len(c.Chords) == 0 {
		return fmt.Errorf("no chords configured")
	}
	for i := range c.Chords {
		ch := &c.Chords[i]
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("invalid chord %d (%q): %w", i, ch.Notes, err)
		}
		if err := ch.Params(c.Render).Validate(); err != nil {
			return fmt.Errorf("invalid chord %d (%q): %w", i, ch.Notes, err)
		}
	}
	return nil
}

// Default returns the built-in progression rendered at 16-bit 44.1 kHz. Its
// chords take amplitude and duration from the render section.
func Default() *Config {
	return &Config{
		Render: Render{
			BitsPerSample: 16,
			SampleRate:    44100,
			Amplitude:     0.5,
			Duration:      2,
			Mode:          mixer.ModeConcurrent,
			ChannelBuffer: mixer.DefaultChannelBuffer,
		},
		Chords: []Chord{
			{Notes: "C4 E4 F4 A4"},
			{Notes: "B3 D4 F4 G4"},
			{Notes: "B3 D4 E4 G4"},
			{Notes: "C4 E4 A4"},
		},
	}
}

// LoadConfig reads a TOML file on top of the defaults and validates the result.
// A file that declares chords replaces the default progression.
func LoadConfig(path string, log zerolog.Logger) (*Config, error) {
	log.Debug().Str("path", path).Msg("Loading configuration file")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	cfg.Chords = nil
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warn().Str("path", path).Str("key", undecoded[0].String()).Int("count", len(undecoded)).Msg("Ignoring unknown configuration keys")
	}
	if len(cfg.Chords) == 0 {
		cfg.Chords = Default().Chords
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Int("chords", len(cfg.Chords)).
		Str("mode", cfg.Render.Mode).
		Msg("Configuration loaded and validated successfully")
	return cfg, nil
}
