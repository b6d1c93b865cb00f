// Command chordwav renders chords of sine tones into WAVE files and inspects
// the files it writes.
//
// Usage:
//
//	chordwav render [options] out.wav
//	chordwav render -chord "F4 A4 C5" -duration 2 chord.wav
//	chordwav render -config progression.toml -mode sequential song.wav
//	chordwav inspect chord.wav
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/hiway/chordwav/pkg/config"
	"github.com/hiway/chordwav/pkg/render"
)

const (
	defaultOutput = "sample.wav"
	localConfig   = "chordwav.toml"
	userConfig    = "chordwav/chordwav.toml"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "render":
		err = runRender(ctx, os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "chordwav: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  %s render [options] [out.wav]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s inspect file.wav\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nRun '%s render -h' for render options.\n", os.Args[0])
}

// newLogger writes human readable logs to a terminal and JSON otherwise.
func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	var log zerolog.Logger
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

// findConfig returns the first config file found in the working directory or
// the XDG config directories, or "" when there is none.
func findConfig(log zerolog.Logger) string {
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig
	} else if !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", localConfig).Msg("Error checking config file")
	}

	path, err := xdg.SearchConfigFile(userConfig)
	if err != nil {
		log.Debug().Str("file", userConfig).Msg("No user config file, using defaults")
		return ""
	}
	return path
}

func runRender(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML file with [render] settings and [[chords]] (default ./chordwav.toml, then $XDG_CONFIG_HOME/chordwav/chordwav.toml)")
	chord := fs.String("chord", "", "Render a single chord, e.g. \"F4 A4 C5\" (replaces the configured progression)")
	mode := fs.String("mode", "", "Mixer: sequential or concurrent")
	rate := fs.Int("rate", 0, "Sample rate in Hz")
	bits := fs.Int("bits", 0, "Bits per sample: 8, 16, 24 or 32")
	amplitude := fs.Float64("amplitude", 0, "Linear amplitude, 0.0 to 1.0")
	duration := fs.Int("duration", 0, "Seconds per chord")
	debug := fs.Bool("debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := newLogger(*debug)

	path := *configPath
	if path == "" {
		path = findConfig(log)
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.LoadConfig(path, log)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	// Flags override the file only when given explicitly.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Render.Mode = *mode
		case "rate":
			cfg.Render.SampleRate = *rate
		case "bits":
			cfg.Render.BitsPerSample = *bits
		case "amplitude":
			cfg.Render.Amplitude = *amplitude
		case "duration":
			cfg.Render.Duration = *duration
		case "chord":
			cfg.Chords = []config.Chord{{Notes: *chord}}
		}
	})

	out := defaultOutput
	if fs.NArg() > 0 {
		out = fs.Arg(0)
	}

	log.Debug().Interface("render", cfg.Render).Int("chords", len(cfg.Chords)).Msg("Final config")

	r, err := render.New(cfg, log)
	if err != nil {
		return err
	}
	_, err = r.RenderFile(ctx, out)
	return err
}
