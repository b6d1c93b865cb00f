package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/go-audio/wav"

	"github.com/hiway/chordwav/pkg/analysis"
	"github.com/hiway/chordwav/pkg/container"
	"github.com/hiway/chordwav/pkg/sample"
)

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	peaks := fs.Int("peaks", 4, "Number of spectral peaks to report")
	noColor := fs.Bool("no-color", false, "Disable colored output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("inspect takes exactly one file")
	}
	if *noColor {
		color.NoColor = true
	}
	path := fs.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return err
	}

	h, pcm, err := container.ReadPCM(f)
	if err != nil {
		return err
	}
	checkErr := h.Check(st.Size())

	// Decode again with an independent reader as a cross-check.
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return fmt.Errorf("%s: not a valid WAVE file", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	dur, err := d.Duration()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	label := color.New(color.FgCyan).SprintFunc()
	good := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed, color.Bold).SprintFunc()

	fmt.Printf("%s %s\n", label("file:       "), path)
	fmt.Printf("%s %d bytes (declared %d)\n", label("size:       "), st.Size(), h.FileSize())
	fmt.Printf("%s %d Hz, %d-bit, %d channel(s)\n", label("format:     "), d.SampleRate, d.BitDepth, d.NumChans)
	fmt.Printf("%s %d bytes, %d samples, padded=%t\n", label("data:       "), h.Subchunk2Size, len(pcm), h.Padded())
	fmt.Printf("%s %s\n", label("duration:   "), dur)
	if len(buf.Data) != len(pcm) {
		fmt.Printf("%s %s\n", label("decoder:    "), bad(fmt.Sprintf("sample count mismatch: %d vs %d", len(buf.Data), len(pcm))))
	}
	if checkErr != nil {
		fmt.Printf("%s %s\n", label("header:     "), bad(checkErr.Error()))
	} else {
		fmt.Printf("%s %s\n", label("header:     "), good("ok"))
	}

	format := h.SampleFormat()
	found := analysis.Peaks(analysis.Normalize(pcm, sample.MaxAmplitude(format.BitsPerSample)), format.SampleRate, *peaks)
	for i, p := range found {
		fmt.Printf("%s %8.2f Hz  %-4s  %.3f\n", label(fmt.Sprintf("peak %d:     ", i+1)), float64(p.Freq), p.Note(), p.Magnitude)
	}

	return checkErr
}
