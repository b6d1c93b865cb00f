// Package analysis finds the tones present in rendered PCM.
package analysis

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/hiway/chordwav/pkg/note"
)

// Peak is a local maximum of the magnitude spectrum.
type Peak struct {
	Freq      note.Hz
	Magnitude float64
}

// Note is the sharp spelling of the semitone nearest the peak.
func (p Peak) Note() string {
	return note.Name(note.Nearest(p.Freq))
}

// Normalize converts quantized samples to [-1, 1].
func Normalize(samples []int32, maxAmp float64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / maxAmp
	}
	return out
}

// Peaks returns up to n of the strongest spectral peaks of samples, strongest
// first. A Hann window is applied before the transform; peak frequencies are
// refined by parabolic interpolation between neighbouring bins.
func Peaks(samples []float64, sampleRate, n int) []Peak {
	if len(samples) < 4 || sampleRate <= 0 || n <= 0 {
		return nil
	}

	x := make([]float64, len(samples))
	copy(x, samples)
	window.Apply(x, window.Hann)

	fft := fourier.NewFFT(len(x))
	coeffs := fft.Coefficients(nil, x)
	mags := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mags[i] = cmplx.Abs(c)
	}

	var peaks []Peak
	for i := 1; i < len(mags)-1; i++ {
		if mags[i] <= mags[i-1] || mags[i] < mags[i+1] {
			continue
		}
		// parabolic interpolation on log magnitude
		a, b, c := logMag(mags[i-1]), logMag(mags[i]), logMag(mags[i+1])
		offset := 0.0
		if d := a - 2*b + c; d != 0 {
			offset = 0.5 * (a - c) / d
		}
		binHz := fft.Freq(1) * float64(sampleRate)
		peaks = append(peaks, Peak{
			Freq:      note.Hz((float64(i) + offset) * binHz),
			Magnitude: mags[i],
		})
	}

	sort.Slice(peaks, func(i, j int) bool { return peaks[i].Magnitude > peaks[j].Magnitude })
	if len(peaks) > n {
		peaks = peaks[:n]
	}
	return peaks
}

func logMag(m float64) float64 {
	return math.Log(m + 1e-12)
}
