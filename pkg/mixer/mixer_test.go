package mixer

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiway/chordwav/pkg/note"
	"github.com/hiway/chordwav/pkg/sample"
)

func testParams() Params {
	return Params{BitsPerSample: 16, SampleRate: 8000, Amplitude: 0.5, Duration: 1}
}

func mustChord(t *testing.T, chord string) []note.Hz {
	t.Helper()
	voices, err := note.ParseChord(chord)
	require.NoError(t, err)
	return voices
}

func mixers() []Mixer {
	return []Mixer{NewSequential(zerolog.Nop()), NewConcurrent(zerolog.Nop())}
}

func TestNew(t *testing.T) {
	m, err := New(ModeSequential, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, m.Name())

	m, err = New("", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, ModeConcurrent, m.Name())

	_, err = New("parallel", zerolog.Nop())
	require.Error(t, err)
}

func TestParams_Validate(t *testing.T) {
	require.NoError(t, testParams().Validate())

	bad := []Params{
		{BitsPerSample: 12, SampleRate: 8000, Amplitude: 0.5, Duration: 1},
		{BitsPerSample: 16, SampleRate: 0, Amplitude: 0.5, Duration: 1},
		{BitsPerSample: 16, SampleRate: 8000, Amplitude: 1.5, Duration: 1},
		{BitsPerSample: 16, SampleRate: 8000, Amplitude: -0.1, Duration: 1},
		{BitsPerSample: 16, SampleRate: 8000, Amplitude: math.NaN(), Duration: 1},
		{BitsPerSample: 16, SampleRate: 8000, Amplitude: 0.5, Duration: 0},
	}
	for _, p := range bad {
		err := p.Validate()
		require.Error(t, err, "%+v", p)
		assert.ErrorIs(t, err, ErrInvalidParams)
	}
}

func TestParams_Bytes(t *testing.T) {
	p := Params{BitsPerSample: 16, SampleRate: 44100, Amplitude: 0.5, Duration: 2}
	assert.Equal(t, 88200, p.Ticks())
	assert.Equal(t, int64(176400), p.Bytes())
}

func TestMix_RejectsBadVoices(t *testing.T) {
	for _, m := range mixers() {
		var buf bytes.Buffer
		_, err := m.Mix(context.Background(), &buf, nil, testParams())
		assert.ErrorIs(t, err, ErrInvalidParams, m.Name())

		_, err = m.Mix(context.Background(), &buf, []note.Hz{440, 0}, testParams())
		assert.ErrorIs(t, err, ErrInvalidParams, m.Name())
		assert.Zero(t, buf.Len(), m.Name())
	}
}

func TestMix_Length(t *testing.T) {
	p := testParams()
	for _, bits := range []int{8, 16, 24, 32} {
		p.BitsPerSample = bits
		for _, m := range mixers() {
			var buf bytes.Buffer
			n, err := m.Mix(context.Background(), &buf, mustChord(t, "C4 E4 G4"), p)
			require.NoError(t, err)
			assert.Equal(t, p.Bytes(), n, "%s bits=%d", m.Name(), bits)
			assert.Equal(t, int(p.Bytes()), buf.Len(), "%s bits=%d", m.Name(), bits)
		}
	}
}

func TestMix_SamplesWithinRange(t *testing.T) {
	chords := []string{"A4", "A4 A4", "A4 A4 A4 A4 A4 A4 A4 A4", "C4 E4 F4 A4", "C2 C3 C4 C5 C6"}
	for _, bits := range []int{8, 16, 24} {
		p := Params{BitsPerSample: bits, SampleRate: 4000, Amplitude: 1.0, Duration: 1}
		maxAmp := sample.MaxAmplitude(bits)
		for _, chord := range chords {
			for _, m := range mixers() {
				var buf bytes.Buffer
				_, err := m.Mix(context.Background(), &buf, mustChord(t, chord), p)
				require.NoError(t, err)
				for i, s := range p.Format().Decode(buf.Bytes()) {
					if float64(s) > maxAmp || float64(s) < -maxAmp {
						t.Fatalf("%s %q bits=%d: sample %d = %d out of range", m.Name(), chord, bits, i, s)
					}
				}
			}
		}
	}
}

func TestMix_InPhaseVoicesDoNotWrap(t *testing.T) {
	// eight identical voices sum to 8x a single sine before normalization
	p := Params{BitsPerSample: 16, SampleRate: 1760, Amplitude: 1.0, Duration: 1}
	var single, stacked bytes.Buffer
	m := NewSequential(zerolog.Nop())
	_, err := m.Mix(context.Background(), &single, []note.Hz{440}, p)
	require.NoError(t, err)
	_, err = m.Mix(context.Background(), &stacked, []note.Hz{440, 440, 440, 440, 440, 440, 440, 440}, p)
	require.NoError(t, err)

	a := p.Format().Decode(single.Bytes())
	b := p.Format().Decode(stacked.Bytes())
	// tick 1 is a quarter period: the crest
	assert.Equal(t, int32(32767), a[1])
	for i := range a {
		assert.InDelta(t, a[i], b[i], 1, "tick %d", i)
	}
}

func TestMix_Idempotent(t *testing.T) {
	for _, m := range mixers() {
		var first, second bytes.Buffer
		_, err := m.Mix(context.Background(), &first, mustChord(t, "B3 D4 F4 G4"), testParams())
		require.NoError(t, err)
		_, err = m.Mix(context.Background(), &second, mustChord(t, "B3 D4 F4 G4"), testParams())
		require.NoError(t, err)
		assert.True(t, bytes.Equal(first.Bytes(), second.Bytes()), m.Name())
	}
}

func TestMix_ConcurrentMatchesSequential(t *testing.T) {
	for _, chord := range []string{"A4", "F4 A4 C5", "C4 E4 F4 A4", "C3 G3 E4 Bb4 D5"} {
		for _, bits := range []int{16, 24} {
			p := Params{BitsPerSample: bits, SampleRate: 11025, Amplitude: 0.8, Duration: 1}
			var seq, con bytes.Buffer
			_, err := NewSequential(zerolog.Nop()).Mix(context.Background(), &seq, mustChord(t, chord), p)
			require.NoError(t, err)
			_, err = NewConcurrent(zerolog.Nop()).Mix(context.Background(), &con, mustChord(t, chord), p)
			require.NoError(t, err)

			a := p.Format().Decode(seq.Bytes())
			b := p.Format().Decode(con.Bytes())
			require.Len(t, b, len(a))
			for i := range a {
				if d := a[i] - b[i]; d > 1 || d < -1 {
					t.Fatalf("%q bits=%d tick %d: sequential %d concurrent %d", chord, bits, i, a[i], b[i])
				}
			}
		}
	}
}

func TestConcurrent_UnbufferedChannels(t *testing.T) {
	m := NewConcurrent(zerolog.Nop())
	m.ChannelBuffer = 0
	var buf bytes.Buffer
	n, err := m.Mix(context.Background(), &buf, mustChord(t, "C4 E4 G4"), testParams())
	require.NoError(t, err)
	assert.Equal(t, testParams().Bytes(), n)
}

type failingWriter struct {
	limit int
	n     int
}

var errDiskFull = errors.New("disk full")

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > w.limit {
		return 0, errDiskFull
	}
	w.n += len(p)
	return len(p), nil
}

func TestMix_WriteFailureIsFatal(t *testing.T) {
	for _, m := range mixers() {
		w := &failingWriter{limit: 100}
		n, err := m.Mix(context.Background(), w, mustChord(t, "C4 E4"), testParams())
		require.Error(t, err, m.Name())
		var ioErr *sample.IOError
		assert.ErrorAs(t, err, &ioErr, m.Name())
		assert.ErrorIs(t, err, errDiskFull, m.Name())
		assert.Equal(t, int64(100), n, m.Name())
	}
}

func TestMix_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, m := range mixers() {
		var buf bytes.Buffer
		_, err := m.Mix(ctx, &buf, mustChord(t, "C4 E4"), testParams())
		assert.ErrorIs(t, err, context.Canceled, m.Name())
	}
}

// withProducer swaps the producer of voice 1 and keeps the default for the others.
func withProducer(p producer) *Concurrent {
	m := NewConcurrent(zerolog.Nop())
	m.ChannelBuffer = 16
	m.produce = func(ctx context.Context, f note.Hz, ticks, rate int, scale float64, out chan<- frame) error {
		if f == 330 {
			return p(ctx, f, ticks, rate, scale, out)
		}
		return sine(ctx, f, ticks, rate, scale, out)
	}
	return m
}

func send(ctx context.Context, out chan<- frame, fr frame) error {
	select {
	case out <- fr:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestConcurrent_WorkerPanic(t *testing.T) {
	m := withProducer(func(ctx context.Context, f note.Hz, ticks, rate int, scale float64, out chan<- frame) error {
		for i := 0; i < 10; i++ {
			if err := send(ctx, out, frame{index: i}); err != nil {
				return err
			}
		}
		panic("oscillator exploded")
	})

	var buf bytes.Buffer
	_, err := m.Mix(context.Background(), &buf, []note.Hz{220, 330, 440}, testParams())
	var we *WorkerError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, 1, we.Voice)
	assert.Contains(t, err.Error(), "oscillator exploded")
}

func TestConcurrent_WorkerError(t *testing.T) {
	boom := errors.New("boom")
	m := withProducer(func(ctx context.Context, f note.Hz, ticks, rate int, scale float64, out chan<- frame) error {
		return boom
	})

	var buf bytes.Buffer
	_, err := m.Mix(context.Background(), &buf, []note.Hz{220, 330}, testParams())
	assert.ErrorIs(t, err, boom)
	var we *WorkerError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, 1, we.Voice)
}

func TestConcurrent_TooFewValues(t *testing.T) {
	m := withProducer(func(ctx context.Context, f note.Hz, ticks, rate int, scale float64, out chan<- frame) error {
		for i := 0; i < ticks-5; i++ {
			if err := send(ctx, out, frame{index: i}); err != nil {
				return err
			}
		}
		return send(ctx, out, frame{index: ticks - 5, eos: true})
	})

	var buf bytes.Buffer
	_, err := m.Mix(context.Background(), &buf, []note.Hz{220, 330}, testParams())
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Contains(t, err.Error(), "ended after")
}

func TestConcurrent_TooManyValues(t *testing.T) {
	m := withProducer(func(ctx context.Context, f note.Hz, ticks, rate int, scale float64, out chan<- frame) error {
		for i := 0; i < ticks+3; i++ {
			if err := send(ctx, out, frame{index: i}); err != nil {
				return err
			}
		}
		return send(ctx, out, frame{index: ticks + 3, eos: true})
	})

	var buf bytes.Buffer
	_, err := m.Mix(context.Background(), &buf, []note.Hz{220, 330}, testParams())
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Contains(t, err.Error(), "more than")
}

func TestConcurrent_MisalignedIndex(t *testing.T) {
	m := withProducer(func(ctx context.Context, f note.Hz, ticks, rate int, scale float64, out chan<- frame) error {
		for i := 0; i < ticks; i++ {
			if err := send(ctx, out, frame{index: i + 1}); err != nil {
				return err
			}
		}
		return send(ctx, out, frame{index: ticks, eos: true})
	})

	var buf bytes.Buffer
	_, err := m.Mix(context.Background(), &buf, []note.Hz{220, 330}, testParams())
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Contains(t, err.Error(), "index")
}

func TestConcurrent_MissingEndOfStream(t *testing.T) {
	m := withProducer(func(ctx context.Context, f note.Hz, ticks, rate int, scale float64, out chan<- frame) error {
		for i := 0; i < ticks; i++ {
			if err := send(ctx, out, frame{index: i}); err != nil {
				return err
			}
		}
		return nil
	})

	var buf bytes.Buffer
	_, err := m.Mix(context.Background(), &buf, []note.Hz{220, 330}, testParams())
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Contains(t, err.Error(), "closed before end of stream")
}

func TestConcurrent_FrameAfterEndOfStream(t *testing.T) {
	m := withProducer(func(ctx context.Context, f note.Hz, ticks, rate int, scale float64, out chan<- frame) error {
		if err := sine(ctx, f, ticks, rate, scale, out); err != nil {
			return err
		}
		return send(ctx, out, frame{index: ticks + 1})
	})

	var buf bytes.Buffer
	_, err := m.Mix(context.Background(), &buf, []note.Hz{220, 330}, testParams())
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Contains(t, err.Error(), "after end of stream")
}

func TestConcurrent_EarlyReturnWithoutEndOfStream(t *testing.T) {
	m := withProducer(func(ctx context.Context, f note.Hz, ticks, rate int, scale float64, out chan<- frame) error {
		for i := 0; i < 10; i++ {
			if err := send(ctx, out, frame{index: i}); err != nil {
				return err
			}
		}
		return nil
	})

	type result struct {
		n   int64
		err error
	}
	res := make(chan result, 1)
	go func() {
		var buf bytes.Buffer
		n, err := m.Mix(context.Background(), &buf, []note.Hz{220, 330}, testParams())
		res <- result{n, err}
	}()

	select {
	case r := <-res:
		require.ErrorIs(t, r.err, ErrProtocolViolation)
		assert.Contains(t, r.err.Error(), "closed before end of stream")
		assert.LessOrEqual(t, r.n, int64(10*2))
	case <-time.After(5 * time.Second):
		t.Fatal("Mix blocked after a producer stopped at 10 of 8000 values")
	}
}

func TestConcurrent_FailureStopsBufferedVoices(t *testing.T) {
	boom := errors.New("boom")
	m := NewConcurrent(zerolog.Nop())
	m.produce = func(ctx context.Context, f note.Hz, ticks, rate int, scale float64, out chan<- frame) error {
		if f == 330 {
			for i := 0; i < 100; i++ {
				out <- frame{index: i}
			}
			return boom
		}
		// the healthy voice only starts once the failure has cancelled the group
		<-ctx.Done()
		for i := 0; i < 100; i++ {
			out <- frame{index: i, value: scale}
		}
		return nil
	}

	var buf bytes.Buffer
	n, err := m.Mix(context.Background(), &buf, []note.Hz{220, 330}, testParams())
	require.ErrorIs(t, err, boom)
	var we *WorkerError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, 1, we.Voice)
	assert.Zero(t, n)
	assert.Zero(t, buf.Len())
}
