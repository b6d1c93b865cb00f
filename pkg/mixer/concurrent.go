package mixer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hiway/chordwav/pkg/note"
	"github.com/hiway/chordwav/pkg/sample"
)

// DefaultChannelBuffer is the per-voice channel capacity.
const DefaultChannelBuffer = 4096

// WorkerError reports a producer that failed or panicked mid-stream.
type WorkerError struct {
	Voice int
	Err   error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("voice %d worker: %v", e.Voice, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// frame is one message on a voice channel. The last frame a producer sends has
// eos set and carries the number of values that preceded it in index.
type frame struct {
	index int
	value float64
	eos   bool
}

// producer emits the frames of one voice. scale is maxAmplitude*Amplitude.
type producer func(ctx context.Context, f note.Hz, ticks, rate int, scale float64, out chan<- frame) error

var (
	// errClosedEarly is returned by the aggregator when a voice channel closes
	// without an end-of-stream frame.
	errClosedEarly = fmt.Errorf("%w: channel closed before end of stream", ErrProtocolViolation)
	// errProducerFailed stops the aggregator once any producer has failed; Mix
	// reports the producer's error in its place.
	errProducerFailed = errors.New("producer failed")
)

// Concurrent runs one producer goroutine per voice and mixes their values on
// the calling goroutine.
type Concurrent struct {
	log zerolog.Logger
	// ChannelBuffer is the capacity of each voice channel.
	ChannelBuffer int

	produce producer
}

// NewConcurrent creates a fan-out/fan-in mixer.
func NewConcurrent(log zerolog.Logger) *Concurrent {
	return &Concurrent{
		log:           log.With().Str("mixer", ModeConcurrent).Logger(),
		ChannelBuffer: DefaultChannelBuffer,
		produce:       sine,
	}
}

// Name implements Mixer.
func (m *Concurrent) Name() string { return ModeConcurrent }

// Mix spawns a producer per voice, a coordinator that closes the voice channels
// once every producer has returned, and aggregates on the caller's goroutine.
func (m *Concurrent) Mix(ctx context.Context, w io.Writer, voices []note.Hz, p Params) (int64, error) {
	if err := validate(voices, p); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticks := p.Ticks()
	f := p.Format()
	scale := f.MaxAmplitude() * p.Amplitude

	capacity := m.ChannelBuffer
	if capacity < 0 {
		capacity = 0
	}
	chans := make([]chan frame, len(voices))
	for v := range chans {
		chans[v] = make(chan frame, capacity)
	}

	m.log.Debug().
		Int("voices", len(voices)).
		Int("ticks", ticks).
		Int("channel_buffer", capacity).
		Msg("Starting producers")

	// failed is closed by the first producer that returns an error so the
	// aggregator stops without draining frames that are already buffered.
	failed := make(chan struct{})
	var failOnce sync.Once

	g, gctx := errgroup.WithContext(ctx)
	for v, freq := range voices {
		v, freq := v, freq
		g.Go(func() (err error) {
			defer func() {
				if err != nil {
					failOnce.Do(func() { close(failed) })
				}
			}()
			// A producer owns its channel: it is closed as soon as the producer
			// returns, whether or not it sent end of stream.
			defer close(chans[v])
			defer func() {
				if r := recover(); r != nil {
					err = &WorkerError{Voice: v, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			if err := m.produce(gctx, freq, ticks, p.SampleRate, scale, chans[v]); err != nil {
				var we *WorkerError
				if errors.As(err, &we) || errors.Is(err, context.Canceled) {
					return err
				}
				return &WorkerError{Voice: v, Err: err}
			}
			m.log.Trace().Int("voice", v).Float64("hz", float64(freq)).Msg("Producer finished")
			return nil
		})
	}

	// Coordinator: joins the producers and records the first failure.
	var produceErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		produceErr = g.Wait()
	}()

	sw := sample.NewWriter(w, f)
	err := m.aggregate(ctx, failed, sw, chans, ticks, f.MaxAmplitude())
	if err != nil {
		cancel()
	}
	<-done

	if err != nil {
		switch {
		case errors.Is(err, errProducerFailed):
			// failed is only closed by a producer error, so produceErr is set
			err = produceErr
		case errors.Is(err, errClosedEarly) && produceErr != nil && !errors.Is(produceErr, context.Canceled):
			err = produceErr
		}
		m.log.Error().Err(err).Int64("bytes", sw.Written()).Msg("Aborting mix")
		return sw.Written(), err
	}
	if produceErr != nil {
		// every frame arrived but a producer still reported failure
		return sw.Written(), produceErr
	}

	m.log.Trace().Int64("bytes", sw.Written()).Msg("Chord mixed")
	return sw.Written(), nil
}

// aggregate receives one frame per voice per tick, mixes, quantizes and writes.
// After the last tick it requires an end-of-stream frame and then channel
// closure from every voice.
func (m *Concurrent) aggregate(ctx context.Context, failed <-chan struct{}, sw *sample.Writer, chans []chan frame, ticks int, maxAmp float64) error {
	voices := float64(len(chans))

	for i := 0; i < ticks; i++ {
		var sum float64
		for v, ch := range chans {
			fr, err := receive(ctx, failed, ch)
			if err != nil {
				return err
			}
			if fr.eos {
				return fmt.Errorf("%w: voice %d ended after %d of %d values", ErrProtocolViolation, v, fr.index, ticks)
			}
			if fr.index != i {
				return fmt.Errorf("%w: voice %d sent index %d at tick %d", ErrProtocolViolation, v, fr.index, i)
			}
			sum += fr.value
		}
		if err := sw.Write(sample.Quantize(sum/voices, maxAmp)); err != nil {
			return err
		}
	}

	finished := 0
	for v, ch := range chans {
		fr, err := receive(ctx, failed, ch)
		if err != nil {
			return err
		}
		if !fr.eos {
			return fmt.Errorf("%w: voice %d sent more than %d values", ErrProtocolViolation, v, ticks)
		}
		if fr.index != ticks {
			return fmt.Errorf("%w: voice %d reported %d values, want %d", ErrProtocolViolation, v, fr.index, ticks)
		}
		finished++
	}

	for v, ch := range chans {
		select {
		case fr, ok := <-ch:
			if ok {
				return fmt.Errorf("%w: voice %d sent frame %d after end of stream", ErrProtocolViolation, v, fr.index)
			}
		case <-failed:
			return errProducerFailed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.log.Trace().Int("finished_voices", finished).Msg("All voices drained")
	return nil
}

func receive(ctx context.Context, failed <-chan struct{}, ch <-chan frame) (frame, error) {
	select {
	case <-failed:
		return frame{}, errProducerFailed
	default:
	}
	select {
	case fr, ok := <-ch:
		if !ok {
			return frame{}, errClosedEarly
		}
		return fr, nil
	case <-failed:
		return frame{}, errProducerFailed
	case <-ctx.Done():
		return frame{}, ctx.Err()
	}
}

// sine is the default producer: one value per tick, then end of stream.
func sine(ctx context.Context, f note.Hz, ticks, rate int, scale float64, out chan<- frame) error {
	for i := 0; i < ticks; i++ {
		fr := frame{index: i, value: scale * math.Sin(phase(i, f, rate))}
		select {
		case out <- fr:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case out <- frame{index: ticks, eos: true}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
