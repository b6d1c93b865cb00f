// Package container writes mono PCM into a RIFF/WAVE file whose size fields are
// written as placeholders and patched once the body length is known.
package container

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/rs/zerolog"

	"github.com/hiway/chordwav/pkg/sample"
)

const (
	chunkID     = "RIFF"
	waveID      = "WAVE"
	fmtID       = "fmt "
	dataID      = "data"
	placeholder = "----"

	// fmtSize is the size of the PCM fmt sub-chunk.
	fmtSize = 16
	// formatPCM is the uncompressed audio format code.
	formatPCM = 1
	// Channels is fixed: output is always mono.
	Channels = 1
	// HeaderSize is the size of the canonical header written before the body.
	HeaderSize = 44
	// riffPreamble is the chunk id and chunk size, which the chunk size excludes.
	riffPreamble = 8
	sizeField    = 4

	// DefaultBufferSize is the body write buffer.
	DefaultBufferSize = 64 * 1024
)

// ErrTooLarge is returned when a size does not fit the 32-bit header fields.
var ErrTooLarge = errors.New("container exceeds 4 GiB")

// Format is the part of the header known before the body is written.
type Format struct {
	SampleRate    int
	BitsPerSample int
}

// Validate checks the format can be represented in the header.
func (f Format) Validate() error {
	if err := (sample.Format{BitsPerSample: f.BitsPerSample}).Validate(); err != nil {
		return err
	}
	if f.SampleRate <= 0 || int64(f.SampleRate) > math.MaxUint32 {
		return fmt.Errorf("sample rate %d out of range", f.SampleRate)
	}
	return nil
}

// ByteRate is sampleRate*channels*bitsPerSample/8.
func (f Format) ByteRate() uint32 {
	return uint32(f.SampleRate * Channels * f.BitsPerSample / 8)
}

// BlockAlign is channels*bitsPerSample/8.
func (f Format) BlockAlign() uint16 {
	return uint16(Channels * f.BitsPerSample / 8)
}

// BodyFunc appends PCM bytes to w and returns how many it wrote.
type BodyFunc func(w io.Writer) (int64, error)

// Writer writes containers.
type Writer struct {
	log zerolog.Logger
	// BufferSize is the size of the buffer handed to the body.
	BufferSize int
}

// NewWriter creates a container writer.
func NewWriter(log zerolog.Logger) *Writer {
	return &Writer{
		log:        log.With().Str("component", "container").Logger(),
		BufferSize: DefaultBufferSize,
	}
}

type syncer interface {
	Sync() error
}

// Write emits the header with placeholder sizes, runs body, pads odd-length
// data with one zero byte, then seeks back and patches both sizes. The data
// size excludes the pad byte, the RIFF size includes it. If ws can Sync it is
// synced before returning. The result is the total number of bytes in the file.
func (cw *Writer) Write(ws io.WriteSeeker, f Format, body BodyFunc) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, fmt.Errorf("invalid container format: %w", err)
	}

	hw := &headerWriter{ws: ws}
	hw.str(chunkID)
	riffSizePos := hw.tell()
	hw.str(placeholder)
	hw.str(waveID)
	hw.str(fmtID)
	hw.u32(fmtSize)
	hw.u16(formatPCM)
	hw.u16(Channels)
	hw.u32(uint32(f.SampleRate))
	hw.u32(f.ByteRate())
	hw.u16(f.BlockAlign())
	hw.u16(uint16(f.BitsPerSample))
	hw.str(dataID)
	dataSizePos := hw.tell()
	hw.str(placeholder)
	dataStart := hw.tell()
	if hw.err != nil {
		return 0, hw.err
	}

	cw.log.Debug().
		Int64("riff_size_pos", riffSizePos).
		Int64("data_size_pos", dataSizePos).
		Int("sample_rate", f.SampleRate).
		Int("bits_per_sample", f.BitsPerSample).
		Msg("Header written")

	bw := bufio.NewWriterSize(ws, max(cw.BufferSize, 16))
	n, err := body(bw)
	if err != nil {
		return 0, fmt.Errorf("write body: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return 0, &sample.IOError{Op: "flush body", Err: err}
	}

	dataEnd := hw.tell()
	if hw.err != nil {
		return 0, hw.err
	}
	if dataLen := dataEnd - dataStart; dataLen != n {
		cw.log.Warn().Int64("reported", n).Int64("measured", dataLen).Msg("Body length mismatch, using measured length")
	}

	end := dataEnd
	if (dataEnd-dataStart)%2 != 0 {
		hw.bytes([]byte{0})
		end = hw.tell()
		if hw.err != nil {
			return 0, hw.err
		}
	}

	dataSize := dataEnd - dataSizePos - sizeField
	riffSize := end - riffSizePos - sizeField
	if dataSize > math.MaxUint32 || riffSize > math.MaxUint32 {
		return 0, fmt.Errorf("%w: data %d bytes, riff %d bytes", ErrTooLarge, dataSize, riffSize)
	}

	hw.seek(riffSizePos)
	hw.u32(uint32(riffSize))
	hw.seek(dataSizePos)
	hw.u32(uint32(dataSize))
	hw.seek(end)
	if hw.err != nil {
		return 0, hw.err
	}

	if s, ok := ws.(syncer); ok {
		if err := s.Sync(); err != nil {
			return 0, &sample.IOError{Op: "sync", Err: err}
		}
	}

	cw.log.Debug().
		Int64("data_size", dataSize).
		Int64("riff_size", riffSize).
		Bool("padded", end != dataEnd).
		Msg("Sizes patched")

	return end, nil
}

// headerWriter keeps the first error and turns every later call into a no-op.
type headerWriter struct {
	ws  io.WriteSeeker
	err error
}

func (hw *headerWriter) bytes(b []byte) {
	if hw.err != nil {
		return
	}
	n, err := hw.ws.Write(b)
	if err == nil && n != len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		hw.err = &sample.IOError{Op: "write header", Err: err}
	}
}

func (hw *headerWriter) str(s string) { hw.bytes([]byte(s)) }

func (hw *headerWriter) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	hw.bytes(b[:])
}

func (hw *headerWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	hw.bytes(b[:])
}

func (hw *headerWriter) tell() int64 {
	if hw.err != nil {
		return 0
	}
	pos, err := hw.ws.Seek(0, io.SeekCurrent)
	if err != nil {
		hw.err = &sample.IOError{Op: "tell", Err: err}
	}
	return pos
}

func (hw *headerWriter) seek(pos int64) {
	if hw.err != nil {
		return
	}
	if _, err := hw.ws.Seek(pos, io.SeekStart); err != nil {
		hw.err = &sample.IOError{Op: "seek", Err: err}
	}
}
