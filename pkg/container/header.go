package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hiway/chordwav/pkg/sample"
)

// ErrMalformed is returned for a header that is not a canonical PCM WAVE header.
var ErrMalformed = errors.New("malformed container header")

// Header is the canonical 44-byte RIFF/WAVE header.
type Header struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// ReadHeader parses the header at the start of r.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case string(h.ChunkID[:]) != chunkID:
		return h, fmt.Errorf("%w: chunk id %q", ErrMalformed, h.ChunkID[:])
	case string(h.Format[:]) != waveID:
		return h, fmt.Errorf("%w: format %q", ErrMalformed, h.Format[:])
	case string(h.Subchunk1ID[:]) != fmtID:
		return h, fmt.Errorf("%w: sub-chunk 1 id %q", ErrMalformed, h.Subchunk1ID[:])
	case string(h.Subchunk2ID[:]) != dataID:
		return h, fmt.Errorf("%w: sub-chunk 2 id %q", ErrMalformed, h.Subchunk2ID[:])
	case h.Subchunk1Size != fmtSize:
		return h, fmt.Errorf("%w: fmt size %d", ErrMalformed, h.Subchunk1Size)
	}
	return h, nil
}

// SampleFormat returns the sample rate and bit depth declared by the header.
func (h Header) SampleFormat() Format {
	return Format{SampleRate: int(h.SampleRate), BitsPerSample: int(h.BitsPerSample)}
}

// Padded reports whether the data chunk is followed by an alignment byte.
func (h Header) Padded() bool {
	return h.Subchunk2Size%2 != 0
}

// FileSize is the total file size the header declares.
func (h Header) FileSize() int64 {
	return int64(h.ChunkSize) + riffPreamble
}

// Check verifies the derived fields against each other and against the actual
// size of the file.
func (h Header) Check(fileSize int64) error {
	f := h.SampleFormat()
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if h.AudioFormat != formatPCM || h.NumChannels != Channels {
		return fmt.Errorf("%w: audio format %d with %d channels", ErrMalformed, h.AudioFormat, h.NumChannels)
	}
	if h.ByteRate != f.ByteRate() || h.BlockAlign != f.BlockAlign() {
		return fmt.Errorf("%w: byte rate %d block align %d", ErrMalformed, h.ByteRate, h.BlockAlign)
	}
	if h.FileSize() != fileSize {
		return fmt.Errorf("%w: declared file size %d, actual %d", ErrMalformed, h.FileSize(), fileSize)
	}
	pad := int64(0)
	if h.Padded() {
		pad = 1
	}
	if want := fileSize - HeaderSize - pad; int64(h.Subchunk2Size) != want {
		return fmt.Errorf("%w: declared data size %d, actual %d", ErrMalformed, h.Subchunk2Size, want)
	}
	return nil
}

// ReadPCM reads the header and the PCM body that follows it, without the pad byte.
// A data size larger than the rest of the stream is rejected before allocating.
func ReadPCM(r io.ReadSeeker) (Header, []int32, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Header{}, nil, &sample.IOError{Op: "seek", Err: err}
	}
	h, err := ReadHeader(r)
	if err != nil {
		return h, nil, err
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return h, nil, &sample.IOError{Op: "seek", Err: err}
	}
	if _, err := r.Seek(HeaderSize, io.SeekStart); err != nil {
		return h, nil, &sample.IOError{Op: "seek", Err: err}
	}
	if avail := end - HeaderSize; int64(h.Subchunk2Size) > avail {
		return h, nil, fmt.Errorf("%w: data chunk declares %d bytes, stream holds %d", ErrMalformed, h.Subchunk2Size, avail)
	}

	body := make([]byte, h.Subchunk2Size)
	if _, err := io.ReadFull(r, body); err != nil {
		return h, nil, fmt.Errorf("%w: short data chunk: %v", ErrMalformed, err)
	}
	return h, sample.Format{BitsPerSample: int(h.BitsPerSample)}.Decode(body), nil
}
