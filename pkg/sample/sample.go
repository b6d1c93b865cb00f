package sample

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Supported bit depths.
const (
	Bits8  = 8
	Bits16 = 16
	Bits24 = 24
	Bits32 = 32
)

// offset8 biases 8-bit samples, which WAVE stores unsigned.
const offset8 = 128

// Format describes how quantized samples are laid out on the wire.
type Format struct {
	BitsPerSample int
}

// Validate checks that the bit depth is one the encoder can produce.
func (f Format) Validate() error {
	switch f.BitsPerSample {
	case Bits8, Bits16, Bits24, Bits32:
		return nil
	}
	return fmt.Errorf("unsupported bits per sample %d (want 8, 16, 24 or 32)", f.BitsPerSample)
}

// Width is the encoded size of one sample in bytes.
func (f Format) Width() int {
	return f.BitsPerSample / 8
}

// MaxAmplitude is 2^(bits-1) - 1, the largest magnitude a sample may hold.
func (f Format) MaxAmplitude() float64 {
	return MaxAmplitude(f.BitsPerSample)
}

// MaxAmplitude returns 2^(bits-1) - 1.
func MaxAmplitude(bits int) float64 {
	return math.Exp2(float64(bits-1)) - 1
}

// Quantize truncates v toward zero after clamping it to [-maxAmp, maxAmp].
func Quantize(v, maxAmp float64) int32 {
	if math.IsNaN(v) {
		return 0
	}
	if v > maxAmp {
		v = maxAmp
	} else if v < -maxAmp {
		v = -maxAmp
	}
	return int32(v)
}

// Put encodes s little-endian into dst, which must hold at least Width bytes.
func (f Format) Put(dst []byte, s int32) {
	switch f.BitsPerSample {
	case Bits8:
		dst[0] = byte(s + offset8)
	case Bits16:
		binary.LittleEndian.PutUint16(dst, uint16(int16(s)))
	case Bits24:
		dst[0] = byte(s)
		dst[1] = byte(s >> 8)
		dst[2] = byte(s >> 16)
	case Bits32:
		binary.LittleEndian.PutUint32(dst, uint32(s))
	}
}

// Get decodes one little-endian sample from src.
func (f Format) Get(src []byte) int32 {
	switch f.BitsPerSample {
	case Bits8:
		return int32(src[0]) - offset8
	case Bits16:
		return int32(int16(binary.LittleEndian.Uint16(src)))
	case Bits24:
		v := int32(src[0]) | int32(src[1])<<8 | int32(src[2])<<16
		// sign extend
		return v << 8 >> 8
	case Bits32:
		return int32(binary.LittleEndian.Uint32(src))
	}
	return 0
}

// Decode splits a little-endian PCM body into samples. A trailing partial sample is ignored.
func (f Format) Decode(pcm []byte) []int32 {
	w := f.Width()
	if w == 0 {
		return nil
	}
	out := make([]int32, len(pcm)/w)
	for i := range out {
		out[i] = f.Get(pcm[i*w:])
	}
	return out
}
