package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
)

// wavFormatIEEEFloat is the WAV format code for 32-bit float PCM.
const wavFormatIEEEFloat = 3

// EncodeFloat32 packages float32 samples into a mono WAV container at the
// given sample rate. The returned bytes form a complete file including the
// finalized header.
func EncodeFloat32(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	buf := &seekBuffer{}
	enc := wav.NewEncoder(buf, sampleRate, 32, 1, wavFormatIEEEFloat)
	for _, sample := range samples {
		if err := enc.WriteFrame(sample); err != nil {
			return nil, fmt.Errorf("write wav frame: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return buf.buf, nil
}

// Float32FromPCM16 converts little-endian signed 16-bit PCM to float32
// samples in [-1, 1).
func Float32FromPCM16(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm16 payload not aligned: %d bytes", len(pcm))
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return samples, nil
}

// Float32FromBytes reinterprets little-endian float32 frames as samples.
func Float32FromBytes(pcm []byte) ([]float32, error) {
	if len(pcm)%4 != 0 {
		return nil, fmt.Errorf("float32 payload not aligned: %d bytes", len(pcm))
	}
	samples := make([]float32, len(pcm)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:]))
	}
	return samples, nil
}

// seekBuffer is an in-memory io.WriteSeeker so the wav encoder can patch
// chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if b.pos+len(p) > len(b.buf) {
		grown := make([]byte, b.pos+len(p))
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = b.pos + int(offset)
	case io.SeekEnd:
		next = len(b.buf) + int(offset)
	default:
		return 0, fmt.Errorf("unsupported whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("seek before start of buffer")
	}
	b.pos = next
	return int64(next), nil
}
