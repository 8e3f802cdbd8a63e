// Package audio converts browser audio chunks into the 16-bit mono PCM that
// server-side recognizers consume. Nothing is buffered beyond a single chunk.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/go-audio/wav"
)

var (
	ErrInvalidWAV = errors.New("invalid wav chunk")
	ErrOddPCM     = errors.New("pcm16 length must be even")
)

// Chunk is one encoded piece of captured audio.
type Chunk struct {
	Data       []byte
	MimeType   string
	SampleRate int
}

// ToLinear16 decodes c and returns mono little-endian PCM16 at outRate.
func ToLinear16(c Chunk, outRate int) ([]byte, error) {
	samples, rate, err := Decode(c)
	if err != nil {
		return nil, err
	}
	return EncodePCM16LE(ResampleLinear(samples, rate, outRate)), nil
}

// Decode returns normalized mono samples and their rate. WAV is detected from
// the mime type or the RIFF header; anything else is taken as raw PCM16LE.
func Decode(c Chunk) ([]float32, int, error) {
	if isWAV(c) {
		return decodeWAV(c.Data)
	}
	return decodePCM16LE(c.Data, c.SampleRate)
}

func isWAV(c Chunk) bool {
	mt := strings.ToLower(c.MimeType)
	if strings.Contains(mt, "wav") {
		return true
	}
	return len(c.Data) >= 12 && string(c.Data[:4]) == "RIFF" && string(c.Data[8:12]) == "WAVE"
}

func decodeWAV(b []byte) ([]float32, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(b))
	if !dec.IsValidFile() {
		return nil, 0, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, ErrInvalidWAV
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int(1) << (bitDepth - 1))

	channels := int(dec.NumChans)
	if channels <= 0 && buf.Format != nil {
		channels = buf.Format.NumChannels
	}
	if channels <= 0 {
		channels = 1
	}

	// Interleaved frames are averaged down to mono.
	frames := len(buf.Data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(buf.Data[i*channels+ch]) / scale
		}
		out[i] = sum / float32(channels)
	}

	rate := int(dec.SampleRate)
	if rate == 0 && buf.Format != nil {
		rate = buf.Format.SampleRate
	}
	if rate == 0 {
		rate = 16000
	}
	return out, rate, nil
}

func decodePCM16LE(b []byte, rate int) ([]float32, int, error) {
	if rate <= 0 {
		rate = 16000
	}
	if len(b)%2 != 0 {
		return nil, 0, ErrOddPCM
	}
	out := make([]float32, len(b)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(b[2*i:]))
		out[i] = float32(v) / 32768.0
	}
	return out, rate, nil
}

// EncodePCM16LE clamps samples to [-1, 1] and packs them as PCM16LE.
func EncodePCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(float64(s) * 32767))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

// ResampleLinear converts samples from inRate to outRate using linear
// interpolation. Invalid rates return the input unchanged.
func ResampleLinear(samples []float32, inRate, outRate int) []float32 {
	if inRate <= 0 || outRate <= 0 || inRate == outRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(outRate) / float64(inRate)
	n := int(float64(len(samples)) * ratio)
	if n < 1 {
		n = 1
	}
	out := make([]float32, n)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) / ratio
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j] + (samples[j+1]-samples[j])*frac
	}
	return out
}
